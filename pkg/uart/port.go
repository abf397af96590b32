package uart

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Port is a byte stream to and from the instrument. Read returns 0, nil when
// the read timeout expires without data.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Info describes a serial port found on the host.
type Info struct {
	Name        string
	Description string
}

// Ensure the serial driver and the simulator satisfy Port.
var (
	_ Port = (serial.Port)(nil)
	_ Port = (*Mock)(nil)
)

// Open opens a serial port in 8N1 mode at the given baud rate.
func Open(name string, baud int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}

	return port, nil
}

// Ports returns a list of available serial ports.
func Ports() ([]Info, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		result := make([]Info, 0, len(details))
		for _, d := range details {
			result = append(result, Info{Name: d.Name, Description: describe(d)})
		}
		return result, nil
	}

	// Fall back to plain names when the enumerator is unavailable
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Info, 0, len(names))
	for _, name := range names {
		result = append(result, Info{Name: name, Description: name})
	}

	return result, nil
}

func describe(d *enumerator.PortDetails) string {
	if !d.IsUSB {
		return d.Name
	}
	desc := fmt.Sprintf("%s (USB %s:%s", d.Name, d.VID, d.PID)
	if d.Product != "" {
		desc += " " + d.Product
	}
	if d.SerialNumber != "" {
		desc += " s/n " + d.SerialNumber
	}
	return desc + ")"
}
