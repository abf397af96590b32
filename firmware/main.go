//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"time"

	"github.com/itohio/goctd/pkg/ctd"
)

var (
	uart = machine.UART0

	// Local receive buffer drained from the UART ring buffer
	rxBuffer [CHUNK_SIZE]byte

	pipeline = ctd.New(WINDOW_SIZE, ctd.DefaultBufferCapacity)

	// Timing
	lastData time.Time
	ledOn    bool
)

func main() {
	PIN_STATUS_LED.Configure(machine.PinConfig{Mode: machine.PinOutput})

	// Averaged lines go back out on the same UART the samples arrive on
	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	lastData = time.Now()
	setLED(true)

	// Main loop
	for {
		n, _ := uart.Read(rxBuffer[:])
		if n > 0 {
			pipeline.Ingest(uart, rxBuffer[:n])
			lastData = time.Now()
			setLED(!ledOn) // Toggle on every chunk
			continue
		}

		// Line quiet: turn the LED off and poll slower
		if time.Since(lastData) > time.Duration(MAX_IDLE_TIME_MS)*time.Millisecond {
			setLED(false)
			time.Sleep(time.Duration(IDLE_POLL_MS) * time.Millisecond)
			continue
		}

		time.Sleep(100 * time.Microsecond)
	}
}

func setLED(on bool) {
	ledOn = on
	if on {
		PIN_STATUS_LED.High()
	} else {
		PIN_STATUS_LED.Low()
	}
}
