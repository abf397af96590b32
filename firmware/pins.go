//go:build tinygo

package main

import "machine"

const (
	// Averaging configuration
	WINDOW_SIZE = 16 // SBE 49 samples at 16 Hz, one averaged line per second

	// Receive configuration
	CHUNK_SIZE       = 128 // Bytes drained from the UART per read
	MAX_IDLE_TIME_MS = 500 // Quiet time before the status LED goes dark
	IDLE_POLL_MS     = 5   // Poll interval while idle

	// Status LED
	PIN_STATUS_LED = machine.LED

	// Serial configuration
	// SBE 49 OutputFormat=3 with salinity and sound velocity is 49 bytes per line.
	// 16 lines/sec * 49 bytes = 784 bytes/sec, UART 8N1 needs 7,840 baud.
	// 9600 is the instrument default and leaves ~22% headroom.
	UART_BAUD_RATE = 9600
)
