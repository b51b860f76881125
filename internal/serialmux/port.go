package serialmux

import (
	"io"
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// SerialPortOpener is a function type for opening serial ports. The real
// implementation is OpenSerialPort; tests swap in an in-memory port.
type SerialPortOpener func(path string, opts PortOptions) (SerialPorter, error)
