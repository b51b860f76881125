package serialmux

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// OpenSerialPort opens the device at path with the given options and waits
// out the settle delay before handing the port back.
func OpenSerialPort(path string, opts PortOptions) (SerialPorter, error) {
	normalised, err := opts.Normalise()
	if err != nil {
		return nil, err
	}
	mode, err := normalised.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if normalised.SettleDelay > 0 {
		time.Sleep(normalised.SettleDelay)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("reset input buffer on %s: %w", path, err)
	}
	return port, nil
}

// NewRealSerialMux creates a SerialMux instance backed by a real serial port at the
// given path using the provided serial options.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux[SerialPorter], error) {
	return newSerialMuxWith(OpenSerialPort, path, opts)
}

func newSerialMuxWith(open SerialPortOpener, path string, opts PortOptions) (*SerialMux[SerialPorter], error) {
	port, err := open(path, opts)
	if err != nil {
		return nil, err
	}
	return NewSerialMux(port), nil
}
