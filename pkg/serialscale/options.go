package serialscale

import "github.com/djbios/catscale/pkg/scale"

// WithBaudRate sets the baud rate of the serial connection
func WithBaudRate(baudRate int) func(*SerialScale) {
	return func(s *SerialScale) {
		s.baudRate = baudRate
	}
}

// WithLogger sets a custom logger
func WithLogger(logger scale.Logger) func(*SerialScale) {
	return func(s *SerialScale) {
		s.logger = logger
	}
}
