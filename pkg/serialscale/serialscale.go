// Package serialscale provides a serial-attached load cell (e.g. an HX711
// bridge on a microcontroller) as a reading source. The bridge is expected to
// emit one reading per line in the form `W:<grams>`.
package serialscale

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/djbios/catscale/pkg/scale"
	"go.bug.st/serial"
)

const (
	defaultBaudRate = 115200

	linePrefix = "W:"
)

// SerialScale denotes a load cell bridge connected via a serial port
type SerialScale struct {
	connectionStatus scale.ConnectionStatus

	portName string
	baudRate int
	port     serial.Port

	stateChangeHandler func(status scale.ConnectionStatus)
	stateChangeChan    chan scale.ConnectionStatus

	dataHandler func(data scale.DataPoint)
	dataChan    chan scale.DataPoint
	doneChan    chan struct{}

	logger scale.Logger
}

// New instantiates a new serial scale source and starts reading from the
// given port, executing functional options, if any
func New(portName string, options ...func(*SerialScale)) (*SerialScale, error) {

	s := &SerialScale{
		portName: portName,
		baudRate: defaultBaudRate,
		doneChan: make(chan struct{}),
		logger:   &scale.NullLogger{},
	}

	// Execute functional options (if any), see options.go for implementation
	for _, option := range options {
		option(s)
	}

	port, err := serial.Open(s.portName, &serial.Mode{BaudRate: s.baudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", s.portName, err)
	}
	s.port = port
	s.setStatus(scale.StateConnected, nil)

	go s.readLoop()

	return s, nil
}

// ConnectionStatus returns the current status of the serial connection
func (s *SerialScale) ConnectionStatus() scale.ConnectionStatus {
	return s.connectionStatus
}

// SetStateChangeHandler defines a handler function that is called upon state change
func (s *SerialScale) SetStateChangeHandler(fn func(status scale.ConnectionStatus)) {
	s.stateChangeHandler = fn
}

// SetStateChangeChannel defines a channel that state changes are put on
func (s *SerialScale) SetStateChangeChannel(ch chan scale.ConnectionStatus) {
	s.stateChangeChan = ch
}

// SetDataHandler defines a handler function that is called upon retrieval of data
func (s *SerialScale) SetDataHandler(fn func(data scale.DataPoint)) {
	s.dataHandler = fn
}

// SetDataChannel defines a channel that retrieved data points are put on
func (s *SerialScale) SetDataChannel(ch chan scale.DataPoint) {
	s.dataChan = ch
}

// Close terminates the connection to the port
func (s *SerialScale) Close() error {
	close(s.doneChan)

	return s.port.Close()
}

////////////////////////////////////////////////////////////////////////////////

func (s *SerialScale) readLoop() {

	scanner := bufio.NewScanner(s.port)
	for scanner.Scan() {
		weight, ok := parseLine(scanner.Text())
		if !ok {
			s.logger.Debugf("skipping malformed line from %s: %q", s.portName, scanner.Text())
			continue
		}

		s.emit(scale.DataPoint{
			TimeStamp: time.Now(),
			Weight:    weight,
			Unit:      scale.UnitGrams,
		})
	}

	select {
	case <-s.doneChan:
		// Closed on purpose
	default:
		s.logger.Errorf("serial read loop on %s terminated: %v", s.portName, scanner.Err())
		s.setStatus(scale.StateDisconnected, scanner.Err())
	}
}

func (s *SerialScale) emit(dataPoint scale.DataPoint) {

	// Call handler function, if any
	if s.dataHandler != nil {
		s.dataHandler(dataPoint)
	}

	// Put data point on channel, if any
	if s.dataChan != nil {
		s.dataChan <- dataPoint
	}
}

func (s *SerialScale) setStatus(state scale.State, err error) {
	s.connectionStatus = scale.ConnectionStatus{
		State: state,
		Error: err,
	}

	// Call handler function, if any
	if s.stateChangeHandler != nil {
		s.stateChangeHandler(s.connectionStatus)
	}

	// Put state change on channel, if any
	if s.stateChangeChan != nil {
		select {
		case s.stateChangeChan <- s.connectionStatus:
		default:
		}
	}
}

// parseLine extracts the weight (in g) from a `W:<grams>` line
func parseLine(line string) (float64, bool) {

	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, linePrefix) {
		return 0, false
	}

	weight, err := strconv.ParseFloat(strings.TrimSpace(line[len(linePrefix):]), 64)
	if err != nil {
		return 0, false
	}

	return weight, true
}
