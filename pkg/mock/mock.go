// Package mock provides a programmable reading source for tests and offline
// trace replay.
package mock

import (
	"time"

	"github.com/djbios/catscale/pkg/scale"
	"github.com/fatih/stopwatch"
)

const defaultDeviceName = "Mock Scale"

// Mock denotes a mock scale whose readings are emitted programmatically
type Mock struct {
	connectionStatus scale.ConnectionStatus

	deviceName string

	stateChangeHandler func(status scale.ConnectionStatus)
	stateChangeChan    chan scale.ConnectionStatus

	dataHandler func(data scale.DataPoint)
	dataChan    chan scale.DataPoint
	doneChan    chan struct{}

	timer *stopwatch.Stopwatch
}

// New instantiates a new Mock source
func New() (*Mock, error) {

	m := &Mock{
		deviceName: defaultDeviceName,
		doneChan:   make(chan struct{}),
	}
	m.setStatus(scale.StateConnected, nil)

	return m, nil
}

// ConnectionStatus returns the current status of the mock device
func (m *Mock) ConnectionStatus() scale.ConnectionStatus {
	return m.connectionStatus
}

// SetStateChangeHandler defines a handler function that is called upon state change
func (m *Mock) SetStateChangeHandler(fn func(status scale.ConnectionStatus)) {
	m.stateChangeHandler = fn
}

// SetStateChangeChannel defines a channel that state changes are put on
func (m *Mock) SetStateChangeChannel(ch chan scale.ConnectionStatus) {
	m.stateChangeChan = ch
}

// SetDataHandler defines a handler function that is called upon retrieval of data
func (m *Mock) SetDataHandler(fn func(data scale.DataPoint)) {
	m.dataHandler = fn
}

// SetDataChannel defines a channel that retrieved data points are put on
func (m *Mock) SetDataChannel(ch chan scale.DataPoint) {
	m.dataChan = ch
}

// Tare is a no-op on the mock scale
func (m *Mock) Tare() error {
	return nil
}

// Close terminates the mock device
func (m *Mock) Close() error {
	close(m.doneChan)
	m.setStatus(scale.StateDisconnected, nil)

	return nil
}

// Emit delivers a single weight reading (in g) timestamped now
func (m *Mock) Emit(weight float64) {
	m.EmitPoint(scale.DataPoint{
		TimeStamp: time.Now(),
		Weight:    weight,
		Unit:      scale.UnitGrams,
	})
}

// EmitPoint delivers a single data point as-is
func (m *Mock) EmitPoint(data scale.DataPoint) {

	// Call handler function, if any
	if m.dataHandler != nil {
		m.dataHandler(data)
	}

	// Put data point on channel, if any
	if m.dataChan != nil {
		m.dataChan <- data
	}
}

// Replay delivers a recorded trace of data points in order. With speed > 0 the
// original inter-reading gaps are reproduced, divided by the speed factor;
// otherwise the trace is replayed as fast as possible. It returns the elapsed
// wall-clock time of the replay session
func (m *Mock) Replay(points scale.DataPoints, speed float64) time.Duration {

	if m.timer == nil {
		m.timer = stopwatch.Start(0)
	} else {
		m.timer.Reset()
		m.timer.Start(0)
	}
	defer m.timer.Stop()

	for i, p := range points {
		if speed > 0 && i > 0 {
			gap := p.TimeStamp.Sub(points[i-1].TimeStamp)
			if gap > 0 {
				time.Sleep(time.Duration(float64(gap) / speed))
			}
		}

		select {
		case <-m.doneChan:
			return m.timer.ElapsedTime()
		default:
		}

		m.EmitPoint(p)
	}

	return m.timer.ElapsedTime()
}

////////////////////////////////////////////////////////////////////////////////

func (m *Mock) setStatus(state scale.State, err error) {
	m.connectionStatus = scale.ConnectionStatus{
		State: state,
		Error: err,
	}

	// Call handler function, if any
	if m.stateChangeHandler != nil {
		m.stateChangeHandler(m.connectionStatus)
	}

	// Put state change on channel, if any
	if m.stateChangeChan != nil {
		select {
		case m.stateChangeChan <- m.connectionStatus:
		default:
		}
	}
}
