package scale

import "time"

// Unit denotes the unit of the weight measurement
type Unit string

const (

	// UnitUnknown denotes an unknown / invalid unit
	UnitUnknown = "--"

	// UnitGrams denotes metric units
	UnitGrams = "g"

	// UnitOz denotes imperial units
	UnitOz = "oz"
)

// State denotes a connection state
type State int

const (

	// StateScanning is active while scanning / searching for a device
	StateScanning State = iota

	// StateConnected is active while being connected to the scale
	StateConnected

	// StateDisconnected is active after being disconnected from the scale
	StateDisconnected
)

// ConnectionStatus denotes the current status of the scale device
type ConnectionStatus struct {
	Error error
	State
}

// DataPoint denotes a weight measurement at a certain point in time
type DataPoint struct {
	TimeStamp time.Time
	Unit      Unit
	Weight    float64
}

// Value provides a method to retrieve the current value (for interface use)
func (d DataPoint) Value() float64 {
	return d.Weight
}

// DataPoints denotes a set of data points (usually a recorded trace)
type DataPoints []DataPoint

// Source denotes any device or feed emitting a stream of weight readings
type Source interface {

	// ConnectionStatus returns the current connection status of the source
	ConnectionStatus() ConnectionStatus

	// SetStateChangeHandler defines a handler function that is called upon state change
	SetStateChangeHandler(fn func(status ConnectionStatus))

	// SetStateChangeChannel defines a channel that state changes are put on
	SetStateChangeChannel(ch chan ConnectionStatus)

	// SetDataHandler defines a handler function that is called upon retrieval of data
	SetDataHandler(fn func(data DataPoint))

	// SetDataChannel defines a channel that retrieved data points are put on
	SetDataChannel(ch chan DataPoint)

	// Close terminates the connection to the source
	Close() error
}

// Tarer denotes a source that supports re-zeroing its platform
type Tarer interface {

	// Tare tares the scale
	Tare() error
}
