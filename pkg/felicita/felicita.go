// Package felicita provides a Felicita-protocol bluetooth scale as a reading
// source. Only the data stream, tare and battery level are exposed - the
// buzzer / stopwatch command surface of these scales is of no use for a
// continuously monitored platform.
package felicita

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/djbios/catscale/pkg/scale"
	"github.com/fako1024/gatt"
)

const (
	defaultDeviceName  = "FELICITA"
	dataService        = "ffe0"
	dataCharacteristic = "ffe1"

	frameLength = 18

	minBatteryLevel = 129.
	maxBatteryLevel = 158.

	cmdTare = 0x54

	rescanDelay = 100 * time.Millisecond
)

// Felicita denotes a Felicita bluetooth scale acting as a reading source
type Felicita struct {
	connectionStatus scale.ConnectionStatus
	batteryLevel     byte
	unit             scale.Unit

	deviceID   string
	deviceName string

	stateChangeHandler func(status scale.ConnectionStatus)
	stateChangeChan    chan scale.ConnectionStatus

	dataHandler func(data scale.DataPoint)
	dataChan    chan scale.DataPoint
	doneChan    chan struct{}

	btDevice         gatt.Device
	btPeripheral     gatt.Peripheral
	btCharacteristic *gatt.Characteristic

	logger scale.Logger
}

// New instantiates a new Felicita source, executing functional options, if any
func New(options ...func(*Felicita)) (*Felicita, error) {

	f := &Felicita{
		deviceName: defaultDeviceName,
		doneChan:   make(chan struct{}),
		logger:     &scale.NullLogger{},
	}

	// Execute functional options (if any), see options.go for implementation
	for _, option := range options {
		option(f)
	}

	// Initialize a new GATT device (if not provided as option)
	if f.btDevice == nil {
		btDevice, err := gatt.NewDevice(defaultBTClientOptions...)
		if err != nil {
			return nil, err
		}
		f.btDevice = btDevice
	}

	return f, f.subscribe()
}

// ConnectionStatus returns the current status of the bluetooth device
func (f *Felicita) ConnectionStatus() scale.ConnectionStatus {
	return f.connectionStatus
}

// BatteryLevel returns the current battery level as a fraction in [0, 1]
func (f *Felicita) BatteryLevel() float64 {
	return parseBatteryLevel(f.batteryLevel)
}

// Unit returns the current weight unit
func (f *Felicita) Unit() scale.Unit {
	return f.unit
}

// SetStateChangeHandler defines a handler function that is called upon state change
func (f *Felicita) SetStateChangeHandler(fn func(status scale.ConnectionStatus)) {
	f.stateChangeHandler = fn
}

// SetStateChangeChannel defines a channel that state changes are put on
func (f *Felicita) SetStateChangeChannel(ch chan scale.ConnectionStatus) {
	f.stateChangeChan = ch
}

// SetDataHandler defines a handler function that is called upon retrieval of data
func (f *Felicita) SetDataHandler(fn func(data scale.DataPoint)) {
	f.dataHandler = fn
}

// SetDataChannel defines a channel that retrieved data points are put on
func (f *Felicita) SetDataChannel(ch chan scale.DataPoint) {
	f.dataChan = ch
}

// Tare tares the scale
func (f *Felicita) Tare() error {
	if f.btPeripheral == nil || f.btCharacteristic == nil {
		return fmt.Errorf("failed to write to uninitialized device")
	}

	return f.btPeripheral.WriteCharacteristic(f.btCharacteristic, []byte{cmdTare}, false)
}

// Close terminates the connection to the device
func (f *Felicita) Close() error {
	close(f.doneChan)

	_ = f.btDevice.StopScanning()
	return f.btDevice.RemoveAllServices()
}

////////////////////////////////////////////////////////////////////////////////

func (f *Felicita) subscribe() error {

	f.btDevice.Handle(
		gatt.AddPeripheralDiscovered(f.onPeriphDiscovered),
		gatt.AddPeripheralConnected(f.onPeriphConnected),
		gatt.AddPeripheralDisconnected(f.onPeriphDisconnected),
	)

	return f.btDevice.Init(f.onStateChanged)
}

func (f *Felicita) setStatus(state scale.State, err error) {
	f.connectionStatus = scale.ConnectionStatus{
		State: state,
		Error: err,
	}

	// Call handler function, if any
	if f.stateChangeHandler != nil {
		f.stateChangeHandler(f.connectionStatus)
	}

	// Put state change on channel, if any
	if f.stateChangeChan != nil {
		select {
		case f.stateChangeChan <- f.connectionStatus:
		default:
		}
	}
}

func (f *Felicita) onStateChanged(d gatt.Device, s gatt.State) {
	switch s {
	case gatt.StatePoweredOn:
		f.setStatus(scale.StateScanning, nil)
		if err := d.Scan([]gatt.UUID{}, false); err != nil {
			f.logger.Warnf("failed to enable initial scanning: %s", err)
		}
	case gatt.StatePoweredOff:
		f.setStatus(scale.StateDisconnected, nil)
	default:
		if err := d.StopScanning(); err != nil {
			f.logger.Warnf("failed to stop initial scanning: %s", err)
		}
	}
}

func (f *Felicita) onPeriphDiscovered(p gatt.Peripheral, _ *gatt.Advertisement, _ int) {

	f.logger.Debugf("discovered device `%s/%s`", p.Name(), p.ID())

	if !f.thisDevice(p) {
		return
	}

	// Stop scanning once we've got the peripheral we're looking for
	if err := p.Device().StopScanning(); err != nil {
		f.logger.Warnf("failed to stop scanning: %s", err)
	}
	if err := p.Device().Connect(p); err != nil {
		f.logger.Errorf("failed to connect device `%s/%s`: %s", p.Name(), p.ID(), err)
	}
}

func (f *Felicita) onPeriphConnected(p gatt.Peripheral, connErr error) {

	if !f.thisDevice(p) {
		return
	}

	f.logger.Debugf("connected peripheral `%s/%s`", p.Name(), p.ID())

	f.setStatus(scale.StateConnected, nil)
	defer func() {
		_ = p.Device().CancelConnection(p)
		f.setStatus(scale.StateDisconnected, connErr)
	}()

	if err := p.SetMTU(500); err != nil {
		connErr = fmt.Errorf("failed to set MTU: %w", err)
		return
	}

	if connErr = f.subscribeDataCharacteristic(p); connErr != nil {
		return
	}

	f.logger.Debugf("waiting to release peripheral `%s/%s`", p.Name(), p.ID())
	<-f.doneChan
	f.logger.Debugf("released peripheral `%s/%s`", p.Name(), p.ID())
}

func (f *Felicita) subscribeDataCharacteristic(p gatt.Peripheral) error {

	ss, err := p.DiscoverServices(nil)
	if err != nil {
		return fmt.Errorf("failed to discover services: %w", err)
	}

	for _, s := range ss {
		if s.UUID().String() != dataService {
			continue
		}

		cs, err := p.DiscoverCharacteristics(nil, s)
		if err != nil {
			return fmt.Errorf("failed to discover characteristics: %w", err)
		}
		for _, c := range cs {
			if c.UUID().String() != dataCharacteristic {
				continue
			}

			f.btPeripheral = p
			f.btCharacteristic = c

			if _, err := p.DiscoverDescriptors(nil, c); err != nil {
				return fmt.Errorf("failed to discover descriptors: %w", err)
			}
			if err := p.SetNotifyValue(c, f.receiveData); err != nil {
				return fmt.Errorf("failed to subscribe characteristic: %w", err)
			}
		}
	}

	return nil
}

func (f *Felicita) onPeriphDisconnected(p gatt.Peripheral, _ error) {

	if !f.thisDevice(p) {
		return
	}

	select {
	case f.doneChan <- struct{}{}:
	default:
	}
	f.logger.Debugf("disconnected peripheral `%s/%s`", p.Name(), p.ID())

	time.Sleep(rescanDelay)
	f.setStatus(scale.StateScanning, nil)
	if err := f.btDevice.Scan([]gatt.UUID{}, false); err != nil {
		f.logger.Warnf("failed to re-enable scanning after disconnect: %s", err)
	}
}

func (f *Felicita) thisDevice(p gatt.Peripheral) bool {

	// Check if the device ID has been overridden
	if f.deviceID != "" && strings.EqualFold(p.ID(), f.deviceID) {
		return true
	}
	return strings.EqualFold(p.Name(), f.deviceName)
}

func (f *Felicita) receiveData(_ *gatt.Characteristic, req []byte, err error) {

	if err != nil || len(req) != frameLength {
		return
	}

	dataPoint, ok := parseFrame(req, time.Now())
	if !ok {
		return
	}
	f.batteryLevel = req[15]
	f.unit = dataPoint.Unit

	// Call handler function, if any
	if f.dataHandler != nil {
		f.dataHandler(dataPoint)
	}

	// Put data point on channel, if any
	if f.dataChan != nil {
		f.dataChan <- dataPoint
	}
}

////////////////////////////////////////////////////////////////////////////////

// parseFrame extracts a data point from an 18-byte notification frame: bytes
// 2-8 carry the weight in centigrams as ASCII digits, bytes 9-10 the unit
func parseFrame(req []byte, timestamp time.Time) (scale.DataPoint, bool) {

	if len(req) != frameLength {
		return scale.DataPoint{}, false
	}

	weight, err := strconv.ParseFloat(string(req[2:9]), 64)
	if err != nil {
		return scale.DataPoint{}, false
	}

	return scale.DataPoint{
		TimeStamp: timestamp,
		Weight:    weight / 100.,
		Unit:      parseUnit(req[9:11]),
	}, true
}

func parseUnit(data []byte) scale.Unit {
	if len(data) != 2 {
		return scale.UnitUnknown
	}

	if strings.Contains(strings.ToLower(string(data)), "g") {
		return scale.UnitGrams
	}
	if strings.Contains(strings.ToLower(string(data)), "oz") {
		return scale.UnitOz
	}

	return scale.UnitUnknown
}

func parseBatteryLevel(data byte) float64 {

	val := float64(data)
	if val < minBatteryLevel {
		return 0.
	} else if val > maxBatteryLevel {
		return 1.
	}

	return math.Round((val-minBatteryLevel)/(maxBatteryLevel-minBatteryLevel)*100.) / 100.
}
