package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/djbios/catscale/pkg/api"
	"github.com/djbios/catscale/pkg/felicita"
	"github.com/djbios/catscale/pkg/litterbox"
	"github.com/djbios/catscale/pkg/mock"
	"github.com/djbios/catscale/pkg/mqtt"
	"github.com/djbios/catscale/pkg/scale"
	"github.com/djbios/catscale/pkg/serialscale"
	"github.com/djbios/catscale/pkg/visitdb"
)

type config struct {
	source     string
	deviceName string
	deviceID   string
	serialPort string

	apiEndpoint string
	broker      string
	dbPath      string

	name         string
	threshold    float64
	minPresence  time.Duration
	leaveTimeout time.Duration
	settleStdDev float64

	debug bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() (err error) {

	// Parse command line options
	var cfg config

	flag.StringVar(&cfg.source, "source", "felicita", "reading source (felicita / serial / mock)")
	flag.StringVar(&cfg.deviceName, "device-name", "FELICITA", "name of remote peripheral")
	flag.StringVar(&cfg.deviceID, "device-id", "", "address of remote peripheral (MAC on Linux, UUID on OS X)")
	flag.StringVar(&cfg.serialPort, "serial-port", "/dev/ttyUSB0", "serial port of the load cell bridge")

	flag.StringVar(&cfg.apiEndpoint, "api", ":8080", "REST API endpoint (empty to disable)")
	flag.StringVar(&cfg.broker, "broker", "", "MQTT broker for detection events (empty to disable)")
	flag.StringVar(&cfg.dbPath, "db", "", "path to the visit database (empty to disable persistence)")

	flag.StringVar(&cfg.name, "name", "litterbox", "diagnostic name of the monitored platform")
	flag.Float64Var(&cfg.threshold, "threshold", litterbox.DefaultWeightThreshold, "weight delta above baseline signalling arrival (g)")
	flag.DurationVar(&cfg.minPresence, "min-presence", litterbox.DefaultMinPresenceTime, "duration above threshold required to confirm presence")
	flag.DurationVar(&cfg.leaveTimeout, "leave-timeout", litterbox.DefaultLeaveTimeout, "maximum presence duration before the event is discarded")
	flag.Float64Var(&cfg.settleStdDev, "settle-stddev", litterbox.DefaultSettleStdDevLimit, "standard deviation limit for post-visit settling (g)")

	flag.BoolVar(&cfg.debug, "debug", false, "enable debug logging")
	flag.Parse()

	log := scale.NewDefaultLogger(cfg.debug)
	defer func() {
		_ = log.Sync()
	}()

	detector, err := litterbox.New(litterbox.Config{
		WeightThreshold:   cfg.threshold,
		MinPresenceTime:   cfg.minPresence,
		LeaveTimeout:      cfg.leaveTimeout,
		SettleStdDevLimit: cfg.settleStdDev,
		Name:              cfg.name,
	}, litterbox.WithLogger(log))
	if err != nil {
		return fmt.Errorf("failed to initialize detector: %w", err)
	}

	// Open the visit database and restore the last visit weight (if any)
	var store *visitdb.DB
	if cfg.dbPath != "" {
		if store, err = visitdb.Open(cfg.dbPath); err != nil {
			return fmt.Errorf("failed to open visit database: %w", err)
		}
		defer store.Close()

		weight, ok, err := store.LastVisitWeight()
		if err != nil {
			return fmt.Errorf("failed to restore last visit weight: %w", err)
		}
		if ok {
			detector.RestoreVisitWeight(weight)
			log.Infof("restored last visit weight: %.2f g", weight)
		}
	}

	var publisher mqtt.Publisher
	if cfg.broker != "" {
		if publisher, err = mqtt.NewRealPublisher(cfg.broker); err != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
		defer publisher.Close()
	}

	sink := &eventSink{store: store, publisher: publisher, log: log}
	detector.SetEventHandler(sink.handle)

	guard := &lockedDetector{detector: detector}

	if cfg.apiEndpoint != "" {
		var visitStore api.VisitStore
		if store != nil {
			visitStore = store
		}
		api.New(guard, visitStore).Serve(cfg.apiEndpoint)
		log.Infof("serving REST API on %s", cfg.apiEndpoint)
	}

	src, err := newSource(cfg, log)
	if err != nil {
		return err
	}

	dataChan := make(chan scale.DataPoint, 256)
	src.SetDataChannel(dataChan)

	stateChan := make(chan scale.ConnectionStatus, 16)
	src.SetStateChangeChannel(stateChan)
	go func() {
		for st := range stateChan {
			log.Infof("source state change: %v", st)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, os.Interrupt)
	go func() {
		<-sigChan
		log.Infof("got signal, terminating connection to source")
		_ = src.Close()
		os.Exit(0)
	}()

	for data := range dataChan {
		state := guard.Deliver(data)
		log.Debugf("processed reading %.2f -> %s", data.Weight, state)
	}

	return nil
}

func newSource(cfg config, log scale.Logger) (scale.Source, error) {
	switch cfg.source {
	case "felicita":
		return felicita.New(
			felicita.WithDeviceName(cfg.deviceName),
			felicita.WithDeviceID(cfg.deviceID),
			felicita.WithLogger(log),
		)
	case "serial":
		return serialscale.New(cfg.serialPort, serialscale.WithLogger(log))
	case "mock":
		return mock.New()
	}

	return nil, fmt.Errorf("unknown source type: %s", cfg.source)
}

// lockedDetector serializes access to the detector, which by itself assumes a
// single writer. Both the source loop and API-injected readings go through it
type lockedDetector struct {
	mu       sync.Mutex
	detector *litterbox.Detector
}

func (l *lockedDetector) Deliver(data scale.DataPoint) litterbox.DetectionState {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.detector.Deliver(data)
}

func (l *lockedDetector) Status() litterbox.Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.detector.Status()
}

func (l *lockedDetector) States() []litterbox.DetectionState {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.detector.States()
}

// eventSink forwards finalized detection events to persistence and MQTT
type eventSink struct {
	store       *visitdb.DB
	publisher   mqtt.Publisher
	log         scale.Logger
	lastVisitID int64
}

func (s *eventSink) handle(event litterbox.Event) {

	switch event.Kind {
	case litterbox.EventVisit:
		s.log.Infof("visit detected: %.2f g", event.VisitWeight)
		if s.store != nil {
			id, err := s.store.RecordVisit(event.Time, event.VisitWeight)
			if err != nil {
				s.log.Errorf("failed to record visit: %s", err)
			} else {
				s.lastVisitID = id
			}
		}
	case litterbox.EventSettled:
		s.log.Infof("baseline re-settled: %.2f g (waste %.2f g)", event.Baseline, event.WasteWeight)
		if s.store != nil && s.lastVisitID != 0 {
			if err := s.store.SetWasteWeight(s.lastVisitID, event.WasteWeight); err != nil {
				s.log.Errorf("failed to record waste weight: %s", err)
			}
		}
	case litterbox.EventDiscarded:
		s.log.Infof("presence timed out, event discarded")
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(event); err != nil {
			s.log.Warnf("failed to publish detection event: %s", err)
		}
	}
}
