package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/djbios/catscale/pkg/litterbox"
	"github.com/djbios/catscale/pkg/mock"
	"github.com/djbios/catscale/pkg/scale"
)

type config struct {
	file  string
	speed float64

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

func run() error {

	// Parse command line options
	var cfg config

	flag.StringVar(&cfg.file, "file", "", "CSV trace to replay (columns: timestamp, weight)")
	flag.Float64Var(&cfg.speed, "speed", 0, "replay speed factor (0 replays as fast as possible)")

	flag.StringVar(&cfg.name, "name", "replay", "diagnostic name of the monitored platform")
	flag.Float64Var(&cfg.threshold, "threshold", litterbox.DefaultWeightThreshold, "weight delta above baseline signalling arrival (g)")
	flag.DurationVar(&cfg.minPresence, "min-presence", litterbox.DefaultMinPresenceTime, "duration above threshold required to confirm presence")
	flag.DurationVar(&cfg.leaveTimeout, "leave-timeout", litterbox.DefaultLeaveTimeout, "maximum presence duration before the event is discarded")
	flag.Float64Var(&cfg.settleStdDev, "settle-stddev", litterbox.DefaultSettleStdDevLimit, "standard deviation limit for post-visit settling (g)")

	flag.BoolVar(&cfg.debug, "debug", false, "enable debug logging")
	flag.Parse()

	if cfg.file == "" {
		return fmt.Errorf("no trace file given (-file)")
	}

	log := scale.NewDefaultLogger(cfg.debug)
	defer func() {
		_ = log.Sync()
	}()

	points, err := readTrace(cfg.file)
	if err != nil {
		return fmt.Errorf("failed to read trace %s: %w", cfg.file, err)
	}

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
	detector.SetEventHandler(func(event litterbox.Event) {
		switch event.Kind {
		case litterbox.EventVisit:
			log.Infof("visit detected at %v: %.2f g", event.Time, event.VisitWeight)
		case litterbox.EventSettled:
			log.Infof("baseline re-settled at %v: %.2f g (waste %.2f g)", event.Time, event.Baseline, event.WasteWeight)
		case litterbox.EventDiscarded:
			log.Infof("presence timed out at %v, event discarded", event.Time)
		}
	})

	src, err := mock.New()
	if err != nil {
		return fmt.Errorf("failed to initialize mock source: %w", err)
	}
	src.SetDataHandler(func(data scale.DataPoint) {
		detector.Deliver(data)
	})

	elapsed := src.Replay(points, cfg.speed)
	log.Infof("replayed %d readings in %v", len(points), elapsed)

	out, err := json.MarshalIndent(detector.Status(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	return nil
}

// readTrace parses a two-column CSV of (timestamp, weight). Timestamps may be
// RFC3339 or relative seconds from the start of the trace
func readTrace(path string) (scale.DataPoints, error) {

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	points := make(scale.DataPoints, 0, len(records))
	for i, rec := range records {
		if len(rec) != 2 {
			return nil, fmt.Errorf("line %d: expected 2 columns, got %d", i+1, len(rec))
		}

		timestamp, err := parseTimestamp(rec[0], start)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		weight, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid weight %q", i+1, rec[1])
		}

		points = append(points, scale.DataPoint{
			TimeStamp: timestamp,
			Weight:    weight,
			Unit:      scale.UnitGrams,
		})
	}

	return points, nil
}

func parseTimestamp(field string, start time.Time) (time.Time, error) {

	if timestamp, err := time.Parse(time.RFC3339, field); err == nil {
		return timestamp, nil
	}

	offset, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", field)
	}

	return start.Add(time.Duration(offset * float64(time.Second))), nil
}
