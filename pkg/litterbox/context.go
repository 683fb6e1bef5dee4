package litterbox

import (
	"fmt"
	"time"

	"github.com/djbios/catscale/pkg/scale"
	"github.com/djbios/catscale/pkg/stats"
)

const (

	// DefaultWeightThreshold denotes the default mass delta (in g) above the
	// baseline that signals a candidate arrival
	DefaultWeightThreshold = 1000.

	// DefaultMinPresenceTime denotes the default duration the weight must stay
	// elevated before a visit is confirmed
	DefaultMinPresenceTime = 4 * time.Second

	// DefaultLeaveTimeout denotes the default maximum duration of a confirmed
	// visit before it is discarded as a false trigger
	DefaultLeaveTimeout = 120 * time.Second

	// DefaultSettleStdDevLimit denotes the default standard deviation (in g)
	// below which post-departure readings count as settled
	DefaultSettleStdDevLimit = 50.

	// readingRetention is the trailing time window kept in the readings buffer
	readingRetention = 5 * time.Minute

	// minReadingsToSettle is the minimum number of buffered readings required
	// before a new baseline may be adopted after a visit
	minReadingsToSettle = 5
)

// Reading denotes a single timestamped weight sample delivered to the detector
type Reading struct {
	Time   time.Time
	Weight float64
}

// Config holds the immutable detection parameters, captured at construction
type Config struct {
	WeightThreshold   float64       // mass delta above baseline signalling arrival
	MinPresenceTime   time.Duration // elevation duration required for confirmation
	LeaveTimeout      time.Duration // max visit duration before discard
	SettleStdDevLimit float64       // stability limit for post-visit re-settling
	Name              string        // diagnostic label
}

// DefaultConfig returns a Config populated with the default parameters
func DefaultConfig(name string) Config {
	return Config{
		WeightThreshold:   DefaultWeightThreshold,
		MinPresenceTime:   DefaultMinPresenceTime,
		LeaveTimeout:      DefaultLeaveTimeout,
		SettleStdDevLimit: DefaultSettleStdDevLimit,
		Name:              name,
	}
}

func (c Config) validate() error {
	if c.WeightThreshold <= 0 {
		return fmt.Errorf("weight threshold must be positive, got %.2f", c.WeightThreshold)
	}
	if c.MinPresenceTime <= 0 {
		return fmt.Errorf("minimum presence time must be positive, got %v", c.MinPresenceTime)
	}
	if c.LeaveTimeout <= 0 {
		return fmt.Errorf("leave timeout must be positive, got %v", c.LeaveTimeout)
	}
	if c.SettleStdDevLimit <= 0 {
		return fmt.Errorf("settle standard deviation limit must be positive, got %.2f", c.SettleStdDevLimit)
	}

	return nil
}

// Context is the mutable state shared by all detection transitions. It is
// owned exclusively by the detector and must never be accessed concurrently
// with a call to Process
type Context struct {
	cfg Config

	visitWeight    float64
	visitWeightSet bool
	wasteWeight    float64
	baseline       float64
	baselineSet    bool

	readings readingBuffer
	presence stats.RollingMedian

	arrivedAt   time.Time
	confirmedAt time.Time

	log scale.Logger
}

// triggerLevel returns baseline + weight threshold, and false while no
// baseline has been established yet
func (c *Context) triggerLevel() (float64, bool) {
	if !c.baselineSet {
		return 0, false
	}

	return c.baseline + c.cfg.WeightThreshold, true
}

// addReading appends a reading to the buffer and prunes entries older than the
// retention window relative to the newest timestamp
func (c *Context) addReading(r Reading) {
	c.log.Debugf("%s: adding reading -> weight=%.2f, time=%v", c.cfg.Name, r.Weight, r.Time)
	c.readings.add(r)

	for _, popped := range c.readings.prune(r.Time.Add(-readingRetention)) {
		c.log.Debugf("%s: pruning old reading -> %v", c.cfg.Name, popped)
	}
}

func (c *Context) setBaseline(w float64) {
	c.baseline = w
	c.baselineSet = true
}

// readingBuffer is a time-ordered deque of recent readings. Entries are
// appended at the back and pruned from the front, assuming monotonic delivery
type readingBuffer struct {
	entries []Reading
}

func (b *readingBuffer) add(r Reading) {
	b.entries = append(b.entries, r)
}

// prune drops and returns all leading entries older than the given cutoff
func (b *readingBuffer) prune(oldestAllowed time.Time) []Reading {
	n := 0
	for n < len(b.entries) && b.entries[n].Time.Before(oldestAllowed) {
		n++
	}
	if n == 0 {
		return nil
	}

	popped := make([]Reading, n)
	copy(popped, b.entries[:n])
	b.entries = append(b.entries[:0], b.entries[n:]...)
	return popped
}

func (b *readingBuffer) weights() []float64 {
	w := make([]float64, len(b.entries))
	for i, r := range b.entries {
		w[i] = r.Weight
	}
	return w
}

func (b *readingBuffer) len() int {
	return len(b.entries)
}

func (b *readingBuffer) clear() {
	b.entries = b.entries[:0]
}
