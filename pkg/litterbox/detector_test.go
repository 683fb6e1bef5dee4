package litterbox

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djbios/catscale/pkg/scale"
)

// capturingLogger records messages per level for assertions
type capturingLogger struct {
	errors   []string
	warnings []string
	infos    []string
	debugs   []string
}

func (l *capturingLogger) Error(args ...interface{}) { l.errors = append(l.errors, fmt.Sprint(args...)) }
func (l *capturingLogger) Errorf(format string, args ...interface{}) {
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}
func (l *capturingLogger) Warn(args ...interface{}) {
	l.warnings = append(l.warnings, fmt.Sprint(args...))
}
func (l *capturingLogger) Warnf(format string, args ...interface{}) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}
func (l *capturingLogger) Info(args ...interface{}) { l.infos = append(l.infos, fmt.Sprint(args...)) }
func (l *capturingLogger) Infof(format string, args ...interface{}) {
	l.infos = append(l.infos, fmt.Sprintf(format, args...))
}
func (l *capturingLogger) Debug(args ...interface{}) { l.debugs = append(l.debugs, fmt.Sprint(args...)) }
func (l *capturingLogger) Debugf(format string, args ...interface{}) {
	l.debugs = append(l.debugs, fmt.Sprintf(format, args...))
}

func testConfig(threshold float64, minPresence, leaveTimeout time.Duration) Config {
	return Config{
		WeightThreshold:   threshold,
		MinPresenceTime:   minPresence,
		LeaveTimeout:      leaveTimeout,
		SettleStdDevLimit: 50,
		Name:              "test",
	}
}

type step struct {
	at     float64 // seconds from start
	weight float64
}

func feed(t *testing.T, d *Detector, start time.Time, steps []step) {
	t.Helper()
	for _, s := range steps {
		d.Process(Reading{Time: start.Add(time.Duration(s.at * float64(time.Second))), Weight: s.weight})
	}
}

func holdSteps(from, to float64, weight float64) []step {
	var steps []step
	for at := from; at <= to; at++ {
		steps = append(steps, step{at: at, weight: weight})
	}
	return steps
}

func TestFirstReadingSeedsBaseline(t *testing.T) {
	d, err := New(testConfig(50, 2*time.Second, 30*time.Second))
	require.NoError(t, err)

	// The very first reading only seeds the baseline, even a huge one
	state := d.Process(Reading{Time: time.Now(), Weight: 5000})
	assert.Equal(t, StateIdle, state)
	assert.Equal(t, 5000., d.BaselineWeight())
	_, ok := d.VisitWeight()
	assert.False(t, ok)
}

func TestNoisyIdleNoVisit(t *testing.T) {
	d, err := New(testConfig(700, 2*time.Second, 30*time.Second))
	require.NoError(t, err)

	start := time.Now()
	rng := rand.New(rand.NewSource(7))
	var steps []step
	for i := 0; i < 20; i++ {
		steps = append(steps, step{at: float64(i), weight: 500 + rng.Float64()*2 - 1})
	}
	feed(t, d, start, steps)

	assert.Equal(t, StateIdle, d.State())
	_, ok := d.VisitWeight()
	assert.False(t, ok)
	assert.InDelta(t, 500, d.BaselineWeight(), 10)
	assert.Equal(t, 0., d.WasteWeight())
}

func TestVisitSameBaseline(t *testing.T) {
	d, err := New(testConfig(50, 2*time.Second, 30*time.Second))
	require.NoError(t, err)

	var events []Event
	d.SetEventHandler(func(e Event) { events = append(events, e) })

	// Baseline 500, cat of 60 g from t=2s through t=7s, gone at t=8s
	steps := holdSteps(0, 1, 500)
	steps = append(steps, holdSteps(2, 7, 560)...)
	steps = append(steps, holdSteps(8, 12, 500)...)
	feed(t, d, time.Now(), steps)

	visit, ok := d.VisitWeight()
	require.True(t, ok)
	assert.InDelta(t, 60, visit, 0.01)
	assert.InDelta(t, 500, d.BaselineWeight(), 0.01)
	assert.InDelta(t, 0, d.WasteWeight(), 0.01)
	assert.Equal(t, StateIdle, d.State())

	require.Len(t, events, 2)
	assert.Equal(t, EventVisit, events[0].Kind)
	assert.InDelta(t, 60, events[0].VisitWeight, 0.01)
	assert.Equal(t, EventSettled, events[1].Kind)
	assert.InDelta(t, 0, events[1].WasteWeight, 0.01)
	assert.InDelta(t, 500, events[1].Baseline, 0.01)
}

func TestVisitLeavesWasteBehind(t *testing.T) {
	d, err := New(testConfig(50, 2*time.Second, 30*time.Second))
	require.NoError(t, err)

	// Departure overshoots to 515 and stabilizes there
	steps := holdSteps(0, 1, 500)
	steps = append(steps, holdSteps(2, 7, 560)...)
	steps = append(steps, holdSteps(8, 13, 515)...)
	feed(t, d, time.Now(), steps)

	visit, ok := d.VisitWeight()
	require.True(t, ok)
	assert.InDelta(t, 60, visit, 0.01)
	assert.InDelta(t, 15, d.WasteWeight(), 0.01)
	assert.InDelta(t, 515, d.BaselineWeight(), 0.01)
	assert.Equal(t, StateIdle, d.State())
}

func TestNegativeWasteClamped(t *testing.T) {
	log := &capturingLogger{}
	d, err := New(testConfig(50, 2*time.Second, 30*time.Second), WithLogger(log))
	require.NoError(t, err)

	// Scale settles below the pre-visit baseline (litter scattered out)
	steps := holdSteps(0, 1, 500)
	steps = append(steps, holdSteps(2, 7, 560)...)
	steps = append(steps, holdSteps(8, 13, 490)...)
	feed(t, d, time.Now(), steps)

	assert.InDelta(t, 0, d.WasteWeight(), 0.01)
	assert.InDelta(t, 490, d.BaselineWeight(), 0.01)
	assert.NotEmpty(t, log.warnings)
}

func TestQuickDepartureAborts(t *testing.T) {
	d, err := New(testConfig(50, 5*time.Second, 30*time.Second))
	require.NoError(t, err)

	// Elevation lasts only 2s, below the 5s confirmation requirement
	steps := holdSteps(0, 1, 500)
	steps = append(steps, holdSteps(2, 3, 560)...)
	steps = append(steps, holdSteps(4, 6, 500)...)
	feed(t, d, time.Now(), steps)

	_, ok := d.VisitWeight()
	assert.False(t, ok)
	assert.Equal(t, StateIdle, d.State())
	assert.InDelta(t, 500, d.BaselineWeight(), 0.01)
}

func TestPresenceTimeoutDiscards(t *testing.T) {
	d, err := New(testConfig(50, 2*time.Second, 5*time.Second))
	require.NoError(t, err)

	var events []Event
	d.SetEventHandler(func(e Event) { events = append(events, e) })

	// Elevation never ends: confirmed at t=4s, timed out once t-4 > 5s
	steps := holdSteps(0, 1, 500)
	steps = append(steps, holdSteps(2, 12, 560)...)
	feed(t, d, time.Now(), steps)

	_, ok := d.VisitWeight()
	assert.False(t, ok)
	assert.Equal(t, StateIdle, d.State())
	assert.InDelta(t, 560, d.BaselineWeight(), 0.01)

	require.Len(t, events, 1)
	assert.Equal(t, EventDiscarded, events[0].Kind)
}

func TestVisitWithSensorNoise(t *testing.T) {
	d, err := New(testConfig(50, 2*time.Second, 30*time.Second))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(11))
	noise := func() float64 { return rng.Float64()*4 - 2 }

	var steps []step
	for at := 0.; at <= 1; at++ {
		steps = append(steps, step{at: at, weight: 500 + noise()})
	}
	for at := 2.; at <= 7; at++ {
		steps = append(steps, step{at: at, weight: 560 + noise()})
	}
	for at := 8.; at <= 13; at++ {
		steps = append(steps, step{at: at, weight: 500 + noise()})
	}
	feed(t, d, time.Now(), steps)

	visit, ok := d.VisitWeight()
	require.True(t, ok)
	assert.InDelta(t, 60, visit, 5)
	assert.InDelta(t, 500, d.BaselineWeight(), 5)
	assert.Equal(t, StateIdle, d.State())
}

func TestBaselineTracksMedianDownward(t *testing.T) {
	d, err := New(testConfig(100, 2*time.Second, 30*time.Second))
	require.NoError(t, err)

	// Litter removed: readings shift from 500 to 490 without any visit
	steps := holdSteps(0, 4, 500)
	steps = append(steps, holdSteps(5, 14, 490)...)
	feed(t, d, time.Now(), steps)

	assert.Equal(t, StateIdle, d.State())
	_, ok := d.VisitWeight()
	assert.False(t, ok)
	assert.InDelta(t, 490, d.BaselineWeight(), 0.01)
}

func TestTriggerLevelBoundaries(t *testing.T) {
	d, err := New(testConfig(50, 2*time.Second, 30*time.Second))
	require.NoError(t, err)

	start := time.Now()

	// A reading exactly at the trigger level must not signal arrival
	feed(t, d, start, []step{{0, 500}, {1, 550}})
	assert.Equal(t, StateIdle, d.State())

	// Strictly above: arrival
	d2, err := New(testConfig(50, 2*time.Second, 30*time.Second))
	require.NoError(t, err)
	feed(t, d2, start, []step{{0, 500}, {1, 551}})
	assert.Equal(t, StateWaitingForConfirmation, d2.State())

	// Exactly at the trigger level counts as still present, both for
	// confirmation and for departure detection
	feed(t, d2, start, []step{{3, 550}})
	assert.Equal(t, StateCatPresent, d2.State())
	feed(t, d2, start, []step{{4, 550}})
	assert.Equal(t, StateCatPresent, d2.State())
	feed(t, d2, start, []step{{5, 549}})
	assert.Equal(t, StateAfterCat, d2.State())
}

func TestIntegrityViolationSelfHeals(t *testing.T) {
	log := &capturingLogger{}
	d, err := New(testConfig(50, 2*time.Second, 30*time.Second), WithLogger(log))
	require.NoError(t, err)

	feed(t, d, time.Now(), []step{{0, 500}, {1, 500}})

	// Simulate a stale presence pool (a logic defect) right before arrival
	d.ctx.presence.Append(123)

	feed(t, d, time.Now(), []step{{2, 560}})
	assert.Equal(t, StateWaitingForConfirmation, d.State())
	assert.NotEmpty(t, log.errors)

	// The pool was cleared defensively and now only holds the arrival sample
	assert.Equal(t, 1, d.ctx.presence.Len())
	med, ok := d.ctx.presence.Median()
	require.True(t, ok)
	assert.Equal(t, 560., med)
}

func TestRestoreAndForceVisitWeight(t *testing.T) {
	d, err := New(testConfig(50, 2*time.Second, 30*time.Second))
	require.NoError(t, err)

	_, ok := d.VisitWeight()
	require.False(t, ok)

	d.RestoreVisitWeight(4321.5)
	visit, ok := d.VisitWeight()
	require.True(t, ok)
	assert.Equal(t, 4321.5, visit)

	// Observables are rounded to two decimal places
	d.ForceVisitWeight(12.345)
	visit, _ = d.VisitWeight()
	assert.Equal(t, 12.35, visit)
}

func TestStatusSnapshot(t *testing.T) {
	d, err := New(testConfig(50, 2*time.Second, 30*time.Second))
	require.NoError(t, err)

	status := d.Status()
	assert.Nil(t, status.VisitWeight)
	assert.Equal(t, 0., status.BaselineWeight)
	assert.Equal(t, 0., status.WasteWeight)
	assert.Equal(t, "idle", status.DetectionState)

	steps := holdSteps(0, 1, 500)
	steps = append(steps, holdSteps(2, 7, 560)...)
	steps = append(steps, holdSteps(8, 12, 500)...)
	feed(t, d, time.Now(), steps)

	status = d.Status()
	require.NotNil(t, status.VisitWeight)
	assert.InDelta(t, 60, *status.VisitWeight, 0.01)
	assert.Equal(t, "idle", status.DetectionState)
}

func TestStatesVocabulary(t *testing.T) {
	d, err := New(testConfig(50, 2*time.Second, 30*time.Second))
	require.NoError(t, err)

	states := d.States()
	require.Len(t, states, 4)
	keys := make([]string, len(states))
	for i, s := range states {
		keys[i] = s.Key()
	}
	assert.Equal(t, []string{"after_cat", "cat_present", "idle", "waiting_for_confirmation"}, keys)
}

func TestEventChannel(t *testing.T) {
	d, err := New(testConfig(50, 2*time.Second, 30*time.Second))
	require.NoError(t, err)

	eventChan := make(chan Event, 16)
	d.SetEventChannel(eventChan)

	steps := holdSteps(0, 1, 500)
	steps = append(steps, holdSteps(2, 7, 560)...)
	steps = append(steps, holdSteps(8, 12, 500)...)
	feed(t, d, time.Now(), steps)

	require.Len(t, eventChan, 2)
	e := <-eventChan
	assert.Equal(t, EventVisit, e.Kind)
	assert.InDelta(t, 60, e.VisitWeight, 0.01)
}

func TestDeliverBridgesDataPoints(t *testing.T) {
	d, err := New(testConfig(50, 2*time.Second, 30*time.Second))
	require.NoError(t, err)

	state := d.Deliver(scale.DataPoint{TimeStamp: time.Now(), Weight: 500, Unit: scale.UnitGrams})
	assert.Equal(t, StateIdle, state)
	assert.Equal(t, 500., d.BaselineWeight())
}

func TestConfigValidation(t *testing.T) {
	var tests = []struct {
		name string
		cfg  Config
	}{
		{"zero threshold", Config{MinPresenceTime: time.Second, LeaveTimeout: time.Minute, SettleStdDevLimit: 50}},
		{"zero presence time", Config{WeightThreshold: 50, LeaveTimeout: time.Minute, SettleStdDevLimit: 50}},
		{"zero leave timeout", Config{WeightThreshold: 50, MinPresenceTime: time.Second, SettleStdDevLimit: 50}},
		{"zero settle limit", Config{WeightThreshold: 50, MinPresenceTime: time.Second, LeaveTimeout: time.Minute}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("box")
	require.NoError(t, cfg.validate())
	assert.Equal(t, 1000., cfg.WeightThreshold)
	assert.Equal(t, 4*time.Second, cfg.MinPresenceTime)
	assert.Equal(t, 120*time.Second, cfg.LeaveTimeout)
	assert.Equal(t, 50., cfg.SettleStdDevLimit)
}
