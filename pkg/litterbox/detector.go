// Package litterbox implements visit detection over a stream of timestamped
// weight readings from a litterbox scale: an animal stepping onto the
// platform, remaining for a minimum duration and leaving, after which the net
// visit weight and any residual mass change (waste) are reported.
package litterbox

import (
	"math"
	"time"

	"github.com/djbios/catscale/pkg/fsm"
	"github.com/djbios/catscale/pkg/scale"
)

// EventKind denotes the type of a detection event
type EventKind int

const (

	// EventVisit is emitted when a visit finalizes upon departure
	EventVisit EventKind = iota

	// EventSettled is emitted when the baseline has re-settled after a visit
	EventSettled

	// EventDiscarded is emitted when a confirmed presence times out and is
	// dropped as a false trigger
	EventDiscarded
)

func (k EventKind) String() string {
	switch k {
	case EventVisit:
		return "visit"
	case EventSettled:
		return "settled"
	case EventDiscarded:
		return "discarded"
	}

	return "unknown"
}

// Event denotes a finalized detection result
type Event struct {
	Kind EventKind
	Time time.Time

	// VisitWeight carries the detected net weight for EventVisit
	VisitWeight float64

	// WasteWeight and Baseline carry the residual mass and the newly adopted
	// baseline for EventSettled
	WasteWeight float64
	Baseline    float64
}

// Status is a snapshot of the four observable outputs of a detector
type Status struct {
	VisitWeight    *float64 `json:"visit_weight"`
	BaselineWeight float64  `json:"baseline_weight"`
	WasteWeight    float64  `json:"waste_weight"`
	DetectionState string   `json:"detection_state"`
}

// Detector runs the visit detection state machine over a stream of readings.
// Processing is strictly sequential - the caller must serialize calls to
// Process / Deliver and must not read observables concurrently with them
type Detector struct {
	machine *fsm.Machine[Reading, *Context]
	ctx     *Context
	log     scale.Logger

	eventHandler func(event Event)
	eventChan    chan Event
}

// New instantiates a new Detector with the given configuration, executing
// functional options, if any
func New(cfg Config, options ...func(*Detector)) (*Detector, error) {

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	d := &Detector{
		ctx: &Context{cfg: cfg},
		log: &scale.NullLogger{},
	}

	// Execute functional options (if any), see options.go for implementation
	for _, option := range options {
		option(d)
	}
	d.ctx.log = d.log

	machine, err := fsm.New(StateIdle, d.ctx, detectionTransitions())
	if err != nil {
		return nil, err
	}
	d.machine = machine

	return d, nil
}

// Process feeds a single reading through the state machine and returns the
// resulting detection state. The very first reading only seeds the baseline;
// no transitions are evaluated for it
func (d *Detector) Process(r Reading) DetectionState {

	d.ctx.addReading(r)

	if !d.ctx.baselineSet {
		d.ctx.setBaseline(r.Weight)
		d.log.Debugf("%s: first reading seen, setting baseline to %.2f", d.ctx.cfg.Name, r.Weight)
		return d.State()
	}

	prev := d.State()
	next := d.machine.Process(r).(DetectionState)
	if prev != next {
		d.emitOnTransition(prev, next, r)
	}

	return next
}

// Deliver feeds a source data point through the state machine, see Process
func (d *Detector) Deliver(data scale.DataPoint) DetectionState {
	return d.Process(Reading{Time: data.TimeStamp, Weight: data.Weight})
}

// State returns the current detection state
func (d *Detector) State() DetectionState {
	return d.machine.State().(DetectionState)
}

// States returns the full detection state vocabulary, sorted by label
func (d *Detector) States() []DetectionState {
	all := d.machine.States()
	states := make([]DetectionState, len(all))
	for i, s := range all {
		states[i] = s.(DetectionState)
	}
	return states
}

// VisitWeight returns the last finalized visit weight (rounded to two decimal
// places) and false if no visit has been recorded yet
func (d *Detector) VisitWeight() (float64, bool) {
	if !d.ctx.visitWeightSet {
		return 0, false
	}

	return round2(d.ctx.visitWeight), true
}

// BaselineWeight returns the current baseline weight rounded to two decimal
// places, or 0 while no baseline has been established
func (d *Detector) BaselineWeight() float64 {
	if !d.ctx.baselineSet {
		return 0
	}

	return round2(d.ctx.baseline)
}

// WasteWeight returns the last computed waste weight rounded to two decimal
// places, or 0 if none has been computed yet
func (d *Detector) WasteWeight() float64 {
	return round2(d.ctx.wasteWeight)
}

// Status returns a snapshot of all observable outputs
func (d *Detector) Status() Status {
	status := Status{
		BaselineWeight: d.BaselineWeight(),
		WasteWeight:    d.WasteWeight(),
		DetectionState: d.State().Key(),
	}
	if w, ok := d.VisitWeight(); ok {
		status.VisitWeight = &w
	}

	return status
}

// RestoreVisitWeight seeds the visit weight observable from a previously
// persisted value, e.g. after a restart
func (d *Detector) RestoreVisitWeight(weight float64) {
	d.log.Debugf("%s: restored visit weight to %.2f", d.ctx.cfg.Name, weight)
	d.ForceVisitWeight(weight)
}

// ForceVisitWeight overrides the visit weight observable
func (d *Detector) ForceVisitWeight(weight float64) {
	d.ctx.visitWeight = weight
	d.ctx.visitWeightSet = true
}

// SetEventHandler defines a handler function that is called upon detection events
func (d *Detector) SetEventHandler(fn func(event Event)) {
	d.eventHandler = fn
}

// SetEventChannel defines a channel that detection events are put on
func (d *Detector) SetEventChannel(ch chan Event) {
	d.eventChan = ch
}

////////////////////////////////////////////////////////////////////////////////

func (d *Detector) emitOnTransition(prev, next DetectionState, r Reading) {

	switch {
	case prev == StateCatPresent && next == StateAfterCat:
		d.emit(Event{Kind: EventVisit, Time: r.Time, VisitWeight: round2(d.ctx.visitWeight)})
	case prev == StateAfterCat && next == StateIdle:
		d.emit(Event{Kind: EventSettled, Time: r.Time, WasteWeight: round2(d.ctx.wasteWeight), Baseline: round2(d.ctx.baseline)})
	case prev == StateCatPresent && next == StateIdle:
		d.emit(Event{Kind: EventDiscarded, Time: r.Time})
	}
}

func (d *Detector) emit(event Event) {

	// Call handler function, if any
	if d.eventHandler != nil {
		d.eventHandler(event)
	}

	// Put event on channel, if any
	if d.eventChan != nil {
		select {
		case d.eventChan <- event:
		default:
		}
	}
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
