package litterbox

import (
	"github.com/djbios/catscale/pkg/fsm"
	"github.com/djbios/catscale/pkg/stats"
)

// detectionTransitions returns the six transitions of the visit detection
// machine, in evaluation priority order per source state
func detectionTransitions() []fsm.Transition[Reading, *Context] {
	return []fsm.Transition[Reading, *Context]{
		arrivalDetected(),
		presenceConfirmed(),
		arrivalAborted(),
		departureDetected(),
		presenceTimedOut(),
		baselineResettled(),
	}
}

// arrivalDetected fires when a reading exceeds the trigger level while idle.
// While it does not fire, the baseline slowly tracks the median of the
// buffered readings (median rather than mean for outlier resistance)
func arrivalDetected() fsm.Transition[Reading, *Context] {
	return fsm.Transition[Reading, *Context]{
		From: StateIdle,
		To:   StateWaitingForConfirmation,

		IsTriggered: func(r Reading, c *Context) bool {
			tl, ok := c.triggerLevel()
			return ok && r.Weight > tl
		},

		OnTriggered: func(r Reading, c *Context) {
			c.logTransition(StateIdle, StateWaitingForConfirmation, r)
			c.arrivedAt = r.Time
			if !c.presence.Empty() {
				c.log.Errorf("%s: presence readings were not cleared as expected, clearing defensively - this indicates a bug in the detection logic", c.cfg.Name)
				c.presence.Clear()
			}
			c.presence.Append(r.Weight)
		},

		OnNotTriggered: func(r Reading, c *Context) {
			if med, ok := stats.Median(c.readings.weights()); ok {
				c.setBaseline(med)
				c.log.Debugf("%s: updated baseline to median of recent readings: %.2f", c.cfg.Name, med)
			}
		},
	}
}

// presenceConfirmed fires once the weight has stayed at or above the trigger
// level for at least the minimum presence time
func presenceConfirmed() fsm.Transition[Reading, *Context] {
	return fsm.Transition[Reading, *Context]{
		From: StateWaitingForConfirmation,
		To:   StateCatPresent,

		IsTriggered: func(r Reading, c *Context) bool {
			tl, ok := c.triggerLevel()
			return ok && r.Weight >= tl && r.Time.Sub(c.arrivedAt) >= c.cfg.MinPresenceTime
		},

		OnTriggered: func(r Reading, c *Context) {
			c.logTransition(StateWaitingForConfirmation, StateCatPresent, r)
			c.confirmedAt = r.Time
		},

		OnNotTriggered: func(r Reading, c *Context) {
			if tl, ok := c.triggerLevel(); ok && r.Weight >= tl {
				c.presence.Append(r.Weight)
			}
		},
	}
}

// arrivalAborted fires when the weight drops back below the trigger level
// before confirmation. The event is treated as noise: the baseline resets to
// the dropped-to value and all accumulated samples are discarded.
// Its guard is the exact complement of the presenceConfirmed weight condition,
// so no reading can leave the waiting state stuck
func arrivalAborted() fsm.Transition[Reading, *Context] {
	return fsm.Transition[Reading, *Context]{
		From: StateWaitingForConfirmation,
		To:   StateIdle,

		IsTriggered: func(r Reading, c *Context) bool {
			tl, ok := c.triggerLevel()
			return ok && r.Weight < tl
		},

		OnTriggered: func(r Reading, c *Context) {
			c.logTransition(StateWaitingForConfirmation, StateIdle, r)
			c.setBaseline(r.Weight)
			c.readings.clear()
			c.presence.Clear()
		},
	}
}

// departureDetected fires when the weight drops below the trigger level while
// an occupant is confirmed present. The visit weight is the median of the
// accumulated presence readings minus the baseline, clamped at zero
func departureDetected() fsm.Transition[Reading, *Context] {
	return fsm.Transition[Reading, *Context]{
		From: StateCatPresent,
		To:   StateAfterCat,

		IsTriggered: func(r Reading, c *Context) bool {
			tl, ok := c.triggerLevel()
			return ok && r.Weight < tl
		},

		OnTriggered: func(r Reading, c *Context) {
			c.logTransition(StateCatPresent, StateAfterCat, r)

			medianWeight, ok := c.presence.Median()
			if !ok {
				medianWeight = r.Weight
			}

			visitWeight := medianWeight - c.baseline
			if visitWeight < 0 {
				c.log.Warnf("%s: negative visit weight %.2f detected, clamping to 0 (possibly sensor drift / noise)", c.cfg.Name, visitWeight)
				visitWeight = 0
			}
			c.visitWeight = visitWeight
			c.visitWeightSet = true
			c.log.Debugf("%s: visit recognized: baseline=%.2f, median=%.2f, visit=%.2f", c.cfg.Name, c.baseline, medianWeight, visitWeight)

			// Restart the settling window from the departure reading so that the
			// post-visit stability check only sees post-departure samples
			c.readings.clear()
			c.presence.Clear()
			c.readings.add(r)
		},

		OnNotTriggered: func(r Reading, c *Context) {
			c.presence.Append(r.Weight)
		},
	}
}

// presenceTimedOut fires when a confirmed presence lasts longer than the leave
// timeout. The event is discarded as a false trigger without recording a visit
func presenceTimedOut() fsm.Transition[Reading, *Context] {
	return fsm.Transition[Reading, *Context]{
		From: StateCatPresent,
		To:   StateIdle,

		IsTriggered: func(r Reading, c *Context) bool {
			return r.Time.Sub(c.confirmedAt) > c.cfg.LeaveTimeout
		},

		OnTriggered: func(r Reading, c *Context) {
			c.logTransition(StateCatPresent, StateIdle, r)
			c.log.Debugf("%s: presence took too long, discarding event and resetting baseline to %.2f", c.cfg.Name, r.Weight)
			c.setBaseline(r.Weight)
			c.readings.clear()
			c.presence.Clear()
		},
	}
}

// baselineResettled fires once enough post-departure readings have accumulated
// and their spread has fallen below the stability limit. The residual mass
// relative to the pre-visit baseline is reported as waste and the settled
// reading becomes the new baseline
func baselineResettled() fsm.Transition[Reading, *Context] {
	return fsm.Transition[Reading, *Context]{
		From: StateAfterCat,
		To:   StateIdle,

		IsTriggered: func(r Reading, c *Context) bool {
			if c.readings.len() < minReadingsToSettle {
				return false
			}
			sd, ok := stats.StdDev(c.readings.weights())
			return ok && sd <= c.cfg.SettleStdDevLimit
		},

		OnTriggered: func(r Reading, c *Context) {
			c.logTransition(StateAfterCat, StateIdle, r)

			waste := r.Weight - c.baseline
			if waste < 0 {
				c.log.Warnf("%s: negative waste weight %.2f detected, clamping to 0 (possibly sensor drift / noise)", c.cfg.Name, waste)
				waste = 0
			}
			c.wasteWeight = waste
			c.setBaseline(r.Weight)
			c.readings.clear()
			c.log.Debugf("%s: finished visit: baseline=%.2f, waste=%.2f", c.cfg.Name, c.baseline, waste)
		},
	}
}

func (c *Context) logTransition(from, to DetectionState, r Reading) {
	c.log.Debugf("%s: transitioning from %s to %s: time=%v, weight=%.2f", c.cfg.Name, from, to, r.Time, r.Weight)
}
