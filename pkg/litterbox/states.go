package litterbox

// DetectionState denotes the current phase of the visit detection machine
type DetectionState int

const (

	// StateIdle is active while the platform is believed to be empty
	StateIdle DetectionState = iota

	// StateWaitingForConfirmation is active after a candidate arrival, until the
	// elevated weight has lasted long enough to be trusted
	StateWaitingForConfirmation

	// StateCatPresent is active while a confirmed occupant is on the platform
	StateCatPresent

	// StateAfterCat is active after departure, while waiting for the scale
	// readings to settle into a new baseline
	StateAfterCat
)

// Key returns the stable label of the state
func (s DetectionState) Key() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaitingForConfirmation:
		return "waiting_for_confirmation"
	case StateCatPresent:
		return "cat_present"
	case StateAfterCat:
		return "after_cat"
	}

	return "unknown"
}

func (s DetectionState) String() string {
	return s.Key()
}
