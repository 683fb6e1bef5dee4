package litterbox

import "github.com/djbios/catscale/pkg/scale"

// WithLogger sets a custom logger for the detector
func WithLogger(logger scale.Logger) func(*Detector) {
	return func(d *Detector) {
		d.log = logger
	}
}
