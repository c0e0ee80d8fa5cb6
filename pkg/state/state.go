package state

import "time"

// Calib is one stored calibration entry as reported by the device.
// Keys follow the firmware: r slot, o offset, s slope, oe and se their
// errors. P and T are passed through as the device reports them.
type Calib struct {
	R  int     `json:"r"`
	O  float64 `json:"o"`
	OE float64 `json:"oe,omitempty"`
	S  float64 `json:"s"`
	SE float64 `json:"se,omitempty"`
	P  float64 `json:"p"`
	T  float64 `json:"t,omitempty"`
}

// Snapshot is the last successful calibration of a device.
type Snapshot struct {
	// Port is the serial device the calibration ran on.
	Port string `json:"port"`

	// Slot is the calibrated channel.
	Slot int `json:"slot"`

	// Weight and WeightError describe the reference load of the slope step.
	Weight      float64 `json:"weight"`
	WeightError float64 `json:"weight_error"`

	// Calibs is the table written to the device before saving.
	Calibs []Calib `json:"calibs"`

	// SavedAt is when the device confirmed the save.
	SavedAt time.Time `json:"saved_at"`
}

// IsEmpty returns true if no calibration was recorded yet.
func (s Snapshot) IsEmpty() bool {
	return s.Port == "" && len(s.Calibs) == 0
}

// Lookup returns the entry for slot.
func (s Snapshot) Lookup(slot int) (Calib, bool) {
	for _, c := range s.Calibs {
		if c.R == slot {
			return c, true
		}
	}
	return Calib{}, false
}
