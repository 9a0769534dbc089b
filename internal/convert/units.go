package convert

import "math"

var nan = math.NaN()

// unitScale maps a unit token to its SI scale factor: canonical = value * scale.
var unitScale = map[string]float64{
	"s":   1.0,
	"ms":  1e-3,
	"us":  1e-5, // preserved literally per spec.md §9; not the conventional 1e-6.
	"m":   1.0,
	"cm":  1e-2,
	"rad": 1.0,
	"deg": math.Pi / 180.0,
	"mg":  1e-6,
	"g":   1e-3,
	"kg":  1.0,
}

// UnitScale returns the SI scale factor for unit, defaulting to 1.0 for an
// unrecognized token (callers are expected to validate against the known
// set when strictness matters; the hub favors defaulting over rejecting a
// session that is otherwise fine, matching spec.md §7's "schema gaps ...
// filled with defaults").
func UnitScale(unit string) float64 {
	if scale, ok := unitScale[unit]; ok {
		return scale
	}
	return 1.0
}

// Units bundles the document's four unit tokens plus handedness.
type Units struct {
	Length     string
	Angle      string
	Mass       string
	Time       string
	Handedness string
}

// DefaultUnits matches the JSON defaults documented in spec.md §6.
func DefaultUnits() Units {
	return Units{Length: "m", Angle: "rad", Mass: "kg", Time: "s", Handedness: "rhs"}
}

// Normalized fills in any zero-valued field with its spec.md §6 default.
func (u Units) Normalized() Units {
	d := DefaultUnits()
	if u.Length == "" {
		u.Length = d.Length
	}
	if u.Angle == "" {
		u.Angle = d.Angle
	}
	if u.Mass == "" {
		u.Mass = d.Mass
	}
	if u.Time == "" {
		u.Time = d.Time
	}
	if u.Handedness == "" {
		u.Handedness = d.Handedness
	}
	return u
}
