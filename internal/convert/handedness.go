package convert

// handednessSigns gives the per-axis sign flip applied when a session is
// left-handed. Kinds not listed here are unaffected by handedness (their
// sign vector is all +1).
var handednessSigns = map[AttributeKind][]float64{
	Position:        {1, -1, 1},
	JointTValue:     {-1},
	JointPosition:   {1, -1, 1},
	Quaternion:      {-1, 1, -1, 1},
	JointQuaternion: {1, 1, -1, 1},
	JointRValue:     {-1},
	Force:           {1, -1, 1},
	Torque:          {1, -1, 1},
}

func signsFor(kind AttributeKind, handedness string) []float64 {
	n := Arity(kind)
	signs := make([]float64, n)
	for i := range signs {
		signs[i] = 1
	}
	if handedness != "lhs" {
		return signs
	}
	if flips, ok := handednessSigns[kind]; ok {
		for i := 0; i < n && i < len(flips); i++ {
			signs[i] = flips[i]
		}
	}
	return signs
}

// unitDimension names the dimension driving a kind's scale, per spec.md §4.1.
type unitDimension int

const (
	dimNone unitDimension = iota
	dimTime
	dimLength
	dimAngle
	dimLengthPerTime
	dimAnglePerTime
	dimForce  // mass*length/time^2
	dimTorque // mass*length^2/time^2
	dimRelativeVelocity // first 3 axes length/time, last 3 angle/time
)

var kindDimension = map[AttributeKind]unitDimension{
	Time:                 dimTime,
	Position:             dimLength,
	JointTValue:          dimLength,
	JointPosition:        dimLength,
	Quaternion:           dimNone,
	JointQuaternion:      dimNone,
	JointRValue:          dimAngle,
	JointLinearVelocity:  dimLengthPerTime,
	JointAngularVelocity: dimAnglePerTime,
	JointForce:           dimForce,
	Force:                dimForce,
	JointTorque:          dimTorque,
	Torque:               dimTorque,
	RelativeVelocity:     dimRelativeVelocity,
}

// cmdAliasOf copies the scale of a cmd_* variant's non-cmd_* counterpart,
// per spec.md §4.1.
var cmdAliasOf = map[AttributeKind]AttributeKind{
	CmdJointRValue:     JointRValue,
	CmdJointTValue:     JointTValue,
	CmdJointLinearVel:  JointLinearVelocity,
	CmdJointAngularVel: JointAngularVelocity,
	CmdJointForce:      JointForce,
	CmdJointTorque:     JointTorque,
}

// BuildScale computes, for every known attribute kind, the per-axis scale
// vector such that canonical = client_value * scale and
// client_value = canonical / scale. Implements spec.md §4.1.
func BuildScale(units Units) map[AttributeKind][]float64 {
	units = units.Normalized()
	lengthScale := UnitScale(units.Length)
	angleScale := UnitScale(units.Angle)
	massScale := UnitScale(units.Mass)
	timeScale := UnitScale(units.Time)

	out := make(map[AttributeKind][]float64, len(arities))
	for kind := range arities {
		resolved := kind
		if alias, ok := cmdAliasOf[kind]; ok {
			resolved = alias
		}
		n := Arity(kind)
		unitPart := make([]float64, n)
		switch kindDimension[resolved] {
		case dimTime:
			for i := range unitPart {
				unitPart[i] = timeScale
			}
		case dimLength:
			for i := range unitPart {
				unitPart[i] = lengthScale
			}
		case dimAngle:
			for i := range unitPart {
				unitPart[i] = angleScale
			}
		case dimLengthPerTime:
			for i := range unitPart {
				unitPart[i] = lengthScale / timeScale
			}
		case dimAnglePerTime:
			for i := range unitPart {
				unitPart[i] = angleScale / timeScale
			}
		case dimForce:
			for i := range unitPart {
				unitPart[i] = massScale * lengthScale / (timeScale * timeScale)
			}
		case dimTorque:
			for i := range unitPart {
				unitPart[i] = massScale * lengthScale * lengthScale / (timeScale * timeScale)
			}
		case dimRelativeVelocity:
			for i := range unitPart {
				if i < 3 {
					unitPart[i] = lengthScale / timeScale
				} else {
					unitPart[i] = angleScale / timeScale
				}
			}
		case dimNone:
			for i := range unitPart {
				unitPart[i] = 1.0
			}
		}

		signs := signsFor(kind, units.Handedness)
		scale := make([]float64, n)
		for i := range scale {
			s := 1.0
			if i < len(unitPart) {
				s = unitPart[i]
			}
			if i < len(signs) {
				s *= signs[i]
			}
			scale[i] = s
		}
		out[kind] = scale
	}
	return out
}
