// Package convert holds the static conversion tables: attribute arity and
// defaults, unit scale factors, and per-axis handedness sign vectors.
package convert

// AttributeKind is one of the twenty fixed-arity quantities a client may
// produce or consume.
type AttributeKind string

const (
	Time                  AttributeKind = "time"
	Position              AttributeKind = "position"
	Quaternion            AttributeKind = "quaternion"
	RelativeVelocity      AttributeKind = "relative_velocity"
	JointRValue           AttributeKind = "joint_rvalue"
	JointTValue           AttributeKind = "joint_tvalue"
	JointLinearVelocity   AttributeKind = "joint_linear_velocity"
	JointAngularVelocity  AttributeKind = "joint_angular_velocity"
	JointForce            AttributeKind = "joint_force"
	JointTorque           AttributeKind = "joint_torque"
	CmdJointRValue        AttributeKind = "cmd_joint_rvalue"
	CmdJointTValue        AttributeKind = "cmd_joint_tvalue"
	CmdJointLinearVel     AttributeKind = "cmd_joint_linear_velocity"
	CmdJointAngularVel    AttributeKind = "cmd_joint_angular_velocity"
	CmdJointForce         AttributeKind = "cmd_joint_force"
	CmdJointTorque        AttributeKind = "cmd_joint_torque"
	JointPosition         AttributeKind = "joint_position"
	JointQuaternion       AttributeKind = "joint_quaternion"
	Force                 AttributeKind = "force"
	Torque                AttributeKind = "torque"
)

// EffortKinds are the attributes whose per-object value is an aggregate of
// every producer's contribution rather than the last write.
var EffortKinds = map[AttributeKind]bool{
	Force:  true,
	Torque: true,
}

// IsEffort reports whether kind aggregates contributions across producers.
func IsEffort(kind AttributeKind) bool {
	return EffortKinds[kind]
}

// arities gives the fixed vector length for every attribute kind.
var arities = map[AttributeKind]int{
	Time:                 1,
	Position:             3,
	Quaternion:           4,
	RelativeVelocity:     6,
	JointRValue:          1,
	JointTValue:          1,
	JointLinearVelocity:  1,
	JointAngularVelocity: 1,
	JointForce:           1,
	JointTorque:          1,
	CmdJointRValue:       1,
	CmdJointTValue:       1,
	CmdJointLinearVel:    1,
	CmdJointAngularVel:   1,
	CmdJointForce:        1,
	CmdJointTorque:       1,
	JointPosition:        3,
	JointQuaternion:      4,
	Force:                3,
	Torque:               3,
}

// Arity returns the fixed vector length for kind, or 0 if kind is unknown.
func Arity(kind AttributeKind) int {
	return arities[kind]
}

// Known reports whether kind is one of the twenty declared attribute kinds.
func Known(kind AttributeKind) bool {
	_, ok := arities[kind]
	return ok
}

// additiveDefault marks attribute kinds whose default vector is all zero
// (additive quantities: time, the Cartesian relative_velocity/force/torque
// triad). Every other known kind defaults to NaN (state quantities: pose,
// joint values, joint velocities, joint force/torque).
var additiveDefault = map[AttributeKind]bool{
	Time:             true,
	RelativeVelocity: true,
	Force:            true,
	Torque:           true,
}

// DefaultVector returns a freshly allocated default-valued vector for kind.
func DefaultVector(kind AttributeKind) []float64 {
	n := Arity(kind)
	if n == 0 {
		return nil
	}
	vec := make([]float64, n)
	if additiveDefault[kind] {
		return vec
	}
	for i := range vec {
		vec[i] = nan
	}
	return vec
}

