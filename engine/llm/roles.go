package llm

import (
	"fmt"
)

// Role names one model binding used by the nutrition pipeline.
type Role string

const (
	RoleEstimateVision Role = "estimate_vision"
	RoleEstimateText   Role = "estimate_text"
	RoleCompute        Role = "compute"
)

// Roles lists every supported role.
func Roles() []Role {
	return []Role{RoleEstimateVision, RoleEstimateText, RoleCompute}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleEstimateVision, RoleEstimateText, RoleCompute:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// Models binds each role to its invoker. The set is fixed at construction.
type Models struct {
	EstimateVision Invoker
	EstimateText   Invoker
	Compute        Invoker
}

// Validate ensures every role is bound.
func (m *Models) Validate() error {
	if m == nil {
		return fmt.Errorf("models are required")
	}
	for _, role := range Roles() {
		if m.For(role) == nil {
			return fmt.Errorf("no model bound to role %s", role)
		}
	}
	return nil
}

// For returns the invoker bound to role, or nil.
func (m *Models) For(role Role) Invoker {
	switch role {
	case RoleEstimateVision:
		return m.EstimateVision
	case RoleEstimateText:
		return m.EstimateText
	case RoleCompute:
		return m.Compute
	default:
		return nil
	}
}
