package common

import "fmt"

// ContractViolation is the panic value used when a caller breaks an invariant
// that signals a defect upstream: a nil event, consensus data assigned twice,
// or memoization arrays sized for another address book. It is never returned
// as an error because retrying cannot help.
type ContractViolation struct {
	Component string
	Msg       string
}

// Error implements the error interface so that recovered values can be logged
// and wrapped.
func (c *ContractViolation) Error() string {
	return fmt.Sprintf("%s: contract violation: %s", c.Component, c.Msg)
}

// Violation panics with a ContractViolation.
func Violation(component, format string, args ...interface{}) {
	panic(&ContractViolation{
		Component: component,
		Msg:       fmt.Sprintf(format, args...),
	})
}

// AsViolation extracts a ContractViolation from a recovered panic value.
func AsViolation(r interface{}) (*ContractViolation, bool) {
	cv, ok := r.(*ContractViolation)
	return cv, ok
}
