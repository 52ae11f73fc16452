package structured

import "fmt"

// SchemaValidationError reports model output that does not satisfy a contract.
type SchemaValidationError struct {
	Schema string
	Reason string
	Raw    string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("output does not match schema %q: %s", e.Schema, e.Reason)
}
