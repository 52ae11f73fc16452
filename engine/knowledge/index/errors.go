package index

import (
	"fmt"
)

// IndexWriteError reports that a batch of chunks could not be persisted.
// The index may hold earlier batches of the same call; chunk IDs are
// deterministic so retrying the whole insert converges.
type IndexWriteError struct {
	Stage  string
	Source string
	Err    error
}

func (e *IndexWriteError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("index write failed during %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("index write failed during %s of %s: %v", e.Stage, e.Source, e.Err)
}

func (e *IndexWriteError) Unwrap() error {
	return e.Err
}
