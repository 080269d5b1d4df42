package memory

import "fmt"

// ModelCallError reports a failed completion or embedding call.
type ModelCallError struct {
	Op  string
	Err error
}

func (e *ModelCallError) Error() string {
	return fmt.Sprintf("model call %s: %v", e.Op, e.Err)
}

func (e *ModelCallError) Unwrap() error { return e.Err }

// StoreReadError reports that the fact store or history store could not be
// read. It is distinct from a legitimately empty result.
type StoreReadError struct {
	Store string
	Err   error
}

func (e *StoreReadError) Error() string {
	return fmt.Sprintf("%s read: %v", e.Store, e.Err)
}

func (e *StoreReadError) Unwrap() error { return e.Err }

// StoreWriteError reports a failed durable write.
type StoreWriteError struct {
	Store string
	Err   error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("%s write: %v", e.Store, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// ExtractionError reports a failed or malformed fact extraction. It is only
// ever logged.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("fact extraction: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
