package ledger

import "fmt"

// StorageError reports a store that could not be read or written.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// DataCorruptedError reports an existing row that does not parse. The store
// is left as it was.
type DataCorruptedError struct {
	Path   string
	Line   int
	Reason string
}

func (e *DataCorruptedError) Error() string {
	return fmt.Sprintf("%s:%d: corrupted record: %s", e.Path, e.Line, e.Reason)
}
