package migration

import (
	"fmt"
)

// Transfer stages reported by TransferError.Op.
const (
	OpGet       = "get"
	OpTransform = "transform"
	OpPut       = "put"
)

// TransferError is a failed transfer of one key. It is recoverable: the
// record stays pending and is retried by a later wave.
type TransferError struct {
	Key string
	Op  string
	Err error
}

// Error implements the error interface.
func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransferError) Unwrap() error {
	return e.Err
}
