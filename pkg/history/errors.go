package history

import "errors"

var (
	ErrWriterClosed    = errors.New("history: writer is closed")
	ErrBufferFull      = errors.New("history: buffer is full")
	ErrInvalidEntry    = errors.New("history: invalid entry")
	ErrFailedToStore   = errors.New("history: failed to store entries")
	ErrFailedToList    = errors.New("history: failed to list entries")
	ErrStorageRequired = errors.New("history: storage is required")
)
