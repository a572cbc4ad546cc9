package batches

import "errors"

var (
	ErrBatchNotFound           = errors.New("batch not found")
	ErrInvalidInput            = errors.New("invalid input")
	ErrUploadRejected          = errors.New("upload rejected")
	ErrReconciliationExhausted = errors.New("status poll failures exhausted")
	ErrAlreadyReconciling      = errors.New("batch is already being reconciled")

	// ErrClosePending means members are still in flight at closure; the batch stays open.
	ErrClosePending = errors.New("batch members still in flight")
)
