package app

import (
	"context"
	"errors"

	"github.com/lvcoi/ytbatch/internal/downloader"
	"github.com/lvcoi/ytbatch/internal/ledger"
	"github.com/lvcoi/ytbatch/internal/model"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitItemsFailed = 1
	ExitValidation  = 2
	ExitStorage     = 3
	// ExitError covers anything else that stopped the command, such as an
	// unreadable input file or a playlist that could not be listed.
	ExitError       = 4
	ExitInterrupted = 130
)

// ErrItemsFailed is returned by Runner.Run when the batch finished but some
// items failed.
var ErrItemsFailed = errors.New("some downloads failed")

// ExitCode maps an error returned by the runner or the commands to a
// process exit code. Interruption outranks storage problems, which outrank
// validation problems. Failed items alone give ExitItemsFailed.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var storageErr *ledger.StorageError
	var corruptErr *ledger.DataCorruptedError
	var validationErr *model.ValidationError
	switch {
	case errors.Is(err, downloader.ErrBatchAborted), errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.As(err, &storageErr), errors.As(err, &corruptErr):
		return ExitStorage
	case errors.As(err, &validationErr):
		return ExitValidation
	case onlyItemsFailed(err):
		return ExitItemsFailed
	default:
		return ExitError
	}
}

// onlyItemsFailed reports whether every branch of err's tree ends in
// ErrItemsFailed.
func onlyItemsFailed(err error) bool {
	if err == ErrItemsFailed {
		return true
	}
	switch x := err.(type) {
	case interface{ Unwrap() []error }:
		errs := x.Unwrap()
		for _, e := range errs {
			if !onlyItemsFailed(e) {
				return false
			}
		}
		return len(errs) > 0
	case interface{ Unwrap() error }:
		return onlyItemsFailed(x.Unwrap())
	}
	return false
}
