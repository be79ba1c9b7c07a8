package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

const lockRetryDelay = 100 * time.Millisecond

// acquire takes the advisory lock that guards path against other processes.
// The in-process mutex is taken by the caller.
func (l *Ledger) acquire(ctx context.Context, path string) (func(), error) {
	if !l.lock {
		return func() {}, nil
	}

	fl := flock.New(path + ".lock")
	ok, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &StorageError{Op: "lock", Path: fl.Path(), Err: err}
	}
	if !ok {
		return nil, &StorageError{Op: "lock", Path: fl.Path(), Err: errors.New("lock not acquired")}
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			l.logger.Warn("release lock", zap.String("path", fl.Path()), zap.Error(err))
		}
	}, nil
}
