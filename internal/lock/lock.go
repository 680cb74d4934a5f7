package lock

import (
	"context"
	"errors"
	"strconv"
)

var ErrLockTimeout = errors.New("lock wait timed out")

// Locker hands out exclusive, timeout-bounded locks by key. The returned
// unlock func is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// AppKey is the lock key serializing mutations of one tenant.
func AppKey(appID int64) string {
	return "app:" + strconv.FormatInt(appID, 10)
}
