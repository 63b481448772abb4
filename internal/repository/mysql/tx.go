package mysql

import (
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
)

const txMaxAttempts = 3

// withDeadlockRetry re-runs fn for transient InnoDB conflicts
// (deadlock 1213, lock wait timeout 1205). Anything else surfaces
// immediately.
func withDeadlockRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < txMaxAttempts; attempt++ {
		err = fn()
		if err == nil || !isTransientTxError(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}
	return err
}

func isTransientTxError(err error) bool {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return false
	}
	return myErr.Number == 1213 || myErr.Number == 1205
}
