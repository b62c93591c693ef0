package repository

import (
	"context"
	"database/sql/driver"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// MySQL server error numbers the claim path cares about.
const (
	errDupEntry        = 1062
	errNoReferencedRow = 1452
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errOutOfRange      = 1690
	errDataOutOfRange  = 1264
	errCheckViolated   = 3819
)

func mysqlErrNumber(err error) (uint16, bool) {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number, true
	}
	return 0, false
}

func isDuplicateEntry(err error) bool {
	n, ok := mysqlErrNumber(err)
	return ok && n == errDupEntry
}

func isMissingParent(err error) bool {
	n, ok := mysqlErrNumber(err)
	return ok && n == errNoReferencedRow
}

// isConstraintViolation reports whether the engine refused a value
// because of a CHECK constraint or an unsigned range overflow.
func isConstraintViolation(err error) bool {
	n, ok := mysqlErrNumber(err)
	if !ok {
		return false
	}
	switch n {
	case errCheckViolated, errOutOfRange, errDataOutOfRange:
		return true
	}
	return false
}

// IsTransient reports whether err is an infrastructure failure that may
// succeed when the whole claim transaction is attempted again: lock wait
// timeouts, deadlock victims, dropped connections and transaction
// deadlines.  Business errors and invariant violations are never
// transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvariantViolation) {
		return false
	}
	if n, ok := mysqlErrNumber(err); ok {
		return n == errLockWaitTimeout || n == errDeadlock
	}
	return errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, context.DeadlineExceeded)
}
