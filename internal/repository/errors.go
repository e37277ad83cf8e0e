// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// service package to distinguish between different failure scenarios
// without inspecting driver errors themselves.
package repository

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write collides with a unique link, e.g.
// a user already attached to another doctor.
var ErrConflict = errors.New("conflict")

// ErrEmailExists is returned when a user insert or update collides with
// the unique email index.
var ErrEmailExists = errors.New("email already exists")

// ErrSlotTaken is returned when a booking overlaps an existing BOOKED
// appointment of the same doctor.
var ErrSlotTaken = errors.New("slot already booked")

// ErrDuplicate is returned when an insert collides with a primary key,
// e.g. a freshly generated refresh token hash that already exists.
var ErrDuplicate = errors.New("duplicate key")

// ErrStateChanged is returned by guarded status updates when the row is no
// longer in the expected source state.
var ErrStateChanged = errors.New("state changed")

// ErrTokenInactive is returned by Rotate when the presented refresh token
// exists but is revoked or expired.
var ErrTokenInactive = errors.New("refresh token inactive")

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// isDuplicate reports whether err is a unique/primary key violation and,
// when key is non-empty, whether it names that index.
func isDuplicate(err error, key string) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != mysqlDuplicateEntry {
		return false
	}
	if key == "" {
		return true
	}
	return strings.Contains(strings.ToLower(me.Message), strings.ToLower(key))
}

// notFound maps sql.ErrNoRows to ErrNotFound and passes other errors through.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
