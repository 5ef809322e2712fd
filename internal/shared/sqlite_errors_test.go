package shared

import (
	"errors"
	"fmt"
	"testing"
)

func TestSQLiteErrorClassifiers(t *testing.T) {
	busy := errors.New("sqlite: step: SQLITE_BUSY")
	locked := fmt.Errorf("append message: %w", errors.New("database is locked (5)"))
	unique := errors.New("constraint failed: UNIQUE constraint failed: users.phone (2067)")
	other := errors.New("no such table: users")

	if !IsSQLiteBusyError(busy) || !IsSQLiteConflictError(busy) {
		t.Errorf("expected busy error to be classified as conflict")
	}
	if !IsSQLiteLockedError(locked) || !IsSQLiteConflictError(locked) {
		t.Errorf("expected wrapped locked error to be classified as conflict")
	}
	if !IsSQLiteUniqueError(unique) {
		t.Errorf("expected unique violation to be detected")
	}
	if IsSQLiteConflictError(other) || IsSQLiteUniqueError(other) {
		t.Errorf("unexpected classification for %v", other)
	}
	if IsSQLiteConflictError(nil) || IsSQLiteUniqueError(nil) {
		t.Errorf("nil must not be classified")
	}
}
