package models

import (
	"errors"
	"fmt"
)

var (
	// ErrAliasConflict means a write would repoint a live alias at another team.
	ErrAliasConflict = errors.New("alias conflict")
	// ErrStoreUnavailable wraps transient store failures. The whole batch is
	// retried; writes are idempotent upserts.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNotFound is returned by point lookups that must find a row.
	ErrNotFound = errors.New("not found")
	// ErrMergeConflict means the deprecated team already points at a
	// different canonical team.
	ErrMergeConflict = errors.New("merge conflict")
	// ErrInvalidMerge means the merge would point a team at itself after
	// resolving the target to its root.
	ErrInvalidMerge = errors.New("invalid merge")
	// ErrMergeVetoed means the merge would place two names that veto each
	// other under one root.
	ErrMergeVetoed = errors.New("merge vetoed")
)

// AliasConflictError carries the row that blocked the write. The row is left
// unmodified.
type AliasConflictError struct {
	Existing  ExternalIdentifier
	Attempted ExternalIdentifier
}

func (e *AliasConflictError) Error() string {
	return fmt.Sprintf("alias %s/%s already points at team %s, refusing %s",
		e.Existing.Provider, e.Existing.ExternalID, e.Existing.TeamID, e.Attempted.TeamID)
}

// Is makes errors.Is(err, ErrAliasConflict) true.
func (e *AliasConflictError) Is(target error) bool {
	return target == ErrAliasConflict
}

// StoreUnavailable wraps err so that errors.Is(err, ErrStoreUnavailable) holds.
func StoreUnavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
