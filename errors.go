/*
errors.go - Centralized error types for the client

PURPOSE:
  All error types in one place for consistency and discoverability.
  Subpackages return their own sentinels for internal use; this file
  holds the ones the root client surfaces to applications.

ERROR CATEGORIES:
  1. Initialization errors - store open failure, bad configuration
  2. Validation errors - malformed transact input
  3. Apply errors - wrap the Transaction Engine's rollback-triggering
     failures with a client-facing type

SEE ALSO:
  - client.go: Uses these errors
  - txn/engine.go: Local apply failure source
*/
package relaydb

import (
	"errors"
	"fmt"
)

var (
	// ErrNotStarted is returned by operations that require Start to have
	// been called first.
	ErrNotStarted = errors.New("relaydb: client not started")

	// ErrAlreadyStarted is returned by Start when called twice.
	ErrAlreadyStarted = errors.New("relaydb: client already started")

	// ErrAppIDRequired is returned by New when Config.AppID is empty.
	ErrAppIDRequired = errors.New("relaydb: app id is required")

	// ErrEmptyTransaction is returned by Transact when called with no
	// operations.
	ErrEmptyTransaction = errors.New("relaydb: transact called with no operations")
)

// TransactError wraps a local apply failure with the transaction's
// intended operations, for callers that want to inspect what failed.
type TransactError struct {
	OperationCount int
	Cause          error
}

func (e *TransactError) Error() string {
	return fmt.Sprintf("relaydb: transact failed (%d operations): %v", e.OperationCount, e.Cause)
}

func (e *TransactError) Unwrap() error {
	return e.Cause
}
