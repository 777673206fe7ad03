package handler

import (
	"errors"
	"fmt"
)

// ReconciliationError reports an entity graph that cannot be reconciled: a reward references an
// era or validator that was never recorded, or a reward-bearing transaction has a call shape the
// engine does not understand. Indexing must stop at Block until someone looks at it; retrying the
// same input gives the same answer.
type ReconciliationError struct {
	Block  uint64
	Entity string
	Key    string
	Reason string
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconciliation failed at block %d: %s %s: %s", e.Block, e.Entity, e.Key, e.Reason)
}

// AsReconciliation unwraps err into a *ReconciliationError.
func AsReconciliation(err error) (*ReconciliationError, bool) {
	var re *ReconciliationError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

func reconcileErr(block uint64, entity, key, format string, args ...any) error {
	return &ReconciliationError{Block: block, Entity: entity, Key: key, Reason: fmt.Sprintf(format, args...)}
}
