package pedido

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound        = errors.New("pedido not found")
	ErrVersionConflict = errors.New("pedido was modified by another request")
)

// ValidationError maps a field path such as "participantes[0].cpf" to the
// reason it was rejected.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+" "+e.Fields[key])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// StorageError wraps a failure of the underlying database.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PartialWriteError reports a write whose outcome is unknown, such as a
// commit that failed in flight. Callers must re-fetch before retrying.
type PartialWriteError struct {
	PedidoID int64
	Err      error
}

func (e *PartialWriteError) Error() string {
	if e.PedidoID == 0 {
		return fmt.Sprintf("write outcome unknown: %v", e.Err)
	}
	return fmt.Sprintf("write outcome unknown for pedido %d: %v", e.PedidoID, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }

// IdempotencyKeyReusedError reports an Idempotency-Key that already created
// PedidoID from a different payload. Nothing was written; the caller should
// apply its changes as an update of that pedido instead.
type IdempotencyKeyReusedError struct {
	PedidoID int64
	Versao   int
}

func (e *IdempotencyKeyReusedError) Error() string {
	return fmt.Sprintf("idempotency key already used for pedido %d with a different payload", e.PedidoID)
}
