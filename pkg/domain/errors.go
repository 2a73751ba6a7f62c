package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors matched by the structured error types below via errors.Is.
var (
	ErrConfiguration          = errors.New("entitygraph: configuration error")
	ErrUninitializedField     = errors.New("entitygraph: uninitialized field")
	ErrCardinality            = errors.New("entitygraph: cardinality violation")
	ErrDuplicateSymbolicID    = errors.New("entitygraph: duplicate symbolic id")
	ErrModificationNotAllowed = errors.New("entitygraph: modification not allowed")
	ErrAlreadyAttached        = errors.New("entitygraph: entity already attached")
	ErrNotFound               = errors.New("entitygraph: entity not found")
	ErrValidation             = errors.New("entitygraph: validation error")
)

// ConfigurationError reports an invalid kind or connection registration.
type ConfigurationError struct {
	Kind   Kind
	Detail string
}

func (e *ConfigurationError) Error() string {
	if e.Kind == "" {
		return "entitygraph: configuration: " + e.Detail
	}
	return fmt.Sprintf("entitygraph: configuration of %s: %s", e.Kind, e.Detail)
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// NewConfigurationError formats a ConfigurationError.
func NewConfigurationError(kind Kind, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// IsConfigurationError returns true if err is a ConfigurationError.
func IsConfigurationError(err error) bool { return errors.Is(err, ErrConfiguration) }

// UninitializedFieldError reports a required field without a value.
type UninitializedFieldError struct {
	Entity EntityID
	Field  string
}

func (e *UninitializedFieldError) Error() string {
	return fmt.Sprintf("entitygraph: field %q of %s is not initialized", e.Field, e.Entity)
}

// Is reports whether target is ErrUninitializedField.
func (e *UninitializedFieldError) Is(target error) bool { return target == ErrUninitializedField }

// IsUninitializedField returns true if err is an UninitializedFieldError.
func IsUninitializedField(err error) bool { return errors.Is(err, ErrUninitializedField) }

// CardinalityReason classifies a CardinalityViolation.
type CardinalityReason string

// Cardinality violation reasons.
const (
	// ReasonSecondChild: a one-to-one parent already has a child.
	ReasonSecondChild CardinalityReason = "second_child"
	// ReasonMissingParent: a child requires a parent and has none.
	ReasonMissingParent CardinalityReason = "missing_parent"
	// ReasonIncompatibleKind: an endpoint kind does not belong to the connection.
	ReasonIncompatibleKind CardinalityReason = "incompatible_kind"
	// ReasonDanglingEndpoint: a relation points at an entity that is not live.
	ReasonDanglingEndpoint CardinalityReason = "dangling_endpoint"
	// ReasonAsymmetric: forward and backward relation indices disagree.
	ReasonAsymmetric CardinalityReason = "asymmetric"
)

// CardinalityViolation reports a relation that breaks its connection's rules.
type CardinalityViolation struct {
	Connection string
	Entity     EntityID
	Reason     CardinalityReason
	Detail     string
}

func (e *CardinalityViolation) Error() string {
	msg := fmt.Sprintf("entitygraph: connection %s: %s for %s", e.Connection, e.Reason, e.Entity)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Is reports whether target is ErrCardinality.
func (e *CardinalityViolation) Is(target error) bool { return target == ErrCardinality }

// IsCardinalityViolation returns true if err is a CardinalityViolation.
func IsCardinalityViolation(err error) bool { return errors.Is(err, ErrCardinality) }

// DuplicateSymbolicIDError reports two live entities sharing a symbolic id.
type DuplicateSymbolicIDError struct {
	ID       SymbolicID
	Entities []EntityID
}

func (e *DuplicateSymbolicIDError) Error() string {
	ids := make([]string, len(e.Entities))
	for i, id := range e.Entities {
		ids[i] = id.String()
	}
	return fmt.Sprintf("entitygraph: symbolic id %s claimed by %s", e.ID, strings.Join(ids, ", "))
}

// Is reports whether target is ErrDuplicateSymbolicID.
func (e *DuplicateSymbolicIDError) Is(target error) bool { return target == ErrDuplicateSymbolicID }

// IsDuplicateSymbolicID returns true if err is a DuplicateSymbolicIDError.
func IsDuplicateSymbolicID(err error) bool { return errors.Is(err, ErrDuplicateSymbolicID) }

// ModificationNotAllowedError reports a write the builder may not perform.
type ModificationNotAllowedError struct {
	Entity EntityID
	Reason string
	// Err optionally carries the underlying violation.
	Err error
}

func (e *ModificationNotAllowedError) Error() string {
	if e.Entity.IsZero() {
		return "entitygraph: modification not allowed: " + e.Reason
	}
	return fmt.Sprintf("entitygraph: modification of %s not allowed: %s", e.Entity, e.Reason)
}

// Unwrap returns the underlying violation, if any.
func (e *ModificationNotAllowedError) Unwrap() error { return e.Err }

// Is reports whether target is ErrModificationNotAllowed.
func (e *ModificationNotAllowedError) Is(target error) bool {
	return target == ErrModificationNotAllowed
}

// IsModificationNotAllowed returns true if err is a ModificationNotAllowedError.
func IsModificationNotAllowed(err error) bool { return errors.Is(err, ErrModificationNotAllowed) }

// AlreadyAttachedError reports a draft attached to a second builder.
type AlreadyAttachedError struct {
	Kind  Kind
	Owner string
}

func (e *AlreadyAttachedError) Error() string {
	return fmt.Sprintf("entitygraph: %s draft already attached to builder %s", e.Kind, e.Owner)
}

// Is reports whether target is ErrAlreadyAttached.
func (e *AlreadyAttachedError) Is(target error) bool { return target == ErrAlreadyAttached }

// IsAlreadyAttached returns true if err is an AlreadyAttachedError.
func IsAlreadyAttached(err error) bool { return errors.Is(err, ErrAlreadyAttached) }

// NotFoundError reports an operation on an entity that is not live.
type NotFoundError struct {
	Entity EntityID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("entitygraph: %s not found", e.Entity)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// IsNotFound returns true if err is a NotFoundError.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// ValidationError reports an unknown field or a value of the wrong shape.
type ValidationError struct {
	Kind  Kind
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("entitygraph: %s.%s: %v", e.Kind, e.Field, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ValidationError) Unwrap() error { return e.Err }

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// IsValidationError returns true if err is a ValidationError.
func IsValidationError(err error) bool { return errors.Is(err, ErrValidation) }

// CommitError wraps the first consistency violation that aborted a commit.
type CommitError struct {
	Phase string
	Err   error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("entitygraph: commit rejected (%s): %v", e.Phase, e.Err)
}

// Unwrap returns the violation.
func (e *CommitError) Unwrap() error { return e.Err }
