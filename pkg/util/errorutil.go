package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/deadline-engine/internal/domain"
)

// Error codes surfaced to API callers.
const (
	CodeValidationFailed      = "VALIDATION_FAILED"
	CodeNotFound              = "NOT_FOUND"
	CodeItemNotFound          = "ITEM_NOT_FOUND"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeForbidden             = "FORBIDDEN"
	CodeConflict              = "CONFLICT"
	CodeInternal              = "INTERNAL_ERROR"
	CodeInvalidDuration       = "INVALID_DURATION"
	CodeInvalidTransition     = "INVALID_TRANSITION"
	CodeMissingReason         = "MISSING_REASON"
	CodeMissingRemainingSLA   = "MISSING_REMAINING_SLA"
	CodeOverlappingDelegation = "OVERLAPPING_DELEGATION"
	CodeSameOriginalAndBackup = "SAME_ORIGINAL_AND_BACKUP"
	CodePastEndDate           = "PAST_END_DATE"
	CodeInvalidWindow         = "INVALID_WINDOW"
	CodeStoreUnavailable      = "STORE_UNAVAILABLE"
	CodeSLANotAttached        = "SLA_NOT_ATTACHED"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

// Wrap attaches a sentinel cause so callers can still match it with errors.Is.
func (e *DomainError) Wrap(cause error) *DomainError {
	e.Err = cause
	return e
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeItemNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
		Err:        domain.ErrItemNotFound,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewInvalidDuration(minutes int) error {
	return NewDomainError(CodeInvalidDuration, "duration must not be negative", http.StatusBadRequest,
		map[string]any{"minutes": minutes}).Wrap(domain.ErrInvalidDuration)
}

func NewInvalidTransition(action string, current domain.TicketStatus) error {
	return NewDomainError(CodeInvalidTransition,
		fmt.Sprintf("cannot %s while ticket is %s", action, current),
		http.StatusConflict,
		map[string]any{"action": action, "current_status": current}).Wrap(domain.ErrInvalidTransition)
}

func NewMissingReason() error {
	return NewDomainError(CodeMissingReason, "a reason is required to stop the timer", http.StatusBadRequest, nil).
		Wrap(domain.ErrMissingReason)
}

func NewMissingRemainingSLA(ticketID string) error {
	return NewDomainError(CodeMissingRemainingSLA, "no remaining SLA snapshot; cannot resume timer", http.StatusConflict,
		map[string]any{"ticket_id": ticketID}).Wrap(domain.ErrMissingRemainingSLA)
}

func NewSLANotAttached(ticketID string) error {
	return NewDomainError(CodeSLANotAttached, "ticket has no SLA attached", http.StatusConflict,
		map[string]any{"ticket_id": ticketID}).Wrap(domain.ErrSLANotAttached)
}

func NewOverlappingDelegation(conflict *domain.Delegation) error {
	details := map[string]any{}
	if conflict != nil {
		details["conflicting_delegation_id"] = conflict.ID
		details["conflicting_window_start"] = conflict.WindowStart.Format(domain.DateLayout)
		details["conflicting_window_end"] = conflict.WindowEnd.Format(domain.DateLayout)
	}
	return NewDomainError(CodeOverlappingDelegation,
		"a delegation already exists for this person during the specified period",
		http.StatusConflict, details).Wrap(domain.ErrOverlappingDelegation)
}

func NewSameOriginalAndBackup(personID string) error {
	return NewDomainError(CodeSameOriginalAndBackup, "original and backup person cannot be the same", http.StatusBadRequest,
		map[string]any{"person_id": personID}).Wrap(domain.ErrSameOriginalAndBackup)
}

func NewPastEndDate(end string) error {
	return NewDomainError(CodePastEndDate, "end date cannot be in the past", http.StatusBadRequest,
		map[string]any{"window_end": end}).Wrap(domain.ErrPastEndDate)
}

func NewInvalidWindow(start, end string) error {
	return NewDomainError(CodeInvalidWindow, "end date cannot be before start date", http.StatusBadRequest,
		map[string]any{"window_start": start, "window_end": end}).Wrap(domain.ErrInvalidWindow)
}

func NewStoreUnavailable(err error) error {
	return &DomainError{
		Code:       CodeStoreUnavailable,
		Message:    "store unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        errors.Join(domain.ErrStoreUnavailable, err),
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	switch {
	case errors.Is(err, pgx.ErrNoRows), errors.Is(err, domain.ErrItemNotFound):
		return NewDomainError(CodeItemNotFound, "resource not found", http.StatusNotFound, nil).Wrap(err)
	case errors.Is(err, domain.ErrStoreUnavailable):
		return NewDomainError(CodeStoreUnavailable, "store unavailable", http.StatusServiceUnavailable, nil).Wrap(err)
	case errors.Is(err, domain.ErrInvalidTransition):
		return NewDomainError(CodeInvalidTransition, err.Error(), http.StatusConflict, nil).Wrap(err)
	case errors.Is(err, domain.ErrInvalidDuration):
		return NewDomainError(CodeInvalidDuration, err.Error(), http.StatusBadRequest, nil).Wrap(err)
	case errors.Is(err, domain.ErrOverlappingDelegation):
		return NewDomainError(CodeOverlappingDelegation, err.Error(), http.StatusConflict, nil).Wrap(err)
	case errors.Is(err, domain.ErrNoWorkingTime):
		return NewDomainError(CodeValidationFailed, err.Error(), http.StatusUnprocessableEntity, nil).Wrap(err)
	}
	return NewDomainError(CodeInternal, "internal server error", http.StatusInternalServerError, nil).Wrap(err)
}

// MapError converts generic errors to DomainError.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
