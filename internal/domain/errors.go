package domain

import "errors"

var (
	ErrInvalidDuration       = errors.New("invalid duration")
	ErrInvalidTransition     = errors.New("invalid timer transition")
	ErrMissingReason         = errors.New("missing reason")
	ErrMissingRemainingSLA   = errors.New("missing remaining sla")
	ErrSLANotAttached        = errors.New("sla not attached")
	ErrOverlappingDelegation = errors.New("overlapping delegation")
	ErrSameOriginalAndBackup = errors.New("original and backup are the same person")
	ErrPastEndDate           = errors.New("end date in the past")
	ErrInvalidWindow         = errors.New("window end before start")
	ErrItemNotFound          = errors.New("item not found")
	ErrStoreUnavailable      = errors.New("store unavailable")
	ErrNoWorkingTime         = errors.New("no working time within search horizon")
	ErrInvalidProfile        = errors.New("invalid calendar profile")
	ErrDeadlineInvariant     = errors.New("deadline invariant violated")
)
