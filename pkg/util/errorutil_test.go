package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/deadline-engine/internal/domain"
)

func TestToDomainError_MapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{pgx.ErrNoRows, CodeItemNotFound, http.StatusNotFound},
		{fmt.Errorf("ticket x: %w", domain.ErrItemNotFound), CodeItemNotFound, http.StatusNotFound},
		{fmt.Errorf("begin: %w", domain.ErrStoreUnavailable), CodeStoreUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("insert: %w", domain.ErrOverlappingDelegation), CodeOverlappingDelegation, http.StatusConflict},
		{errors.New("boom"), CodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		de := ToDomainError(tc.err)
		assert.Equal(t, tc.code, de.Code, tc.err.Error())
		assert.Equal(t, tc.status, de.HTTPStatus, tc.err.Error())
		assert.True(t, errors.Is(de, tc.err))
	}
}

func TestConstructors_KeepSentinel(t *testing.T) {
	assert.True(t, errors.Is(NewInvalidTransition("stop", domain.TicketStatusOnHold), domain.ErrInvalidTransition))
	assert.True(t, errors.Is(NewMissingReason(), domain.ErrMissingReason))
	assert.True(t, errors.Is(NewNotFound("ticket", nil), domain.ErrItemNotFound))

	de := ToDomainError(NewInvalidTransition("stop", domain.TicketStatusOnHold))
	assert.Equal(t, CodeInvalidTransition, de.Code)
	assert.Equal(t, domain.TicketStatusOnHold, de.Details["current_status"])
}

func TestMapError_Nil(t *testing.T) {
	assert.NoError(t, MapError(nil))
	assert.Nil(t, ToDomainError(nil))
}
