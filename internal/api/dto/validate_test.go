package dto

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/spec-kit/deadline-engine/pkg/util"
)

func TestValidate_ReportsFieldsByJSONName(t *testing.T) {
	err := Validate(&CreateDelegationRequest{
		Kind:             "MANAGER",
		OriginalPersonID: "mgr-a",
		StartDate:        "03/06/2024",
		EndDate:          "2024-06-05",
	})
	require.Error(t, err)

	var domainErr *apperrors.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, apperrors.CodeValidationFailed, domainErr.Code)
	assert.Contains(t, domainErr.Details, "kind")
	assert.Contains(t, domainErr.Details, "backup_person_id")
	assert.Contains(t, domainErr.Details, "start_date")
	assert.NotContains(t, domainErr.Details, "end_date")
}

func TestValidate_NestedSelector(t *testing.T) {
	err := Validate(&CreateApprovalRequest{TicketID: "t-1", Level: 1, Selector: SelectorRequest{Type: "FIXED"}})
	require.Error(t, err)

	var domainErr *apperrors.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Contains(t, domainErr.Details, "user_id")

	assert.NoError(t, Validate(&CreateApprovalRequest{
		TicketID: "t-1", Level: 2, Selector: SelectorRequest{Type: "DEPARTMENT_HEAD_OF", UserID: "emp-1"},
	}))
}
