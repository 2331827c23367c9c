package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/deadline-engine/internal/domain"
	apperrors "github.com/spec-kit/deadline-engine/pkg/util"
)

func TestAssignTechnician_RoutesToActiveBackup(t *testing.T) {
	f := newFixture(t)
	assignments := NewAssignmentService(f.store, f.delegations, f.delegations.logger)
	f.seedTicket(t, "t-1", domain.TicketStatusOpen, "")
	f.seedTicket(t, "t-2", domain.TicketStatusOpen, "")

	view, err := f.delegations.CreateDelegation(f.ctx, technicianDelegation("tech-a", "tech-b", 3, 7), domain.SystemActor)
	require.NoError(t, err)

	result, err := assignments.AssignTechnician(f.ctx, "t-1", "tech-a", domain.StaffActor("lead-1"))
	require.NoError(t, err)
	assert.Equal(t, "tech-b", result.AssignedTechnicianID)
	require.NotNil(t, result.DelegationID)
	assert.Equal(t, view.ID, *result.DelegationID)
	assert.Equal(t, "tech-b", *f.ticket(t, "t-1").AssignedTechnicianID)
	assert.Len(t, f.historyOf(t, "t-1", domain.ChangeTypeTechnicianAssigned), 1)
	assert.Len(t, f.historyOf(t, "t-1", domain.ChangeTypeTechnicianDiverted), 1)

	result, err = assignments.AssignTechnician(f.ctx, "t-2", "tech-c", domain.StaffActor("lead-1"))
	require.NoError(t, err)
	assert.Equal(t, "tech-c", result.AssignedTechnicianID)
	assert.Nil(t, result.DelegationID)
}

func TestAssignTechnician_RejectsFinalizedTickets(t *testing.T) {
	f := newFixture(t)
	assignments := NewAssignmentService(f.store, f.delegations, f.delegations.logger)
	f.seedTicket(t, "t-1", domain.TicketStatusClosed, "")

	_, err := assignments.AssignTechnician(f.ctx, "t-1", "tech-a", domain.SystemActor)
	assert.Equal(t, apperrors.CodeInvalidTransition, errorCode(err))

	_, err = assignments.AssignTechnician(f.ctx, "t-404", "tech-a", domain.SystemActor)
	assert.Equal(t, apperrors.CodeItemNotFound, errorCode(err))

	_, err = assignments.AssignTechnician(f.ctx, "t-1", " ", domain.SystemActor)
	assert.Equal(t, apperrors.CodeValidationFailed, errorCode(err))
}

func TestAssignTechnician_ReassigningDivertedTicketKeepsOneDiversion(t *testing.T) {
	f := newFixture(t)
	assignments := NewAssignmentService(f.store, f.delegations, f.delegations.logger)
	f.seedTicket(t, "t-1", domain.TicketStatusOpen, "tech-a")

	view, err := f.delegations.CreateDelegation(f.ctx, technicianDelegation("tech-a", "tech-b", 3, 7), domain.SystemActor)
	require.NoError(t, err)
	require.Equal(t, 1, view.DivertedCount)

	result, err := assignments.AssignTechnician(f.ctx, "t-1", "tech-a", domain.StaffActor("lead-1"))
	require.NoError(t, err)
	assert.Equal(t, "tech-b", result.AssignedTechnicianID)
	require.NotNil(t, result.DelegationID)
	assert.Equal(t, view.ID, *result.DelegationID)
	assert.Len(t, f.historyOf(t, "t-1", domain.ChangeTypeTechnicianDiverted), 2)

	open, err := f.store.Diversions.ListOpenByDelegation(f.ctx, view.ID)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	reverted, err := f.delegations.DeactivateDelegation(f.ctx, view.ID, domain.SystemActor)
	require.NoError(t, err)
	require.NotNil(t, reverted)
	assert.Equal(t, "tech-a", *f.ticket(t, "t-1").AssignedTechnicianID)
}
