// Package memstore is an in-memory implementation of the repository Store.
// Transactions are serialized by a single lock and roll back by restoring a
// snapshot, so a failed unit of work leaves no partial writes behind.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/deadline-engine/internal/domain"
	"github.com/spec-kit/deadline-engine/internal/repository"
)

type txKey struct{}

// FaultFunc returns a non-nil error to make the named operation fail.
type FaultFunc func(key string) error

type state struct {
	tickets     map[string]domain.Ticket
	slas        map[string]domain.SLADefinition
	approvals   map[string]domain.ApprovalStep
	delegations map[string]domain.Delegation
	logs        []domain.DelegationLog
	diversions  []domain.Diversion
	history     []domain.TicketHistory
	outbox      []domain.OutboxEvent
	staff       map[string]domain.StaffMember
	departments map[string]domain.Department
}

func newState() state {
	return state{
		tickets:     map[string]domain.Ticket{},
		slas:        map[string]domain.SLADefinition{},
		approvals:   map[string]domain.ApprovalStep{},
		delegations: map[string]domain.Delegation{},
		staff:       map[string]domain.StaffMember{},
		departments: map[string]domain.Department{},
	}
}

func (s state) clone() state {
	c := newState()
	for k, v := range s.tickets {
		c.tickets[k] = v
	}
	for k, v := range s.slas {
		c.slas[k] = v
	}
	for k, v := range s.approvals {
		c.approvals[k] = v
	}
	for k, v := range s.delegations {
		c.delegations[k] = v
	}
	for k, v := range s.staff {
		c.staff[k] = v
	}
	for k, v := range s.departments {
		c.departments[k] = v
	}
	c.logs = append([]domain.DelegationLog(nil), s.logs...)
	c.diversions = append([]domain.Diversion(nil), s.diversions...)
	c.history = append([]domain.TicketHistory(nil), s.history...)
	c.outbox = append([]domain.OutboxEvent(nil), s.outbox...)
	return c
}

// Store holds all engine state in memory.
type Store struct {
	txMu   sync.Mutex
	mu     sync.RWMutex
	data   state
	now    func() time.Time
	faults map[string]FaultFunc
}

// New returns an empty store.
func New() *Store {
	return &Store{data: newState(), now: time.Now, faults: map[string]FaultFunc{}}
}

// SetClock overrides the time source used for created/updated stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// InjectFault makes the named operation ("tickets.UpdateAssignee", ...) consult fn first.
func (s *Store) InjectFault(op string, fn FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = fn
}

// ClearFaults removes every injected fault.
func (s *Store) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = map[string]FaultFunc{}
}

func (s *Store) fault(op, key string) error {
	fn, ok := s.faults[op]
	if !ok {
		return nil
	}
	if err := fn(key); err != nil {
		return fmt.Errorf("%s(%s): %w", op, key, err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(txKey{}).(*Store)
	return ok && owner == s
}

// enter serializes operations made outside a transaction with open transactions.
func (s *Store) enter(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.txMu.Lock()
	return s.txMu.Unlock
}

// RunInTransaction runs fn holding the store lock and restores the prior
// state if fn fails.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// Repositories exposes the store through the repository interfaces.
func (s *Store) Repositories() *repository.Store {
	return &repository.Store{
		Tickets:        &tickets{s},
		SLAs:           &slas{s},
		Approvals:      &approvals{s},
		Delegations:    &delegations{s},
		DelegationLogs: &delegationLogs{s},
		Diversions:     &diversions{s},
		History:        &history{s},
		Outbox:         &outbox{s},
		Staff:          &staff{s},
		Departments:    &departments{s},
		Tx:             s,
		Ping:           func(context.Context) error { return nil },
	}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, domain.ErrItemNotFound)
}

type tickets struct{ s *Store }

func (r *tickets) Create(ctx context.Context, t *domain.Ticket) error {
	defer r.s.enter(ctx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("tickets.Create", t.ID); err != nil {
		return err
	}
	now := r.s.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	r.s.data.tickets[t.ID] = *t
	return nil
}

func (r *tickets) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	defer r.s.enter(ctx)()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.fault("tickets.GetByID", id); err != nil {
		return nil, err
	}
	t, ok := r.s.data.tickets[id]
	if !ok {
		return nil, notFound("ticket", id)
	}
	return &t, nil
}

func (r *tickets) GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.GetByID(ctx, id)
}

func (r *tickets) List(ctx context.Context, filter domain.TicketFilter) ([]domain.Ticket, error) {
	defer r.s.enter(ctx)()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.fault("tickets.List", ""); err != nil {
		return nil, err
	}
	var result []domain.Ticket
	for _, t := range r.s.data.tickets {
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
			continue
		}
		if filter.WithDueDate && (t.DueAt == nil || !t.HasSLA()) {
			continue
		}
		if filter.ResolvedBefore != nil && (t.ResolvedAt == nil || !t.ResolvedAt.Before(*filter.ResolvedBefore)) {
			continue
		}
		if filter.AssignedTo != nil && (t.AssignedTechnicianID == nil || *t.AssignedTechnicianID != *filter.AssignedTo) {
			continue
		}
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if filter.After != nil {
		start := sort.Search(len(result), func(i int) bool {
			t := result[i]
			return t.CreatedAt.After(filter.After.CreatedAt) ||
				(t.CreatedAt.Equal(filter.After.CreatedAt) && t.ID > filter.After.ID)
		})
		result = result[start:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (r *tickets) UpdateDeadline(ctx context.Context, t *domain.Ticket) error {
	defer r.s.enter(ctx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("tickets.UpdateDeadline", t.ID); err != nil {
		return err
	}
	current, ok := r.s.data.tickets[t.ID]
	if !ok {
		return notFound("ticket", t.ID)
	}
	current.Status = t.Status
	current.SLAID = t.SLAID
	current.OperationalHoursOnly = t.OperationalHoursOnly
	current.SLAMinutesTotal = t.SLAMinutesTotal
	current.SLAStartedAt = t.SLAStartedAt
	current.DueAt = t.DueAt
	current.RemainingMinutes = t.RemainingMinutes
	current.PauseReason = t.PauseReason
	current.PausedAt = t.PausedAt
	current.ResumedAt = t.ResumedAt
	current.EscalationFiredAt = t.EscalationFiredAt
	current.ResolvedAt = t.ResolvedAt
	current.ClosedAt = t.ClosedAt
	current.UpdatedAt = r.s.now()
	t.UpdatedAt = current.UpdatedAt
	r.s.data.tickets[t.ID] = current
	return nil
}

func (r *tickets) UpdateAssignee(ctx context.Context, id string, technicianID *string) error {
	defer r.s.enter(ctx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("tickets.UpdateAssignee", id); err != nil {
		return err
	}
	current, ok := r.s.data.tickets[id]
	if !ok {
		return notFound("ticket", id)
	}
	current.AssignedTechnicianID = technicianID
	current.UpdatedAt = r.s.now()
	r.s.data.tickets[id] = current
	return nil
}

func containsStatus(statuses []domain.TicketStatus, s domain.TicketStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

type slas struct{ s *Store }

func (r *slas) Create(ctx context.Context, sla *domain.SLADefinition) error {
	defer r.s.enter(ctx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.data.slas[sla.ID] = *sla
	return nil
}

func (r *slas) GetByID(ctx context.Context, id string) (*domain.SLADefinition, error) {
	defer r.s.enter(ctx)()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.fault("slas.GetByID", id); err != nil {
		return nil, err
	}
	sla, ok := r.s.data.slas[id]
	if !ok {
		return nil, notFound("sla", id)
	}
	return &sla, nil
}

type approvals struct{ s *Store }

func (r *approvals) Create(ctx context.Context, step *domain.ApprovalStep) error {
	defer r.s.enter(ctx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("approvals.Create", step.ID); err != nil {
		return err
	}
	if step.CreatedAt.IsZero() {
		step.CreatedAt = r.s.now()
	}
	r.s.data.approvals[step.ID] = *step
	return nil
}

func (r *approvals) GetByID(ctx context.Context, id string) (*domain.ApprovalStep, error) {
	defer r.s.enter(ctx)()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	step, ok := r.s.data.approvals[id]
	if !ok {
		return nil, notFound("approval step", id)
	}
	return &step, nil
}

func (r *approvals) GetForUpdate(ctx context.Context, id string) (*domain.ApprovalStep, error) {
	return r.GetByID(ctx, id)
}

func (r *approvals) ListPendingByApprover(ctx context.Context, approverID string) ([]domain.ApprovalStep, error) {
	defer r.s.enter(ctx)()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var result []domain.ApprovalStep
	for _, step := range r.s.data.approvals {
		if step.ApproverID == approverID && !step.Status.IsDecided() {
			result = append(result, step)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *approvals) UpdateApprover(ctx context.Context, id, approverID string) error {
	defer r.s.enter(ctx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("approvals.UpdateApprover", id); err != nil {
		return err
	}
	step, ok := r.s.data.approvals[id]
	if !ok {
		return notFound("approval step", id)
	}
	step.ApproverID = approverID
	r.s.data.approvals[id] = step
	return nil
}

func (r *approvals) UpdateStatus(ctx context.Context, id string, status domain.ApprovalStatus, decidedAt *time.Time) error {
	defer r.s.enter(ctx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	step, ok := r.s.data.approvals[id]
	if !ok {
		return notFound("approval step", id)
	}
	step.Status = status
	step.DecidedAt = decidedAt
	r.s.data.approvals[id] = step
	return nil
}

func (r *approvals) ListAwaitingReminder(ctx context.Context, cutoff time.Time, afterID string, limit int) ([]domain.ApprovalStep, error) {
	defer r.s.enter(ctx)()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.fault("approvals.ListAwaitingReminder", ""); err != nil {
		return nil, err
	}
	var result []domain.ApprovalStep
	for _, step := range r.s.data.approvals {
		if step.Status.IsDecided() || step.ID <= afterID {
			continue
		}
		last := step.CreatedAt
		if step.RemindedAt != nil {
			last = *step.RemindedAt
		}
		if last.After(cutoff) {
			continue
		}
		result = append(result, step)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *approvals) MarkReminded(ctx context.Context, id string, at time.Time) error {
	defer r.s.enter(ctx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("approvals.MarkReminded", id); err != nil {
		return err
	}
	step, ok := r.s.data.approvals[id]
	if !ok {
		return notFound("approval step", id)
	}
	step.RemindedAt = &at
	r.s.data.approvals[id] = step
	return nil
}

type delegations struct{ s *Store }

func (r *delegations) Create(ctx context.Context, d *domain.Delegation) error {
	defer r.s.enter(ctx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("delegations.Create", d.ID); err != nil {
		return err
	}
	if d.IsActive {
		for _, existing := range r.s.data.delegations {
			if existing.IsActive && existing.Kind == d.Kind && existing.OriginalPersonID == d.OriginalPersonID &&
				existing.Overlaps(d.WindowStart, d.WindowEnd) {
				return fmt.Errorf("%w: conflicts with %s", domain.ErrOverlappingDelegation, existing.ID)
			}
		}
	}
	d.CreatedAt = r.s.now()
	r.s.data.delegations[d.ID] = *d
	return nil
}

func (r *delegations) GetByID(ctx context.Context, id string) (*domain.Delegation, error) {
	defer r.s.enter(ctx)()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.fault("delegations.GetByID", id); err != nil {
		return nil, err
	}
	d, ok := r.s.data.delegations[id]
	if !ok {
		return nil, notFound("delegation", id)
	}
	return &d, nil
}

func (r *delegations) GetForUpdate(ctx context.Context, id string) (*domain.Delegation, error) {
	return r.GetByID(ctx, id)
}

func (r *delegations) List(ctx context.Context, filter domain.DelegationFilter) ([]domain.Delegation, error) {
	defer r.s.enter(ctx)()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var result []domain.Delegation
	for _, d := range r.s.data.delegations {
		if filter.Kind != nil && d.Kind != *filter.Kind {
			continue
		}
		if filter.OriginalPersonID != nil && d.OriginalPersonID != *filter.OriginalPersonID {
			continue
		}
		if filter.BackupPersonID != nil && d.BackupPersonID != *filter.BackupPersonID {
			continue
		}
		if filter.ActiveOnly && !d.IsActive {
			continue
		}
		if filter.EndsAfter != nil && d.WindowEnd.Before(*filter.EndsAfter) {
			continue
		}
		if filter.EndsBefore != nil && d.WindowEnd.After(*filter.EndsBefore) {
			continue
		}
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].WindowStart.Equal(result[j].WindowStart) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].WindowStart.After(result[j].WindowStart)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return nil, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// LockPerson is a no-op: every transaction already holds the store lock.
func (r *delegations) LockPerson(ctx context.Context, kind domain.DelegationKind, originalPersonID string) error {
	return nil
}

func (r *delegations) FindOverlapping(ctx context.Context, kind domain.DelegationKind, originalPersonID string, start, end time.Time) ([]domain.Delegation, error) {
	defer r.s.enter(ctx)()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var result []domain.Delegation
	for _, d := range r.s.data.delegations {
		if d.IsActive && d.Kind == kind && d.OriginalPersonID == originalPersonID && d.Overlaps(start, end) {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].WindowStart.Before(result[j].WindowStart) })
	return result, nil
}

func (r *delegations) FindActiveFor(ctx context.Context, kind domain.DelegationKind, originalPersonID string, at time.Time) (*domain.Delegation, error) {
	defer r.s.enter(ctx)()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var found *domain.Delegation
	for _, d := range r.s.data.delegations {
		if d.IsActive && d.Kind == kind && d.OriginalPersonID == originalPersonID && d.Covers(at) {
			if found == nil || d.CreatedAt.After(found.CreatedAt) {
				candidate := d
				found = &candidate
			}
		}
	}
	if found == nil {
		return nil, notFound("active delegation for", originalPersonID)
	}
	return found, nil
}

func (r *delegations) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Delegation, error) {
	defer r.s.enter(ctx)()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.fault("delegations.ListExpired", ""); err != nil {
		return nil, err
	}
	var result []domain.Delegation
	for _, d := range r.s.data.delegations {
		if d.IsActive && d.WindowEnd.Before(now) {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].WindowEnd.Equal(result[j].WindowEnd) {
			return result[i].ID < result[j].ID
		}
		return result[i].WindowEnd.Before(result[j].WindowEnd)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *delegations) Deactivate(ctx context.Context, id string, at time.Time, by *string) error {
	defer r.s.enter(ctx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("delegations.Deactivate", id); err != nil {
		return err
	}
	d, ok := r.s.data.delegations[id]
	if !ok || !d.IsActive {
		return notFound("active delegation", id)
	}
	d.IsActive = false
	deactivatedAt := at
	d.DeactivatedAt = &deactivatedAt
	d.DeactivatedBy = by
	r.s.data.delegations[id] = d
	return nil
}

type delegationLogs struct{ s *Store }

func (r *delegationLogs) Create(ctx context.Context, entry *domain.DelegationLog) error {
	defer r.s.enter(ctx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("delegationLogs.Create", entry.DelegationID); err != nil {
		return err
	}
	entry.CreatedAt = r.s.now()
	r.s.data.logs = append(r.s.data.logs, *entry)
	return nil
}

func (r *delegationLogs) ListByDelegation(ctx context.Context, delegationID string) ([]domain.DelegationLog, error) {
	defer r.s.enter(ctx)()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var result []domain.DelegationLog
	for _, entry := range r.s.data.logs {
		if entry.DelegationID == delegationID {
			result = append(result, entry)
		}
	}
	return result, nil
}

type diversions struct{ s *Store }

func (r *diversions) Create(ctx context.Context, d *domain.Diversion) error {
	defer r.s.enter(ctx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("diversions.Create", d.WorkItemID); err != nil {
		return err
	}
	for _, existing := range r.s.data.diversions {
		if existing.DelegationID == d.DelegationID && existing.WorkItemKind == d.WorkItemKind &&
			existing.WorkItemID == d.WorkItemID && existing.IsOpen() {
			return fmt.Errorf("work item %s already diverted under delegation %s", d.WorkItemID, d.DelegationID)
		}
	}
	r.s.data.diversions = append(r.s.data.diversions, *d)
	return nil
}

func (r *diversions) ListByDelegation(ctx context.Context, delegationID string) ([]domain.Diversion, error) {
	return r.list(ctx, delegationID, false)
}

func (r *diversions) ListOpenByDelegation(ctx context.Context, delegationID string) ([]domain.Diversion, error) {
	return r.list(ctx, delegationID, true)
}

func (r *diversions) list(ctx context.Context, delegationID string, openOnly bool) ([]domain.Diversion, error) {
	defer r.s.enter(ctx)()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var result []domain.Diversion
	for _, d := range r.s.data.diversions {
		if d.DelegationID != delegationID || (openOnly && !d.IsOpen()) {
			continue
		}
		result = append(result, d)
	}
	return result, nil
}

func (r *diversions) MarkReverted(ctx context.Context, id string, reversion domain.ReversionType, at time.Time) error {
	defer r.s.enter(ctx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("diversions.MarkReverted", id); err != nil {
		return err
	}
	for i, d := range r.s.data.diversions {
		if d.ID != id || !d.IsOpen() {
			continue
		}
		revertedAt := at
		kind := reversion
		d.RevertedAt = &revertedAt
		d.ReversionType = &kind
		r.s.data.diversions[i] = d
		return nil
	}
	return notFound("open diversion", id)
}

type history struct{ s *Store }

func (r *history) Create(ctx context.Context, h *domain.TicketHistory) error {
	defer r.s.enter(ctx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("history.Create", h.TicketID); err != nil {
		return err
	}
	h.CreatedAt = r.s.now()
	r.s.data.history = append(r.s.data.history, *h)
	return nil
}

func (r *history) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	defer r.s.enter(ctx)()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var result []domain.TicketHistory
	for _, h := range r.s.data.history {
		if h.TicketID == ticketID {
			result = append(result, h)
		}
	}
	return result, nil
}

type outbox struct{ s *Store }

func (r *outbox) Enqueue(ctx context.Context, event *domain.OutboxEvent) error {
	defer r.s.enter(ctx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("outbox.Enqueue", event.Kind); err != nil {
		return err
	}
	event.CreatedAt = r.s.now()
	r.s.data.outbox = append(r.s.data.outbox, *event)
	return nil
}

func (r *outbox) ListPending(ctx context.Context, now time.Time, limit int) ([]domain.OutboxEvent, error) {
	defer r.s.enter(ctx)()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var result []domain.OutboxEvent
	for _, event := range r.s.data.outbox {
		if event.DeliveredAt != nil || event.NextAttemptAt.After(now) {
			continue
		}
		result = append(result, event)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (r *outbox) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, func(event *domain.OutboxEvent) {
		deliveredAt := at
		event.DeliveredAt = &deliveredAt
		event.Attempts++
		event.LastError = nil
	})
}

func (r *outbox) MarkFailed(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string) error {
	return r.update(ctx, id, func(event *domain.OutboxEvent) {
		msg := lastError
		event.Attempts = attempts
		event.NextAttemptAt = nextAttemptAt
		event.LastError = &msg
	})
}

func (r *outbox) update(ctx context.Context, id string, fn func(*domain.OutboxEvent)) error {
	defer r.s.enter(ctx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.data.outbox {
		if r.s.data.outbox[i].ID == id {
			fn(&r.s.data.outbox[i])
			return nil
		}
	}
	return notFound("outbox event", id)
}

type staff struct{ s *Store }

func (r *staff) Create(ctx context.Context, member *domain.StaffMember) error {
	defer r.s.enter(ctx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	member.CreatedAt, member.UpdatedAt = now, now
	r.s.data.staff[member.ID] = *member
	return nil
}

func (r *staff) GetByID(ctx context.Context, id string) (*domain.StaffMember, error) {
	defer r.s.enter(ctx)()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	member, ok := r.s.data.staff[id]
	if !ok {
		return nil, notFound("staff member", id)
	}
	return &member, nil
}

type departments struct{ s *Store }

func (r *departments) Create(ctx context.Context, department *domain.Department) error {
	defer r.s.enter(ctx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	department.CreatedAt, department.UpdatedAt = now, now
	r.s.data.departments[department.ID] = *department
	return nil
}

func (r *departments) GetByID(ctx context.Context, id string) (*domain.Department, error) {
	defer r.s.enter(ctx)()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	department, ok := r.s.data.departments[id]
	if !ok {
		return nil, notFound("department", id)
	}
	return &department, nil
}
