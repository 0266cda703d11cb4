// Package assignment drives the per-assignment state machine: proposal,
// instructor response, admin cancellation and classification promotion.
package assignment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trainops/instructor-dispatch/core/events"
	"github.com/trainops/instructor-dispatch/core/logger"
	"github.com/trainops/instructor-dispatch/core/metrics"
	"github.com/trainops/instructor-dispatch/core/model"
	"github.com/trainops/instructor-dispatch/core/outbox"
	"github.com/trainops/instructor-dispatch/internal/eventbus"
)

// ScheduleDirectory is the read-only schedule lookup the service validates
// bulk saves against.
type ScheduleDirectory interface {
	Schedule(ctx context.Context, id string) (model.Schedule, error)
}

// Config holds the state machine settings.
type Config struct {
	// ProposalWindowDays is how many days before the schedule date the
	// proposal window closes; accepted temporary assignments inside the
	// window are promoted to Confirmed by the promotion batch.
	ProposalWindowDays int `json:"proposal_window_days"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.ProposalWindowDays <= 0 {
		c.ProposalWindowDays = 3
	}
}

// Service owns assignment mutations. All persistence goes through the
// conditional-update Store; message side effects go through the outbox.
type Service struct {
	store     Store
	schedules ScheduleDirectory
	bus       eventbus.EventBus
	sink      metrics.Sink
	log       logger.Logger
	window    int
	now       func() time.Time
}

// NewService creates a Service.
func NewService(store Store, schedules ScheduleDirectory, bus eventbus.EventBus, sink metrics.Sink, log logger.Logger, cfg Config) (*Service, error) {
	if store == nil || schedules == nil {
		return nil, fmt.Errorf("assignment: nil store or schedule directory provided to NewService")
	}
	cfg.SetDefaults()
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Service{
		store:     store,
		schedules: schedules,
		bus:       bus,
		sink:      sink,
		log:       log,
		window:    cfg.ProposalWindowDays,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetClock overrides the time source. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// BulkFailure reports one schedule whose batch could not be committed.
type BulkFailure struct {
	ScheduleID string           `json:"scheduleId"`
	Error      string           `json:"error"`
	Proposals  []model.Proposal `json:"proposals"`
}

// BulkReport is the partial result of a bulk save: committed schedules stay
// committed even when later ones fail.
type BulkReport struct {
	Committed []model.Assignment `json:"committed"`
	Failed    []BulkFailure      `json:"failed"`
}

// BulkSave persists a reviewed proposal set. Proposals are grouped by
// schedule; each schedule commits in its own all-or-nothing transaction, so a
// mid-batch failure never leaves one schedule half-assigned. The Temporary
// outbox event for every assignment is written inside the same transaction.
func (s *Service) BulkSave(ctx context.Context, proposals []model.Proposal) (BulkReport, error) {
	if len(proposals) == 0 {
		return BulkReport{}, fmt.Errorf("%w: empty proposal list", model.ErrValidation)
	}
	groups, order := groupBySchedule(proposals)

	var report BulkReport
	now := s.now()
	for _, scheduleID := range order {
		group := groups[scheduleID]
		committed, err := s.saveSchedule(ctx, scheduleID, group, now)
		if err != nil {
			if s.log != nil {
				s.log.Warnf("bulk save: schedule %s failed: %v", scheduleID, err)
			}
			report.Failed = append(report.Failed, BulkFailure{
				ScheduleID: scheduleID,
				Error:      err.Error(),
				Proposals:  group,
			})
			continue
		}
		report.Committed = append(report.Committed, committed...)
		s.publish(events.AssignmentsCommitted{ScheduleID: scheduleID, Assignments: committed, Time: now})
		s.publish(events.OutboxEnqueued{Count: len(committed)})
	}
	s.recordBatch(report.Committed, "committed", now)
	return report, nil
}

func (s *Service) saveSchedule(ctx context.Context, scheduleID string, group []model.Proposal, now time.Time) ([]model.Assignment, error) {
	sched, err := s.schedules.Schedule(ctx, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	if sched.Blocked {
		return nil, fmt.Errorf("%w: schedule %s is blocked", model.ErrValidation, scheduleID)
	}
	assignments := make([]model.Assignment, 0, len(group))
	outboxEvents := make([]outbox.Event, 0, len(group))
	for _, p := range group {
		if p.InstructorID == "" {
			return nil, fmt.Errorf("%w: proposal without instructor", model.ErrValidation)
		}
		a := model.Assignment{
			ID:             uuid.NewString(),
			ScheduleID:     scheduleID,
			InstructorID:   p.InstructorID,
			LocationID:     p.LocationID,
			UnitID:         sched.UnitID,
			Date:           sched.Date,
			Role:           p.Role,
			State:          model.StatePending,
			Classification: model.ClassTemporary,
			CreatedAt:      now,
		}
		assignments = append(assignments, a)
		outboxEvents = append(outboxEvents, outbox.NewEvent(a, model.ClassTemporary, now))
	}
	if err := s.store.CreateBatch(ctx, assignments, outboxEvents); err != nil {
		return nil, err
	}
	return assignments, nil
}

// Respond applies an instructor's Accept or Reject. Legal only while the
// assignment is Pending and the schedule date is still in the future; the
// transition is a conditional update, so of two concurrent responses exactly
// one wins and the loser gets ErrInvalidStateTransition.
func (s *Service) Respond(ctx context.Context, scheduleID, instructorID string, response model.Response) (model.Assignment, error) {
	target, err := response.StateFor()
	if err != nil {
		return model.Assignment{}, err
	}
	a, err := s.store.Latest(ctx, scheduleID, instructorID)
	if err != nil {
		return model.Assignment{}, fmt.Errorf("respond: %w", err)
	}
	if a.State != model.StatePending {
		return model.Assignment{}, fmt.Errorf("%w: assignment %s is %s", model.ErrInvalidStateTransition, a.ID, a.State)
	}
	now := s.now()
	if !a.Date.After(model.MidnightUTC(now)) {
		return model.Assignment{}, fmt.Errorf("%w: schedule date %s has passed", model.ErrInvalidStateTransition, a.Date.Format("2006-01-02"))
	}
	updated, err := s.store.Transition(ctx, a.ID, model.StatePending, target, now)
	if err != nil {
		return model.Assignment{}, err
	}
	s.publish(events.AssignmentResponded{Assignment: updated, Response: response, Time: now})
	s.recordBatch([]model.Assignment{updated}, "responded", now)
	return updated, nil
}

// Cancel is the admin cancellation. Pending and Accepted assignments may be
// cancelled; an Accepted assignment on a past-dated schedule is blocked to
// preserve historical statistics.
func (s *Service) Cancel(ctx context.Context, scheduleID, instructorID string) (model.Assignment, error) {
	a, err := s.store.Latest(ctx, scheduleID, instructorID)
	if err != nil {
		return model.Assignment{}, fmt.Errorf("cancel: %w", err)
	}
	now := s.now()
	switch a.State {
	case model.StatePending:
	case model.StateAccepted:
		if a.Date.Before(model.MidnightUTC(now)) {
			return model.Assignment{}, fmt.Errorf("%w: schedule date %s has passed", model.ErrCannotCancelCompleted, a.Date.Format("2006-01-02"))
		}
	default:
		return model.Assignment{}, fmt.Errorf("%w: assignment %s is %s", model.ErrInvalidStateTransition, a.ID, a.State)
	}
	updated, err := s.store.Transition(ctx, a.ID, a.State, model.StateCancelled, now)
	if err != nil {
		return model.Assignment{}, err
	}
	s.publish(events.AssignmentCancelled{Assignment: updated, Time: now})
	s.recordBatch([]model.Assignment{updated}, "cancelled", now)
	return updated, nil
}

// Promote runs the confirmation batch: accepted temporary assignments whose
// proposal window has closed become Confirmed and get a confirmation message
// enqueued. Assignment state is untouched.
func (s *Service) Promote(ctx context.Context) ([]model.Assignment, error) {
	now := s.now()
	cutoff := model.MidnightUTC(now).AddDate(0, 0, s.window)
	promoted, err := s.store.PromoteTemporary(ctx, cutoff, now)
	if err != nil {
		return nil, fmt.Errorf("promote: %w", err)
	}
	if len(promoted) > 0 {
		s.publish(events.AssignmentsPromoted{Count: len(promoted), Time: now})
		s.publish(events.OutboxEnqueued{Count: len(promoted)})
		s.recordBatch(promoted, "promoted", now)
	}
	return promoted, nil
}

// Audit returns accepted assignments lacking a dispatched confirmation
// message, for the reconciliation tooling.
func (s *Service) Audit(ctx context.Context) ([]model.Assignment, error) {
	return s.store.AcceptedWithoutConfirmedMessage(ctx)
}

func (s *Service) publish(e eventbus.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}

func (s *Service) recordBatch(list []model.Assignment, action string, now time.Time) {
	if len(list) == 0 {
		return
	}
	recs := make([]metrics.AssignmentEvent, 0, len(list))
	for _, a := range list {
		recs = append(recs, metrics.AssignmentEvent{
			ScheduleID:   a.ScheduleID,
			InstructorID: a.InstructorID,
			Role:         a.Role,
			State:        a.State,
			Action:       action,
			Time:         now,
		})
	}
	if err := s.sink.RecordAssignmentEvents(recs); err != nil && s.log != nil {
		s.log.Errorf("assignment metrics: %v", err)
	}
}

// groupBySchedule buckets proposals preserving first-seen schedule order.
func groupBySchedule(proposals []model.Proposal) (map[string][]model.Proposal, []string) {
	groups := make(map[string][]model.Proposal)
	var order []string
	for _, p := range proposals {
		if _, ok := groups[p.ScheduleID]; !ok {
			order = append(order, p.ScheduleID)
		}
		groups[p.ScheduleID] = append(groups[p.ScheduleID], p)
	}
	return groups, order
}
