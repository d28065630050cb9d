package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pocketbank/backend/internal/models"
	"github.com/pocketbank/backend/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

type ScheduledTransferService struct {
	store     store.Store
	transfers *TransferService
	location  *time.Location
	now       func() time.Time
}

// NewScheduledTransferService builds the recurrence engine. loc decides which
// calendar day "today" is; nil means UTC.
func NewScheduledTransferService(st store.Store, transfers *TransferService, loc *time.Location) *ScheduledTransferService {
	if loc == nil {
		loc = time.UTC
	}
	return &ScheduledTransferService{
		store:     st,
		transfers: transfers,
		location:  loc,
		now:       time.Now,
	}
}

func (s *ScheduledTransferService) today() time.Time {
	return dateOnly(s.now().In(s.location))
}

// ExecuteDueSchedules fires every schedule due today. Each schedule's transfer and
// its date advance commit together, so a schedule fires at most once per due date.
// Failures are reported per schedule and never stop the pass.
func (s *ScheduledTransferService) ExecuteDueSchedules(ctx context.Context) (*models.DueRunSummary, error) {
	today := s.today()

	due, err := s.store.FindDueSchedules(ctx, today)
	if err != nil {
		return nil, asInfrastructure("find due schedules", err)
	}

	summary := &models.DueRunSummary{Results: make([]models.ScheduleOutcome, 0, len(due))}
	for _, sched := range due {
		if ctx.Err() != nil {
			zap.L().Warn("Due-check pass interrupted",
				zap.Int("remaining", len(due)-len(summary.Results)),
				zap.Error(ctx.Err()))
			break
		}

		outcome := s.executeSchedule(ctx, sched)
		switch {
		case outcome.Success:
			summary.Executed++
			scheduleOutcomesTotal.WithLabelValues("executed").Inc()
		case outcome.Skipped:
			summary.Skipped++
			scheduleOutcomesTotal.WithLabelValues("skipped").Inc()
		default:
			summary.Failed++
			scheduleOutcomesTotal.WithLabelValues("failed").Inc()
		}
		summary.Results = append(summary.Results, outcome)
	}

	zap.L().Info("Due-check pass finished",
		zap.Time("today", today),
		zap.Int("executed", summary.Executed),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped))
	return summary, nil
}

func (s *ScheduledTransferService) executeSchedule(ctx context.Context, sched models.ScheduledTransfer) models.ScheduleOutcome {
	description := sched.Description
	if description == "" {
		description = fmt.Sprintf("Scheduled transfer (%s)", sched.Frequency)
	}
	req := models.TransferRequest{
		FromAccountID: sched.FromAccountID,
		ToAccountID:   sched.ToAccountID,
		Amount:        sched.Amount,
		Description:   description,
	}

	var (
		next   time.Time
		active bool
	)
	_, err := s.transfers.execute(ctx, sourceScheduled, sched.UserID, req, func(ctx context.Context, tx store.Tx) error {
		current, err := tx.LockSchedule(ctx, sched.ID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrScheduleNotDue
		}
		if err != nil {
			return err
		}
		// Another pass or a user edit got here first.
		if !current.IsActive ||
			!current.NextExecutionDate.Equal(sched.NextExecutionDate) ||
			!current.Amount.Equal(sched.Amount) ||
			current.FromAccountID != sched.FromAccountID ||
			current.ToAccountID != sched.ToAccountID {
			return ErrScheduleNotDue
		}

		next, active = advanceSchedule(current)
		return tx.SaveScheduleProgress(ctx, sched.ID, next, active)
	})

	audit := s.transfers.ledger.audit
	switch {
	case err == nil:
		if active {
			audit.LogSchedule(sched.ID, "SCHEDULE_EXECUTED", "SUCCESS", "next execution "+next.Format(dateLayout))
		} else {
			audit.LogSchedule(sched.ID, "SCHEDULE_DEACTIVATED", "SUCCESS", "end date reached")
		}
		return models.ScheduleOutcome{ScheduleID: sched.ID, Success: true}
	case errors.Is(err, ErrScheduleNotDue):
		zap.L().Info("Scheduled transfer skipped", zap.String("schedule_id", sched.ID))
		return models.ScheduleOutcome{ScheduleID: sched.ID, Skipped: true}
	default:
		audit.LogSchedule(sched.ID, "SCHEDULE_EXECUTED", "FAILED", err.Error())
		zap.L().Warn("Scheduled transfer failed",
			zap.String("schedule_id", sched.ID),
			zap.String("kind", string(KindOf(err))),
			zap.Error(err))
		return models.ScheduleOutcome{ScheduleID: sched.ID, Error: PublicMessage(err)}
	}
}

// advanceSchedule returns the next execution date and whether the schedule stays
// active. The computed date is kept even when the schedule retires.
func advanceSchedule(s *models.ScheduledTransfer) (time.Time, bool) {
	next := s.Frequency.Advance(s.NextExecutionDate)
	if s.EndDate != nil && next.After(*s.EndDate) {
		return next, false
	}
	return next, true
}

// Create registers a new schedule between two of the user's accounts.
func (s *ScheduledTransferService) Create(ctx context.Context, userID string, req models.ScheduledTransferRequest) (*models.ScheduledTransfer, error) {
	if err := validScheduleAmount(req.Amount); err != nil {
		return nil, err
	}
	if !req.Frequency.Valid() {
		return nil, rejectf(ErrInvalidSchedule, "unsupported frequency %q", req.Frequency)
	}
	next, err := parseDate(req.NextExecutionDate)
	if err != nil {
		return nil, err
	}
	if next.Before(s.today()) {
		return nil, rejectf(ErrInvalidSchedule, "next execution date is in the past")
	}
	endDate, err := parseOptionalDate(req.EndDate)
	if err != nil {
		return nil, err
	}
	if endDate != nil && endDate.Before(next) {
		return nil, rejectf(ErrInvalidSchedule, "end date is before next execution date")
	}

	if req.FromAccountID == req.ToAccountID {
		return nil, ErrSameAccount
	}
	for _, id := range []string{req.FromAccountID, req.ToAccountID} {
		if _, err := s.transfers.ledger.ownedAccount(ctx, userID, id); err != nil {
			return nil, err
		}
	}

	sched := &models.ScheduledTransfer{
		ID:                uuid.NewString(),
		UserID:            userID,
		FromAccountID:     req.FromAccountID,
		ToAccountID:       req.ToAccountID,
		Amount:            req.Amount,
		Description:       req.Description,
		Frequency:         req.Frequency,
		NextExecutionDate: next,
		EndDate:           endDate,
		IsActive:          true,
	}
	if err := s.store.CreateSchedule(ctx, sched); err != nil {
		return nil, asInfrastructure("create schedule", err)
	}

	s.transfers.ledger.audit.LogSchedule(sched.ID, "SCHEDULE_CREATED", "SUCCESS", string(sched.Frequency))
	return sched, nil
}

func (s *ScheduledTransferService) Get(ctx context.Context, userID, id string) (*models.ScheduledTransfer, error) {
	sched, err := s.store.FindScheduleByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		return nil, asInfrastructure("find schedule", err)
	}
	if sched.UserID != userID {
		return nil, ErrForbidden
	}
	return sched, nil
}

func (s *ScheduledTransferService) List(ctx context.Context, userID string) ([]models.ScheduledTransfer, error) {
	schedules, err := s.store.ListSchedulesByUser(ctx, userID)
	if err != nil {
		return nil, asInfrastructure("list schedules", err)
	}
	return schedules, nil
}

// Update applies the user's edits under the schedule row lock so it cannot race a
// due-check pass advancing the same row.
func (s *ScheduledTransferService) Update(ctx context.Context, userID, id string, upd models.ScheduledTransferUpdate) (*models.ScheduledTransfer, error) {
	var updated *models.ScheduledTransfer
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		sched, err := tx.LockSchedule(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return ErrScheduleNotFound
		}
		if err != nil {
			return err
		}
		if sched.UserID != userID {
			return ErrForbidden
		}

		if err := applyScheduleUpdate(sched, upd); err != nil {
			return err
		}
		if err := tx.UpdateSchedule(ctx, sched); err != nil {
			return err
		}
		updated = sched
		return nil
	})
	if err != nil {
		return nil, asInfrastructure("update schedule", err)
	}

	s.transfers.ledger.audit.LogSchedule(id, "SCHEDULE_UPDATED", "SUCCESS", fmt.Sprintf("active=%t", updated.IsActive))
	return updated, nil
}

func applyScheduleUpdate(sched *models.ScheduledTransfer, upd models.ScheduledTransferUpdate) error {
	if upd.Amount != nil {
		if err := validScheduleAmount(*upd.Amount); err != nil {
			return err
		}
		sched.Amount = *upd.Amount
	}
	if upd.Description != nil {
		sched.Description = *upd.Description
	}
	if upd.Frequency != nil {
		if !upd.Frequency.Valid() {
			return rejectf(ErrInvalidSchedule, "unsupported frequency %q", *upd.Frequency)
		}
		sched.Frequency = *upd.Frequency
	}
	if upd.NextExecutionDate != nil {
		next, err := parseDate(*upd.NextExecutionDate)
		if err != nil {
			return err
		}
		sched.NextExecutionDate = next
	}
	if upd.EndDate != nil {
		endDate, err := parseOptionalDate(*upd.EndDate)
		if err != nil {
			return err
		}
		sched.EndDate = endDate
	}
	if upd.IsActive != nil {
		sched.IsActive = *upd.IsActive
	}

	if sched.EndDate != nil && sched.EndDate.Before(sched.NextExecutionDate) && sched.IsActive {
		return rejectf(ErrInvalidSchedule, "end date is before next execution date")
	}
	return nil
}

func (s *ScheduledTransferService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	err := s.store.DeleteSchedule(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrScheduleNotFound
	}
	if err != nil {
		return asInfrastructure("delete schedule", err)
	}
	s.transfers.ledger.audit.LogSchedule(id, "SCHEDULE_DELETED", "SUCCESS", "")
	return nil
}

func validScheduleAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return ErrInvalidAmount
	}
	return nil
}

func parseDate(value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, rejectf(ErrInvalidSchedule, "date %q must be YYYY-MM-DD", value)
	}
	return t, nil
}

// parseOptionalDate treats an empty string as "no end date".
func parseOptionalDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := parseDate(value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
