package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avenra/StudioSessionsBack/internal/models"
	"github.com/avenra/StudioSessionsBack/internal/repository"
	"github.com/avenra/StudioSessionsBack/internal/schedule"
)

var (
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrSessionUnavailable     = errors.New("session is not available for booking")
	ErrTrainerNotFound        = errors.New("trainer not found")
)

// Booking within this horizon deducts a prepaid credit immediately; anything
// further out is deducted by the sweeper once the session has passed.
const immediateDeductionHorizon = 24 * time.Hour

type SessionService struct {
	db              *pgxpool.Pool
	sessionRepo     *repository.SessionRepository
	userRepo        *repository.UserRepository
	defaultLocation string
	defaultType     string
	now             func() time.Time
}

func NewSessionService(
	db *pgxpool.Pool,
	sessionRepo *repository.SessionRepository,
	userRepo *repository.UserRepository,
	defaultLocation string,
	defaultType string,
) *SessionService {
	return &SessionService{
		db:              db,
		sessionRepo:     sessionRepo,
		userRepo:        userRepo,
		defaultLocation: defaultLocation,
		defaultType:     defaultType,
		now:             time.Now,
	}
}

type SlotInput struct {
	Date            time.Time
	EndDate         *time.Time
	DurationMinutes int
	TrainerID       *int64
	Location        *string
	SessionType     *string
	Notes           *string
}

type RecurringSlotsInput struct {
	Rule        schedule.RecurringRule
	TrainerID   *int64
	Location    *string
	SessionType *string
}

type RequestSessionInput struct {
	Start       time.Time
	End         *time.Time
	Notes       string
	SessionType *string
	Location    *string
}

type BookingOutcome struct {
	Session   *models.SessionDetail   `json:"session"`
	Deduction *models.DeductionResult `json:"deductionResult,omitempty"`
}

type CompletionOutcome struct {
	Session   *models.SessionDetail   `json:"session"`
	Deduction *models.DeductionResult `json:"deductionResult,omitempty"`
}

func (s *SessionService) ListSessions(
	ctx context.Context,
	actorID int64,
	role string,
	filter repository.SessionListFilter,
) ([]models.SessionDetail, error) {
	if role != models.RoleClient && !models.IsStaff(role) {
		return nil, ErrForbidden
	}
	if !filter.End.After(filter.Start) {
		return nil, ErrInvalidInput
	}

	filter.ViewerID = actorID
	filter.ViewerRole = role
	details, err := s.sessionRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if role == models.RoleClient {
		for i := range details {
			details[i].PrivateNotes = nil
		}
	}
	return details, nil
}

func (s *SessionService) GetSession(
	ctx context.Context,
	actorID int64,
	role string,
	sessionID int64,
) (*models.SessionDetail, error) {
	detail, err := s.sessionRepo.GetDetail(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !canViewSession(role, actorID, &detail.Session) {
		return nil, ErrForbidden
	}
	if role == models.RoleClient {
		detail.PrivateNotes = nil
	}
	return detail, nil
}

// CreateSlots bulk-creates open, bookable sessions. Admin only.
func (s *SessionService) CreateSlots(
	ctx context.Context,
	actorID int64,
	role string,
	slots []SlotInput,
) ([]models.Session, error) {
	if role != models.RoleAdmin {
		return nil, ErrForbidden
	}
	if len(slots) == 0 {
		return nil, ErrInvalidInput
	}
	now := s.now()
	for _, slot := range slots {
		if slot.Date.IsZero() || slot.Date.Before(now) {
			return nil, fmt.Errorf("%w: slot dates must be in the future", ErrInvalidInput)
		}
		if slot.EndDate != nil && !slot.EndDate.After(slot.Date) {
			return nil, fmt.Errorf("%w: slot end must be after start", ErrInvalidInput)
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txSessionRepo := repository.NewSessionRepository(tx)
	created := make([]models.Session, 0, len(slots))
	for _, slot := range slots {
		duration := slot.DurationMinutes
		if duration <= 0 {
			duration = models.DefaultDurationMinutes
		}
		location := slot.Location
		if location == nil && s.defaultLocation != "" {
			location = &s.defaultLocation
		}
		sessionType := slot.SessionType
		if sessionType == nil && s.defaultType != "" {
			sessionType = &s.defaultType
		}
		session, err := txSessionRepo.Create(ctx, repository.CreateSessionInput{
			SessionDate:     slot.Date.UTC(),
			EndDate:         slot.EndDate,
			DurationMinutes: duration,
			Status:          models.StatusAvailable,
			TrainerID:       slot.TrainerID,
			Location:        location,
			SessionType:     sessionType,
			Notes:           slot.Notes,
		})
		if err != nil {
			return nil, err
		}
		created = append(created, *session)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

// CreateRecurringSlots expands a weekly rule into open sessions. Admin only.
func (s *SessionService) CreateRecurringSlots(
	ctx context.Context,
	actorID int64,
	role string,
	input RecurringSlotsInput,
) ([]models.Session, error) {
	if role != models.RoleAdmin {
		return nil, ErrForbidden
	}

	expanded, err := input.Rule.Expand(s.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	slots := make([]SlotInput, 0, len(expanded))
	for _, slot := range expanded {
		end := slot.End
		slots = append(slots, SlotInput{
			Date:            slot.Start,
			EndDate:         &end,
			DurationMinutes: input.Rule.DurationMinutes,
			TrainerID:       input.TrainerID,
			Location:        input.Location,
			SessionType:     input.SessionType,
		})
	}
	return s.CreateSlots(ctx, actorID, role, slots)
}

// BookSession claims an open slot for the acting client. When the slot starts
// within 24 hours and the client holds prepaid credits, one credit is
// deducted immediately and reported back.
func (s *SessionService) BookSession(
	ctx context.Context,
	actorID int64,
	role string,
	sessionID int64,
	notes *string,
) (*BookingOutcome, error) {
	if role != models.RoleClient {
		return nil, ErrForbidden
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txSessionRepo := repository.NewSessionRepository(tx)
	txUserRepo := repository.NewUserRepository(tx)

	session, err := txSessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := validateBook(session, s.now()); err != nil {
		return nil, err
	}

	booked, err := txSessionRepo.BookIfAvailable(ctx, sessionID, actorID, notes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost the race against a concurrent booker.
			return nil, ErrSessionUnavailable
		}
		return nil, err
	}

	var deduction *models.DeductionResult
	if booked.SessionDate.Sub(s.now()) <= immediateDeductionHorizon {
		remaining, err := txUserRepo.DeductCredit(ctx, actorID)
		switch {
		case err == nil:
			if err := txSessionRepo.MarkDeducted(ctx, sessionID); err != nil {
				return nil, err
			}
			deduction = &models.DeductionResult{Deducted: true, RemainingSessions: remaining}
		case errors.Is(err, pgx.ErrNoRows):
			// No credits left; the sweeper will not double-charge either.
		default:
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	detail, err := s.GetSession(ctx, actorID, role, sessionID)
	if err != nil {
		return nil, err
	}
	return &BookingOutcome{Session: detail, Deduction: deduction}, nil
}

// RequestSession files a client's free-form request for a time window. The
// rationale note is mandatory.
func (s *SessionService) RequestSession(
	ctx context.Context,
	actorID int64,
	role string,
	input RequestSessionInput,
) (*models.SessionDetail, error) {
	if role != models.RoleClient {
		return nil, ErrForbidden
	}
	if err := validateRequestInput(input, s.now()); err != nil {
		return nil, err
	}

	duration := models.DefaultDurationMinutes
	if input.End != nil {
		duration = int(input.End.Sub(input.Start) / time.Minute)
	}
	notes := strings.TrimSpace(input.Notes)
	bookedAt := s.now()

	session, err := s.sessionRepo.Create(ctx, repository.CreateSessionInput{
		SessionDate:     input.Start.UTC(),
		EndDate:         input.End,
		DurationMinutes: duration,
		Status:          models.StatusRequested,
		UserID:          &actorID,
		Notes:           &notes,
		SessionType:     input.SessionType,
		Location:        input.Location,
		BookingDate:     &bookedAt,
	})
	if err != nil {
		return nil, err
	}
	return s.GetSession(ctx, actorID, role, session.ID)
}

// ConfirmSession records staff sign-off: both the confirmed flag and the
// confirmed status are set together.
func (s *SessionService) ConfirmSession(
	ctx context.Context,
	actorID int64,
	role string,
	sessionID int64,
) (*models.SessionDetail, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := validateConfirm(role, actorID, session); err != nil {
		return nil, err
	}

	if _, err := s.sessionRepo.Confirm(ctx, sessionID, actorID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidStateTransition
		}
		return nil, err
	}
	return s.sessionRepo.GetDetail(ctx, sessionID)
}

// CompleteSession marks a session done and settles the credit deduction if it
// has not happened yet.
func (s *SessionService) CompleteSession(
	ctx context.Context,
	actorID int64,
	role string,
	sessionID int64,
	notes *string,
) (*CompletionOutcome, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txSessionRepo := repository.NewSessionRepository(tx)
	txUserRepo := repository.NewUserRepository(tx)

	session, err := txSessionRepo.GetByIDForUpdate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := validateComplete(role, actorID, session); err != nil {
		return nil, err
	}

	if _, err := txSessionRepo.Complete(ctx, sessionID, notes); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidStateTransition
		}
		return nil, err
	}

	var deduction *models.DeductionResult
	if !session.SessionDeducted && session.UserID != nil {
		remaining, err := txUserRepo.DeductCredit(ctx, *session.UserID)
		switch {
		case err == nil:
			if err := txSessionRepo.MarkDeducted(ctx, sessionID); err != nil {
				return nil, err
			}
			deduction = &models.DeductionResult{Deducted: true, RemainingSessions: remaining}
		case errors.Is(err, pgx.ErrNoRows):
		default:
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	detail, err := s.sessionRepo.GetDetail(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &CompletionOutcome{Session: detail, Deduction: deduction}, nil
}

// CancelSession cancels a non-terminal session for its owner or an admin. A
// deducted credit is restored when an admin cancels, or when the owner
// cancels more than 24 hours ahead with the early-cancel option.
func (s *SessionService) CancelSession(
	ctx context.Context,
	actorID int64,
	role string,
	sessionID int64,
	reason string,
	earlyCancel bool,
) (*models.SessionDetail, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txSessionRepo := repository.NewSessionRepository(tx)
	txUserRepo := repository.NewUserRepository(tx)

	session, err := txSessionRepo.GetByIDForUpdate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := validateCancel(role, actorID, session, s.now()); err != nil {
		return nil, err
	}

	applyEarlyCancel := earlyCancel && session.SessionDate.Sub(s.now()) > immediateDeductionHorizon
	if session.SessionDeducted && session.UserID != nil &&
		(role == models.RoleAdmin || applyEarlyCancel) {
		if _, err := txUserRepo.RefundCredit(ctx, *session.UserID); err != nil {
			return nil, err
		}
		if err := txSessionRepo.ClearDeduction(ctx, sessionID); err != nil {
			return nil, err
		}
	}

	finalReason := strings.TrimSpace(reason)
	if finalReason == "" {
		finalReason = "Cancelled by user"
	}
	if applyEarlyCancel {
		finalReason = "[Early Cancel - No Charge] " + finalReason
	}

	if _, err := txSessionRepo.Cancel(ctx, sessionID, actorID, finalReason); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidStateTransition
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s.sessionRepo.GetDetail(ctx, sessionID)
}

// AssignTrainer attaches a trainer to a session; a requested session becomes
// scheduled. Admin only.
func (s *SessionService) AssignTrainer(
	ctx context.Context,
	actorID int64,
	role string,
	sessionID int64,
	trainerID int64,
) (*models.SessionDetail, error) {
	if role != models.RoleAdmin {
		return nil, ErrForbidden
	}

	trainer, err := s.userRepo.GetByID(ctx, trainerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTrainerNotFound
		}
		return nil, err
	}
	if trainer.Role != models.RoleTrainer {
		return nil, ErrTrainerNotFound
	}

	if _, err := s.sessionRepo.GetByID(ctx, sessionID); err != nil {
		return nil, err
	}
	if _, err := s.sessionRepo.AssignTrainer(ctx, sessionID, trainerID); err != nil {
		return nil, err
	}
	return s.sessionRepo.GetDetail(ctx, sessionID)
}

// SetSessionNotes writes the client-visible notes for the owner, or the
// staff-only private notes for an admin or the assigned trainer.
func (s *SessionService) SetSessionNotes(
	ctx context.Context,
	actorID int64,
	role string,
	sessionID int64,
	notes string,
) (*models.SessionDetail, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, ErrInvalidInput
	}

	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	switch {
	case role == models.RoleAdmin,
		role == models.RoleTrainer && session.TrainerID != nil && *session.TrainerID == actorID:
		if _, err := s.sessionRepo.SetPrivateNotes(ctx, sessionID, notes); err != nil {
			return nil, err
		}
	case role == models.RoleClient && session.UserID != nil && *session.UserID == actorID:
		if _, err := s.sessionRepo.SetNotes(ctx, sessionID, notes); err != nil {
			return nil, err
		}
	default:
		return nil, ErrForbidden
	}
	return s.GetSession(ctx, actorID, role, sessionID)
}

func canViewSession(role string, actorID int64, session *models.Session) bool {
	switch role {
	case models.RoleAdmin:
		return true
	case models.RoleTrainer:
		return session.TrainerID != nil && *session.TrainerID == actorID
	case models.RoleClient:
		if session.Status == models.StatusAvailable {
			return true
		}
		return session.UserID != nil && *session.UserID == actorID
	default:
		return false
	}
}

func validateBook(session *models.Session, now time.Time) error {
	if session.Status != models.StatusAvailable {
		return ErrSessionUnavailable
	}
	if session.SessionDate.Before(now) {
		return fmt.Errorf("%w: cannot book sessions in the past", ErrInvalidInput)
	}
	return nil
}

func validateRequestInput(input RequestSessionInput, now time.Time) error {
	if strings.TrimSpace(input.Notes) == "" {
		return fmt.Errorf("%w: a request note is required", ErrInvalidInput)
	}
	if input.Start.IsZero() || input.Start.Before(now) {
		return fmt.Errorf("%w: cannot request sessions in the past", ErrInvalidInput)
	}
	if input.End != nil && !input.End.After(input.Start) {
		return fmt.Errorf("%w: end must be after start", ErrInvalidInput)
	}
	return nil
}

func validateConfirm(role string, actorID int64, session *models.Session) error {
	if !models.IsStaff(role) {
		return ErrForbidden
	}
	if role == models.RoleTrainer &&
		(session.TrainerID == nil || *session.TrainerID != actorID) {
		return ErrForbidden
	}
	if session.Confirmed {
		return ErrInvalidStateTransition
	}
	if session.Status != models.StatusRequested && session.Status != models.StatusScheduled {
		return ErrInvalidStateTransition
	}
	return nil
}

func validateComplete(role string, actorID int64, session *models.Session) error {
	if !models.IsStaff(role) {
		return ErrForbidden
	}
	if role == models.RoleTrainer &&
		(session.TrainerID == nil || *session.TrainerID != actorID) {
		return ErrForbidden
	}
	if session.Status != models.StatusConfirmed && session.Status != models.StatusScheduled {
		return ErrInvalidStateTransition
	}
	return nil
}

func validateCancel(role string, actorID int64, session *models.Session, now time.Time) error {
	isOwner := session.UserID != nil && *session.UserID == actorID
	if role != models.RoleAdmin && !isOwner {
		return ErrForbidden
	}
	if models.IsTerminalStatus(session.Status) {
		return ErrInvalidStateTransition
	}
	if role != models.RoleAdmin && session.SessionDate.Before(now) {
		return fmt.Errorf("%w: cannot cancel past sessions", ErrInvalidInput)
	}
	return nil
}
