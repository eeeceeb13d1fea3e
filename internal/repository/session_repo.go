package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/avenra/StudioSessionsBack/internal/models"
)

const sessionColumns = `s.id, s.session_date, s.end_date, s.duration_min, s.status, s.confirmed,
		s.user_id, s.trainer_id, s.location, s.notes, s.private_notes, s.session_type,
		s.session_deducted, s.deduction_date, s.booking_date, s.confirmed_by, s.confirmation_date,
		s.cancelled_by, s.cancellation_reason, s.cancellation_date, s.created_at, s.updated_at`

type CreateSessionInput struct {
	SessionDate     time.Time
	EndDate         *time.Time
	DurationMinutes int
	Status          string
	UserID          *int64
	TrainerID       *int64
	Location        *string
	Notes           *string
	SessionType     *string
	BookingDate     *time.Time
}

type SessionListFilter struct {
	ViewerID   int64
	ViewerRole string
	Start      time.Time
	End        time.Time
	Status     string
	Confirmed  *bool
	TrainerID  int64
	UserID     int64
}

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	err := row.Scan(
		&s.ID,
		&s.SessionDate,
		&s.EndDate,
		&s.DurationMinutes,
		&s.Status,
		&s.Confirmed,
		&s.UserID,
		&s.TrainerID,
		&s.Location,
		&s.Notes,
		&s.PrivateNotes,
		&s.SessionType,
		&s.SessionDeducted,
		&s.DeductionDate,
		&s.BookingDate,
		&s.ConfirmedBy,
		&s.ConfirmationDate,
		&s.CancelledBy,
		&s.CancellationReason,
		&s.CancellationDate,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) Create(
	ctx context.Context,
	input CreateSessionInput,
) (*models.Session, error) {
	query := `
		INSERT INTO sessions (session_date, end_date, duration_min, status, user_id, trainer_id,
			location, notes, session_type, booking_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + strings.ReplaceAll(sessionColumns, "s.", "") + `
	`
	duration := input.DurationMinutes
	if duration <= 0 {
		duration = models.DefaultDurationMinutes
	}
	return scanSession(r.db.QueryRow(
		ctx,
		query,
		input.SessionDate,
		input.EndDate,
		duration,
		input.Status,
		input.UserID,
		input.TrainerID,
		input.Location,
		input.Notes,
		input.SessionType,
		input.BookingDate,
	))
}

func (r *SessionRepository) GetByID(ctx context.Context, sessionID int64) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions s WHERE s.id = $1`
	return scanSession(r.db.QueryRow(ctx, query, sessionID))
}

func (r *SessionRepository) GetByIDForUpdate(
	ctx context.Context,
	sessionID int64,
) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions s WHERE s.id = $1 FOR UPDATE`
	return scanSession(r.db.QueryRow(ctx, query, sessionID))
}

// GetDetail loads a session with the client and trainer names joined in.
func (r *SessionRepository) GetDetail(
	ctx context.Context,
	sessionID int64,
) (*models.SessionDetail, error) {
	query := `
		SELECT ` + sessionColumns + `,
			c.first_name, c.last_name, t.first_name, t.last_name
		FROM sessions s
		LEFT JOIN users c ON c.id = s.user_id
		LEFT JOIN users t ON t.id = s.trainer_id
		WHERE s.id = $1
	`
	return scanSessionDetail(r.db.QueryRow(ctx, query, sessionID))
}

func scanSessionDetail(row pgx.Row) (*models.SessionDetail, error) {
	var (
		s                models.Session
		clientFirstName  *string
		clientLastName   *string
		trainerFirstName *string
		trainerLastName  *string
	)
	err := row.Scan(
		&s.ID,
		&s.SessionDate,
		&s.EndDate,
		&s.DurationMinutes,
		&s.Status,
		&s.Confirmed,
		&s.UserID,
		&s.TrainerID,
		&s.Location,
		&s.Notes,
		&s.PrivateNotes,
		&s.SessionType,
		&s.SessionDeducted,
		&s.DeductionDate,
		&s.BookingDate,
		&s.ConfirmedBy,
		&s.ConfirmationDate,
		&s.CancelledBy,
		&s.CancellationReason,
		&s.CancellationDate,
		&s.CreatedAt,
		&s.UpdatedAt,
		&clientFirstName,
		&clientLastName,
		&trainerFirstName,
		&trainerLastName,
	)
	if err != nil {
		return nil, err
	}

	detail := models.SessionDetail{Session: s}
	if s.UserID != nil && clientFirstName != nil {
		detail.Client = &models.UserRef{
			ID:        *s.UserID,
			FirstName: *clientFirstName,
			LastName:  derefString(clientLastName),
		}
	}
	if s.TrainerID != nil && trainerFirstName != nil {
		detail.Trainer = &models.UserRef{
			ID:        *s.TrainerID,
			FirstName: *trainerFirstName,
			LastName:  derefString(trainerLastName),
		}
	}
	return &detail, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// List returns sessions inside the half-open window [Start, End), scoped by
// the viewer's role: clients see their own sessions plus open slots, trainers
// see sessions assigned to them, admins see everything.
func (r *SessionRepository) List(
	ctx context.Context,
	filter SessionListFilter,
) ([]models.SessionDetail, error) {
	args := []any{filter.Start, filter.End}
	whereParts := []string{"s.session_date >= $1", "s.session_date < $2"}

	switch filter.ViewerRole {
	case models.RoleClient:
		args = append(args, filter.ViewerID)
		whereParts = append(
			whereParts,
			fmt.Sprintf("(s.user_id = $%d OR s.status = 'available')", len(args)),
		)
	case models.RoleTrainer:
		args = append(args, filter.ViewerID)
		whereParts = append(whereParts, fmt.Sprintf("s.trainer_id = $%d", len(args)))
	}

	if status := strings.TrimSpace(filter.Status); status != "" {
		args = append(args, status)
		whereParts = append(whereParts, fmt.Sprintf("s.status = $%d", len(args)))
	}
	if filter.Confirmed != nil {
		args = append(args, *filter.Confirmed)
		whereParts = append(whereParts, fmt.Sprintf("s.confirmed = $%d", len(args)))
	}
	if filter.TrainerID > 0 && filter.ViewerRole == models.RoleAdmin {
		args = append(args, filter.TrainerID)
		whereParts = append(whereParts, fmt.Sprintf("s.trainer_id = $%d", len(args)))
	}
	if filter.UserID > 0 && filter.ViewerRole == models.RoleAdmin {
		args = append(args, filter.UserID)
		whereParts = append(whereParts, fmt.Sprintf("s.user_id = $%d", len(args)))
	}

	query := fmt.Sprintf(`
		SELECT `+sessionColumns+`,
			c.first_name, c.last_name, t.first_name, t.last_name
		FROM sessions s
		LEFT JOIN users c ON c.id = s.user_id
		LEFT JOIN users t ON t.id = s.trainer_id
		WHERE %s
		ORDER BY s.session_date ASC, s.id ASC
	`, strings.Join(whereParts, " AND "))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	details := make([]models.SessionDetail, 0)
	for rows.Next() {
		detail, err := scanSessionDetail(rows)
		if err != nil {
			return nil, err
		}
		details = append(details, *detail)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return details, nil
}

// BookIfAvailable claims an open slot for a client. The status guard makes
// the booking race safe: the losing concurrent booker gets pgx.ErrNoRows.
func (r *SessionRepository) BookIfAvailable(
	ctx context.Context,
	sessionID int64,
	userID int64,
	notes *string,
) (*models.Session, error) {
	query := `
		UPDATE sessions s
		SET user_id = $2, status = 'scheduled', booking_date = NOW(),
			notes = COALESCE($3, notes), updated_at = NOW()
		WHERE s.id = $1 AND s.status = 'available' AND s.user_id IS NULL
		RETURNING ` + sessionColumns + `
	`
	return scanSession(r.db.QueryRow(ctx, query, sessionID, userID, notes))
}

// Confirm flips a requested or scheduled session to confirmed. Returns
// pgx.ErrNoRows when the session is in the wrong state or already confirmed.
func (r *SessionRepository) Confirm(
	ctx context.Context,
	sessionID int64,
	actorID int64,
) (*models.Session, error) {
	query := `
		UPDATE sessions s
		SET confirmed = TRUE, status = 'confirmed', confirmed_by = $2,
			confirmation_date = NOW(), updated_at = NOW()
		WHERE s.id = $1 AND s.status IN ('requested', 'scheduled') AND s.confirmed = FALSE
		RETURNING ` + sessionColumns + `
	`
	return scanSession(r.db.QueryRow(ctx, query, sessionID, actorID))
}

func (r *SessionRepository) Complete(
	ctx context.Context,
	sessionID int64,
	privateNotes *string,
) (*models.Session, error) {
	query := `
		UPDATE sessions s
		SET status = 'completed', private_notes = COALESCE($2, private_notes), updated_at = NOW()
		WHERE s.id = $1 AND s.status IN ('confirmed', 'scheduled')
		RETURNING ` + sessionColumns + `
	`
	return scanSession(r.db.QueryRow(ctx, query, sessionID, privateNotes))
}

func (r *SessionRepository) Cancel(
	ctx context.Context,
	sessionID int64,
	actorID int64,
	reason string,
) (*models.Session, error) {
	query := `
		UPDATE sessions s
		SET status = 'cancelled', cancelled_by = $2, cancellation_reason = $3,
			cancellation_date = NOW(), updated_at = NOW()
		WHERE s.id = $1 AND s.status NOT IN ('completed', 'cancelled')
		RETURNING ` + sessionColumns + `
	`
	return scanSession(r.db.QueryRow(ctx, query, sessionID, actorID, reason))
}

// AssignTrainer sets the trainer and promotes a requested session to
// scheduled, mirroring the admin approval flow.
func (r *SessionRepository) AssignTrainer(
	ctx context.Context,
	sessionID int64,
	trainerID int64,
) (*models.Session, error) {
	query := `
		UPDATE sessions s
		SET trainer_id = $2,
			status = CASE WHEN s.status = 'requested' THEN 'scheduled' ELSE s.status END,
			updated_at = NOW()
		WHERE s.id = $1
		RETURNING ` + sessionColumns + `
	`
	return scanSession(r.db.QueryRow(ctx, query, sessionID, trainerID))
}

func (r *SessionRepository) SetNotes(
	ctx context.Context,
	sessionID int64,
	notes string,
) (*models.Session, error) {
	query := `
		UPDATE sessions s
		SET notes = $2, updated_at = NOW()
		WHERE s.id = $1
		RETURNING ` + sessionColumns + `
	`
	return scanSession(r.db.QueryRow(ctx, query, sessionID, notes))
}

func (r *SessionRepository) SetPrivateNotes(
	ctx context.Context,
	sessionID int64,
	notes string,
) (*models.Session, error) {
	query := `
		UPDATE sessions s
		SET private_notes = $2, updated_at = NOW()
		WHERE s.id = $1
		RETURNING ` + sessionColumns + `
	`
	return scanSession(r.db.QueryRow(ctx, query, sessionID, notes))
}

func (r *SessionRepository) MarkDeducted(ctx context.Context, sessionID int64) error {
	query := `
		UPDATE sessions
		SET session_deducted = TRUE, deduction_date = NOW(), updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.Exec(ctx, query, sessionID)
	return err
}

func (r *SessionRepository) ClearDeduction(ctx context.Context, sessionID int64) error {
	query := `
		UPDATE sessions
		SET session_deducted = FALSE, deduction_date = NULL, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.Exec(ctx, query, sessionID)
	return err
}

// ListDeductibleForUpdate locks and returns past sessions that still owe a
// credit deduction, ordered so the sweeper processes clients contiguously.
func (r *SessionRepository) ListDeductibleForUpdate(
	ctx context.Context,
	now time.Time,
) ([]models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions s
		WHERE s.status IN ('scheduled', 'confirmed')
		  AND s.session_date < $1
		  AND s.session_deducted = FALSE
		  AND s.user_id IS NOT NULL
		ORDER BY s.user_id ASC, s.session_date ASC, s.id ASC
		FOR UPDATE
	`
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// SweepComplete marks a past session completed outside the normal transition
// path, optionally recording the deduction and appending an audit note.
func (r *SessionRepository) SweepComplete(
	ctx context.Context,
	sessionID int64,
	deducted bool,
	note string,
) error {
	query := `
		UPDATE sessions
		SET status = 'completed',
			session_deducted = CASE WHEN $2 THEN TRUE ELSE session_deducted END,
			deduction_date = CASE WHEN $2 THEN NOW() ELSE deduction_date END,
			notes = CONCAT_WS(E'\n', notes, $3::text),
			updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.Exec(ctx, query, sessionID, deducted, note)
	return err
}
