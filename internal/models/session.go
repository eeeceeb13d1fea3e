package models

import "time"

const (
	StatusAvailable = "available"
	StatusRequested = "requested"
	StatusScheduled = "scheduled"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

const DefaultDurationMinutes = 60

// IsTerminalStatus reports whether no further transitions are allowed.
func IsTerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

type Session struct {
	ID                 int64      `json:"id"`
	SessionDate        time.Time  `json:"session_date"`
	EndDate            *time.Time `json:"end_date,omitempty"`
	DurationMinutes    int        `json:"duration_minutes"`
	Status             string     `json:"status"`
	Confirmed          bool       `json:"confirmed"`
	UserID             *int64     `json:"user_id,omitempty"`
	TrainerID          *int64     `json:"trainer_id,omitempty"`
	Location           *string    `json:"location,omitempty"`
	Notes              *string    `json:"notes,omitempty"`
	PrivateNotes       *string    `json:"private_notes,omitempty"`
	SessionType        *string    `json:"session_type,omitempty"`
	SessionDeducted    bool       `json:"session_deducted"`
	DeductionDate      *time.Time `json:"deduction_date,omitempty"`
	BookingDate        *time.Time `json:"booking_date,omitempty"`
	ConfirmedBy        *int64     `json:"confirmed_by,omitempty"`
	ConfirmationDate   *time.Time `json:"confirmation_date,omitempty"`
	CancelledBy        *int64     `json:"cancelled_by,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	CancellationDate   *time.Time `json:"cancellation_date,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// End resolves the effective end of the session: the explicit end date when
// present, otherwise start plus duration.
func (s *Session) End() time.Time {
	if s.EndDate != nil {
		return *s.EndDate
	}
	minutes := s.DurationMinutes
	if minutes <= 0 {
		minutes = DefaultDurationMinutes
	}
	return s.SessionDate.Add(time.Duration(minutes) * time.Minute)
}

type SessionDetail struct {
	Session
	Client  *UserRef `json:"client,omitempty"`
	Trainer *UserRef `json:"trainer,omitempty"`
}

// DeductionResult reports a session-credit deduction triggered by booking,
// completion, or the background sweeper.
type DeductionResult struct {
	Deducted          bool `json:"deducted"`
	RemainingSessions int  `json:"remainingSessions"`
}
