package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/avenra/StudioSessionsBack/internal/models"
	"github.com/avenra/StudioSessionsBack/internal/realtime"
	"github.com/avenra/StudioSessionsBack/internal/repository"
	"github.com/avenra/StudioSessionsBack/internal/schedule"
	"github.com/avenra/StudioSessionsBack/internal/services"
)

type SessionHandler struct {
	service  sessionApplicationService
	notifier scheduleNotifier
}

type sessionApplicationService interface {
	ListSessions(ctx context.Context, actorID int64, role string, filter repository.SessionListFilter) ([]models.SessionDetail, error)
	GetSession(ctx context.Context, actorID int64, role string, sessionID int64) (*models.SessionDetail, error)
	CreateSlots(ctx context.Context, actorID int64, role string, slots []services.SlotInput) ([]models.Session, error)
	CreateRecurringSlots(ctx context.Context, actorID int64, role string, input services.RecurringSlotsInput) ([]models.Session, error)
	BookSession(ctx context.Context, actorID int64, role string, sessionID int64, notes *string) (*services.BookingOutcome, error)
	RequestSession(ctx context.Context, actorID int64, role string, input services.RequestSessionInput) (*models.SessionDetail, error)
	ConfirmSession(ctx context.Context, actorID int64, role string, sessionID int64) (*models.SessionDetail, error)
	CompleteSession(ctx context.Context, actorID int64, role string, sessionID int64, notes *string) (*services.CompletionOutcome, error)
	CancelSession(ctx context.Context, actorID int64, role string, sessionID int64, reason string, earlyCancel bool) (*models.SessionDetail, error)
	AssignTrainer(ctx context.Context, actorID int64, role string, sessionID, trainerID int64) (*models.SessionDetail, error)
	SetSessionNotes(ctx context.Context, actorID int64, role string, sessionID int64, notes string) (*models.SessionDetail, error)
}

type scheduleNotifier interface {
	Broadcast(event realtime.Event)
}

func NewSessionHandler(service *services.SessionService, notifier *realtime.Hub) *SessionHandler {
	return &SessionHandler{service: service, notifier: notifier}
}

type createSlotsRequest struct {
	Slots []slotRequest `json:"slots"`
}

type slotRequest struct {
	Date            string  `json:"date"`
	EndDate         *string `json:"end_date"`
	DurationMinutes int     `json:"duration_minutes"`
	TrainerID       *int64  `json:"trainer_id"`
	Location        *string `json:"location"`
	SessionType     *string `json:"session_type"`
	Notes           *string `json:"notes"`
}

type recurringSlotsRequest struct {
	StartDate       string   `json:"start_date"`
	EndDate         string   `json:"end_date"`
	DaysOfWeek      []int    `json:"days_of_week"`
	Times           []string `json:"times"`
	DurationMinutes int      `json:"duration_minutes"`
	TrainerID       *int64   `json:"trainer_id"`
	Location        *string  `json:"location"`
	SessionType     *string  `json:"session_type"`
}

type bookSessionRequest struct {
	SessionID int64   `json:"sessionId"`
	Notes     *string `json:"notes"`
}

type requestSessionRequest struct {
	Start       string  `json:"start"`
	End         *string `json:"end"`
	Notes       string  `json:"notes"`
	SessionType *string `json:"session_type"`
	Location    *string `json:"location"`
}

type cancelSessionRequest struct {
	Reason      string `json:"reason"`
	EarlyCancel bool   `json:"earlyCancel"`
}

type completeSessionRequest struct {
	Notes *string `json:"notes"`
}

type assignTrainerRequest struct {
	TrainerID int64 `json:"trainerId"`
}

type sessionNotesRequest struct {
	Notes string `json:"notes"`
}

func (h *SessionHandler) ListSessions(c *fiber.Ctx) error {
	actorID, role, err := actor(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	filter := repository.SessionListFilter{
		Status: strings.TrimSpace(c.Query("status")),
	}

	if view := strings.TrimSpace(c.Query("view")); view != "" {
		anchor, err := parseTimestamp(c.Query("anchor"))
		if err != nil {
			anchor = time.Now().UTC()
		}
		window, err := schedule.WindowFor(view, anchor)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).
				JSON(fiber.Map{"error": "view must be day, week, month or agenda"})
		}
		filter.Start = window.Start
		filter.End = window.End
	} else {
		start, err := parseTimestamp(c.Query("startDate"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).
				JSON(fiber.Map{"error": "startDate must be a valid timestamp"})
		}
		end, err := parseTimestamp(c.Query("endDate"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).
				JSON(fiber.Map{"error": "endDate must be a valid timestamp"})
		}
		filter.Start = start
		filter.End = end
	}

	if confirmed := strings.TrimSpace(c.Query("confirmed")); confirmed != "" {
		value := confirmed == "true"
		filter.Confirmed = &value
	}
	if trainerID, err := strconv.ParseInt(c.Query("trainerId"), 10, 64); err == nil {
		filter.TrainerID = trainerID
	}
	if userID, err := strconv.ParseInt(c.Query("userId"), 10, 64); err == nil {
		filter.UserID = userID
	}

	sessions, err := h.service.ListSessions(c.Context(), actorID, role, filter)
	if err != nil {
		return mapSessionError(c, err)
	}
	return c.JSON(fiber.Map{"sessions": sessions})
}

func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	actorID, role, err := actor(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	sessionID, err := parseSessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	session, err := h.service.GetSession(c.Context(), actorID, role, sessionID)
	if err != nil {
		return mapSessionError(c, err)
	}
	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) CreateSlots(c *fiber.Ctx) error {
	actorID, role, err := actor(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req createSlotsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if len(req.Slots) == 0 {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"error": "slots must be a non-empty array"})
	}

	slots := make([]services.SlotInput, 0, len(req.Slots))
	for _, slot := range req.Slots {
		date, err := parseTimestamp(slot.Date)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).
				JSON(fiber.Map{"error": "each slot must include a valid date"})
		}
		input := services.SlotInput{
			Date:            date,
			DurationMinutes: slot.DurationMinutes,
			TrainerID:       slot.TrainerID,
			Location:        slot.Location,
			SessionType:     slot.SessionType,
			Notes:           slot.Notes,
		}
		if slot.EndDate != nil {
			end, err := parseTimestamp(*slot.EndDate)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).
					JSON(fiber.Map{"error": "slot end_date must be a valid timestamp"})
			}
			input.EndDate = &end
		}
		slots = append(slots, input)
	}

	created, err := h.service.CreateSlots(c.Context(), actorID, role, slots)
	if err != nil {
		return mapSessionError(c, err)
	}

	h.notifier.Broadcast(realtime.Event{Type: realtime.EventCreated, Count: len(created)})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"sessions": created})
}

func (h *SessionHandler) CreateRecurringSlots(c *fiber.Ctx) error {
	actorID, role, err := actor(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req recurringSlotsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	startDate, err := parseTimestamp(req.StartDate)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"error": "start_date must be a valid timestamp"})
	}
	endDate, err := parseTimestamp(req.EndDate)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"error": "end_date must be a valid timestamp"})
	}

	weekdays := make([]time.Weekday, 0, len(req.DaysOfWeek))
	for _, day := range req.DaysOfWeek {
		if day < 0 || day > 6 {
			return c.Status(fiber.StatusBadRequest).
				JSON(fiber.Map{"error": "days_of_week values must be 0 (Sunday) through 6"})
		}
		weekdays = append(weekdays, time.Weekday(day))
	}

	created, err := h.service.CreateRecurringSlots(c.Context(), actorID, role, services.RecurringSlotsInput{
		Rule: schedule.RecurringRule{
			StartDate:       startDate,
			EndDate:         endDate,
			Weekdays:        weekdays,
			Times:           req.Times,
			DurationMinutes: req.DurationMinutes,
		},
		TrainerID:   req.TrainerID,
		Location:    req.Location,
		SessionType: req.SessionType,
	})
	if err != nil {
		return mapSessionError(c, err)
	}

	h.notifier.Broadcast(realtime.Event{Type: realtime.EventCreated, Count: len(created)})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"count":    len(created),
		"sessions": created,
	})
}

func (h *SessionHandler) BookSession(c *fiber.Ctx) error {
	actorID, role, err := actor(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req bookSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.SessionID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Session ID is required"})
	}
	if req.Notes != nil && strings.TrimSpace(*req.Notes) == "" {
		req.Notes = nil
	}

	outcome, err := h.service.BookSession(c.Context(), actorID, role, req.SessionID, req.Notes)
	if err != nil {
		return mapSessionError(c, err)
	}

	h.notifier.Broadcast(realtime.Event{
		Type:      realtime.EventBooked,
		SessionID: req.SessionID,
		UserID:    actorID,
	})
	return c.JSON(fiber.Map{
		"session":         outcome.Session,
		"deductionResult": outcome.Deduction,
	})
}

func (h *SessionHandler) RequestSession(c *fiber.Ctx) error {
	actorID, role, err := actor(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req requestSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	start, err := parseTimestamp(req.Start)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"error": "start must be a valid timestamp"})
	}
	input := services.RequestSessionInput{
		Start:       start,
		Notes:       req.Notes,
		SessionType: req.SessionType,
		Location:    req.Location,
	}
	if req.End != nil {
		end, err := parseTimestamp(*req.End)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).
				JSON(fiber.Map{"error": "end must be a valid timestamp"})
		}
		input.End = &end
	}

	session, err := h.service.RequestSession(c.Context(), actorID, role, input)
	if err != nil {
		return mapSessionError(c, err)
	}

	h.notifier.Broadcast(realtime.Event{
		Type:      realtime.EventRequested,
		SessionID: session.ID,
		UserID:    actorID,
	})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) CancelSession(c *fiber.Ctx) error {
	actorID, role, err := actor(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	sessionID, err := parseSessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	// Body is optional on cancel.
	var req cancelSessionRequest
	_ = c.BodyParser(&req)

	session, err := h.service.CancelSession(
		c.Context(), actorID, role, sessionID, req.Reason, req.EarlyCancel,
	)
	if err != nil {
		return mapSessionError(c, err)
	}

	h.notifier.Broadcast(realtime.Event{
		Type:      realtime.EventCancelled,
		SessionID: sessionID,
		UserID:    actorID,
	})
	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) ConfirmSession(c *fiber.Ctx) error {
	actorID, role, err := actor(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	sessionID, err := parseSessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	session, err := h.service.ConfirmSession(c.Context(), actorID, role, sessionID)
	if err != nil {
		return mapSessionError(c, err)
	}

	h.notifier.Broadcast(realtime.Event{
		Type:      realtime.EventConfirmed,
		SessionID: sessionID,
		UserID:    actorID,
	})
	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) CompleteSession(c *fiber.Ctx) error {
	actorID, role, err := actor(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	sessionID, err := parseSessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	var req completeSessionRequest
	_ = c.BodyParser(&req)

	outcome, err := h.service.CompleteSession(c.Context(), actorID, role, sessionID, req.Notes)
	if err != nil {
		return mapSessionError(c, err)
	}

	h.notifier.Broadcast(realtime.Event{
		Type:      realtime.EventCompleted,
		SessionID: sessionID,
	})
	return c.JSON(fiber.Map{
		"session":         outcome.Session,
		"deductionResult": outcome.Deduction,
	})
}

func (h *SessionHandler) AssignTrainer(c *fiber.Ctx) error {
	actorID, role, err := actor(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	sessionID, err := parseSessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	var req assignTrainerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.TrainerID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Trainer ID is required"})
	}

	session, err := h.service.AssignTrainer(c.Context(), actorID, role, sessionID, req.TrainerID)
	if err != nil {
		return mapSessionError(c, err)
	}

	h.notifier.Broadcast(realtime.Event{
		Type:      realtime.EventTrainerAssigned,
		SessionID: sessionID,
		TrainerID: req.TrainerID,
	})
	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) SetSessionNotes(c *fiber.Ctx) error {
	actorID, role, err := actor(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	sessionID, err := parseSessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	var req sessionNotesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	session, err := h.service.SetSessionNotes(c.Context(), actorID, role, sessionID, req.Notes)
	if err != nil {
		return mapSessionError(c, err)
	}
	return c.JSON(fiber.Map{"session": session})
}

func actor(c *fiber.Ctx) (int64, string, error) {
	role, ok := c.Locals("role").(string)
	if !ok || role == "" {
		return 0, "", errors.New("missing role")
	}
	actorID, err := parseActorID(c)
	if err != nil {
		return 0, "", err
	}
	return actorID, role, nil
}

func parseSessionID(c *fiber.Ctx) (int64, error) {
	sessionID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || sessionID <= 0 {
		return 0, strconv.ErrSyntax
	}
	return sessionID, nil
}

func parseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}

func mapSessionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrSessionUnavailable):
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"error": "Session is not available for booking"})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrInvalidStateTransition):
		return c.Status(fiber.StatusUnprocessableEntity).
			JSON(fiber.Map{"error": "Invalid session state for this action"})
	case errors.Is(err, services.ErrTrainerNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Trainer not found"})
	case errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "Failed to process session request"})
	}
}
