package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/avenra/StudioSessionsBack/internal/models"
	"github.com/avenra/StudioSessionsBack/internal/realtime"
	"github.com/avenra/StudioSessionsBack/internal/repository"
	"github.com/avenra/StudioSessionsBack/internal/services"
)

type stubScheduleService struct {
	listResult     []models.SessionDetail
	listErr        error
	getResult      *models.SessionDetail
	getErr         error
	createResult   []models.Session
	createErr      error
	bookResult     *services.BookingOutcome
	bookErr        error
	requestResult  *models.SessionDetail
	requestErr     error
	confirmResult  *models.SessionDetail
	confirmErr     error
	completeResult *services.CompletionOutcome
	completeErr    error
	cancelResult   *models.SessionDetail
	cancelErr      error
	assignResult   *models.SessionDetail
	assignErr      error
	notesResult    *models.SessionDetail
	notesErr       error

	lastActorID      int64
	lastRole         string
	lastSessionID    int64
	lastListFilter   repository.SessionListFilter
	lastSlots        []services.SlotInput
	lastRequestInput services.RequestSessionInput
	lastReason       string
	lastEarlyCancel  bool
	lastTrainerID    int64
}

func (s *stubScheduleService) ListSessions(_ context.Context, actorID int64, role string, filter repository.SessionListFilter) ([]models.SessionDetail, error) {
	s.lastActorID = actorID
	s.lastRole = role
	s.lastListFilter = filter
	return s.listResult, s.listErr
}

func (s *stubScheduleService) GetSession(_ context.Context, actorID int64, role string, sessionID int64) (*models.SessionDetail, error) {
	s.lastActorID = actorID
	s.lastRole = role
	s.lastSessionID = sessionID
	return s.getResult, s.getErr
}

func (s *stubScheduleService) CreateSlots(_ context.Context, actorID int64, role string, slots []services.SlotInput) ([]models.Session, error) {
	s.lastActorID = actorID
	s.lastRole = role
	s.lastSlots = slots
	return s.createResult, s.createErr
}

func (s *stubScheduleService) CreateRecurringSlots(_ context.Context, actorID int64, role string, _ services.RecurringSlotsInput) ([]models.Session, error) {
	s.lastActorID = actorID
	s.lastRole = role
	return s.createResult, s.createErr
}

func (s *stubScheduleService) BookSession(_ context.Context, actorID int64, role string, sessionID int64, _ *string) (*services.BookingOutcome, error) {
	s.lastActorID = actorID
	s.lastRole = role
	s.lastSessionID = sessionID
	return s.bookResult, s.bookErr
}

func (s *stubScheduleService) RequestSession(_ context.Context, actorID int64, role string, input services.RequestSessionInput) (*models.SessionDetail, error) {
	s.lastActorID = actorID
	s.lastRole = role
	s.lastRequestInput = input
	return s.requestResult, s.requestErr
}

func (s *stubScheduleService) ConfirmSession(_ context.Context, actorID int64, role string, sessionID int64) (*models.SessionDetail, error) {
	s.lastActorID = actorID
	s.lastRole = role
	s.lastSessionID = sessionID
	return s.confirmResult, s.confirmErr
}

func (s *stubScheduleService) CompleteSession(_ context.Context, actorID int64, role string, sessionID int64, _ *string) (*services.CompletionOutcome, error) {
	s.lastActorID = actorID
	s.lastRole = role
	s.lastSessionID = sessionID
	return s.completeResult, s.completeErr
}

func (s *stubScheduleService) CancelSession(_ context.Context, actorID int64, role string, sessionID int64, reason string, earlyCancel bool) (*models.SessionDetail, error) {
	s.lastActorID = actorID
	s.lastRole = role
	s.lastSessionID = sessionID
	s.lastReason = reason
	s.lastEarlyCancel = earlyCancel
	return s.cancelResult, s.cancelErr
}

func (s *stubScheduleService) AssignTrainer(_ context.Context, actorID int64, role string, sessionID, trainerID int64) (*models.SessionDetail, error) {
	s.lastActorID = actorID
	s.lastRole = role
	s.lastSessionID = sessionID
	s.lastTrainerID = trainerID
	return s.assignResult, s.assignErr
}

func (s *stubScheduleService) SetSessionNotes(_ context.Context, actorID int64, role string, sessionID int64, _ string) (*models.SessionDetail, error) {
	s.lastActorID = actorID
	s.lastRole = role
	s.lastSessionID = sessionID
	return s.notesResult, s.notesErr
}

type recordingNotifier struct {
	events []realtime.Event
}

func (r *recordingNotifier) Broadcast(event realtime.Event) {
	r.events = append(r.events, event)
}

func newSessionTestApp(handler *SessionHandler, actorID int64, role string) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("role", role)
		c.Locals("user_id", fmt.Sprintf("%d", actorID))
		return c.Next()
	})
	app.Get("/api/v1/sessions", handler.ListSessions)
	app.Post("/api/v1/sessions", handler.CreateSlots)
	app.Post("/api/v1/sessions/recurring", handler.CreateRecurringSlots)
	app.Post("/api/v1/sessions/book", handler.BookSession)
	app.Post("/api/v1/sessions/request", handler.RequestSession)
	app.Get("/api/v1/sessions/:id", handler.GetSession)
	app.Delete("/api/v1/sessions/cancel/:id", handler.CancelSession)
	app.Put("/api/v1/sessions/confirm/:id", handler.ConfirmSession)
	app.Put("/api/v1/sessions/complete/:id", handler.CompleteSession)
	app.Put("/api/v1/sessions/assign/:id", handler.AssignTrainer)
	app.Put("/api/v1/sessions/notes/:id", handler.SetSessionNotes)
	return app
}

func detailWithStatus(id int64, status string) *models.SessionDetail {
	return &models.SessionDetail{
		Session: models.Session{
			ID:          id,
			SessionDate: time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC),
			Status:      status,
		},
	}
}

func TestBookSessionReturnsDeductionResult(t *testing.T) {
	service := &stubScheduleService{
		bookResult: &services.BookingOutcome{
			Session: detailWithStatus(91, models.StatusScheduled),
			Deduction: &models.DeductionResult{
				Deducted:          true,
				RemainingSessions: 4,
			},
		},
	}
	notifier := &recordingNotifier{}
	handler := &SessionHandler{service: service, notifier: notifier}
	app := newSessionTestApp(handler, 42, models.RoleClient)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/book",
		strings.NewReader(`{"sessionId": 91}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastActorID != 42 || service.lastSessionID != 91 {
		t.Fatalf("expected actor 42 booking session 91, got %d/%d",
			service.lastActorID, service.lastSessionID)
	}

	var body struct {
		Deduction *models.DeductionResult `json:"deductionResult"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Deduction == nil || !body.Deduction.Deducted {
		t.Fatal("expected a deduction in the response")
	}
	if body.Deduction.RemainingSessions != 4 {
		t.Fatalf("expected 4 remaining sessions, got %d", body.Deduction.RemainingSessions)
	}

	if len(notifier.events) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(notifier.events))
	}
	if notifier.events[0].Type != realtime.EventBooked || notifier.events[0].SessionID != 91 {
		t.Fatalf("unexpected broadcast %+v", notifier.events[0])
	}
}

func TestBookSessionUnavailableReturnsBadRequest(t *testing.T) {
	service := &stubScheduleService{bookErr: services.ErrSessionUnavailable}
	notifier := &recordingNotifier{}
	handler := &SessionHandler{service: service, notifier: notifier}
	app := newSessionTestApp(handler, 42, models.RoleClient)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/book",
		strings.NewReader(`{"sessionId": 91}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if len(notifier.events) != 0 {
		t.Fatalf("expected no broadcast on failure, got %d", len(notifier.events))
	}
}

func TestBookSessionRequiresSessionID(t *testing.T) {
	service := &stubScheduleService{}
	handler := &SessionHandler{service: service, notifier: &recordingNotifier{}}
	app := newSessionTestApp(handler, 42, models.RoleClient)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/book",
		strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestRequestSessionRejectsMissingNote(t *testing.T) {
	service := &stubScheduleService{
		requestErr: fmt.Errorf("%w: a request note is required", services.ErrInvalidInput),
	}
	notifier := &recordingNotifier{}
	handler := &SessionHandler{service: service, notifier: notifier}
	app := newSessionTestApp(handler, 42, models.RoleClient)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/request",
		strings.NewReader(`{"start": "2026-04-10T09:00:00Z", "notes": ""}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if len(notifier.events) != 0 {
		t.Fatalf("expected no broadcast on failure, got %d", len(notifier.events))
	}
}

func TestRequestSessionReturnsCreated(t *testing.T) {
	service := &stubScheduleService{
		requestResult: detailWithStatus(55, models.StatusRequested),
	}
	notifier := &recordingNotifier{}
	handler := &SessionHandler{service: service, notifier: notifier}
	app := newSessionTestApp(handler, 42, models.RoleClient)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/request",
		strings.NewReader(`{"start": "2026-04-10T09:00:00Z", "notes": "evening preferred"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if service.lastRequestInput.Notes != "evening preferred" {
		t.Fatalf("expected note to reach service, got %q", service.lastRequestInput.Notes)
	}
	if len(notifier.events) != 1 || notifier.events[0].Type != realtime.EventRequested {
		t.Fatalf("expected one requested broadcast, got %+v", notifier.events)
	}
}

func TestConfirmSessionForbiddenForClients(t *testing.T) {
	service := &stubScheduleService{confirmErr: services.ErrForbidden}
	notifier := &recordingNotifier{}
	handler := &SessionHandler{service: service, notifier: notifier}
	app := newSessionTestApp(handler, 42, models.RoleClient)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/sessions/confirm/7", nil)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if len(notifier.events) != 0 {
		t.Fatalf("expected no broadcast on failure, got %d", len(notifier.events))
	}
}

func TestCancelSessionRejectsTerminalState(t *testing.T) {
	service := &stubScheduleService{cancelErr: services.ErrInvalidStateTransition}
	notifier := &recordingNotifier{}
	handler := &SessionHandler{service: service, notifier: notifier}
	app := newSessionTestApp(handler, 42, models.RoleClient)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/cancel/7", nil)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	if len(notifier.events) != 0 {
		t.Fatalf("expected no broadcast on failure, got %d", len(notifier.events))
	}
}

func TestCancelSessionBroadcastsWithEarlyCancelFlag(t *testing.T) {
	service := &stubScheduleService{
		cancelResult: detailWithStatus(7, models.StatusCancelled),
	}
	notifier := &recordingNotifier{}
	handler := &SessionHandler{service: service, notifier: notifier}
	app := newSessionTestApp(handler, 42, models.RoleClient)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/cancel/7",
		strings.NewReader(`{"reason": "travel", "earlyCancel": true}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastReason != "travel" || !service.lastEarlyCancel {
		t.Fatalf("expected reason and early-cancel flag to reach service, got %q/%v",
			service.lastReason, service.lastEarlyCancel)
	}
	if len(notifier.events) != 1 || notifier.events[0].Type != realtime.EventCancelled {
		t.Fatalf("expected one cancelled broadcast, got %+v", notifier.events)
	}
	if notifier.events[0].SessionID != 7 {
		t.Fatalf("expected broadcast for session 7, got %d", notifier.events[0].SessionID)
	}
}

func TestCompleteSessionReturnsDeduction(t *testing.T) {
	service := &stubScheduleService{
		completeResult: &services.CompletionOutcome{
			Session: detailWithStatus(7, models.StatusCompleted),
			Deduction: &models.DeductionResult{
				Deducted:          true,
				RemainingSessions: 2,
			},
		},
	}
	notifier := &recordingNotifier{}
	handler := &SessionHandler{service: service, notifier: notifier}
	app := newSessionTestApp(handler, 3, models.RoleTrainer)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/sessions/complete/7", nil)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Deduction *models.DeductionResult `json:"deductionResult"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Deduction == nil || body.Deduction.RemainingSessions != 2 {
		t.Fatalf("expected deduction with 2 remaining, got %+v", body.Deduction)
	}
	if len(notifier.events) != 1 || notifier.events[0].Type != realtime.EventCompleted {
		t.Fatalf("expected one completed broadcast, got %+v", notifier.events)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	service := &stubScheduleService{getErr: pgx.ErrNoRows}
	handler := &SessionHandler{service: service, notifier: &recordingNotifier{}}
	app := newSessionTestApp(handler, 42, models.RoleClient)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/999", nil)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestListSessionsComputesWeekWindow(t *testing.T) {
	service := &stubScheduleService{listResult: []models.SessionDetail{}}
	handler := &SessionHandler{service: service, notifier: &recordingNotifier{}}
	app := newSessionTestApp(handler, 42, models.RoleClient)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/sessions?view=week&anchor=2026-03-18", nil)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	wantStart := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	if !service.lastListFilter.Start.Equal(wantStart) {
		t.Fatalf("expected week to start %v, got %v", wantStart, service.lastListFilter.Start)
	}
	if !service.lastListFilter.End.Equal(wantStart.AddDate(0, 0, 7)) {
		t.Fatalf("expected a 7 day window, got end %v", service.lastListFilter.End)
	}
}

func TestListSessionsRejectsUnknownView(t *testing.T) {
	service := &stubScheduleService{}
	handler := &SessionHandler{service: service, notifier: &recordingNotifier{}}
	app := newSessionTestApp(handler, 42, models.RoleClient)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions?view=fortnight", nil)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCreateSlotsForbiddenForTrainers(t *testing.T) {
	service := &stubScheduleService{createErr: services.ErrForbidden}
	notifier := &recordingNotifier{}
	handler := &SessionHandler{service: service, notifier: notifier}
	app := newSessionTestApp(handler, 3, models.RoleTrainer)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions",
		strings.NewReader(`{"slots": [{"date": "2026-04-10T09:00:00Z"}]}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if len(notifier.events) != 0 {
		t.Fatalf("expected no broadcast on failure, got %d", len(notifier.events))
	}
}

func TestAssignTrainerBroadcastsUpdate(t *testing.T) {
	assigned := detailWithStatus(91, models.StatusScheduled)
	trainerID := int64(7)
	assigned.TrainerID = &trainerID
	service := &stubScheduleService{assignResult: assigned}
	notifier := &recordingNotifier{}
	handler := &SessionHandler{service: service, notifier: notifier}
	app := newSessionTestApp(handler, 1, models.RoleAdmin)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/sessions/assign/91",
		strings.NewReader(`{"trainerId": 7}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastSessionID != 91 || service.lastTrainerID != 7 {
		t.Fatalf("expected assignment of trainer 7 to session 91, got %d/%d",
			service.lastTrainerID, service.lastSessionID)
	}
	if len(notifier.events) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(notifier.events))
	}
	event := notifier.events[0]
	if event.Type != realtime.EventTrainerAssigned || event.SessionID != 91 || event.TrainerID != 7 {
		t.Fatalf("unexpected broadcast %+v", event)
	}
}

func TestAssignTrainerUnknownTrainerReturnsNotFound(t *testing.T) {
	service := &stubScheduleService{assignErr: services.ErrTrainerNotFound}
	notifier := &recordingNotifier{}
	handler := &SessionHandler{service: service, notifier: notifier}
	app := newSessionTestApp(handler, 1, models.RoleAdmin)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/sessions/assign/91",
		strings.NewReader(`{"trainerId": 404}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if len(notifier.events) != 0 {
		t.Fatalf("expected no broadcast on failure, got %d", len(notifier.events))
	}
}

func TestCreateRecurringSlotsBroadcastsCreatedCount(t *testing.T) {
	service := &stubScheduleService{
		createResult: []models.Session{
			{ID: 1, Status: models.StatusAvailable},
			{ID: 2, Status: models.StatusAvailable},
			{ID: 3, Status: models.StatusAvailable},
		},
	}
	notifier := &recordingNotifier{}
	handler := &SessionHandler{service: service, notifier: notifier}
	app := newSessionTestApp(handler, 1, models.RoleAdmin)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/recurring",
		strings.NewReader(`{
			"start_date": "2026-04-06",
			"end_date": "2026-04-20",
			"days_of_week": [1, 3],
			"times": ["09:00"],
			"duration_minutes": 60
		}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Count != 3 {
		t.Fatalf("expected count 3, got %d", body.Count)
	}
	if len(notifier.events) != 1 || notifier.events[0].Type != realtime.EventCreated {
		t.Fatalf("expected one created broadcast, got %+v", notifier.events)
	}
	if notifier.events[0].Count != 3 {
		t.Fatalf("expected broadcast count 3, got %d", notifier.events[0].Count)
	}
}

func TestSetSessionNotesForbiddenForNonOwner(t *testing.T) {
	service := &stubScheduleService{notesErr: services.ErrForbidden}
	handler := &SessionHandler{service: service, notifier: &recordingNotifier{}}
	app := newSessionTestApp(handler, 42, models.RoleClient)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/sessions/notes/7",
		strings.NewReader(`{"notes": "bring resistance bands"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestSetSessionNotesReturnsUpdatedSession(t *testing.T) {
	updated := detailWithStatus(7, models.StatusScheduled)
	notes := "bring resistance bands"
	updated.Notes = &notes
	service := &stubScheduleService{notesResult: updated}
	handler := &SessionHandler{service: service, notifier: &recordingNotifier{}}
	app := newSessionTestApp(handler, 42, models.RoleClient)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/sessions/notes/7",
		strings.NewReader(`{"notes": "bring resistance bands"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastSessionID != 7 {
		t.Fatalf("expected notes update for session 7, got %d", service.lastSessionID)
	}
}

func TestCreateSlotsBroadcastsCreatedCount(t *testing.T) {
	service := &stubScheduleService{
		createResult: []models.Session{
			{ID: 1, Status: models.StatusAvailable},
			{ID: 2, Status: models.StatusAvailable},
		},
	}
	notifier := &recordingNotifier{}
	handler := &SessionHandler{service: service, notifier: notifier}
	app := newSessionTestApp(handler, 1, models.RoleAdmin)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions",
		strings.NewReader(`{"slots": [
			{"date": "2026-04-10T09:00:00Z"},
			{"date": "2026-04-10T10:00:00Z"}
		]}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if got := len(service.lastSlots); got != 2 {
		t.Fatalf("expected 2 slots to reach service, got %d", got)
	}
	if len(notifier.events) != 1 || notifier.events[0].Type != realtime.EventCreated {
		t.Fatalf("expected one created broadcast, got %+v", notifier.events)
	}
	if notifier.events[0].Count != 2 {
		t.Fatalf("expected broadcast count 2, got %d", notifier.events[0].Count)
	}
}
