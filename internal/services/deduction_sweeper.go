package services

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avenra/StudioSessionsBack/internal/models"
	"github.com/avenra/StudioSessionsBack/internal/repository"
)

const deductedNote = "[auto] session credit deducted"
const noCreditsNote = "[auto] completed without deduction - no remaining credits"

// DeductionSweeper periodically settles past sessions: anything still
// scheduled or confirmed after its start time is marked completed, and one
// prepaid credit per session is deducted from the client, capped at the
// client's balance.
type DeductionSweeper struct {
	db       *pgxpool.Pool
	interval time.Duration
	now      func() time.Time
}

type SweepResult struct {
	Processed int
	Deducted  int
	NoCredits int
}

func NewDeductionSweeper(db *pgxpool.Pool, interval time.Duration) *DeductionSweeper {
	return &DeductionSweeper{db: db, interval: interval, now: time.Now}
}

// Run blocks, sweeping on the configured interval until ctx is cancelled.
func (w *DeductionSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := w.Sweep(ctx)
			if err != nil {
				log.Printf("deduction sweep failed: %v", err)
				continue
			}
			if result.Processed > 0 {
				log.Printf(
					"deduction sweep: processed=%d deducted=%d no_credits=%d",
					result.Processed, result.Deducted, result.NoCredits,
				)
			}
		}
	}
}

// Sweep runs one pass in a single transaction. Session rows and each client
// row are locked, plus a per-client advisory lock so a concurrent booking
// deduction or cancel refund cannot interleave.
func (w *DeductionSweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	tx, err := w.db.Begin(ctx)
	if err != nil {
		return result, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txSessionRepo := repository.NewSessionRepository(tx)
	txUserRepo := repository.NewUserRepository(tx)

	eligible, err := txSessionRepo.ListDeductibleForUpdate(ctx, w.now())
	if err != nil {
		return result, err
	}
	if len(eligible) == 0 {
		return result, nil
	}

	byClient := groupByClient(eligible)
	for clientID, sessions := range byClient {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", clientID); err != nil {
			return result, err
		}
		client, err := txUserRepo.GetByIDForUpdate(ctx, clientID)
		if err != nil {
			return result, err
		}

		deductible := len(sessions)
		if client.AvailableSessions < deductible {
			deductible = client.AvailableSessions
		}

		for i, session := range sessions {
			result.Processed++
			if i < deductible {
				if err := txSessionRepo.SweepComplete(ctx, session.ID, true, deductedNote); err != nil {
					return result, err
				}
				result.Deducted++
				continue
			}
			if err := txSessionRepo.SweepComplete(ctx, session.ID, false, noCreditsNote); err != nil {
				return result, err
			}
			result.NoCredits++
		}

		if deductible > 0 {
			if _, err := txUserRepo.DeductCredits(ctx, clientID, deductible); err != nil {
				return result, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return result, err
	}
	return result, nil
}

func groupByClient(sessions []models.Session) map[int64][]models.Session {
	byClient := make(map[int64][]models.Session)
	for _, session := range sessions {
		if session.UserID == nil {
			continue
		}
		byClient[*session.UserID] = append(byClient[*session.UserID], session)
	}
	return byClient
}
