package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/avenra/StudioSessionsBack/internal/models"
)

type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id, email, password_hash, role, first_name, last_name, phone, available_sessions, created_at, updated_at`

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.FirstName,
		&user.LastName,
		&user.Phone,
		&user.AvailableSessions,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, password_hash, role, first_name, last_name, phone)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, available_sessions, created_at, updated_at
	`
	return r.db.QueryRow(
		ctx,
		query,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.FirstName,
		user.LastName,
		user.Phone,
	).Scan(&user.ID, &user.AvailableSessions, &user.CreatedAt, &user.UpdatedAt)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(r.db.QueryRow(ctx, query, email))
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.db.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	return r.scanUser(r.db.QueryRow(ctx, query, id))
}

// DeductCredit decrements a client's prepaid session balance by one. Returns
// pgx.ErrNoRows when the balance is already zero, so callers can treat an
// empty balance as "nothing to deduct" rather than an error.
func (r *UserRepository) DeductCredit(ctx context.Context, userID int64) (int, error) {
	query := `
		UPDATE users
		SET available_sessions = available_sessions - 1, updated_at = NOW()
		WHERE id = $1 AND available_sessions > 0
		RETURNING available_sessions
	`
	var remaining int
	if err := r.db.QueryRow(ctx, query, userID).Scan(&remaining); err != nil {
		return 0, err
	}
	return remaining, nil
}

// DeductCredits decrements the balance by count. The caller is responsible
// for holding the user row lock and capping count at the current balance.
func (r *UserRepository) DeductCredits(ctx context.Context, userID int64, count int) (int, error) {
	query := `
		UPDATE users
		SET available_sessions = available_sessions - $2, updated_at = NOW()
		WHERE id = $1 AND available_sessions >= $2
		RETURNING available_sessions
	`
	var remaining int
	if err := r.db.QueryRow(ctx, query, userID, count).Scan(&remaining); err != nil {
		return 0, err
	}
	return remaining, nil
}

func (r *UserRepository) RefundCredit(ctx context.Context, userID int64) (int, error) {
	query := `
		UPDATE users
		SET available_sessions = available_sessions + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING available_sessions
	`
	var remaining int
	if err := r.db.QueryRow(ctx, query, userID).Scan(&remaining); err != nil {
		return 0, err
	}
	return remaining, nil
}
