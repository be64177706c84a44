package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/special-lecture/registration/internal/model"
)

// Postgres SQLSTATE codes the guard must recognise.
const (
	pgUniqueViolation  = "23505"
	pgLockNotAvailable = "55P03"
	pgDeadlockDetected = "40P01"
)

// mapLockError converts lock-wait timeouts and deadlocks into ErrStorageBusy
// so callers can retry; anything else passes through as fallback.
func mapLockError(err, fallback error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgLockNotAvailable || pgErr.Code == pgDeadlockDetected {
			return ErrStorageBusy
		}
	}
	return fallback
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// RegistrationRepository handles persistence for registrations on Postgres,
// including the capacity-enforcing registration transaction.
type RegistrationRepository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewRegistrationRepository constructs a RegistrationRepository. lockTimeout
// bounds how long Register waits for the lecture row lock before giving up
// with ErrStorageBusy.
func NewRegistrationRepository(pool *pgxpool.Pool, lockTimeout time.Duration) *RegistrationRepository {
	if lockTimeout <= 0 {
		lockTimeout = 3 * time.Second
	}
	return &RegistrationRepository{pool: pool, lockTimeout: lockTimeout}
}

// Register performs a concurrency-safe registration inside a transaction.
//
// Naively reading the counter and writing it back is broken: two concurrent
// transactions read the same snapshot, both see a free seat, and the lecture
// ends up overbooked. SELECT ... FOR UPDATE takes a row-level exclusive lock
// on the lecture the moment the SELECT executes, so concurrent attempts on
// the same lecture queue up and re-read committed state one at a time.
// Attempts on different lectures never block each other.
//
// Inside the lock:
//  1. re-read the lecture (ErrNotFound if absent)
//  2. reject if the open flag is down (ErrLectureClosed, whether the lecture
//     filled up or an admin closed it)
//  3. insert the registration row; the unique (user_id, lecture_id)
//     constraint turns a double-register into ErrAlreadyRegistered
//  4. bump current_count, dropping is_available the moment it reaches
//     max_count
//
// Every failure rolls the whole transaction back: there is never a
// registration without its counter bump or a bump without its registration.
func (r *RegistrationRepository) Register(ctx context.Context, userID, lectureID int64) (*model.Registration, error) {
	if userID <= 0 || lectureID <= 0 {
		return nil, ErrInvalidArgument
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Bound the wait for the row lock; expiry surfaces as ErrStorageBusy.
	_, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds()))
	if err != nil {
		return nil, fmt.Errorf("set lock timeout: %w", err)
	}

	var lecture model.Lecture
	err = scanLecture(tx.QueryRow(ctx,
		`SELECT `+lectureColumns+` FROM lectures WHERE lecture_id = $1 FOR UPDATE`,
		lectureID,
	), &lecture)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, mapLockError(err, fmt.Errorf("lock lecture row: %w", err))
	}

	if !lecture.IsAvailable {
		err = ErrLectureClosed
		return nil, err
	}

	reg := &model.Registration{
		LectureID:    lectureID,
		UserID:       userID,
		RegisteredAt: time.Now().UTC(),
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO registrations (lecture_id, user_id, registered_at)
		 VALUES ($1, $2, $3)
		 RETURNING registration_id`,
		reg.LectureID, reg.UserID, reg.RegisteredAt,
	).Scan(&reg.ID)
	if err != nil {
		if isUniqueViolation(err) {
			err = ErrAlreadyRegistered
			return nil, err
		}
		return nil, fmt.Errorf("insert registration: %w", err)
	}

	err = tx.QueryRow(ctx,
		`UPDATE lectures
		 SET current_count = current_count + 1,
		     is_available = CASE WHEN current_count + 1 >= max_count THEN FALSE ELSE is_available END
		 WHERE lecture_id = $1
		 RETURNING current_count, is_available`,
		lectureID,
	).Scan(&lecture.CurrentCount, &lecture.IsAvailable)
	if err != nil {
		return nil, fmt.Errorf("increment current_count: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	reg.Lecture = &lecture
	return reg, nil
}

// ListByUser returns all registrations for a user with their lectures
// attached, in insertion order. A user with none gets an empty slice.
func (r *RegistrationRepository) ListByUser(ctx context.Context, userID int64) ([]model.Registration, error) {
	if userID <= 0 {
		return nil, ErrInvalidArgument
	}

	rows, err := r.pool.Query(ctx,
		`SELECT r.registration_id, r.lecture_id, r.user_id, r.registered_at,
		        l.lecture_id, l.title, l.instructor, l.lecture_date,
		        to_char(l.start_time, 'HH24:MI'), to_char(l.end_time, 'HH24:MI'),
		        l.current_count, l.max_count, l.is_available
		 FROM registrations r
		 JOIN lectures l ON l.lecture_id = r.lecture_id
		 WHERE r.user_id = $1
		 ORDER BY r.registration_id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations by user: %w", err)
	}
	defer rows.Close()

	regs := []model.Registration{}
	for rows.Next() {
		var reg model.Registration
		var l model.Lecture
		err := rows.Scan(
			&reg.ID, &reg.LectureID, &reg.UserID, &reg.RegisteredAt,
			&l.ID, &l.Title, &l.Instructor, &l.LectureDate,
			&l.StartTime, &l.EndTime,
			&l.CurrentCount, &l.MaxCount, &l.IsAvailable,
		)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		reg.Lecture = &l
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

// FindByUserAndLecture returns the registration binding a user to a lecture,
// or ErrNotFound. Read-side existence check only; the success path of
// Register relies on the unique constraint instead.
func (r *RegistrationRepository) FindByUserAndLecture(ctx context.Context, userID, lectureID int64) (*model.Registration, error) {
	if userID <= 0 || lectureID <= 0 {
		return nil, ErrInvalidArgument
	}

	var reg model.Registration
	var l model.Lecture
	err := r.pool.QueryRow(ctx,
		`SELECT r.registration_id, r.lecture_id, r.user_id, r.registered_at,
		        l.lecture_id, l.title, l.instructor, l.lecture_date,
		        to_char(l.start_time, 'HH24:MI'), to_char(l.end_time, 'HH24:MI'),
		        l.current_count, l.max_count, l.is_available
		 FROM registrations r
		 JOIN lectures l ON l.lecture_id = r.lecture_id
		 WHERE r.user_id = $1 AND r.lecture_id = $2`,
		userID, lectureID,
	).Scan(
		&reg.ID, &reg.LectureID, &reg.UserID, &reg.RegisteredAt,
		&l.ID, &l.Title, &l.Instructor, &l.LectureDate,
		&l.StartTime, &l.EndTime,
		&l.CurrentCount, &l.MaxCount, &l.IsAvailable,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	reg.Lecture = &l
	return &reg, nil
}
