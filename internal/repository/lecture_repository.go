package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/special-lecture/registration/internal/model"
)

const lectureColumns = `lecture_id, title, instructor, lecture_date,
	to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'),
	current_count, max_count, is_available`

// LectureRepository handles persistence for lectures on Postgres.
type LectureRepository struct {
	pool *pgxpool.Pool
}

// NewLectureRepository constructs a LectureRepository.
func NewLectureRepository(pool *pgxpool.Pool) *LectureRepository {
	return &LectureRepository{pool: pool}
}

func scanLecture(row pgx.Row, l *model.Lecture) error {
	return row.Scan(
		&l.ID, &l.Title, &l.Instructor, &l.LectureDate,
		&l.StartTime, &l.EndTime,
		&l.CurrentCount, &l.MaxCount, &l.IsAvailable,
	)
}

// Create inserts a new lecture with zero enrollments and an open flag.
// Seeding is an administrative operation; capacity is fixed here for good.
func (r *LectureRepository) Create(ctx context.Context, lecture *model.Lecture) (*model.Lecture, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO lectures (title, instructor, lecture_date, start_time, end_time, max_count)
		 VALUES ($1, $2, $3, $4::time, $5::time, $6)
		 RETURNING lecture_id, current_count, is_available`,
		lecture.Title, lecture.Instructor, lecture.LectureDate,
		lecture.StartTime, lecture.EndTime, lecture.MaxCount,
	).Scan(&lecture.ID, &lecture.CurrentCount, &lecture.IsAvailable)
	if err != nil {
		return nil, fmt.Errorf("insert lecture: %w", err)
	}
	return lecture, nil
}

// GetByID returns a single lecture or ErrNotFound.
// This is a plain read-committed read; it never takes a lock.
func (r *LectureRepository) GetByID(ctx context.Context, lectureID int64) (*model.Lecture, error) {
	if lectureID <= 0 {
		return nil, ErrInvalidArgument
	}
	var l model.Lecture
	err := scanLecture(r.pool.QueryRow(ctx,
		`SELECT `+lectureColumns+` FROM lectures WHERE lecture_id = $1`,
		lectureID,
	), &l)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get lecture: %w", err)
	}
	return &l, nil
}

// ListAvailableByDate returns every open lecture scheduled on the given
// calendar date, ordered by id. An empty day yields an empty slice, not an
// error.
func (r *LectureRepository) ListAvailableByDate(ctx context.Context, date time.Time) ([]model.Lecture, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+lectureColumns+`
		 FROM lectures
		 WHERE lecture_date = $1 AND is_available
		 ORDER BY lecture_id`,
		date,
	)
	if err != nil {
		return nil, fmt.Errorf("list lectures by date: %w", err)
	}
	defer rows.Close()

	lectures := []model.Lecture{}
	for rows.Next() {
		var l model.Lecture
		if err := scanLecture(rows, &l); err != nil {
			return nil, fmt.Errorf("scan lecture: %w", err)
		}
		lectures = append(lectures, l)
	}
	return lectures, rows.Err()
}

// SetAvailability opens or closes a lecture administratively. Closing is
// unconditional. Opening is rejected with ErrLectureFull while the lecture is
// at capacity. The row lock keeps the flag change from interleaving with a
// concurrent registration on the same lecture.
func (r *LectureRepository) SetAvailability(ctx context.Context, lectureID int64, available bool) (*model.Lecture, error) {
	if lectureID <= 0 {
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

	var l model.Lecture
	err = scanLecture(tx.QueryRow(ctx,
		`SELECT `+lectureColumns+` FROM lectures WHERE lecture_id = $1 FOR UPDATE`,
		lectureID,
	), &l)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, mapLockError(err, fmt.Errorf("lock lecture row: %w", err))
	}

	if available && l.IsFull() {
		err = ErrLectureFull
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE lectures SET is_available = $1 WHERE lecture_id = $2`,
		available, lectureID,
	)
	if err != nil {
		return nil, fmt.Errorf("update availability: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	l.IsAvailable = available
	return &l, nil
}
