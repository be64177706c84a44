// Package repository implements persistence for lectures and registrations.
// The Postgres implementations use pgx directly (no ORM); an in-memory
// implementation backs tests and local runs without a database.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/special-lecture/registration/internal/model"
)

// ErrInvalidArgument is returned for non-positive identifiers. It is raised
// before any storage access.
var ErrInvalidArgument = errors.New("id must be a positive integer")

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrLectureClosed is returned when a lecture is not open for registration,
// whether it filled up or was closed administratively. The two causes are
// deliberately indistinguishable to callers.
var ErrLectureClosed = errors.New("lecture is closed for registration")

// ErrAlreadyRegistered is returned when the same user registers twice for one
// lecture. The storage-level unique constraint is the authority.
var ErrAlreadyRegistered = errors.New("user is already registered for this lecture")

// ErrLectureFull is returned when reopening a lecture whose capacity is
// exhausted. Closing is always allowed; reopening requires free seats.
var ErrLectureFull = errors.New("lecture capacity is exhausted")

// ErrStorageBusy is returned on lock-wait timeout or deadlock. The call is
// safe to retry; this package never retries on its own.
var ErrStorageBusy = errors.New("storage is busy, retry the operation")

// LectureStore provides access to lecture records: catalog reads plus the
// administrative mutations (seeding and open/close).
type LectureStore interface {
	Create(ctx context.Context, lecture *model.Lecture) (*model.Lecture, error)
	GetByID(ctx context.Context, lectureID int64) (*model.Lecture, error)
	ListAvailableByDate(ctx context.Context, date time.Time) ([]model.Lecture, error)
	SetAvailability(ctx context.Context, lectureID int64, available bool) (*model.Lecture, error)
}

// RegistrationStore provides the registration critical section and the
// read-side ledger queries.
type RegistrationStore interface {
	// Register atomically validates and commits one enrollment against one
	// lecture's counters. On success the returned registration carries the
	// post-commit lecture snapshot.
	Register(ctx context.Context, userID, lectureID int64) (*model.Registration, error)
	ListByUser(ctx context.Context, userID int64) ([]model.Registration, error)
	FindByUserAndLecture(ctx context.Context, userID, lectureID int64) (*model.Registration, error)
}
