package repository

import (
	"context"
	"sync"
	"time"

	"github.com/special-lecture/registration/internal/model"
)

type regKey struct {
	userID    int64
	lectureID int64
}

// MemoryStore implements LectureStore and RegistrationStore in process
// memory. It mirrors the Postgres locking discipline: one mutex per lecture
// serialises registrations on that lecture, and the shared map lock is never
// held across anything that blocks, so readers stay cheap and lectures stay
// independent. Tests and STORE=memory runs use it.
type MemoryStore struct {
	mu       sync.RWMutex
	lectures map[int64]*model.Lecture
	regs     map[int64]*model.Registration
	byPair   map[regKey]int64

	nextLectureID int64
	nextRegID     int64

	lockMu sync.Mutex
	locks  map[int64]*sync.Mutex
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lectures: make(map[int64]*model.Lecture),
		regs:     make(map[int64]*model.Registration),
		byPair:   make(map[regKey]int64),
		locks:    make(map[int64]*sync.Mutex),
	}
}

// lectureLock returns the per-lecture mutex, creating it on first use.
func (s *MemoryStore) lectureLock(lectureID int64) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	m, ok := s.locks[lectureID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[lectureID] = m
	}
	return m
}

func copyLecture(l *model.Lecture) *model.Lecture {
	c := *l
	return &c
}

// Create inserts a new lecture with zero enrollments and an open flag.
func (s *MemoryStore) Create(_ context.Context, lecture *model.Lecture) (*model.Lecture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextLectureID++
	stored := copyLecture(lecture)
	stored.ID = s.nextLectureID
	stored.CurrentCount = 0
	stored.IsAvailable = true
	s.lectures[stored.ID] = stored
	return copyLecture(stored), nil
}

// GetByID returns a snapshot of a single lecture or ErrNotFound.
func (s *MemoryStore) GetByID(_ context.Context, lectureID int64) (*model.Lecture, error) {
	if lectureID <= 0 {
		return nil, ErrInvalidArgument
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.lectures[lectureID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyLecture(l), nil
}

// ListAvailableByDate returns every open lecture on the given calendar date,
// ordered by id.
func (s *MemoryStore) ListAvailableByDate(_ context.Context, date time.Time) ([]model.Lecture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	y, m, d := date.Date()
	lectures := []model.Lecture{}
	// Scan ids in order; the map is small enough that a sorted walk beats
	// keeping a parallel index.
	for id := int64(1); id <= s.nextLectureID; id++ {
		l, ok := s.lectures[id]
		if !ok || !l.IsAvailable {
			continue
		}
		ly, lm, ld := l.LectureDate.Date()
		if ly == y && lm == m && ld == d {
			lectures = append(lectures, *copyLecture(l))
		}
	}
	return lectures, nil
}

// SetAvailability opens or closes a lecture administratively, under the same
// per-lecture lock the registration path takes.
func (s *MemoryStore) SetAvailability(_ context.Context, lectureID int64, available bool) (*model.Lecture, error) {
	if lectureID <= 0 {
		return nil, ErrInvalidArgument
	}

	lock := s.lectureLock(lectureID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lectures[lectureID]
	if !ok {
		return nil, ErrNotFound
	}
	if available && l.IsFull() {
		return nil, ErrLectureFull
	}
	l.IsAvailable = available
	return copyLecture(l), nil
}

// Register mirrors the Postgres guard transaction: the per-lecture mutex
// plays the part of the row lock, and the check-insert-increment runs as one
// atomic step with respect to readers.
func (s *MemoryStore) Register(_ context.Context, userID, lectureID int64) (*model.Registration, error) {
	if userID <= 0 || lectureID <= 0 {
		return nil, ErrInvalidArgument
	}

	lock := s.lectureLock(lectureID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lectures[lectureID]
	if !ok {
		return nil, ErrNotFound
	}
	if !l.IsAvailable {
		return nil, ErrLectureClosed
	}
	if _, dup := s.byPair[regKey{userID, lectureID}]; dup {
		return nil, ErrAlreadyRegistered
	}

	s.nextRegID++
	reg := &model.Registration{
		ID:           s.nextRegID,
		LectureID:    lectureID,
		UserID:       userID,
		RegisteredAt: time.Now().UTC(),
	}
	s.regs[reg.ID] = reg
	s.byPair[regKey{userID, lectureID}] = reg.ID

	l.CurrentCount++
	if l.CurrentCount >= l.MaxCount {
		l.IsAvailable = false
	}

	out := *reg
	out.Lecture = copyLecture(l)
	return &out, nil
}

// ListByUser returns the user's registrations in insertion order, lectures
// attached.
func (s *MemoryStore) ListByUser(_ context.Context, userID int64) ([]model.Registration, error) {
	if userID <= 0 {
		return nil, ErrInvalidArgument
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	regs := []model.Registration{}
	for id := int64(1); id <= s.nextRegID; id++ {
		r, ok := s.regs[id]
		if !ok || r.UserID != userID {
			continue
		}
		out := *r
		out.Lecture = copyLecture(s.lectures[r.LectureID])
		regs = append(regs, out)
	}
	return regs, nil
}

// FindByUserAndLecture returns the registration for the pair or ErrNotFound.
func (s *MemoryStore) FindByUserAndLecture(_ context.Context, userID, lectureID int64) (*model.Registration, error) {
	if userID <= 0 || lectureID <= 0 {
		return nil, ErrInvalidArgument
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byPair[regKey{userID, lectureID}]
	if !ok {
		return nil, ErrNotFound
	}
	r := s.regs[id]
	out := *r
	out.Lecture = copyLecture(s.lectures[r.LectureID])
	return &out, nil
}
