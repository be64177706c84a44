// Package service implements business logic and orchestration between the
// HTTP handlers and the store layer.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/special-lecture/registration/internal/model"
	"github.com/special-lecture/registration/internal/repository"
)

const (
	dateLayout     = "2006-01-02"
	timeOfDay      = "15:04"
	defaultMaxSeat = 30
)

// LectureService orchestrates lecture and registration operations.
type LectureService struct {
	lectures      repository.LectureStore
	registrations repository.RegistrationStore
	logger        *zap.Logger
}

// NewLectureService constructs a LectureService with its dependencies.
func NewLectureService(
	lectures repository.LectureStore,
	registrations repository.RegistrationStore,
	logger *zap.Logger,
) *LectureService {
	return &LectureService{
		lectures:      lectures,
		registrations: registrations,
		logger:        logger,
	}
}

// RegisterForLecture enrolls a user in a lecture.
//
// The availability read here is advisory: it fails fast without opening a
// transaction when the lecture is already closed, but it can be stale under
// race. The authoritative decision is always re-made inside the store's
// locked transaction, and both layers raise the same ErrLectureClosed so the
// caller cannot tell which one rejected the attempt.
func (s *LectureService) RegisterForLecture(ctx context.Context, userID, lectureID int64) (*model.Registration, error) {
	if userID <= 0 || lectureID <= 0 {
		return nil, repository.ErrInvalidArgument
	}

	lecture, err := s.lectures.GetByID(ctx, lectureID)
	if err != nil {
		return nil, err
	}
	if !lecture.IsAvailable {
		return nil, repository.ErrLectureClosed
	}

	reg, err := s.registrations.Register(ctx, userID, lectureID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("registration committed",
		zap.Int64("registration_id", reg.ID),
		zap.Int64("user_id", userID),
		zap.Int64("lecture_id", lectureID),
		zap.Int("current_count", reg.Lecture.CurrentCount),
		zap.Bool("is_available", reg.Lecture.IsAvailable),
	)
	return reg, nil
}

// GetAvailableLecturesByDate returns the open lectures on a calendar date.
func (s *LectureService) GetAvailableLecturesByDate(ctx context.Context, date time.Time) ([]model.Lecture, error) {
	if date.IsZero() {
		return nil, repository.ErrInvalidArgument
	}
	return s.lectures.ListAvailableByDate(ctx, date)
}

// GetRegisteredLectures returns all registrations for a user.
func (s *LectureService) GetRegisteredLectures(ctx context.Context, userID int64) ([]model.Registration, error) {
	if userID <= 0 {
		return nil, repository.ErrInvalidArgument
	}
	return s.registrations.ListByUser(ctx, userID)
}

// GetLecture returns a single lecture by id.
func (s *LectureService) GetLecture(ctx context.Context, lectureID int64) (*model.Lecture, error) {
	if lectureID <= 0 {
		return nil, repository.ErrInvalidArgument
	}
	return s.lectures.GetByID(ctx, lectureID)
}

// CreateLecture validates the request and seeds a new lecture. MaxCount
// defaults to 30 seats when omitted.
func (s *LectureService) CreateLecture(ctx context.Context, req model.CreateLectureRequest) (*model.Lecture, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Instructor = strings.TrimSpace(req.Instructor)
	if req.Title == "" {
		return nil, fmt.Errorf("%w: title is required", repository.ErrInvalidArgument)
	}
	if req.Instructor == "" {
		return nil, fmt.Errorf("%w: instructor is required", repository.ErrInvalidArgument)
	}

	date, err := time.Parse(dateLayout, req.LectureDate)
	if err != nil {
		return nil, fmt.Errorf("%w: lecture_date must be YYYY-MM-DD", repository.ErrInvalidArgument)
	}
	if _, err := time.Parse(timeOfDay, req.StartTime); err != nil {
		return nil, fmt.Errorf("%w: start_time must be HH:MM", repository.ErrInvalidArgument)
	}
	if _, err := time.Parse(timeOfDay, req.EndTime); err != nil {
		return nil, fmt.Errorf("%w: end_time must be HH:MM", repository.ErrInvalidArgument)
	}

	if req.MaxCount == 0 {
		req.MaxCount = defaultMaxSeat
	}
	if req.MaxCount < 0 {
		return nil, fmt.Errorf("%w: max_count must be positive", repository.ErrInvalidArgument)
	}

	lecture, err := s.lectures.Create(ctx, &model.Lecture{
		Title:       req.Title,
		Instructor:  req.Instructor,
		LectureDate: date,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		MaxCount:    req.MaxCount,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("lecture created",
		zap.Int64("lecture_id", lecture.ID),
		zap.String("title", lecture.Title),
		zap.Int("max_count", lecture.MaxCount),
	)
	return lecture, nil
}

// OpenLecture reopens a lecture for registration. Rejected with
// ErrLectureFull while the lecture is at capacity.
func (s *LectureService) OpenLecture(ctx context.Context, lectureID int64) (*model.Lecture, error) {
	lecture, err := s.lectures.SetAvailability(ctx, lectureID, true)
	if err != nil {
		return nil, err
	}
	s.logger.Info("lecture opened", zap.Int64("lecture_id", lectureID))
	return lecture, nil
}

// CloseLecture closes a lecture for registration. Always allowed.
func (s *LectureService) CloseLecture(ctx context.Context, lectureID int64) (*model.Lecture, error) {
	lecture, err := s.lectures.SetAvailability(ctx, lectureID, false)
	if err != nil {
		return nil, err
	}
	s.logger.Info("lecture closed", zap.Int64("lecture_id", lectureID))
	return lecture, nil
}
