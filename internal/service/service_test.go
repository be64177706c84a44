package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/special-lecture/registration/internal/model"
	"github.com/special-lecture/registration/internal/repository"
)

func setupTestService() *LectureService {
	store := repository.NewMemoryStore()
	return NewLectureService(store, store, zap.NewNop())
}

func seedLecture(t *testing.T, svc *LectureService, maxCount int) *model.Lecture {
	t.Helper()
	lecture, err := svc.CreateLecture(context.Background(), model.CreateLectureRequest{
		Title:       "Clean Architecture in Practice",
		Instructor:  "Kim",
		LectureDate: "2026-09-20",
		StartTime:   "13:00",
		EndTime:     "15:00",
		MaxCount:    maxCount,
	})
	if err != nil {
		t.Fatalf("seed lecture: %v", err)
	}
	return lecture
}

func TestRegisterForLecture_Success(t *testing.T) {
	svc := setupTestService()
	lecture := seedLecture(t, svc, 30)

	reg, err := svc.RegisterForLecture(context.Background(), 1, lecture.ID)
	if err != nil {
		t.Fatalf("register should succeed: %v", err)
	}
	if reg.UserID != 1 || reg.LectureID != lecture.ID {
		t.Errorf("unexpected registration %+v", reg)
	}
	if reg.Lecture == nil {
		t.Fatal("registration should carry the lecture snapshot")
	}
	if reg.Lecture.CurrentCount != 1 {
		t.Errorf("expected current count 1, got %d", reg.Lecture.CurrentCount)
	}
	if !reg.Lecture.IsAvailable {
		t.Error("lecture should still be open")
	}
}

func TestRegisterForLecture_InvalidArguments(t *testing.T) {
	svc := setupTestService()
	lecture := seedLecture(t, svc, 30)

	cases := []struct{ userID, lectureID int64 }{
		{0, lecture.ID},
		{-5, lecture.ID},
		{1, 0},
		{1, -3},
	}
	for _, tc := range cases {
		_, err := svc.RegisterForLecture(context.Background(), tc.userID, tc.lectureID)
		if !errors.Is(err, repository.ErrInvalidArgument) {
			t.Errorf("register(%d, %d): expected ErrInvalidArgument, got %v", tc.userID, tc.lectureID, err)
		}
	}
}

func TestRegisterForLecture_NotFound(t *testing.T) {
	svc := setupTestService()

	_, err := svc.RegisterForLecture(context.Background(), 1, 999)
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRegisterForLecture_Closed(t *testing.T) {
	svc := setupTestService()
	lecture := seedLecture(t, svc, 30)

	if _, err := svc.CloseLecture(context.Background(), lecture.ID); err != nil {
		t.Fatalf("close lecture: %v", err)
	}

	_, err := svc.RegisterForLecture(context.Background(), 1, lecture.ID)
	if !errors.Is(err, repository.ErrLectureClosed) {
		t.Errorf("expected ErrLectureClosed, got %v", err)
	}

	got, err := svc.GetLecture(context.Background(), lecture.ID)
	if err != nil {
		t.Fatalf("get lecture: %v", err)
	}
	if got.CurrentCount != 0 {
		t.Errorf("rejected registration must not change the counter, got %d", got.CurrentCount)
	}
}

func TestRegisterForLecture_Duplicate(t *testing.T) {
	svc := setupTestService()
	lecture := seedLecture(t, svc, 30)

	if _, err := svc.RegisterForLecture(context.Background(), 7, lecture.ID); err != nil {
		t.Fatalf("first register: %v", err)
	}

	_, err := svc.RegisterForLecture(context.Background(), 7, lecture.ID)
	if !errors.Is(err, repository.ErrAlreadyRegistered) {
		t.Errorf("expected ErrAlreadyRegistered, got %v", err)
	}

	got, _ := svc.GetLecture(context.Background(), lecture.ID)
	if got.CurrentCount != 1 {
		t.Errorf("duplicate must not change the counter, got %d", got.CurrentCount)
	}
}

func TestRegisterForLecture_FillsAndCloses(t *testing.T) {
	svc := setupTestService()
	lecture := seedLecture(t, svc, 2)

	for userID := int64(1); userID <= 2; userID++ {
		if _, err := svc.RegisterForLecture(context.Background(), userID, lecture.ID); err != nil {
			t.Fatalf("register user %d: %v", userID, err)
		}
	}

	got, _ := svc.GetLecture(context.Background(), lecture.ID)
	if got.CurrentCount != 2 {
		t.Errorf("expected count 2, got %d", got.CurrentCount)
	}
	if got.IsAvailable {
		t.Error("lecture should close automatically at capacity")
	}

	_, err := svc.RegisterForLecture(context.Background(), 3, lecture.ID)
	if !errors.Is(err, repository.ErrLectureClosed) {
		t.Errorf("expected ErrLectureClosed once full, got %v", err)
	}
}

// Forty distinct users race for thirty seats while readers poll the catalog.
// Exactly thirty must win, the rest must see the closed signal, and no reader
// may ever observe the counter above capacity or an error.
func TestRegisterForLecture_ConcurrentCapacityNeverExceeded(t *testing.T) {
	svc := setupTestService()
	lecture := seedLecture(t, svc, 30)
	date := time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC)

	var succeeded, closed atomic.Int64

	readerDone := make(chan struct{})
	readerErrs := make(chan error, 1)
	go func() {
		defer close(readerErrs)
		for {
			select {
			case <-readerDone:
				return
			default:
			}
			lectures, err := svc.GetAvailableLecturesByDate(context.Background(), date)
			if err != nil {
				readerErrs <- fmt.Errorf("reader failed: %w", err)
				return
			}
			for _, l := range lectures {
				if l.CurrentCount > l.MaxCount {
					readerErrs <- fmt.Errorf("reader observed %d/%d", l.CurrentCount, l.MaxCount)
					return
				}
			}
		}
	}()

	g := new(errgroup.Group)
	for i := 1; i <= 40; i++ {
		userID := int64(i)
		g.Go(func() error {
			_, err := svc.RegisterForLecture(context.Background(), userID, lecture.ID)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, repository.ErrLectureClosed):
				closed.Add(1)
			default:
				return fmt.Errorf("user %d: unexpected error %w", userID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	close(readerDone)
	if err := <-readerErrs; err != nil {
		t.Fatal(err)
	}

	if succeeded.Load() != 30 {
		t.Errorf("expected exactly 30 successes, got %d", succeeded.Load())
	}
	if closed.Load() != 10 {
		t.Errorf("expected exactly 10 closed rejections, got %d", closed.Load())
	}

	got, _ := svc.GetLecture(context.Background(), lecture.ID)
	if got.CurrentCount != 30 {
		t.Errorf("expected final count 30, got %d", got.CurrentCount)
	}
	if got.IsAvailable {
		t.Error("lecture should be closed after filling up")
	}
}

func TestRegisterForLecture_ConcurrentOnClosedLecture(t *testing.T) {
	svc := setupTestService()
	lecture := seedLecture(t, svc, 30)
	if _, err := svc.CloseLecture(context.Background(), lecture.ID); err != nil {
		t.Fatalf("close lecture: %v", err)
	}

	g := new(errgroup.Group)
	for i := 1; i <= 40; i++ {
		userID := int64(i)
		g.Go(func() error {
			_, err := svc.RegisterForLecture(context.Background(), userID, lecture.ID)
			if !errors.Is(err, repository.ErrLectureClosed) {
				return fmt.Errorf("user %d: expected ErrLectureClosed, got %v", userID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	got, _ := svc.GetLecture(context.Background(), lecture.ID)
	if got.CurrentCount != 0 {
		t.Errorf("closed lecture counter must stay at 0, got %d", got.CurrentCount)
	}
}

func TestGetAvailableLecturesByDate(t *testing.T) {
	svc := setupTestService()
	ctx := context.Background()

	first := seedLecture(t, svc, 30)
	second := seedLecture(t, svc, 30)
	otherDay, err := svc.CreateLecture(ctx, model.CreateLectureRequest{
		Title:       "Distributed Systems",
		Instructor:  "Lee",
		LectureDate: "2026-09-21",
		StartTime:   "10:00",
		EndTime:     "12:00",
	})
	if err != nil {
		t.Fatalf("seed other day: %v", err)
	}
	if _, err := svc.CloseLecture(ctx, second.ID); err != nil {
		t.Fatalf("close lecture: %v", err)
	}

	lectures, err := svc.GetAvailableLecturesByDate(ctx, time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("list by date: %v", err)
	}
	if len(lectures) != 1 || lectures[0].ID != first.ID {
		t.Errorf("expected only lecture %d, got %+v", first.ID, lectures)
	}

	lectures, err = svc.GetAvailableLecturesByDate(ctx, time.Date(2026, 9, 21, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("list by date: %v", err)
	}
	if len(lectures) != 1 || lectures[0].ID != otherDay.ID {
		t.Errorf("expected only lecture %d, got %+v", otherDay.ID, lectures)
	}

	lectures, err = svc.GetAvailableLecturesByDate(ctx, time.Date(2026, 12, 25, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("an empty day is not an error: %v", err)
	}
	if len(lectures) != 0 {
		t.Errorf("expected empty slice, got %+v", lectures)
	}

	if _, err := svc.GetAvailableLecturesByDate(ctx, time.Time{}); !errors.Is(err, repository.ErrInvalidArgument) {
		t.Errorf("zero date should be ErrInvalidArgument, got %v", err)
	}
}

func TestGetRegisteredLectures(t *testing.T) {
	svc := setupTestService()
	ctx := context.Background()

	first := seedLecture(t, svc, 30)
	second := seedLecture(t, svc, 30)

	if _, err := svc.RegisterForLecture(ctx, 5, first.ID); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.RegisterForLecture(ctx, 5, second.ID); err != nil {
		t.Fatalf("register: %v", err)
	}

	regs, err := svc.GetRegisteredLectures(ctx, 5)
	if err != nil {
		t.Fatalf("list registrations: %v", err)
	}
	if len(regs) != 2 {
		t.Fatalf("expected 2 registrations, got %d", len(regs))
	}
	if regs[0].ID >= regs[1].ID {
		t.Error("registrations should come back in insertion order")
	}
	if regs[0].Lecture == nil || regs[0].Lecture.ID != first.ID {
		t.Errorf("expected lecture %d attached, got %+v", first.ID, regs[0].Lecture)
	}

	regs, err = svc.GetRegisteredLectures(ctx, 6)
	if err != nil {
		t.Fatalf("user without registrations is not an error: %v", err)
	}
	if len(regs) != 0 {
		t.Errorf("expected empty slice, got %+v", regs)
	}

	if _, err := svc.GetRegisteredLectures(ctx, 0); !errors.Is(err, repository.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestOpenLecture_ReopenPolicy(t *testing.T) {
	svc := setupTestService()
	ctx := context.Background()

	full := seedLecture(t, svc, 1)
	if _, err := svc.RegisterForLecture(ctx, 1, full.ID); err != nil {
		t.Fatalf("fill lecture: %v", err)
	}

	// Reopening a full lecture is rejected; closing it again is always fine.
	if _, err := svc.OpenLecture(ctx, full.ID); !errors.Is(err, repository.ErrLectureFull) {
		t.Errorf("expected ErrLectureFull, got %v", err)
	}
	if _, err := svc.CloseLecture(ctx, full.ID); err != nil {
		t.Errorf("closing must always be allowed: %v", err)
	}

	spare := seedLecture(t, svc, 2)
	if _, err := svc.RegisterForLecture(ctx, 1, spare.ID); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.CloseLecture(ctx, spare.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	reopened, err := svc.OpenLecture(ctx, spare.ID)
	if err != nil {
		t.Fatalf("reopening below capacity should succeed: %v", err)
	}
	if !reopened.IsAvailable {
		t.Error("lecture should be open again")
	}

	if _, err := svc.OpenLecture(ctx, 999); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateLecture_Validation(t *testing.T) {
	svc := setupTestService()
	ctx := context.Background()

	base := model.CreateLectureRequest{
		Title:       "Valid",
		Instructor:  "Park",
		LectureDate: "2026-09-20",
		StartTime:   "09:00",
		EndTime:     "11:00",
	}

	cases := []struct {
		name   string
		mutate func(*model.CreateLectureRequest)
	}{
		{"empty title", func(r *model.CreateLectureRequest) { r.Title = "  " }},
		{"empty instructor", func(r *model.CreateLectureRequest) { r.Instructor = "" }},
		{"bad date", func(r *model.CreateLectureRequest) { r.LectureDate = "20-09-2026" }},
		{"bad start time", func(r *model.CreateLectureRequest) { r.StartTime = "9am" }},
		{"bad end time", func(r *model.CreateLectureRequest) { r.EndTime = "25:00" }},
		{"negative capacity", func(r *model.CreateLectureRequest) { r.MaxCount = -1 }},
	}
	for _, tc := range cases {
		req := base
		tc.mutate(&req)
		if _, err := svc.CreateLecture(ctx, req); !errors.Is(err, repository.ErrInvalidArgument) {
			t.Errorf("%s: expected ErrInvalidArgument, got %v", tc.name, err)
		}
	}

	lecture, err := svc.CreateLecture(ctx, base)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if lecture.MaxCount != 30 {
		t.Errorf("capacity should default to 30, got %d", lecture.MaxCount)
	}
	if lecture.CurrentCount != 0 || !lecture.IsAvailable {
		t.Errorf("new lecture should start empty and open, got %+v", lecture)
	}
}
