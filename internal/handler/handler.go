// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/special-lecture/registration/internal/model"
	"github.com/special-lecture/registration/internal/repository"
	"github.com/special-lecture/registration/internal/service"
)

// LectureHandler holds all HTTP handlers for the lecture registration API.
type LectureHandler struct {
	svc *service.LectureService
}

// NewLectureHandler constructs a LectureHandler.
func NewLectureHandler(svc *service.LectureService) *LectureHandler {
	return &LectureHandler{svc: svc}
}

// Routes mounts all API routes on the given router.
func (h *LectureHandler) Routes(r chi.Router) {
	r.Route("/lectures", func(r chi.Router) {
		r.Post("/", h.Register)
		r.Get("/available", h.AvailableByDate)
		r.Get("/registered/{userID}", h.RegisteredByUser)
		r.Get("/{lectureID}", h.GetLecture)
	})
	r.Route("/admin/lectures", func(r chi.Router) {
		r.Post("/", h.CreateLecture)
		r.Post("/{lectureID}/open", h.OpenLecture)
		r.Post("/{lectureID}/close", h.CloseLecture)
	})
	r.Get("/health", HealthCheck)
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeDomainError maps the store error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "lecture not found")
	case errors.Is(err, repository.ErrLectureClosed):
		writeError(w, http.StatusConflict, "lecture is closed for registration")
	case errors.Is(err, repository.ErrAlreadyRegistered):
		writeError(w, http.StatusConflict, "you are already registered for this lecture")
	case errors.Is(err, repository.ErrLectureFull):
		writeError(w, http.StatusConflict, "lecture capacity is exhausted")
	case errors.Is(err, repository.ErrStorageBusy):
		writeError(w, http.StatusServiceUnavailable, "temporarily busy, please retry")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// Register handles POST /lectures
// Performs a concurrency-safe registration for the requested lecture.
func (h *LectureHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	reg, err := h.svc.RegisterForLecture(r.Context(), req.UserID, req.LectureID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, reg)
}

// AvailableByDate handles GET /lectures/available?date=YYYY-MM-DD
// Returns the open lectures scheduled on that date.
func (h *LectureHandler) AvailableByDate(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	lectures, err := h.svc.GetAvailableLecturesByDate(r.Context(), date)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, lectures)
}

// RegisteredByUser handles GET /lectures/registered/{userID}
// Returns a summary of every lecture the user is registered for.
func (h *LectureHandler) RegisteredByUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userID")
	if !ok {
		writeError(w, http.StatusBadRequest, "userID must be a positive integer")
		return
	}

	regs, err := h.svc.GetRegisteredLectures(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	summaries := make([]model.RegisteredLecture, 0, len(regs))
	for _, reg := range regs {
		summaries = append(summaries, model.RegisteredLecture{
			LectureID:  reg.Lecture.ID,
			Title:      reg.Lecture.Title,
			Instructor: reg.Lecture.Instructor,
		})
	}

	writeJSON(w, http.StatusOK, summaries)
}

// GetLecture handles GET /lectures/{lectureID}
func (h *LectureHandler) GetLecture(w http.ResponseWriter, r *http.Request) {
	lectureID, ok := pathID(r, "lectureID")
	if !ok {
		writeError(w, http.StatusBadRequest, "lectureID must be a positive integer")
		return
	}

	lecture, err := h.svc.GetLecture(r.Context(), lectureID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, lecture)
}

// CreateLecture handles POST /admin/lectures
// Seeds a new lecture with a fixed capacity.
func (h *LectureHandler) CreateLecture(w http.ResponseWriter, r *http.Request) {
	var req model.CreateLectureRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	lecture, err := h.svc.CreateLecture(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, lecture)
}

// OpenLecture handles POST /admin/lectures/{lectureID}/open
// Reopens a lecture; rejected while the lecture is at capacity.
func (h *LectureHandler) OpenLecture(w http.ResponseWriter, r *http.Request) {
	lectureID, ok := pathID(r, "lectureID")
	if !ok {
		writeError(w, http.StatusBadRequest, "lectureID must be a positive integer")
		return
	}

	lecture, err := h.svc.OpenLecture(r.Context(), lectureID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, lecture)
}

// CloseLecture handles POST /admin/lectures/{lectureID}/close
func (h *LectureHandler) CloseLecture(w http.ResponseWriter, r *http.Request) {
	lectureID, ok := pathID(r, "lectureID")
	if !ok {
		writeError(w, http.StatusBadRequest, "lectureID must be a positive integer")
		return
	}

	lecture, err := h.svc.CloseLecture(r.Context(), lectureID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, lecture)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
