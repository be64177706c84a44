// Package model defines the core domain types for the lecture registration system.
package model

import "time"

// Lecture represents a scheduled special lecture with a fixed seat capacity.
//
// IsAvailable is a stored flag, not a derived one: it drops to false
// automatically when CurrentCount reaches MaxCount, and may also be forced
// false administratively at any time. Reopening is only allowed while seats
// remain; that asymmetry is intentional business policy.
type Lecture struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Instructor   string    `json:"instructor"`
	LectureDate  time.Time `json:"lecture_date"`
	StartTime    string    `json:"start_time"`
	EndTime      string    `json:"end_time"`
	CurrentCount int       `json:"current_count"`
	MaxCount     int       `json:"max_count"`
	IsAvailable  bool      `json:"is_available"`
}

// Remaining returns the number of available seats.
func (l *Lecture) Remaining() int {
	return l.MaxCount - l.CurrentCount
}

// IsFull returns true when no seats remain.
func (l *Lecture) IsFull() bool {
	return l.CurrentCount >= l.MaxCount
}

// Registration represents a user's enrollment in one lecture.
// The (UserID, LectureID) pair is unique across all registrations.
type Registration struct {
	ID           int64     `json:"id"`
	LectureID    int64     `json:"lecture_id"`
	UserID       int64     `json:"user_id"`
	RegisteredAt time.Time `json:"registered_at"`
	Lecture      *Lecture  `json:"lecture,omitempty"`
}

// RegisterRequest is the payload for registering for a lecture.
type RegisterRequest struct {
	UserID    int64 `json:"userId"`
	LectureID int64 `json:"lectureId"`
}

// CreateLectureRequest is the payload for administratively seeding a lecture.
// LectureDate is YYYY-MM-DD, StartTime/EndTime are HH:MM.
type CreateLectureRequest struct {
	Title       string `json:"title"`
	Instructor  string `json:"instructor"`
	LectureDate string `json:"lecture_date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	MaxCount    int    `json:"max_count"`
}

// RegisteredLecture summarises one lecture a user is enrolled in.
type RegisteredLecture struct {
	LectureID  int64  `json:"lectureId"`
	Title      string `json:"title"`
	Instructor string `json:"instructor"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
