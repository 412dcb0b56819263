// Package models defines the core domain entities: validation sessions,
// per-source results, scorecards, refinements, and improvements.
package models

import (
	"errors"
	"strings"
	"time"
)

// ErrEmptyIdea is returned when an idea is empty or whitespace only.
var ErrEmptyIdea = errors.New("idea must not be empty")

// Session is one validation of one idea. The idea text and assumptions
// are fixed at creation; refinements and per-source refreshes mutate the
// session's derived data, never the idea itself.
type Session struct {
	ID          string            `json:"id"`
	Idea        string            `json:"idea"`
	Assumptions map[string]string `json:"assumptions,omitempty"`
	Refinement  Refinement        `json:"refinement"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// Validate checks session field constraints.
func (s *Session) Validate() error {
	if s.ID == "" {
		return errors.New("session ID must not be empty")
	}
	if strings.TrimSpace(s.Idea) == "" {
		return ErrEmptyIdea
	}
	if s.CreatedAt.IsZero() {
		return errors.New("created at must be set")
	}
	if s.UpdatedAt.Before(s.CreatedAt) {
		return errors.New("updated at must be >= created at")
	}
	return nil
}

// SourceQuery is the immutable request issued to one source. A refresh
// issues a new query; queries are never edited in flight.
type SourceQuery struct {
	Source      Source            `json:"source"`
	Idea        string            `json:"idea"`
	Assumptions map[string]string `json:"assumptions,omitempty"`
}

// Validate checks query field constraints.
func (q *SourceQuery) Validate() error {
	if _, err := ParseSource(string(q.Source)); err != nil {
		return err
	}
	if strings.TrimSpace(q.Idea) == "" {
		return ErrEmptyIdea
	}
	return nil
}
