package domain

import (
	"strconv"
	"strings"
	"time"
)

// Status is the board column a task lives in.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Statuses lists the board columns in display order.
var Statuses = [...]Status{StatusTodo, StatusInProgress, StatusCompleted}

// Priority ranks a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Task represents a single board item as returned by the remote service.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	OwnerID     string     `json:"ownerId"`
}

// TaskFields carries the attributes of a task to be created.
type TaskFields struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	OwnerID     string     `json:"ownerId"`
}

// TaskPatch carries a partial update. Nil fields are left unchanged.
// OwnerID is immutable and therefore absent.
type TaskPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Status      *Status    `json:"status,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

var statusAliases = map[string]Status{
	"todo":        StatusTodo,
	"to do":       StatusTodo,
	"to_do":       StatusTodo,
	"in_progress": StatusInProgress,
	"in progress": StatusInProgress,
	"inprogress":  StatusInProgress,
	"completed":   StatusCompleted,
}

// ParseStatus accepts the canonical values as well as the labels used by the
// web client ("To Do", "In Progress", "inProgress", ...).
func ParseStatus(s string) (Status, error) {
	if st, ok := statusAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st, nil
	}
	return "", &ValidationError{Field: "status", Message: "unknown status " + strconv.Quote(s)}
}

// ParsePriority is case-insensitive.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	}
	return "", &ValidationError{Field: "priority", Message: "unknown priority " + strconv.Quote(s)}
}

// Valid reports whether s is one of the canonical statuses.
func (s Status) Valid() bool {
	return s == StatusTodo || s == StatusInProgress || s == StatusCompleted
}

// Valid reports whether p is one of the canonical priorities.
func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// UnmarshalText normalizes wire labels into the canonical status.
func (s *Status) UnmarshalText(b []byte) error {
	st, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// UnmarshalText normalizes wire labels into the canonical priority.
func (p *Priority) UnmarshalText(b []byte) error {
	pr, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = pr
	return nil
}

// Validate checks the fields of a task about to be created. Missing status
// and priority default to todo and low, as the web form does.
func (f *TaskFields) Validate() error {
	f.Title = strings.TrimSpace(f.Title)
	if f.Title == "" {
		return &ValidationError{Field: "title", Message: "title is required"}
	}
	if f.Status == "" {
		f.Status = StatusTodo
	}
	if !f.Status.Valid() {
		return &ValidationError{Field: "status", Message: "unknown status " + strconv.Quote(string(f.Status))}
	}
	if f.Priority == "" {
		f.Priority = PriorityLow
	}
	if !f.Priority.Valid() {
		return &ValidationError{Field: "priority", Message: "unknown priority " + strconv.Quote(string(f.Priority))}
	}
	if f.OwnerID == "" {
		return &ValidationError{Field: "ownerId", Message: "owner is required"}
	}
	return nil
}

// Validate checks the fields present in the patch.
func (p TaskPatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return &ValidationError{Field: "title", Message: "title must not be empty"}
	}
	if p.Status != nil && !p.Status.Valid() {
		return &ValidationError{Field: "status", Message: "unknown status " + strconv.Quote(string(*p.Status))}
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return &ValidationError{Field: "priority", Message: "unknown priority " + strconv.Quote(string(*p.Priority))}
	}
	if p.Empty() {
		return &ValidationError{Message: "patch is empty"}
	}
	return nil
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && p.Priority == nil && p.DueDate == nil
}
