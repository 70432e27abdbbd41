package mockapi

import (
	"time"

	"prism-board/domain"
)

// legacyTask is the document shape the task service has always served:
// Mongo-style ids, owner under userId and human status labels.
type legacyTask struct {
	ID          string          `json:"_id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Status      string          `json:"status"`
	Priority    domain.Priority `json:"priority"`
	DueDate     *time.Time      `json:"dueDate,omitempty"`
	UserID      string          `json:"userId"`
}

func statusLabel(s domain.Status) string {
	switch s {
	case domain.StatusTodo:
		return "To Do"
	case domain.StatusInProgress:
		return "In Progress"
	case domain.StatusCompleted:
		return "Completed"
	}
	return string(s)
}

func toLegacy(t domain.Task) legacyTask {
	return legacyTask{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      statusLabel(t.Status),
		Priority:    t.Priority,
		DueDate:     t.DueDate,
		UserID:      t.OwnerID,
	}
}

func toLegacyList(tasks []domain.Task) []legacyTask {
	out := make([]legacyTask, len(tasks))
	for i, t := range tasks {
		out[i] = toLegacy(t)
	}
	return out
}

type tasksResponse struct {
	Tasks []legacyTask `json:"tasks"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID    string `json:"_id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type messageResponse struct {
	Message string `json:"message"`
}
