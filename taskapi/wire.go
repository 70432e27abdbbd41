package taskapi

import (
	"bytes"
	"errors"
	"time"

	"github.com/bytedance/sonic"

	"prism-board/domain"
)

var errMissingTasks = errors.New("response has no tasks array")

// wireTask is the task shape on the wire. Older deployments of the service
// still emit Mongo-style _id and userId keys.
type wireTask struct {
	ID          string          `json:"id"`
	LegacyID    string          `json:"_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Status      domain.Status   `json:"status"`
	Priority    domain.Priority `json:"priority"`
	DueDate     *time.Time      `json:"dueDate"`
	OwnerID     string          `json:"ownerId"`
	UserID      string          `json:"userId"`
}

func (w wireTask) task() (domain.Task, error) {
	t := domain.Task{
		ID:          w.ID,
		Title:       w.Title,
		Description: w.Description,
		Status:      w.Status,
		Priority:    w.Priority,
		DueDate:     w.DueDate,
		OwnerID:     w.OwnerID,
	}
	if t.ID == "" {
		t.ID = w.LegacyID
	}
	if t.OwnerID == "" {
		t.OwnerID = w.UserID
	}
	if t.ID == "" {
		return domain.Task{}, errors.New("task without id")
	}
	if !t.Status.Valid() {
		return domain.Task{}, errors.New("task " + t.ID + " has no status")
	}
	if t.Priority == "" {
		t.Priority = domain.PriorityLow
	}
	return t, nil
}

func decodeTask(data []byte) (domain.Task, error) {
	var w wireTask
	if err := sonic.ConfigStd.Unmarshal(data, &w); err != nil {
		return domain.Task{}, err
	}
	return w.task()
}

// decodeTaskList accepts {"tasks": [...]} as well as a bare array.
func decodeTaskList(data []byte) ([]domain.Task, error) {
	var items []wireTask
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := sonic.ConfigStd.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
	} else {
		var envelope struct {
			Tasks *[]wireTask `json:"tasks"`
		}
		if err := sonic.ConfigStd.Unmarshal(trimmed, &envelope); err != nil {
			return nil, err
		}
		if envelope.Tasks == nil {
			return nil, errMissingTasks
		}
		items = *envelope.Tasks
	}

	tasks := make([]domain.Task, 0, len(items))
	for _, w := range items {
		t, err := w.task()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
