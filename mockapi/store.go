package mockapi

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"prism-board/domain"
)

var (
	errTaskNotFound   = errors.New("task not found")
	errBadCredentials = errors.New("invalid credentials")
	errUserExists     = errors.New("user already exists")
)

type user struct {
	ID       string
	Email    string
	Name     string
	Password string
}

// Store is the in-memory task and user table behind the mock service.
// Tasks keep insertion order per owner.
type Store struct {
	mu    sync.Mutex
	users map[string]user
	tasks []domain.Task
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{users: make(map[string]user)}
}

// AddUser registers an account and returns its id.
func (s *Store) AddUser(email, name, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[email]; ok {
		return "", errUserExists
	}
	u := user{ID: uuid.NewString(), Email: email, Name: name, Password: password}
	s.users[email] = u
	return u.ID, nil
}

func (s *Store) authenticate(email, password string) (user, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.ToLower(strings.TrimSpace(email))]
	if !ok || u.Password != password {
		return user{}, errBadCredentials
	}
	return u, nil
}

// Seed inserts tasks as-is, keeping their ids. Tasks without an id get one.
func (s *Store) Seed(tasks ...domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tasks {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		s.tasks = append(s.tasks, t)
	}
}

// Tasks returns every stored task of owner, in insertion order.
func (s *Store) Tasks(owner string) []domain.Task {
	return s.list(owner, domain.Filter{})
}

func (s *Store) list(owner string, f domain.Filter) []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.OwnerID == owner && f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

func (s *Store) create(owner string, fields domain.TaskFields) domain.Task {
	t := domain.Task{
		ID:          uuid.NewString(),
		Title:       fields.Title,
		Description: fields.Description,
		Status:      fields.Status,
		Priority:    fields.Priority,
		DueDate:     fields.DueDate,
		OwnerID:     owner,
	}
	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()
	return t
}

func (s *Store) update(owner, id string, patch domain.TaskPatch) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(owner, id)
	if i < 0 {
		return domain.Task{}, errTaskNotFound
	}
	t := &s.tasks[i]
	if patch.Title != nil {
		t.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	if patch.Priority != nil {
		t.Priority = *patch.Priority
	}
	if patch.DueDate != nil {
		due := patch.DueDate.UTC().Truncate(time.Second)
		t.DueDate = &due
	}
	return *t, nil
}

func (s *Store) remove(owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(owner, id)
	if i < 0 {
		return errTaskNotFound
	}
	s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	return nil
}

func (s *Store) indexOf(owner, id string) int {
	for i, t := range s.tasks {
		if t.ID == id && t.OwnerID == owner {
			return i
		}
	}
	return -1
}
