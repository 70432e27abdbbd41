package taskapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"prism-board/domain"
	"prism-board/mockapi"
)

type staticTokens struct {
	mu          sync.Mutex
	token       string
	err         error
	invalidated []string
}

func (s *staticTokens) CurrentToken(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.err
}

func (s *staticTokens) Invalidate(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = append(s.invalidated, token)
	return nil
}

type fixture struct {
	api    *mockapi.Server
	client *Client
	tokens *staticTokens
	userID string
	hook   *test.Hook
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, hook := test.NewNullLogger()
	api := mockapi.New(mockapi.NewStore(), mockapi.NewAuth([]byte("mock-secret"), time.Hour), logger)
	userID, err := api.Store().AddUser("ada@example.com", "Ada", "secret1")
	if err != nil {
		t.Fatalf("add user: %v", err)
	}
	token, err := api.Auth().Issue(userID, "ada@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	tokens := &staticTokens{token: token}
	return &fixture{
		api:    api,
		client: New(srv.URL, tokens, srv.Client(), logger),
		tokens: tokens,
		userID: userID,
		hook:   hook,
	}
}

func (f *fixture) seed(tasks ...domain.Task) {
	for i := range tasks {
		tasks[i].OwnerID = f.userID
	}
	f.api.Store().Seed(tasks...)
}

func TestListDecodesLegacyWire(t *testing.T) {
	f := newFixture(t)
	f.seed(
		domain.Task{ID: "t1", Title: "one", Status: domain.StatusTodo, Priority: domain.PriorityHigh},
		domain.Task{ID: "t2", Title: "two", Status: domain.StatusInProgress, Priority: domain.PriorityLow},
		domain.Task{ID: "t3", Title: "three", Status: domain.StatusCompleted, Priority: domain.PriorityMedium},
	)

	tasks, err := f.client.List(context.Background(), domain.Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}
	want := []domain.Status{domain.StatusTodo, domain.StatusInProgress, domain.StatusCompleted}
	for i, task := range tasks {
		if task.Status != want[i] {
			t.Fatalf("task %d: status %q, want %q", i, task.Status, want[i])
		}
		if task.OwnerID != f.userID {
			t.Fatalf("task %d: owner %q not mapped from userId", i, task.OwnerID)
		}
	}
	if tasks[0].ID != "t1" || tasks[2].ID != "t3" {
		t.Fatalf("server order not preserved: %#v", tasks)
	}
}

func TestListSendsFilter(t *testing.T) {
	f := newFixture(t)
	f.seed(
		domain.Task{ID: "t1", Title: "one", Status: domain.StatusTodo, Priority: domain.PriorityHigh},
		domain.Task{ID: "t2", Title: "two", Status: domain.StatusTodo, Priority: domain.PriorityLow},
		domain.Task{ID: "t3", Title: "three", Status: domain.StatusCompleted, Priority: domain.PriorityHigh},
	)

	tasks, err := f.client.List(context.Background(), domain.Filter{Status: domain.StatusTodo, Priority: domain.PriorityHigh})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "t1" {
		t.Fatalf("unexpected filtered tasks %#v", tasks)
	}
}

func TestCreateUpdatePatchDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.client.Create(ctx, domain.TaskFields{Title: "  plan sprint ", Priority: domain.PriorityMedium, OwnerID: f.userID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || created.Title != "plan sprint" || created.Status != domain.StatusTodo {
		t.Fatalf("unexpected created task %#v", created)
	}

	moved, err := f.client.UpdateStatus(ctx, created.ID, domain.StatusInProgress)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if moved.Status != domain.StatusInProgress {
		t.Fatalf("unexpected status %q", moved.Status)
	}

	title := "plan sprint 12"
	patched, err := f.client.Patch(ctx, created.ID, domain.TaskPatch{Title: &title})
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if patched.Title != title || patched.Status != domain.StatusInProgress {
		t.Fatalf("unexpected patched task %#v", patched)
	}

	if err := f.client.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if left := f.api.Store().Tasks(f.userID); len(left) != 0 {
		t.Fatalf("expected empty store, got %#v", left)
	}
}

func TestValidationHappensBeforeNetwork(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer srv.Close()
	c := New(srv.URL, &staticTokens{token: "a.b.c"}, srv.Client(), nil)
	ctx := context.Background()
	empty := ""

	tests := []struct {
		name string
		call func() error
	}{
		{name: "create without title", call: func() error {
			_, err := c.Create(ctx, domain.TaskFields{Title: " ", OwnerID: "u"})
			return err
		}},
		{name: "create without owner", call: func() error {
			_, err := c.Create(ctx, domain.TaskFields{Title: "x"})
			return err
		}},
		{name: "bad status", call: func() error {
			_, err := c.UpdateStatus(ctx, "t1", domain.Status("later"))
			return err
		}},
		{name: "empty id", call: func() error { return c.Delete(ctx, "  ") }},
		{name: "empty patch", call: func() error {
			_, err := c.Patch(ctx, "t1", domain.TaskPatch{})
			return err
		}},
		{name: "blank patch title", call: func() error {
			_, err := c.Patch(ctx, "t1", domain.TaskPatch{Title: &empty})
			return err
		}},
		{name: "bad filter", call: func() error {
			_, err := c.List(ctx, domain.Filter{Priority: "urgent"})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var verr *domain.ValidationError
			if err := tt.call(); !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	if hits != 0 {
		t.Fatalf("expected no requests, got %d", hits)
	}
}

func TestAuthFailureSkipsNetwork(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer srv.Close()
	c := New(srv.URL, &staticTokens{err: &domain.AuthError{Reason: domain.Expired}}, srv.Client(), nil)

	_, err := c.List(context.Background(), domain.Filter{})
	var authErr *domain.AuthError
	if !errors.As(err, &authErr) || authErr.Reason != domain.Expired {
		t.Fatalf("expected expired auth error, got %v", err)
	}
	if hits != 0 {
		t.Fatalf("expected no requests, got %d", hits)
	}
}

func TestRemoteErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(domain.Task{ID: "t1", Title: "one", Status: domain.StatusTodo, Priority: domain.PriorityLow})

	f.api.FailNext(http.MethodPut, "/tasks/:id", http.StatusInternalServerError, "database unavailable")
	_, err := f.client.UpdateStatus(ctx, "t1", domain.StatusCompleted)
	var remote *domain.RemoteError
	if !errors.As(err, &remote) || remote.StatusCode != http.StatusInternalServerError || remote.Message != "database unavailable" {
		t.Fatalf("unexpected error %v", err)
	}

	err = f.client.Delete(ctx, "missing")
	if !errors.As(err, &remote) || remote.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 remote error, got %v", err)
	}
	if len(f.tokens.invalidated) != 0 {
		t.Fatalf("non-auth failures must not invalidate the session")
	}
}

func TestUnauthorizedInvalidatesSession(t *testing.T) {
	f := newFixture(t)
	token := f.tokens.token
	f.api.FailNext(http.MethodGet, "/tasks", http.StatusUnauthorized, "jwt revoked")

	_, err := f.client.List(context.Background(), domain.Filter{})
	var authErr *domain.AuthError
	if !errors.As(err, &authErr) || authErr.Reason != domain.Unauthenticated {
		t.Fatalf("expected unauthenticated error, got %v", err)
	}
	var remote *domain.RemoteError
	if !errors.As(err, &remote) || remote.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected wrapped 401, got %v", err)
	}
	if len(f.tokens.invalidated) != 1 || f.tokens.invalidated[0] != token {
		t.Fatalf("expected session invalidation for %q, got %#v", token, f.tokens.invalidated)
	}
}

func TestTransportFailureAndTimeout(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := dead.URL
	dead.Close()

	c := New(url, &staticTokens{token: "a.b.c"}, nil, nil)
	_, err := c.List(context.Background(), domain.Filter{})
	var remote *domain.RemoteError
	if !errors.As(err, &remote) || remote.StatusCode != 0 {
		t.Fatalf("expected transport error, got %v", err)
	}

	f := newFixture(t)
	f.api.InjectFault(http.MethodGet, "/tasks", mockapi.Fault{Delay: 200 * time.Millisecond})
	f.client.HTTP.Timeout = 20 * time.Millisecond
	_, err = f.client.List(context.Background(), domain.Filter{})
	if !errors.As(err, &remote) || remote.StatusCode != 0 || remote.Message != "request timed out" {
		t.Fatalf("expected timeout remote error, got %v", err)
	}
}

func TestListShapes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{name: "envelope", body: `{"tasks":[{"id":"a","title":"A","status":"todo","priority":"low","ownerId":"u"}]}`, want: 1},
		{name: "bare array", body: `[{"_id":"a","title":"A","status":"To Do","priority":"low","userId":"u"},{"_id":"b","title":"B","status":"inProgress","priority":"high","userId":"u"}]`, want: 2},
		{name: "empty envelope", body: `{"tasks":[]}`, want: 0},
		{name: "missing tasks", body: `{"items":[]}`, wantErr: true},
		{name: "unknown status", body: `{"tasks":[{"id":"a","title":"A","status":"someday","priority":"low"}]}`, wantErr: true},
		{name: "missing id", body: `{"tasks":[{"title":"A","status":"todo","priority":"low"}]}`, wantErr: true},
		{name: "not json", body: `<html>`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get("Authorization"); got != "Bearer a.b.c" {
					t.Errorf("unexpected authorization %q", got)
				}
				if r.Header.Get(requestIDHead) == "" {
					t.Errorf("missing request id")
				}
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c := New(srv.URL, &staticTokens{token: "a.b.c"}, srv.Client(), nil)
			tasks, err := c.List(context.Background(), domain.Filter{})
			if tt.wantErr {
				var remote *domain.RemoteError
				if !errors.As(err, &remote) || remote.StatusCode != http.StatusOK {
					t.Fatalf("expected decode remote error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(tasks) != tt.want {
				t.Fatalf("expected %d tasks, got %d", tt.want, len(tasks))
			}
		})
	}
}

func TestDeleteIgnoresBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.EscapedPath() != "/tasks/a%2Fb" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.String())
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, &staticTokens{token: "a.b.c"}, srv.Client(), nil)
	if err := c.Delete(context.Background(), "a/b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}
