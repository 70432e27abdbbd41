package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"prism-board/domain"
	"prism-board/mockapi"
)

type cliFixture struct {
	api    *mockapi.Server
	userID string
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	api := mockapi.New(mockapi.NewStore(), mockapi.NewAuth([]byte("cli-secret"), time.Hour), logger)
	userID, err := api.Store().AddUser("ada@example.com", "Ada", "secret1")
	if err != nil {
		t.Fatalf("add user: %v", err)
	}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	for _, k := range []string{"PRISM_CONFIG", "PRISM_ENV_FILE", "REDIS_CONNECTION_STRING", "JWT_SECRET", "JWKS_URL", "JWT_AUDIENCE", "JWT_ISSUER", "DEBUG", "LOG_FORMAT", "CREDENTIAL_SLOT"} {
		t.Setenv(k, "")
	}
	t.Setenv("API_URL", srv.URL)
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("CREDENTIAL_BACKEND", "file")
	t.Setenv("CREDENTIAL_PATH", filepath.Join(t.TempDir(), "credential"))
	t.Setenv("TOKEN_VERIFICATION", "hs256")
	t.Setenv("JWT_SECRET", "cli-secret")
	return &cliFixture{api: api, userID: userID}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(""))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out
}

func TestCommandsRequireLogin(t *testing.T) {
	newCLIFixture(t)
	_, err := run(t, "board")
	var authErr *domain.AuthError
	if !errors.As(err, &authErr) || authErr.Reason != domain.Unauthenticated {
		t.Fatalf("expected unauthenticated error, got %v", err)
	}
	if out := mustRun(t, "whoami"); !strings.Contains(out, "Not signed in") {
		t.Fatalf("unexpected whoami output %q", out)
	}
}

func TestLoginBoardMoveListDelete(t *testing.T) {
	f := newCLIFixture(t)
	f.api.Store().Seed(
		domain.Task{ID: "t1", Title: "write brief", Status: domain.StatusTodo, Priority: domain.PriorityHigh, OwnerID: f.userID},
		domain.Task{ID: "t2", Title: "review", Status: domain.StatusInProgress, Priority: domain.PriorityLow, OwnerID: f.userID},
	)

	if _, err := run(t, "login", "-e", "ada@example.com", "-p", "wrong-password"); err == nil {
		t.Fatalf("expected login with wrong password to fail")
	}
	out := mustRun(t, "login", "-e", "ada@example.com", "-p", "secret1")
	if !strings.Contains(out, f.userID) {
		t.Fatalf("unexpected login output %q", out)
	}
	if out := mustRun(t, "whoami"); !strings.Contains(out, f.userID) {
		t.Fatalf("session not restored from file: %q", out)
	}

	out = mustRun(t, "board")
	if !strings.Contains(out, "== todo (1)") || !strings.Contains(out, "== in_progress (1)") {
		t.Fatalf("unexpected board output %q", out)
	}

	mustRun(t, "move", "t1", "Completed")
	if got := f.api.Store().Tasks(f.userID)[0].Status; got != domain.StatusCompleted {
		t.Fatalf("move not persisted, status %q", got)
	}

	f.api.FailNext("PUT", "/tasks/:id", 500, "boom")
	_, err := run(t, "move", "t2", "todo")
	var syncErr *domain.SyncError
	if !errors.As(err, &syncErr) || syncErr.TaskID != "t2" {
		t.Fatalf("expected sync error, got %v", err)
	}

	out = mustRun(t, "list", "--status", "completed")
	if !strings.Contains(out, "write brief") || strings.Contains(out, "review") {
		t.Fatalf("unexpected filtered list %q", out)
	}

	out = mustRun(t, "create", "plan", "sprint", "--priority", "medium", "--due", "2030-01-02")
	if !strings.HasPrefix(out, "Created ") {
		t.Fatalf("unexpected create output %q", out)
	}
	if n := len(f.api.Store().Tasks(f.userID)); n != 3 {
		t.Fatalf("expected 3 tasks after create, got %d", n)
	}

	mustRun(t, "delete", "t2")
	if _, err := run(t, "delete", "t2"); err == nil {
		t.Fatalf("expected second delete to fail")
	}

	mustRun(t, "logout")
	if out := mustRun(t, "whoami"); !strings.Contains(out, "Not signed in") {
		t.Fatalf("expected signed out, got %q", out)
	}
}

func TestEditCommand(t *testing.T) {
	f := newCLIFixture(t)
	f.api.Store().Seed(domain.Task{ID: "t1", Title: "draft", Description: "keep me", Status: domain.StatusTodo, Priority: domain.PriorityLow, OwnerID: f.userID})
	mustRun(t, "login", "-e", "ada@example.com", "-p", "secret1")

	if _, err := run(t, "edit", "t1"); err == nil {
		t.Fatalf("expected edit without flags to fail")
	}
	if _, err := run(t, "edit", "t1", "--priority", "urgent"); err == nil {
		t.Fatalf("expected unknown priority to fail")
	}

	out := mustRun(t, "edit", "t1", "--title", "final", "--priority", "high", "--status", "In Progress")
	if !strings.Contains(out, "Updated t1") {
		t.Fatalf("unexpected edit output %q", out)
	}
	got := f.api.Store().Tasks(f.userID)[0]
	if got.Title != "final" || got.Priority != domain.PriorityHigh || got.Status != domain.StatusInProgress {
		t.Fatalf("edit not persisted: %#v", got)
	}
	if got.Description != "keep me" {
		t.Fatalf("unset fields must be left alone, description %q", got.Description)
	}

	_, err := run(t, "edit", "missing", "--title", "x")
	var remote *domain.RemoteError
	if !errors.As(err, &remote) || remote.StatusCode != http.StatusNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestJSONOutput(t *testing.T) {
	f := newCLIFixture(t)
	f.api.Store().Seed(domain.Task{ID: "t1", Title: "a", Status: domain.StatusTodo, Priority: domain.PriorityLow, OwnerID: f.userID})
	mustRun(t, "login", "-e", "ada@example.com", "-p", "secret1")

	out := mustRun(t, "board", "-o", "json")
	if !strings.Contains(out, `"todo"`) || !strings.Contains(out, `"id": "t1"`) {
		t.Fatalf("unexpected json board %q", out)
	}
	if _, err := run(t, "board", "-o", "yaml"); err == nil {
		t.Fatalf("expected unsupported output to fail")
	}
}

func TestPlanMove(t *testing.T) {
	b, err := domain.NewBoard([]domain.Task{
		{ID: "a", Status: domain.StatusTodo},
		{ID: "b", Status: domain.StatusTodo},
		{ID: "c", Status: domain.StatusCompleted},
	})
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	tests := []struct {
		name    string
		id      string
		to      domain.Status
		index   int
		wantIdx int
		wantErr bool
	}{
		{name: "append to other column", id: "a", to: domain.StatusCompleted, index: -1, wantIdx: 1},
		{name: "explicit index", id: "a", to: domain.StatusCompleted, index: 0, wantIdx: 0},
		{name: "end of same column", id: "a", to: domain.StatusTodo, index: -1, wantIdx: 1},
		{name: "unknown task", id: "zzz", to: domain.StatusTodo, index: -1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := planMove(b, tt.id, tt.to, tt.index)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("plan: %v", err)
			}
			if m.ToIndex != tt.wantIdx || m.To != tt.to {
				t.Fatalf("unexpected move %#v", m)
			}
		})
	}
}
