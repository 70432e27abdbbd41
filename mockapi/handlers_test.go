package mockapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"prism-board/domain"
)

func newTestServer(t *testing.T) (*Server, string, string) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	srv := New(NewStore(), NewAuth([]byte("mock-secret"), time.Hour), logger)
	userID, err := srv.Store().AddUser("ada@example.com", "Ada", "secret1")
	if err != nil {
		t.Fatalf("add user: %v", err)
	}
	token, err := srv.Auth().Issue(userID, "ada@example.com")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return srv, userID, token
}

func do(t *testing.T, srv *Server, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestLogin(t *testing.T) {
	srv, userID, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/users/login", "", `{"email":"ada@example.com","password":"secret1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	if err := sonic.ConfigStd.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.User.ID != userID {
		t.Fatalf("unexpected user %#v", resp.User)
	}
	if got, err := srv.Auth().UserIDFromAuthHeader("Bearer " + resp.Token); err != nil || got != userID {
		t.Fatalf("issued token does not verify: %q %v", got, err)
	}

	rec = do(t, srv, http.MethodPost, "/users/login", "", `{"email":"ada@example.com","password":"wrong"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 got %d", rec.Code)
	}
}

func TestTasksRequireAuth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	tests := []struct {
		name   string
		header string
	}{
		{name: "missing", header: ""},
		{name: "not bearer", header: "Basic abc"},
		{name: "garbage", header: "Bearer abc"},
		{name: "wrong key", header: "Bearer eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ4In0.c2ln"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected status 401 got %d", rec.Code)
			}
		})
	}
}

func TestCreateListAndFilter(t *testing.T) {
	srv, userID, token := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/tasks", token, `{"title":"write report","status":"In Progress","priority":"High"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d: %s", rec.Code, rec.Body.String())
	}
	var created legacyTask
	if err := sonic.ConfigStd.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" || created.UserID != userID || created.Status != "In Progress" || created.Priority != domain.PriorityHigh {
		t.Fatalf("unexpected created task %#v", created)
	}
	do(t, srv, http.MethodPost, "/tasks", token, `{"title":"water plants"}`)

	rec = do(t, srv, http.MethodGet, "/tasks", token, "")
	var all tasksResponse
	if err := sonic.ConfigStd.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(all.Tasks) != 2 || all.Tasks[0].ID != created.ID {
		t.Fatalf("unexpected list %#v", all.Tasks)
	}
	if all.Tasks[1].Status != "To Do" || all.Tasks[1].Priority != domain.PriorityLow {
		t.Fatalf("expected defaults on second task, got %#v", all.Tasks[1])
	}

	rec = do(t, srv, http.MethodGet, "/tasks?status=todo", token, "")
	var filtered tasksResponse
	if err := sonic.ConfigStd.Unmarshal(rec.Body.Bytes(), &filtered); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(filtered.Tasks) != 1 || filtered.Tasks[0].Title != "water plants" {
		t.Fatalf("unexpected filtered list %#v", filtered.Tasks)
	}

	rec = do(t, srv, http.MethodGet, "/tasks?status=someday", token, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for unknown filter got %d", rec.Code)
	}
}

func TestCreateRejectsInvalidBody(t *testing.T) {
	srv, _, token := newTestServer(t)
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "empty title", body: `{"title":"  "}`, want: http.StatusBadRequest},
		{name: "bad status", body: `{"title":"x","status":"later"}`, want: http.StatusBadRequest},
		{name: "unknown field", body: `{"title":"x","color":"red"}`, want: http.StatusBadRequest},
		{name: "foreign owner", body: `{"title":"x","ownerId":"someone-else"}`, want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/tasks", token, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected status %d got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestUpdateAndDelete(t *testing.T) {
	srv, userID, token := newTestServer(t)
	srv.Store().Seed(
		domain.Task{ID: "t1", Title: "one", Status: domain.StatusTodo, Priority: domain.PriorityLow, OwnerID: userID},
		domain.Task{ID: "t2", Title: "theirs", Status: domain.StatusTodo, Priority: domain.PriorityLow, OwnerID: "other"},
	)

	rec := do(t, srv, http.MethodPut, "/tasks/t1", token, `{"status":"completed"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"Completed"`) {
		t.Fatalf("unexpected put response %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, srv, http.MethodPatch, "/tasks/t1", token, `{"title":"renamed","priority":"medium"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected patch status %d", rec.Code)
	}
	got := srv.Store().Tasks(userID)
	if len(got) != 1 || got[0].Title != "renamed" || got[0].Status != domain.StatusCompleted || got[0].Priority != domain.PriorityMedium {
		t.Fatalf("unexpected stored task %#v", got)
	}

	if rec := do(t, srv, http.MethodPut, "/tasks/t2", token, `{"status":"completed"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign task got %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodDelete, "/tasks/t1", token, ""); rec.Code != http.StatusOK {
		t.Fatalf("expected delete 200 got %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodDelete, "/tasks/t1", token, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected second delete 404 got %d", rec.Code)
	}
}

func TestFailNext(t *testing.T) {
	srv, userID, token := newTestServer(t)
	srv.Store().Seed(domain.Task{ID: "t1", Title: "one", Status: domain.StatusTodo, Priority: domain.PriorityLow, OwnerID: userID})
	srv.FailNext(http.MethodPut, "/tasks/:id", http.StatusInternalServerError, "boom")

	rec := do(t, srv, http.MethodPut, "/tasks/t1", token, `{"status":"completed"}`)
	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), "boom") {
		t.Fatalf("expected injected failure, got %d %s", rec.Code, rec.Body.String())
	}
	if srv.Store().Tasks(userID)[0].Status != domain.StatusTodo {
		t.Fatalf("failed request must not change the store")
	}

	rec = do(t, srv, http.MethodPut, "/tasks/t1", token, `{"status":"completed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("fault should fire once, got %d", rec.Code)
	}
}

func TestRequestLogging(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	srv := New(nil, NewAuth([]byte("k"), time.Minute), logger)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-1")
	srv.ServeHTTP(httptest.NewRecorder(), req)

	entry := hook.LastEntry()
	if entry == nil || entry.Message != "mockapi.request" {
		t.Fatalf("expected request log entry, got %#v", entry)
	}
	if entry.Data["route"] != "/healthz" || entry.Data["status"] != http.StatusOK || entry.Data["request_id"] != "req-1" {
		t.Fatalf("unexpected fields %#v", entry.Data)
	}
}
