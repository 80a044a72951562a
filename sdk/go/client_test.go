package collabsdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab/internal/domain"
)

type fakeSession struct {
	mu      sync.Mutex
	token   string
	cleared int
}

func (f *fakeSession) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeSession) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = ""
	f.cleared++
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestBearerAttachedOnlyWithSession(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		writeJSON(w, http.StatusOK, []domain.Project{})
	}))
	defer srv.Close()

	sess := &fakeSession{}
	c := New(srv.URL+"/api", WithSession(sess))
	_, err := c.Projects.List(context.Background())
	require.NoError(t, err)

	sess.token = "abc"
	_, err = c.Projects.List(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"", "Bearer abc"}, got)
}

func TestSuccessPayloadDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tasks/9/status", r.URL.Path)
		assert.Equal(t, "IN_PROGRESS", r.URL.Query().Get("status"))
		assert.Equal(t, http.MethodPut, r.Method)
		writeJSON(w, http.StatusOK, map[string]any{
			"id": 9, "title": "Write docs", "projectId": 3, "status": "IN_PROGRESS",
			"deadline":   "2026-11-01T00:00:00Z",
			"assignedTo": map[string]any{"id": 4, "firstName": "Bo", "lastName": "Li", "email": "bo@x.com"},
		})
	}))
	defer srv.Close()

	task, err := New(srv.URL+"/api").Tasks.UpdateStatus(context.Background(), 9, domain.TaskInProgress)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskInProgress, task.Status)
	assert.Equal(t, int64(4), task.AssignedTo.ID)
	require.NotNil(t, task.Deadline)
	assert.Equal(t, "2026-11-01", task.Deadline.String())
}

func TestRejectedCarriesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid email or password"})
		case "/projects/1":
			writeJSON(w, http.StatusForbidden, map[string]any{"error": map[string]any{"code": "forbidden", "message": "not a member"}})
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	sess := &fakeSession{token: "abc"}
	hookCalls := 0
	c := New(srv.URL, WithSession(sess), WithAuthLost(func() { hookCalls++ }))

	_, err := c.Auth.Login(context.Background(), LoginRequest{Email: "a@x.com", Password: "nope"})
	var re *RejectedError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusUnauthorized, re.StatusCode)
	assert.Equal(t, "Invalid email or password", err.Error())
	assert.False(t, errors.Is(err, ErrUnauthorized), "login never carries a credential")
	assert.Equal(t, 0, sess.cleared)
	assert.Equal(t, 0, hookCalls)

	_, err = c.Projects.Get(context.Background(), 1)
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "forbidden", re.Code)
	assert.Equal(t, "not a member", re.Message)
	assert.True(t, IsForbidden(err))

	_, err = c.Projects.List(context.Background())
	assert.Equal(t, "could not load projects", err.Error())
}

func TestUnauthorizedEndsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"code": "unauthorized", "message": "token expired"})
	}))
	defer srv.Close()

	sess := &fakeSession{token: "stale"}
	signalled := 0
	c := New(srv.URL, WithSession(sess), WithAuthLost(func() { signalled++ }))

	_, err := c.Invitations.List(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, "", sess.Token())
	assert.Equal(t, 1, sess.cleared)
	assert.Equal(t, 1, signalled)

	// once the session is gone further 401s are plain rejections
	_, err = c.Tasks.ListMine(context.Background())
	assert.False(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, 1, signalled)
}

func TestUnreachableWithinTimeout(t *testing.T) {
	block := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer slow.Close()
	defer close(block)

	c := New(slow.URL, WithTimeout(150*time.Millisecond))
	start := time.Now()
	_, err := c.Projects.List(context.Background())
	var ue *UnreachableError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, UnreachableMessage, err.Error())
	assert.Less(t, time.Since(start), 2*time.Second)

	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()
	err = New(closed.URL).Auth.Health(context.Background())
	require.True(t, errors.As(err, &ue))
}

func TestTimeoutAppliesToInjectedHTTPClient(t *testing.T) {
	block := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer slow.Close()
	defer close(block)

	injected := &http.Client{}
	c := New(slow.URL, WithHTTPClient(injected), WithTimeout(150*time.Millisecond))
	assert.Equal(t, 150*time.Millisecond, c.HTTPClient.Timeout)
	assert.Zero(t, injected.Timeout, "caller's client is left untouched")

	start := time.Now()
	_, err := c.Tasks.ListMine(context.Background())
	var ue *UnreachableError
	require.ErrorAs(t, err, &ue)
	assert.Less(t, time.Since(start), 2*time.Second)

	own := &http.Client{Timeout: time.Minute}
	assert.Same(t, own, New(slow.URL, WithHTTPClient(own)).HTTPClient)
}

func TestCallerCancellationIsNotAFailure(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	_, err := New(srv.URL).Projects.List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	var ue *UnreachableError
	assert.False(t, errors.As(err, &ue))
}

func TestCreateProjectSendsMemberEmails(t *testing.T) {
	var body CreateProjectRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, http.StatusOK, domain.Project{ID: 1, Name: body.Name})
	}))
	defer srv.Close()

	d, err := domain.ParseDate("2026-12-24")
	require.NoError(t, err)
	p, err := New(srv.URL).Projects.Create(context.Background(), CreateProjectRequest{
		Name: "Launch", Subject: "Q4", Deadline: &d, MemberEmails: []string{"a@x.com", "b@x.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ID)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, body.MemberEmails)
	require.NotNil(t, body.Deadline)
	assert.Equal(t, "2026-12-24", body.Deadline.String())
}
