package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bkonkle/taskdeck/internal/task"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", WithTimeout(5*time.Second))
}

func TestClient_ListTasks(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/tasks", r.URL.Path)
		require.Equal(t, "u1", r.URL.Query().Get("user_id"))
		_, _ = io.WriteString(w, `[
			{"id":"T1","agent_nickname":"bob","status":"QUEUED","created_at":"2026-01-01T00:00:00Z"},
			{"id":"T2","agent_nickname":"sue","status":"completed","result":"ok","created_at":"2026-01-01T00:00:01Z"}
		]`)
	})

	tasks, err := c.ListTasks(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Equal(t, task.StatusQueued, tasks[0].Status)
	require.Equal(t, "ok", task.Deref(tasks[1].Result))
}

func TestClient_GetTaskNotFound(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tasks/T%2F9", r.URL.EscapedPath())
		http.Error(w, "no such task", http.StatusNotFound)
	})

	_, err := c.GetTask(context.Background(), "T/9")
	require.Error(t, err)
	require.True(t, IsNotFound(err))

	var se *StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.MethodGet, se.Method)
	require.Contains(t, se.Error(), "no such task")
}

func TestClient_PurgeTasks(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, []string{"completed", "failed"}, r.URL.Query()["status"])
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.PurgeTasks(context.Background(), task.StatusCompleted, task.StatusFailed))
}

func TestClient_CreateTask(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body CreateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, CreateRequest{UserID: "u1", Text: "@bob hi", AgentID: "id-bob"}, body)

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"T3","agent_id":"id-bob","status":"queued","command_text":"@bob hi","created_at":"2026-01-01T00:00:00Z"}`)
	})

	created, err := c.CreateTask(context.Background(), CreateRequest{UserID: "u1", Text: "@bob hi", AgentID: "id-bob"})
	require.NoError(t, err)
	require.Equal(t, "T3", created.ID)
	require.Equal(t, "@bob hi", created.CommandText)
}

func TestClient_CreateTaskAccepted(t *testing.T) {
	for _, code := range []int{http.StatusCreated, http.StatusAccepted} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(code)
			})

			created, err := c.CreateTask(context.Background(), CreateRequest{UserID: "u1", Text: "@bob hi"})
			require.NoError(t, err)
			require.Empty(t, created.ID)
		})
	}
}

func TestClient_MalformedBodyIsError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":`)
	})

	_, err := c.CreateTask(context.Background(), CreateRequest{UserID: "u1", Text: "hi"})
	require.Error(t, err)
}

func TestWithTimeoutCopiesSharedClient(t *testing.T) {
	shared := &http.Client{Timeout: time.Minute}

	c := NewClient("http://backend", WithHTTPClient(shared), WithTimeout(time.Second))

	require.Equal(t, time.Minute, shared.Timeout)
	require.Equal(t, time.Second, c.httpClient.Timeout)
	require.NotSame(t, shared, c.httpClient)
}

func TestClient_UpdateTask(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.JSONEq(t, `{"status":"failed"}`, string(raw))
		_, _ = io.WriteString(w, `{"id":"T1","status":"failed","created_at":"2026-01-01T00:00:00Z"}`)
	})

	failed := task.StatusFailed
	updated, err := c.UpdateTask(context.Background(), "T1", UpdateRequest{Status: &failed})
	require.NoError(t, err)
	require.Equal(t, task.StatusFailed, updated.Status)
}

func TestClient_ListAgents(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/agents", r.URL.Path)
		_, _ = io.WriteString(w, `[{"id":"a1","nickname":"bob","specialization":"research","description":"digs"}]`)
	})

	workers, err := c.ListAgents(context.Background())
	require.NoError(t, err)
	require.Len(t, workers, 1)
	require.Equal(t, "bob", workers[0].Nickname)
}

func TestClient_SubmitFeedback(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tasks/T1/feedback", r.URL.Path)
		var body FeedbackRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, 4, body.Rating)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.SubmitFeedback(context.Background(), "T1", FeedbackRequest{Rating: 4}))
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).ListTasks(context.Background(), "u1")
	require.Error(t, err)
	require.False(t, IsNotFound(err))
}
