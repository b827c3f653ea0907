package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventDispatcherPostsEvent(t *testing.T) {
	var received Event
	var apiKey string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("DD-API-KEY")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	d := NewEventDispatcher(server.URL, "key-123")
	alert := Alert{
		AlertID:  "alert_x",
		Title:    "[HIGH] Prompt Injection Detected",
		Message:  "details",
		Priority: PriorityP2,
		Source:   "llmguard",
		Tags:     map[string]string{"severity": "high"},
	}

	require.NoError(t, d.Dispatch(context.Background(), alert))
	assert.Equal(t, "key-123", apiKey)
	assert.Equal(t, alert.Title, received.Title)
	assert.Equal(t, "normal", received.Priority)
	assert.Equal(t, "error", received.AlertType)
}

func TestEventDispatcherErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	d := NewEventDispatcher(server.URL, "key-123")
	err := d.Dispatch(context.Background(), Alert{Priority: PriorityP3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestEventDispatcherRequiresAPIKey(t *testing.T) {
	d := NewEventDispatcher("http://localhost:0", "")
	assert.Error(t, d.Dispatch(context.Background(), Alert{Priority: PriorityP1}))
}

func TestNopDispatcher(t *testing.T) {
	d := NewNopDispatcher(nil)
	assert.NoError(t, d.Dispatch(context.Background(), Alert{Priority: PriorityP1}))
}
