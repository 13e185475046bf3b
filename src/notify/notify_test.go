package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"safetrader/src/model"
)

func TestNotifyPostsEvent(t *testing.T) {
	var received model.Event
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewNotifier(Config{WebhookURL: server.URL, TimeoutSec: 5})
	n.Notify(context.Background(), model.Event{Title: "Entry protected", Body: "BTCUSDT", Severity: model.SeveritySuccess})

	require.Equal(t, "Entry protected", received.Title)
	require.Equal(t, model.SeveritySuccess, received.Severity)
}

func TestNotifyDisabledWithoutURL(t *testing.T) {
	n := NewNotifier(Config{TimeoutSec: 5})
	// Must not panic or block.
	n.Notify(context.Background(), model.Event{Title: "ignored"})
}

func TestNotifyServerErrorSwallowed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	n := NewNotifier(Config{WebhookURL: server.URL, TimeoutSec: 5})
	// Best-effort: no error surfaces.
	n.Notify(context.Background(), model.Event{Title: "Entry protected"})
}
