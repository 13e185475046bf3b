package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"safetrader/src/manager"
	"safetrader/src/model"
	"safetrader/src/risk"
	"safetrader/src/safety"
)

// Test index:
// 1. TestHealthcheck
// 2. TestStatusEndpoint
// 3. TestMetricsEndpoint

type stubTrackers struct {
	trackers []manager.Tracker
}

var _ positionTracker = (*stubTrackers)(nil)

func (s *stubTrackers) Trackers() []manager.Tracker { return s.trackers }

type stubSyncer struct {
	report safety.Report
	at     time.Time
}

var _ syncReporter = (*stubSyncer)(nil)

func (s *stubSyncer) LastReport() (safety.Report, time.Time) { return s.report, s.at }

type stubLedger struct {
	stats risk.Stats
}

var _ ledgerStats = (*stubLedger)(nil)

func (s *stubLedger) Stats() risk.Stats { return s.stats }

type stubLoop struct {
	halted bool
}

var _ haltReporter = (*stubLoop)(nil)

func (s *stubLoop) Halted() bool { return s.halted }

func newTestServer() (*httptest.Server, *stubLoop) {
	loop := &stubLoop{}
	trackers := &stubTrackers{trackers: []manager.Tracker{{
		Symbol:     "BTCUSDT",
		Side:       model.PositionSideLong,
		EntryPrice: decimal.RequireFromString("50000"),
		Quantity:   decimal.RequireFromString("0.5"),
		Extreme:    decimal.RequireFromString("51000"),
		TPState:    manager.TPIdle,
	}}}
	syncer := &stubSyncer{
		report: safety.Report{Checked: 1, AllSynced: true},
		at:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	ledger := &stubLedger{stats: risk.Stats{Trades: 4, Wins: 3}}

	return httptest.NewServer(newRouter(trackers, syncer, ledger, loop)), loop
}

func TestHealthcheck(t *testing.T) {
	srv, _ := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthcheck")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	srv, loop := newTestServer()
	defer srv.Close()
	loop.halted = true

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var status Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))

	require.True(t, status.Halted)
	require.Len(t, status.Trackers, 1)
	require.Equal(t, "BTCUSDT", status.Trackers[0].Symbol)
	require.True(t, status.SyncReport.AllSynced)
	require.Equal(t, 4, status.Ledger.Trades)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
}
