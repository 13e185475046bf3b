package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"

	"safetrader/src/manager"
	"safetrader/src/risk"
	"safetrader/src/safety"
)

type positionTracker interface {
	Trackers() []manager.Tracker
}

type syncReporter interface {
	LastReport() (safety.Report, time.Time)
}

type ledgerStats interface {
	Stats() risk.Stats
}

type haltReporter interface {
	Halted() bool
}

// Status is the JSON snapshot served on /status.
type Status struct {
	Halted     bool              `json:"halted"`
	Trackers   []manager.Tracker `json:"trackers"`
	SyncReport safety.Report     `json:"sync_report"`
	SyncAt     time.Time         `json:"sync_at"`
	Ledger     risk.Stats        `json:"ledger"`
}

func newRouter(trackers positionTracker, syncer syncReporter, ledger ledgerStats, loop haltReporter) *chi.Mux {
	r := chi.NewRouter()

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/healthcheck error")
		}
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		report, at := syncer.LastReport()
		status := Status{
			Halted:     loop.Halted(),
			Trackers:   trackers.Trackers(),
			SyncReport: report,
			SyncAt:     at,
			Ledger:     ledger.Stats(),
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			logger.WithError(err).Error(" \"/status error")
		}
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// StartServer serves health, status, and metrics until the context is
// cancelled, then shuts down gracefully.
func StartServer(ctx context.Context, port string, trackers positionTracker, syncer syncReporter, ledger ledgerStats, loop haltReporter) {
	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: newRouter(trackers, syncer, ledger, loop),
	}

	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	<-ctx.Done()

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
