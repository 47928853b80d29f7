// Package handlers exposes the HTTP endpoints of the emitter daemon.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/vespa-engine/metrics-emitter/journal"
	"github.com/vespa-engine/metrics-emitter/scheduler"
)

// InfoProvider is an interface for components to provide their specific information
type InfoProvider interface {
	GetInfo() interface{}
}

// RunStore serves recorded emit runs.
type RunStore interface {
	RecentRuns(ctx context.Context, limit int) ([]journal.Run, error)
}

// Trigger queues a manual run of a named job.
type Trigger interface {
	TriggerNow(name string) error
}

// HealthHandler returns a simple OK response for health checks
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprintln(w, "OK"); err != nil {
		log.Printf("Error writing health response: %v", err)
	}
}

// InfoHandler creates an HTTP handler for the /info endpoint
// It accepts an InfoProvider to get component-specific information
func InfoHandler(provider InfoProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info := provider.GetInfo()

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(info); err != nil {
			log.Printf("Error encoding info response: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
	}
}

// RunsHandler creates an HTTP handler for the /api/runs endpoint. It serves
// the most recent emit runs from the journal, newest first.
func RunsHandler(store RunStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
				return
			}
			if parsed > 500 {
				parsed = 500
			}
			limit = parsed
		}

		runs, err := store.RecentRuns(r.Context(), limit)
		if err != nil {
			log.Printf("Error reading runs: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		response := map[string]interface{}{
			"runs": runs,
		}
		if err := json.NewEncoder(w).Encode(response); err != nil {
			log.Printf("Error encoding runs response: %v", err)
		}
	}
}

// TriggerHandler creates an HTTP handler for the /api/emit/trigger endpoint.
// A POST queues an emit run outside the regular schedule.
func TriggerHandler(trigger Trigger, jobName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := trigger.TriggerNow(jobName); err != nil {
			log.Printf("Error triggering job %s: %v", jobName, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		response := map[string]string{
			"status": "triggered",
			"job":    jobName,
		}
		if err := json.NewEncoder(w).Encode(response); err != nil {
			log.Printf("Error encoding trigger response: %v", err)
		}
	}
}

// RegisterHandlers registers the standard emitter endpoints on the provided
// mux. The runs and trigger endpoints are only registered when their backends
// are present.
func RegisterHandlers(mux *http.ServeMux, provider InfoProvider, store RunStore, trigger Trigger, jobName string) {
	mux.HandleFunc("/health", HealthHandler)
	mux.HandleFunc("/info", InfoHandler(provider))
	if store != nil {
		mux.HandleFunc("/api/runs", RunsHandler(store))
	}
	if trigger != nil {
		mux.HandleFunc("/api/emit/trigger", TriggerHandler(trigger, jobName))
	}
}

var (
	_ RunStore = (*journal.Journal)(nil)
	_ Trigger  = (*scheduler.Scheduler)(nil)
)
