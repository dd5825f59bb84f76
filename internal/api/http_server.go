package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/Shoffly/dealer-visits/internal/config"
	"github.com/Shoffly/dealer-visits/internal/database"
	"github.com/Shoffly/dealer-visits/internal/domain"
	"github.com/Shoffly/dealer-visits/internal/metrics"
	"github.com/Shoffly/dealer-visits/internal/models"
	"github.com/Shoffly/dealer-visits/internal/service"

	"github.com/rs/zerolog"
)

// VisitExporter renders a visit list to a file and returns its path.
type VisitExporter interface {
	ExportVisits(ctx context.Context, visits []*models.Visit) (string, error)
}

// HTTPServer exposes the visit lifecycle and fleet read models over HTTP.
type HTTPServer struct {
	cfg      config.APIConfig
	visits   domain.VisitService
	fleet    domain.FleetService
	exporter VisitExporter
	server   *http.Server
	auth     *HTTPAuth
	log      zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, visits domain.VisitService, fleet domain.FleetService, exporter VisitExporter, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:      cfg,
		visits:   visits,
		fleet:    fleet,
		exporter: exporter,
		auth:     NewHTTPAuth(cfg),
		log:      logger.With().Str("component", "http_api").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/visits", srv.handleVisits)
	mux.HandleFunc("/api/v1/visits/active", srv.handleActiveVisits)
	mux.HandleFunc("/api/v1/visits/export", srv.handleExport)
	mux.HandleFunc("/api/v1/visits/meta", srv.handleVisitMeta)
	mux.HandleFunc("/api/v1/visits/", srv.handleVisitByID)
	mux.HandleFunc("/api/v1/fleet/locations", srv.handleFleetLocations)
	mux.HandleFunc("/api/v1/fleet/cars", srv.handleFleetCars)
	mux.HandleFunc("/api/v1/dealers", srv.handleDealers)
	mux.HandleFunc("/api/v1/queue", srv.handleQueue)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the fully wired handler chain, used by tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

type openVisitRequest struct {
	CarName           string `json:"car_name"`
	RequestID         string `json:"request_id"`
	DealerName        string `json:"dealer_name"`
	DealerPhoneNumber string `json:"dealer_phone_number"`
	VisitDate         string `json:"visit_date"`
	TimeSlot          string `json:"time_slot"`
	CarLocation       string `json:"car_location"`
	AgentName         string `json:"agent_name"`
	Notes             string `json:"notes"`
}

func (s *HTTPServer) handleVisits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("open_visit")

	var body openVisitRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	visitDate, err := parseDate(body.VisitDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid visit_date; expected YYYY-MM-DD")
		return
	}

	draft := &models.VisitDraft{
		CarName:           body.CarName,
		RequestID:         body.RequestID,
		DealerName:        body.DealerName,
		DealerPhoneNumber: body.DealerPhoneNumber,
		VisitDate:         visitDate,
		TimeSlot:          body.TimeSlot,
		CarLocation:       body.CarLocation,
		AgentName:         body.AgentName,
		Notes:             body.Notes,
	}

	visit, err := s.visits.OpenVisit(r.Context(), draft)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"visit": visit})
}

func (s *HTTPServer) handleVisitByID(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/v1/visits/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		s.handleGetVisit(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "confirm":
		s.handleConfirm(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "cancel":
		s.handleCancel(w, r, parts[0])
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) handleGetVisit(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("get_visit")

	visit, err := s.visits.GetVisit(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "visit not found")
			return
		}
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"visit": visit})
}

func (s *HTTPServer) handleConfirm(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("confirm_visit")

	var body struct {
		ConfirmedBy string `json:"confirmed_by"`
		Note        string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	outcome, err := s.visits.ConfirmVisit(r.Context(), id, body.ConfirmedBy, body.Note)
	s.writeOutcome(w, outcome, err)
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("cancel_visit")

	var body struct {
		CancelledBy string `json:"cancelled_by"`
		Reason      string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	outcome, err := s.visits.CancelVisit(r.Context(), id, body.CancelledBy, body.Reason)
	s.writeOutcome(w, outcome, err)
}

// writeOutcome maps transition results onto status codes. A lost
// conditional update is not an error, it comes back as 409 so callers
// can tell it apart from a validation failure.
func (s *HTTPServer) writeOutcome(w http.ResponseWriter, outcome models.Outcome, err error) {
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if outcome == models.OutcomeConflict {
		writeJSON(w, http.StatusConflict, map[string]string{"outcome": outcome.String()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"outcome": outcome.String()})
}

func (s *HTTPServer) handleActiveVisits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("list_active_visits")

	visits, err := s.visits.ListActiveVisits(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	dealer := strings.TrimSpace(r.URL.Query().Get("dealer"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))

	var date time.Time
	if dateStr != "" {
		var err error
		date, err = parseDate(dateStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date; expected YYYY-MM-DD")
			return
		}
	}

	filtered := make([]*models.Visit, 0, len(visits))
	for _, v := range visits {
		if dealer != "" && !strings.EqualFold(v.DealerName, dealer) {
			continue
		}
		if dateStr != "" && !sameDay(v.VisitDate, date) {
			continue
		}
		filtered = append(filtered, v)
	}

	writeJSON(w, http.StatusOK, map[string]any{"visits": filtered})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "export is not configured")
		return
	}
	metrics.IncHTTP("export_visits")

	visits, err := s.visits.ListActiveVisits(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	path, err := s.exporter.ExportVisits(r.Context(), visits)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to export visits")
		writeError(w, http.StatusInternalServerError, "failed to export visits")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	http.ServeFile(w, r, path)
}

// handleVisitMeta serves the static catalogues the booking forms are
// populated from.
func (s *HTTPServer) handleVisitMeta(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("visit_meta")

	writeJSON(w, http.StatusOK, map[string]any{
		"time_slots":     models.TimeSlots,
		"cancel_reasons": models.CancelReasons,
	})
}

func (s *HTTPServer) handleFleetLocations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("fleet_locations")

	day := time.Now()
	if dateStr := strings.TrimSpace(r.URL.Query().Get("date")); dateStr != "" {
		var err error
		day, err = parseDate(dateStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date; expected YYYY-MM-DD")
			return
		}
	}

	locations, err := s.fleet.CarLocations(r.Context(), day)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	counts := make(map[string]int, 8)
	for _, location := range locations {
		counts[location]++
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"date":      day.Format("2006-01-02"),
		"locations": locations,
		"counts":    counts,
	})
}

func (s *HTTPServer) handleFleetCars(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("fleet_cars")

	names, err := s.fleet.CarNames(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"cars": names})
}

func (s *HTTPServer) handleDealers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("dealers")

	dealers, err := s.fleet.Dealers(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"dealers": dealers})
}

func (s *HTTPServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("movement_queue")

	entries, err := s.fleet.MovementQueue(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"queue":   entries,
		"summary": models.SummarizeQueue(entries),
	})
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": validationErr.Reason,
			"field": validationErr.Field,
		})
		return
	}

	var storeErr *service.StoreError
	if errors.As(err, &storeErr) {
		s.log.Error().Err(err).Msg("Store operation failed")
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}

	s.log.Error().Err(err).Msg("Request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

func parseDate(raw string) (time.Time, error) {
	return time.Parse("2006-01-02", strings.TrimSpace(raw))
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
