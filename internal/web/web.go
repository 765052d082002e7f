package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"holidaysjp/internal/config"
	"holidaysjp/internal/holiday"
	"holidaysjp/internal/ics"
	appLog "holidaysjp/internal/log"
	"holidaysjp/internal/model"
)

// HolidayService is the subset of *holiday.Service the HTTP API needs.
type HolidayService interface {
	GetHoliday(date string) (bool, string, error)
	GetHolidaysInRange(start, end string) ([]model.Holiday, error)
	Refresh(ctx context.Context, force bool) error
	Status() holiday.Status
}

// Server exposes holiday lookups, cache status and a manual refresh hook
// over HTTP.
type Server struct {
	cfg      *config.Config
	svc      HolidayService
	gatherer prometheus.Gatherer
	mux      *http.ServeMux

	// now is overridable in tests; it decides "today" for /api/holiday.
	now func() time.Time
}

// NewServer constructs a new Server. gatherer may be nil, in which case
// /metrics is not registered.
func NewServer(cfg *config.Config, svc HolidayService, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		cfg:      cfg,
		svc:      svc,
		gatherer: gatherer,
		mux:      http.NewServeMux(),
		now:      time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.cfg.BasicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Server.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.Server.BasicAuth.Username
	password := s.cfg.Server.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="holidaysjp", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer serves the API on cfg.Server.Listen until ctx is canceled,
// then shuts down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, svc HolidayService, gatherer prometheus.Gatherer) error {
	s := NewServer(cfg, svc, gatherer)
	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Server.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/holiday", s.handleHoliday)
	s.mux.HandleFunc("/api/holidays", s.handleHolidays)
	s.mux.HandleFunc("/api/holidays.ics", s.handleHolidaysICS)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/refresh", s.handleRefresh)

	if s.gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// holidayResponse is the JSON shape for /api/holiday. holiday_name is null
// for non-holidays.
type holidayResponse struct {
	Date        string  `json:"date"`
	IsHoliday   bool    `json:"is_holiday"`
	HolidayName *string `json:"holiday_name"`
}

// handleHoliday answers a single-date lookup.
//
// GET /api/holiday?date=2023-01-01
//   - date: any accepted format; defaults to today in Japan
func (s *Server) handleHoliday(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		date = holiday.Today(s.now())
	}

	key, err := holiday.NormalizeDate(date)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	ok, name, err := s.svc.GetHoliday(key)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := holidayResponse{Date: key, IsHoliday: ok}
	if ok {
		resp.HolidayName = &name
	}
	writeJSON(w, http.StatusOK, resp)
}

type holidaysResponse struct {
	Start    string          `json:"start"`
	End      string          `json:"end"`
	Count    int             `json:"count"`
	Holidays []model.Holiday `json:"holidays"`
}

// handleHolidays lists holidays in an inclusive range.
//
// GET /api/holidays?start=2023-01-01&end=2023-12-31
func (s *Server) handleHolidays(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	start, end, ok := rangeParams(w, r)
	if !ok {
		return
	}
	list, err := s.svc.GetHolidaysInRange(start, end)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, holidaysResponse{
		Start:    start,
		End:      end,
		Count:    len(list),
		Holidays: list,
	})
}

// handleHolidaysICS serves the same range as an iCalendar feed.
func (s *Server) handleHolidaysICS(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	start, end, ok := rangeParams(w, r)
	if !ok {
		return
	}
	list, err := s.svc.GetHolidaysInRange(start, end)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	stamp := s.now()
	if st := s.svc.Status(); !st.Metadata.LastUpdated.IsZero() {
		stamp = st.Metadata.LastUpdated
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="holidays.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(ics.Export(list, stamp)))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Status())
}

// handleRefresh runs the refresh policy now.
//
// POST /api/refresh?force=1
//   - force: skip the policy and always download
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	force := parseBool(r.URL.Query().Get("force"))
	appLog.Info("api refresh request", "force", force)

	if err := s.svc.Refresh(r.Context(), force); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Status())
}

// MaxRangeDays caps the span of /api/holidays and /api/holidays.ics. The
// lookup walks the range day by day.
const MaxRangeDays = 200 * 366

// rangeParams reads start and end, writing a 400 if either is missing or
// the span exceeds MaxRangeDays.
func rangeParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	q := r.URL.Query()
	start, end := q.Get("start"), q.Get("end")
	if start == "" || end == "" {
		writeError(w, http.StatusBadRequest, "start and end are required")
		return "", "", false
	}

	var err error
	if start, err = holiday.NormalizeDate(start); err != nil {
		writeServiceError(w, err)
		return "", "", false
	}
	if end, err = holiday.NormalizeDate(end); err != nil {
		writeServiceError(w, err)
		return "", "", false
	}

	from, _ := time.Parse(model.DateKeyLayout, start)
	to, _ := time.Parse(model.DateKeyLayout, end)
	if from.AddDate(0, 0, MaxRangeDays).Before(to) {
		writeServiceError(w, fmt.Errorf("%w: %s to %s exceeds the %d day limit", model.ErrInvalidRange, start, end, MaxRangeDays))
		return "", "", false
	}
	return start, end, true
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method || (method == http.MethodGet && r.Method == http.MethodHead) {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func parseBool(s string) bool {
	if s == "" {
		return false
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false
	}
	return b
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrParse), errors.Is(err, model.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotInitialized):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrNetwork):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		appLog.Error("api request failed", err, "status", status)
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
