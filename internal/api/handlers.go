package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/FairForge/warmstandby/internal/ha"
	"github.com/FairForge/warmstandby/internal/logging"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func queryLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": s.opts.Version,
		"uptime":  time.Since(s.startTime).Seconds(),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": s.opts.Version,
		"go":      runtime.Version(),
	})
}

type domainView struct {
	ha.DomainStatus
	AutoFailover bool   `json:"auto_failover"`
	FailedOver   bool   `json:"failed_over"`
	InFlightRun  string `json:"in_flight_run,omitempty"`
	RecordName   string `json:"record_name"`
}

func (s *Server) handleListDomains(w http.ResponseWriter, r *http.Request) {
	statuses := s.deps.Domains.Statuses()
	views := make([]domainView, 0, len(statuses))
	for _, st := range statuses {
		v := domainView{DomainStatus: st}
		if d, ok := s.deps.Domains.Domain(st.Domain); ok {
			v.AutoFailover = d.AutoFailover
			v.RecordName = d.RecordName
		}
		v.FailedOver = s.deps.Failover.FailedOver(st.Domain)
		v.InFlightRun, _ = s.deps.Failover.InFlight(st.Domain)
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"domains": views})
}

type triggerResponse struct {
	RunID    string       `json:"run_id"`
	Domain   string       `json:"domain"`
	Status   ha.RunStatus `json:"status"`
	Location string       `json:"location"`
}

func (s *Server) handleTriggerFailover(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["domain"]
	domain, ok := s.deps.Domains.Domain(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown domain "+name)
		return
	}

	body, err := decodeTrigger(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	operator := operatorFrom(r.Context())
	reason := body.Reason
	if reason == "" {
		reason = "manual failover by " + operator
	}

	runCtx := logging.WithRequestID(s.deps.RunContext, middleware.GetReqID(r.Context()))
	run, err := s.deps.Failover.Start(runCtx, domain, ha.TriggerRequest{
		Reason:      reason,
		TriggeredBy: "operator:" + operator,
		Force:       body.Force,
	})
	switch {
	case ha.IsRunInProgress(err):
		runID, _ := s.deps.Failover.InFlight(name)
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":  err.Error(),
			"run_id": runID,
		})
		return
	case ha.IsUnknownDomain(err):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logging.FromContext(r.Context(), s.logger).Info("failover triggered",
		zap.String("domain", name),
		zap.String("run_id", run.ID),
		zap.String("operator", operator),
		zap.Bool("force", body.Force),
	)

	location := "/v1/runs/" + run.ID
	w.Header().Set("Location", location)
	writeJSON(w, http.StatusAccepted, triggerResponse{
		RunID:    run.ID,
		Domain:   name,
		Status:   run.Status,
		Location: location,
	})
}

func (s *Server) handleRearm(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["domain"]
	if _, ok := s.deps.Domains.Domain(name); !ok {
		writeError(w, http.StatusNotFound, "unknown domain "+name)
		return
	}
	s.deps.Failover.Rearm(name)

	logging.FromContext(r.Context(), s.logger).Info("domain re-armed",
		zap.String("domain", name),
		zap.String("operator", operatorFrom(r.Context())),
	)
	writeJSON(w, http.StatusOK, map[string]interface{}{"domain": name, "failed_over": false})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["domain"]
	if _, ok := s.deps.Domains.Domain(name); !ok {
		writeError(w, http.StatusNotFound, "unknown domain "+name)
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runs, err := s.deps.Runs.ListRuns(r.Context(), name, limit)
	if err != nil {
		s.logger.Error("list runs", zap.String("domain", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, err := s.deps.Runs.GetRun(r.Context(), id)
	if errors.Is(err, ha.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("get run", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": s.deps.Failover.GetEvents(limit)})
}

func parseTimeParam(r *http.Request, key string, def time.Time) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return t, nil
}

func (s *Server) handleSLA(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tracker == nil {
		writeError(w, http.StatusNotFound, "RTO/RPO tracking is disabled")
		return
	}

	now := time.Now()
	from, err := parseTimeParam(r, "from", now.AddDate(0, 0, -30))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseTimeParam(r, "to", now)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not be before from")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"report":  s.deps.Tracker.GenerateSLAReport(from, to),
		"status":  s.deps.Tracker.CheckStatus(r.Context()),
		"metrics": s.deps.Tracker.GetMetrics(),
	})
}
