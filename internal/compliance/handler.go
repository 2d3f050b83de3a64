package compliance

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/worklens/worklens/internal/transport"
	"github.com/worklens/worklens/pkg/logger"
)

// ServiceAPI is the surface the handler needs; split from the concrete
// services so handler tests can stub it.
type ServiceAPI interface {
	RunCheck() *RunSummary
	GetRun(runID string) (*RunSummary, error)
	Overview(r *http.Request) (*Overview, error)
	Trends(r *http.Request, days int) ([]TrendPoint, error)
	ListViolations(filter ViolationFilter) (*ViolationList, error)
	UpdateViolationStatus(id int64, dto UpdateStatusDTO) (*Violation, error)
	GetConfig() (Config, error)
	UpdateConfig(dto UpdateConfigDTO) (*Config, error)
}

// API bundles the concrete core services behind ServiceAPI.
type API struct {
	Runner     *Runner
	Violations *Service
	Aggregates *Aggregator
	Configs    *ConfigService
}

func (a *API) RunCheck() *RunSummary { return a.Runner.RunCheck() }

func (a *API) GetRun(id string) (*RunSummary, error) { return a.Runner.GetRun(id) }

func (a *API) Overview(r *http.Request) (*Overview, error) {
	return a.Aggregates.Overview(r.Context())
}

func (a *API) Trends(r *http.Request, days int) ([]TrendPoint, error) {
	return a.Aggregates.Trends(r.Context(), days)
}

func (a *API) ListViolations(filter ViolationFilter) (*ViolationList, error) {
	return a.Violations.List(filter)
}

func (a *API) UpdateViolationStatus(id int64, dto UpdateStatusDTO) (*Violation, error) {
	return a.Violations.UpdateStatus(id, dto)
}

func (a *API) GetConfig() (Config, error) { return a.Configs.GetSnapshot() }

func (a *API) UpdateConfig(dto UpdateConfigDTO) (*Config, error) {
	return a.Configs.Update(dto)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger.L()),
		Service:     service,
	}
}

// RunCheck triggers an evaluation pass and returns 202 while it proceeds in
// the background.
func (h *Handler) RunCheck(w http.ResponseWriter, r *http.Request) {
	summary := h.Service.RunCheck()

	h.Logger.Info("RunCheck: run accepted", "run_id", summary.RunID)
	h.WriteJSON(w, http.StatusAccepted, map[string]string{
		"run_id": summary.RunID,
		"status": string(summary.Status),
	})
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	summary, err := h.Service.GetRun(runID)
	if err != nil {
		if err == ErrRunNotFound {
			h.WriteError(w, http.StatusNotFound, "run not found")
			return
		}
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.Service.Overview(r)
	if err != nil {
		h.Logger.Error("Overview: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, overview)
}

func (h *Handler) Trends(w http.ResponseWriter, r *http.Request) {
	days := 0
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		d, err := strconv.Atoi(daysStr)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, "days must be a number")
			return
		}
		days = d
	}

	points, err := h.Service.Trends(r, days)
	if err != nil {
		h.Logger.Error("Trends: service error", "error", err, "days", days)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"days":   len(points),
		"trends": points,
	})
}

func (h *Handler) ListViolations(w http.ResponseWriter, r *http.Request) {
	filter := ViolationFilter{
		Kind:     r.URL.Query().Get("kind"),
		Severity: r.URL.Query().Get("severity"),
		Status:   r.URL.Query().Get("status"),
	}

	if userIDStr := r.URL.Query().Get("user_id"); userIDStr != "" {
		userID, err := strconv.ParseInt(userIDStr, 10, 64)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, "user_id must be a number")
			return
		}
		filter.UserID = userID
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, "limit must be a number")
			return
		}
		filter.Limit = l
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		o, err := strconv.Atoi(offsetStr)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, "offset must be a number")
			return
		}
		filter.Offset = o
	}

	list, err := h.Service.ListViolations(filter)
	if err != nil {
		h.Logger.Error("ListViolations: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) UpdateViolationStatus(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.Logger.Error("UpdateViolationStatus: invalid violation ID", "id", idStr)
		h.WriteError(w, http.StatusBadRequest, "invalid violation ID")
		return
	}

	var dto UpdateStatusDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("UpdateViolationStatus: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	violation, err := h.Service.UpdateViolationStatus(id, dto)
	if err != nil {
		if err == ErrViolationNotFound {
			h.WriteError(w, http.StatusNotFound, "violation not found")
			return
		}
		h.Logger.Error("UpdateViolationStatus: service error", "error", err, "violation_id", id)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("UpdateViolationStatus: status updated",
		"violation_id", id,
		"status", violation.Status)
	h.WriteJSON(w, http.StatusOK, ViolationView{Violation: violation, Description: Describe(violation)})
}

func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Service.GetConfig()
	if err != nil {
		h.Logger.Error("GetConfig: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, cfg)
}

func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var dto UpdateConfigDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("UpdateConfig: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg, err := h.Service.UpdateConfig(dto)
	if err != nil {
		h.Logger.Error("UpdateConfig: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("UpdateConfig: config updated")
	h.WriteJSON(w, http.StatusOK, cfg)
}

var _ ServiceAPI = (*API)(nil)
