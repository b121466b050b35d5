package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/3leaps/streamctl/internal/errors"
	"github.com/3leaps/streamctl/pkg/application"
	"github.com/3leaps/streamctl/pkg/appstore"
	"github.com/3leaps/streamctl/pkg/jobregistry"
	"github.com/3leaps/streamctl/pkg/match"
	"github.com/3leaps/streamctl/pkg/output"
	"github.com/3leaps/streamctl/pkg/workspace"
)

// TransitionSource serves recorded state history. appstore.Store
// satisfies it.
type TransitionSource interface {
	Transitions(ctx context.Context, appID string, limit int) ([]appstore.Transition, error)
}

// AppSummary is the JSON view of one application.
type AppSummary struct {
	ID            string            `json:"id"`
	JobName       string            `json:"job_name,omitempty"`
	JobType       string            `json:"job_type"`
	ExecutionMode string            `json:"execution_mode"`
	State         string            `json:"state"`
	Release       string            `json:"release"`
	Tracking      bool              `json:"tracking"`
	CanStart      bool              `json:"can_start"`
	ProjectID     string            `json:"project_id,omitempty"`
	Module        string            `json:"module,omitempty"`
	HotParams     map[string]string `json:"hot_params,omitempty"`
	RestartSize   *int              `json:"restart_size,omitempty"`
	RestartCount  *int              `json:"restart_count,omitempty"`
	ModifyTime    *time.Time        `json:"modify_time,omitempty"`
}

// NewAppSummary projects app into its JSON view.
func NewAppSummary(app *application.Application) AppSummary {
	s := AppSummary{
		ID:            app.ID,
		JobName:       app.JobName,
		JobType:       app.JobType.String(),
		ExecutionMode: app.ExecutionMode.String(),
		State:         app.State().String(),
		Release:       app.Release.String(),
		Tracking:      app.Tracking(),
		CanStart:      app.CanStart(),
		ProjectID:     app.ProjectID,
		Module:        app.Module,
		HotParams:     app.HotParamsMap(),
		RestartSize:   app.RestartSize,
		RestartCount:  app.RestartCount,
	}
	if !app.ModifyTime.IsZero() {
		mt := app.ModifyTime
		s.ModifyTime = &mt
	}
	if len(s.HotParams) == 0 {
		s.HotParams = nil
	}
	return s
}

// AppListResponse is the body of GET /apps.
type AppListResponse struct {
	Apps    []AppSummary `json:"apps"`
	Skipped []string     `json:"skipped,omitempty"`
}

// TransitionView is the JSON view of one history entry.
type TransitionView struct {
	Seq        int64     `json:"seq"`
	RunID      string    `json:"run_id,omitempty"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Action     string    `json:"action,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// AppsHandler serves read-only application endpoints.
type AppsHandler struct {
	Registry    jobregistry.Registry
	Workspace   workspace.Workspace
	Transitions TransitionSource
}

// Routes mounts the handlers on r.
func (h *AppsHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/resolution", h.Resolution)
	if h.Transitions != nil {
		r.Get("/{id}/transitions", h.History)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

func queryList(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.URL.Query()[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// List handles GET /apps. Query parameters name, exclude, state, mode,
// job_type (repeatable or comma separated) and tracked=true narrow the
// result.
func (h *AppsHandler) List(w http.ResponseWriter, r *http.Request) {
	tracked, _ := strconv.ParseBool(r.URL.Query().Get("tracked"))
	filter, err := match.NewFilter(match.FilterConfig{
		Names:       queryList(r, "name"),
		Exclude:     queryList(r, "exclude"),
		States:      queryList(r, "state"),
		Modes:       queryList(r, "mode"),
		JobTypes:    queryList(r, "job_type"),
		TrackedOnly: tracked,
	})
	if err != nil {
		respondWithError(w, r, apperrors.NewBadRequest("invalid filter", err))
		return
	}

	apps, skipped, err := h.Registry.List(r.Context())
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	resp := AppListResponse{Apps: []AppSummary{}, Skipped: skipped}
	for _, app := range filter.Apply(apps) {
		resp.Apps = append(resp.Apps, NewAppSummary(app))
	}
	writeJSON(w, resp)
}

// Get handles GET /apps/{id}.
func (h *AppsHandler) Get(w http.ResponseWriter, r *http.Request) {
	app, err := h.Registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, NewAppSummary(app))
}

// Resolution handles GET /apps/{id}/resolution.
func (h *AppsHandler) Resolution(w http.ResponseWriter, r *http.Request) {
	app, err := h.Registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	rec, err := output.Resolve(h.Workspace, app)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, rec)
}

// History handles GET /apps/{id}/transitions?limit=N.
func (h *AppsHandler) History(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondWithError(w, r, apperrors.NewBadRequest("limit must be a non-negative integer", err))
			return
		}
		limit = n
	}

	if _, err := h.Registry.Get(r.Context(), id); err != nil {
		respondWithError(w, r, err)
		return
	}
	history, err := h.Transitions.Transitions(r.Context(), id, limit)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	out := make([]TransitionView, 0, len(history))
	for _, tr := range history {
		out = append(out, TransitionView{
			Seq:        tr.Seq,
			RunID:      tr.RunID,
			From:       tr.From.String(),
			To:         tr.To.String(),
			Action:     tr.Action,
			OccurredAt: tr.OccurredAt,
		})
	}
	writeJSON(w, map[string]any{"id": id, "transitions": out})
}
