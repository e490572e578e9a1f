package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"patchscope/internal/export"
	"patchscope/pkg/types"
)

type handlers struct {
	svc    Service
	models ModelLister
	runs   RunStore
}

// decodeJSON enforces the JSON content type and body limit, then decodes
// into v. On failure it writes the error response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Oversized bodies are reported like malformed ones.
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// health reports liveness and whether a model is loaded.
//
//	@Summary	Health check
//	@Tags		ops
//	@Produce	json
//	@Success	200	{object}	types.HealthResponse
//	@Router		/api/health [get]
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(types.HealthResponse{Status: "healthy", ModelLoaded: h.svc.Loaded()})
}

// modelInfo
//
//	@Summary	Describe the loaded model
//	@Tags		analysis
//	@Produce	json
//	@Success	200	{object}	types.SuccessResponse{data=types.ModelInfo}
//	@Failure	503	{object}	types.ErrorResponse
//	@Router		/api/model-info [get]
func (h *handlers) modelInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.ModelInfo()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// activations
//
//	@Summary	Per-layer hidden state norms
//	@Tags		analysis
//	@Accept		json
//	@Produce	json
//	@Param		request	body		types.ActivationsRequest	true	"Prompt and optional layer indices"
//	@Success	200		{object}	types.SuccessResponse{data=types.ActivationsResult}
//	@Failure	400		{object}	types.ErrorResponse
//	@Failure	429		{object}	types.ErrorResponse
//	@Router		/api/activations [post]
func (h *handlers) activations(w http.ResponseWriter, r *http.Request) {
	res, ok := h.runActivations(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// activationsArrow streams the same result as an Arrow IPC stream.
//
//	@Summary	Per-layer hidden state norms as Arrow IPC
//	@Tags		analysis
//	@Accept		json
//	@Produce	application/vnd.apache.arrow.stream
//	@Param		request	body	types.ActivationsRequest	true	"Prompt and optional layer indices"
//	@Success	200
//	@Failure	400	{object}	types.ErrorResponse
//	@Router		/api/activations/arrow [post]
func (h *handlers) activationsArrow(w http.ResponseWriter, r *http.Request) {
	res, ok := h.runActivations(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	if err := export.WriteActivations(w, res); err != nil {
		// Headers may already be out; the truncated stream is all we can signal.
		logger().Error().Err(err).Msg("arrow export failed")
	}
}

func (h *handlers) runActivations(w http.ResponseWriter, r *http.Request) (*types.ActivationsResult, bool) {
	var req types.ActivationsRequest
	if !decodeJSON(w, r, &req) {
		return nil, false
	}
	ctx, cancel := workContext(r.Context())
	defer cancel()
	res, err := h.svc.Activations(ctx, req.Prompt, req.LayerIndices)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return res, true
}

// patchscope
//
//	@Summary	Patch a source hidden state into a target generation
//	@Tags		analysis
//	@Accept		json
//	@Produce	json
//	@Param		request	body		types.PatchscopeRequest	true	"Prompts and patch indices"
//	@Success	200		{object}	types.SuccessResponse{data=types.PatchscopeResult}
//	@Failure	400		{object}	types.ErrorResponse
//	@Failure	429		{object}	types.ErrorResponse
//	@Router		/api/patchscope [post]
func (h *handlers) patchscope(w http.ResponseWriter, r *http.Request) {
	var req types.PatchscopeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := workContext(r.Context())
	defer cancel()
	res, err := h.svc.Patchscope(ctx, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// listModels
//
//	@Summary	List GGUF models in the models directory
//	@Tags		models
//	@Produce	json
//	@Success	200	{object}	types.SuccessResponse{data=types.ModelsResponse}
//	@Router		/api/models [get]
func (h *handlers) listModels(w http.ResponseWriter, r *http.Request) {
	models := h.models.List()
	if models == nil {
		models = []types.Model{}
	}
	writeJSON(w, http.StatusOK, types.ModelsResponse{Models: models})
}

// listRuns
//
//	@Summary	Recent analysis runs, newest first
//	@Tags		runs
//	@Produce	json
//	@Param		limit	query		int	false	"Maximum number of runs (default 50)"
//	@Success	200		{object}	types.SuccessResponse{data=types.RunsResponse}
//	@Failure	400		{object}	types.ErrorResponse
//	@Router		/api/runs [get]
func (h *handlers) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.RunsResponse{Runs: runs})
}

// getRun
//
//	@Summary	Fetch one analysis run
//	@Tags		runs
//	@Produce	json
//	@Param		id	path		string	true	"Run id"
//	@Success	200	{object}	types.SuccessResponse{data=types.Run}
//	@Failure	404	{object}	types.ErrorResponse
//	@Router		/api/runs/{id} [get]
func (h *handlers) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
