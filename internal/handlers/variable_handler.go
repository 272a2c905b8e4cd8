package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/interfaces"
)

// VariableHandler manages service variables (API keys and similar secrets)
// stored in the key/value store.
type VariableHandler struct {
	kv     interfaces.KeyValueStorage
	logger arbor.ILogger
}

// NewVariableHandler creates the service-variables handler.
func NewVariableHandler(kv interfaces.KeyValueStorage, logger arbor.ILogger) *VariableHandler {
	return &VariableHandler{kv: kv, logger: logger}
}

type setVariableRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ListHandler handles GET /api/variables. Values are masked; this endpoint
// exists so operators can see which keys are configured, not read them back.
func (h *VariableHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	all, err := h.kv.GetAll(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list variables")
		WriteError(w, http.StatusInternalServerError, "Failed to list variables")
		return
	}

	masked := make(map[string]string, len(all))
	for key, value := range all {
		masked[key] = maskValue(value)
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"variables": masked})
}

// SetHandler handles POST /api/variables.
func (h *VariableHandler) SetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req setVariableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		WriteError(w, http.StatusBadRequest, "Key is required")
		return
	}

	if err := h.kv.Set(r.Context(), req.Key, req.Value); err != nil {
		h.logger.Error().Err(err).Str("key", req.Key).Msg("Failed to set variable")
		WriteError(w, http.StatusInternalServerError, "Failed to set variable")
		return
	}

	WriteSuccess(w, "Variable saved")
}

// DeleteHandler handles DELETE /api/variables/{key}.
func (h *VariableHandler) DeleteHandler(w http.ResponseWriter, r *http.Request, key string) {
	if err := h.kv.Delete(r.Context(), key); err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "Variable not found")
			return
		}
		h.logger.Error().Err(err).Str("key", key).Msg("Failed to delete variable")
		WriteError(w, http.StatusInternalServerError, "Failed to delete variable")
		return
	}
	WriteSuccess(w, "Variable deleted")
}

func maskValue(value string) string {
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}
