package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/tabletalk/tabletalk/internal/catalog"
	"github.com/tabletalk/tabletalk/internal/sqlexec"
)

type executeSQLRequest struct {
	DatasetID string `json:"dataset_id"`
	SQL       string `json:"sql"`
}

type executeSQLResponse struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// handleExecuteSQL runs a raw SELECT against one of the caller's datasets.
// The statement goes through the same whitelist validation as synthesized
// queries, so only single-table reads make it to the engine.
func handleExecuteSQL(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.SQLRunner == nil || deps.CatalogRepo == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SQL_NOT_CONFIGURED", "sql dependencies are not configured", false, nil)
		return
	}

	userID, err := userFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusUnauthorized, "USER_REQUIRED", err.Error(), false, nil)
		return
	}
	if err := requireRole(r, "sql_runner"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request executeSQLRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid sql request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.DatasetID) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "DATASET_REQUIRED", "dataset_id is required", false, nil)
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}

	entry, err := deps.CatalogRepo.GetEntry(r.Context(), request.DatasetID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "DATASET_NOT_FOUND", "dataset was not found", false, map[string]any{"dataset_id": request.DatasetID})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to load dataset", true, map[string]any{"details": err.Error()})
		return
	}
	if entry.UserID != userID {
		writeError(r.Context(), w, http.StatusNotFound, "DATASET_NOT_FOUND", "dataset was not found", false, map[string]any{"dataset_id": request.DatasetID})
		return
	}

	result, err := deps.SQLRunner.Query(r.Context(), entry.DatasetID, request.SQL)
	if err != nil {
		if errors.Is(err, sqlexec.ErrUnsafeQuery) {
			writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", err.Error(), false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_EXECUTION_FAILED", "query execution failed", false, map[string]any{"details": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, executeSQLResponse{
		Columns:  result.Columns,
		Rows:     result.Rows,
		RowCount: len(result.Rows),
	})
}
