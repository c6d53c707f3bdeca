package api

import (
	"errors"
	"net/http"

	"github.com/warp/compliance-engine/core"
)

// writeServiceError maps use-case errors to HTTP:
//
//	business-rule rejection  400
//	missing resource         404
//	anything else            500
//
// Pool validation failures carry their error list and total CB.
func writeServiceError(w http.ResponseWriter, message string, err error) {
	var poolErr *core.PoolValidationError
	if errors.As(err, &poolErr) {
		total := toFloat(poolErr.TotalCB)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Pool validation failed",
			Details: err.Error(),
			Errors:  poolErr.Errors,
			TotalCB: &total,
		})
		return
	}

	writeError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	switch {
	case core.IsNotFound(err):
		return http.StatusNotFound
	case core.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
