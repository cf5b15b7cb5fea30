// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package adminapi

import (
	"encoding/json"
	"net/http"

	"github.com/jontk/loadgen/pkg/errors"
	"github.com/jontk/loadgen/pkg/logging"
)

// writeError maps a domain error to an HTTP status and writes it as
// JSON. Switching on the concrete *errors.XxxError types rather than
// going through errors.GetErrorCode/errors.IsRetryableError, since
// ValidationError/UnableToRunError/WorkerError only promote
// LoadgenError's methods and don't expose themselves through Unwrap.
func writeError(w http.ResponseWriter, logger logging.Logger, err error) {
	status := http.StatusInternalServerError
	code := ""

	switch e := err.(type) {
	case *errors.ValidationError:
		status = http.StatusBadRequest
		code = string(e.Code)
	case *errors.UnableToRunError:
		status = http.StatusUnprocessableEntity
		code = string(e.Code)
	case *errors.WorkerError:
		status = http.StatusBadGateway
		code = string(e.Code)
	case *errors.LoadgenError:
		code = string(e.Code)
		switch e.Category {
		case errors.CategoryValidation:
			status = http.StatusBadRequest
		case errors.CategoryWorker:
			status = http.StatusNotFound
		default:
			status = http.StatusInternalServerError
		}
	}

	if status >= http.StatusInternalServerError {
		logging.LogError(logger, err, "adminapi_request")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Code: code, Message: err.Error()})
}

func writeNotFound(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(errorResponse{Message: message})
}
