package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"routeeta/internal/auth"
	"routeeta/internal/model"
	"routeeta/internal/store"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Problem represents an RFC7807 problem details response body, extended
// with a machine-readable code.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Code     string `json:"code"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, code, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Code:     code,
		Detail:   detail,
		Instance: r.URL.Path,
	})
}

// codeStatus maps engine error codes to HTTP statuses.
var codeStatus = map[model.Code]int{
	model.CodeInvalidCoordinate:     http.StatusBadRequest,
	model.CodeEmptyRouteRequest:     http.StatusBadRequest,
	model.CodeUnpairedDelivery:      http.StatusBadRequest,
	model.CodeInvalidVehicleType:    http.StatusBadRequest,
	model.CodeInvalidRequest:        http.StatusBadRequest,
	model.CodeDriverLocationUnknown: http.StatusConflict,
}

// writeError renders err as a problem response. Unknown errors are logged and
// reported as 500 without their detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var me *model.Error
	switch {
	case errors.As(err, &me):
		status, ok := codeStatus[me.Code]
		if !ok {
			status = http.StatusBadRequest
		}
		writeProblem(w, r, status, string(me.Code), http.StatusText(status), me.Message)
	case errors.Is(err, store.ErrNotFound):
		writeProblem(w, r, http.StatusNotFound, "NotFound", "Not Found", err.Error())
	case errors.Is(err, store.ErrConflict):
		writeProblem(w, r, http.StatusConflict, "Conflict", "Conflict", err.Error())
	case errors.Is(err, auth.ErrInvalidToken):
		writeProblem(w, r, http.StatusUnauthorized, "Unauthorized", "Unauthorized", err.Error())
	default:
		log.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeProblem(w, r, http.StatusInternalServerError, "Internal", "Internal Server Error", "")
	}
}

func forbidden(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, r, http.StatusForbidden, "Forbidden", "Forbidden", detail)
}

// decode reads a JSON body into dst and runs struct validation on it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return model.Errorf(model.CodeInvalidRequest, "request body is empty")
		}
		return model.Errorf(model.CodeInvalidRequest, "invalid JSON: %v", err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return model.Errorf(model.CodeInvalidRequest, "%v", err)
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return model.Errorf(model.CodeInvalidRequest, "%s", strings.Join(msgs, "; "))
}
