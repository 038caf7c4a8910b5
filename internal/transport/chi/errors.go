package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/askdex/internal/domain"
	logpkg "github.com/kailas-cloud/askdex/internal/logger"
)

// Error codes returned in the "code" field.
const (
	codeBadRequest       = "bad_request"
	codeValidationFailed = "validation_failed"
	codeInvalidTags      = "invalid_tags"
	codeUnauthorized     = "unauthorized"
	codeForbidden        = "forbidden"
	codeNotFound         = "not_found"
	codeConflict         = "conflict"
	codeSearchFailed     = "search_failed"
	codeInternalError    = "internal_error"
)

type errorResponse struct {
	Code        string            `json:"code"`
	Message     string            `json:"message"`
	Fields      map[string]string `json:"fields,omitempty"`
	InvalidTags []string          `json:"invalid_tags,omitempty"`
	Detail      string            `json:"detail,omitempty"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

func defaultErrorHandlers() []errorHandler {
	return []errorHandler{
		invalidTagsHandler,
		validationHandler,
		searchFailedHandler,
		sentinelHandler(domain.ErrUnauthorized, http.StatusUnauthorized, codeUnauthorized),
		sentinelHandler(domain.ErrForbidden, http.StatusForbidden, codeForbidden),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrConflict, http.StatusConflict, codeConflict),
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	for _, h := range s.errorHandlers {
		if h(w, err) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
// The body carries the sentinel text only, never the wrapped chain.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, sentinel.Error())
		return true
	}
}

func validationHandler(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, domain.ErrValidation) {
		return false
	}
	resp := errorResponse{Code: codeValidationFailed, Message: domain.ErrValidation.Error()}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		resp.Message = verr.Error()
		resp.Fields = verr.Fields
	}
	writeJSON(w, http.StatusBadRequest, resp)
	return true
}

func invalidTagsHandler(w http.ResponseWriter, err error) bool {
	var terr *domain.InvalidTagsError
	if !errors.As(err, &terr) {
		return false
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Code:        codeInvalidTags,
		Message:     terr.Error(),
		InvalidTags: terr.Slugs,
	})
	return true
}

// searchFailedHandler exposes the index error text: it is the diagnostic the
// caller needs and holds no user data.
func searchFailedHandler(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		return false
	}
	writeJSON(w, http.StatusBadGateway, errorResponse{
		Code:    codeSearchFailed,
		Message: "index search failed",
		Detail:  err.Error(),
	})
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
