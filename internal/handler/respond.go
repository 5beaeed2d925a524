package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"eegility/internal/auth"
	"eegility/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindForbidden, domain.KindAccountInactive:
		return http.StatusForbidden
	case domain.KindUnauthenticated:
		return http.StatusUnauthorized
	case domain.KindDuplicateShare, domain.KindInvalidTransition, domain.KindConflict:
		return http.StatusConflict
	case domain.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	json.NewEncoder(w).Encode(v)
}

// writeError переводит доменную ошибку в HTTP-ответ. Текст внутренних
// ошибок наружу не отдается.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)

	message := "internal server error"
	var de *domain.Error
	if errors.As(err, &de) && kind != domain.KindInternal {
		message = de.Message
	}

	if status == http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	} else {
		log.Debug("request rejected",
			zap.String("path", r.URL.Path),
			zap.String("kind", string(kind)),
			zap.String("message", message),
		)
	}

	writeJSON(w, status, errorResponse{Error: string(kind), Message: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.NewError(domain.KindValidation, "invalid request body: %v", err)
	}
	return nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.NewError(domain.KindValidation, "invalid id %q", raw)
	}
	return id, nil
}

// identity returns the caller placed in the context by Authenticate. A
// request that somehow bypassed the middleware gets a zero identity, which
// every service rejects as inactive.
func identity(r *http.Request) domain.Identity {
	id, _ := auth.IdentityFrom(r.Context())
	return id
}
