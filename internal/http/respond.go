package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fjod/storefront/internal/apperr"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	statusSuccess = "success"
	statusFail    = "fail"
	statusError   = "error"
)

// envelope is the success body; "status" is filled in by respondSuccess.
type envelope map[string]any

type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// the status line is already out, an encode failure cannot be reported
	_ = json.NewEncoder(w).Encode(data)
}

func respondSuccess(w http.ResponseWriter, status int, body envelope) {
	if body == nil {
		body = envelope{}
	}
	body["status"] = statusSuccess
	respondJSON(w, status, body)
}

// respondError maps err onto the error envelope. Client errors are "fail",
// server errors are "error" and get logged with the request's ids.
func respondError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	e := apperr.From(err)

	status := statusFail
	if e.Status >= http.StatusInternalServerError {
		status = statusError
		log.Ctx(r.Context()).WithError(err).WithFields(map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
	}

	respondJSON(w, e.Status, ErrorResponse{
		Status:  status,
		Code:    string(e.Code),
		Message: e.Message,
	})
}

// objectIDParam reads a 24-hex ObjectID route parameter.
func objectIDParam(r *http.Request, name string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, name))
	if err != nil {
		return primitive.NilObjectID, apperr.ErrInvalidID
	}
	return id, nil
}

// decodeJSON decodes an optional body. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperr.ErrInvalidRequest.WithMessage("request body too large")
	}
	return apperr.ErrInvalidRequest.Wrap(err)
}

// decodeAndValidate decodes the body into dst and checks its validate tags.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v *validator.Validate, maxBody int64, dst interface{}) error {
	if err := decodeJSON(w, r, maxBody, dst); err != nil {
		return err
	}

	err := v.Struct(dst)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.ErrInvalidRequest.Wrap(err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
	}
	return apperr.ErrInvalidRequest.WithMessage(strings.Join(msgs, "; "))
}
