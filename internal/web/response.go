package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/studyloop/internal/auth"
	"github.com/conorfennell/studyloop/internal/documents"
	"github.com/conorfennell/studyloop/internal/domain"
	"github.com/conorfennell/studyloop/internal/processing"
	"github.com/conorfennell/studyloop/internal/quiz"
	"github.com/conorfennell/studyloop/internal/study"
)

// APIError is the body of every error response.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ErrorEnvelope wraps APIError as {"error": {...}}.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondStatus(c *gin.Context, status int, message, code string) {
	c.JSON(status, ErrorEnvelope{Error: APIError{Message: message, Code: code}})
}

// statusFor maps a service error to a status and error code.
func statusFor(err error) (int, string) {
	var (
		validation *documents.ValidationError
		fields     validator.ValidationErrors
		rejected   *processing.RejectedError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &fields):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, quiz.ErrDuplicateAnswer):
		return http.StatusBadRequest, "duplicate_answer"
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, auth.ErrEmailNotVerified):
		return http.StatusForbidden, "email_not_verified"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, auth.ErrEmailTaken):
		return http.StatusConflict, "email_taken"
	case errors.Is(err, quiz.ErrNotReady):
		return http.StatusConflict, "quiz_not_ready"
	case errors.Is(err, study.ErrAlreadyAnswered):
		return http.StatusConflict, "already_answered"
	case errors.Is(err, quiz.ErrQuestionNotFound):
		return http.StatusUnprocessableEntity, "question_not_found"
	case errors.Is(err, study.ErrNoQuestions):
		return http.StatusUnprocessableEntity, "no_questions"
	case errors.As(err, &rejected), errors.Is(err, processing.ErrUnavailable):
		return http.StatusBadGateway, "processing_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func respondError(c *gin.Context, err error) {
	status, code := statusFor(err)
	message := err.Error()
	var fields validator.ValidationErrors
	switch {
	case errors.As(err, &fields):
		message = describe(fields)
	case status == http.StatusInternalServerError:
		_ = c.Error(err)
		message = "internal server error"
	}
	respondStatus(c, status, message, code)
}

// describe turns validator failures into one readable line.
func describe(fields validator.ValidationErrors) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		switch f.Tag() {
		case "required":
			parts = append(parts, f.Field()+" is required")
		case "email":
			parts = append(parts, f.Field()+" must be a valid email address")
		case "eqfield":
			parts = append(parts, f.Field()+" must match "+f.Param())
		case "password_strength":
			parts = append(parts, f.Field()+" needs an upper case letter, a lower case letter and a digit")
		default:
			parts = append(parts, f.Field()+" failed "+f.Tag())
		}
	}
	return strings.Join(parts, "; ")
}
