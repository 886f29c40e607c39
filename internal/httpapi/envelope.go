// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coursevoice/coursevoice/internal/auth"
	"github.com/coursevoice/coursevoice/pkg/errutil"
)

// envelope is the body of every JSON response.
type envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
	Data    any               `json:"data,omitempty"`
}

// Client-facing messages. Authentication failures share one message so the
// cause (bad signature, expired token, fingerprint mismatch) never leaks.
const (
	msgUnauthenticated    = "Authentication required"
	msgForbidden          = "You do not have access to this resource"
	msgInvalidCredentials = "Invalid email or password"
	msgTooManyAttempts    = "Too many failed login attempts, try again later"
	msgMalformedBody      = "Malformed request body"
	msgValidationFailed   = "Validation failed"
	msgEmailTaken         = "An account with this email already exists"
	msgInvalidResetToken  = "Invalid or expired token"
	msgResetRequested     = "If an account exists for this email, a reset link has been sent"
	msgInternal           = "Internal server error"
)

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{Success: status < http.StatusBadRequest, Message: message, Data: data})
}

func respondFields(c *gin.Context, status int, message string, fields map[string]string) {
	c.AbortWithStatusJSON(status, envelope{Success: false, Message: message, Errors: fields})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, envelope{Success: false, Message: message})
}

// failFromError maps domain errors to a status and message. Unexpected
// errors are logged with their code and context and reported as 500.
func failFromError(c *gin.Context, logger *slog.Logger, err error) {
	var fields auth.FieldErrors
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		c.Header("WWW-Authenticate", `Bearer realm="coursevoice"`)
		fail(c, http.StatusUnauthorized, msgUnauthenticated)
	case errors.Is(err, auth.ErrForbidden):
		fail(c, http.StatusForbidden, msgForbidden)
	case errors.Is(err, auth.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, msgInvalidCredentials)
	case errors.Is(err, auth.ErrInvalidResetToken):
		fail(c, http.StatusBadRequest, msgInvalidResetToken)
	case errors.Is(err, auth.ErrEmailTaken):
		fail(c, http.StatusConflict, msgEmailTaken)
	case errors.As(err, &fields):
		respondFields(c, http.StatusBadRequest, msgValidationFailed, fields)
	default:
		errutil.Log(c.Request.Context(), logger, slog.LevelError, "request failed", err)
		fail(c, http.StatusInternalServerError, msgInternal)
	}
}
