package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mprlab/noted/internal/auth"
	"github.com/mprlab/noted/internal/notes"
	"github.com/mprlab/noted/internal/users"
)

// envelope is the response contract: success carries {data, message},
// failures carry {data: {}, message} with optional error details.
type envelope struct {
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
	Errors  interface{} `json:"errors,omitempty"`
}

const (
	messageInvalidRequest     = "Invalid request data."
	messageUnauthorized       = "Unauthorized access."
	messageSomethingWentWrong = "Something went wrong, please try again."
	messageTooManyRequests    = "Too many requests."
)

func respond(c *gin.Context, status int, message string, data interface{}) {
	if data == nil {
		data = gin.H{}
	}
	c.JSON(status, envelope{Data: data, Message: message})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, envelope{Data: gin.H{}, Message: message})
}

func respondValidationError(c *gin.Context, details interface{}) {
	c.JSON(http.StatusBadRequest, envelope{
		Data:    gin.H{},
		Message: messageInvalidRequest,
		Errors:  details,
	})
}

// respondServiceError maps core error kinds onto the HTTP contract:
// validation and business-rule failures are 400, authentication failures
// 401, permission failures 403, throttling 429 (set where the gate runs).
func (h *httpHandler) respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, users.ErrDuplicateUsername):
		respondError(c, http.StatusBadRequest, "User already exists.")
	case errors.Is(err, users.ErrInvalidCredentials):
		respondError(c, http.StatusUnauthorized, "Incorrect username or password.")
	case errors.Is(err, users.ErrInvalidName),
		errors.Is(err, users.ErrInvalidUsername),
		errors.Is(err, users.ErrInvalidPassword):
		respondValidationError(c, gin.H{"details": err.Error()})
	case errors.Is(err, users.ErrUserNotFound):
		respondError(c, http.StatusBadRequest, "Document does not exist.")
	case errors.Is(err, auth.ErrExpiredToken), errors.Is(err, auth.ErrInvalidToken):
		respondError(c, http.StatusUnauthorized, messageUnauthorized)
	case errors.Is(err, notes.ErrNoteNotFound):
		respondError(c, http.StatusBadRequest, "Document does not exist.")
	case errors.Is(err, notes.ErrForbidden):
		respondError(c, http.StatusForbidden, "Insufficient permissions.")
	case errors.Is(err, notes.ErrSelfShare):
		respondError(c, http.StatusBadRequest, "A note cannot be shared with its author.")
	case errors.Is(err, notes.ErrAlreadyShared):
		respondError(c, http.StatusBadRequest, "Note already shared with this user.")
	case errors.Is(err, notes.ErrInvalidCapability),
		errors.Is(err, notes.ErrInvalidNoteID),
		errors.Is(err, notes.ErrEmptyNote):
		respondValidationError(c, gin.H{"details": err.Error()})
	default:
		h.logger.Error("request failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, messageSomethingWentWrong)
	}
}
