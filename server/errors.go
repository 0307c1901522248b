package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	reservation "github.com/chimerakang/reservation-go"
	"github.com/chimerakang/reservation-go/middleware/ginmw"
	"github.com/gin-gonic/gin"
)

// writeError maps a coordinator error to an HTTP response. id is echoed in
// not-found responses.
func writeError(c *gin.Context, logger *slog.Logger, err error, id string) {
	switch {
	case errors.Is(err, reservation.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, ginmw.ErrorResponse{
			Code:    "NOT_FOUND",
			Message: fmt.Sprintf("Reservation with ID %s not found", id),
			Details: map[string]any{"id": id},
		})
	case errors.Is(err, reservation.ErrUnauthorized):
		c.Header("WWW-Authenticate", "Bearer")
		ginmw.WriteErrorCode(c, http.StatusUnauthorized, ginmw.CodeUnauthorized, "Not authenticated")
	case errors.Is(err, reservation.ErrInvalidArgument):
		ginmw.WriteErrorCode(c, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
	case errors.Is(err, reservation.ErrConflict):
		ginmw.WriteErrorCode(c, http.StatusConflict, "CONFLICT", "conflict")
	default:
		logger.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		ginmw.WriteErrorCode(c, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func writeBadRequest(c *gin.Context, message string) {
	ginmw.WriteErrorCode(c, http.StatusBadRequest, "INVALID_ARGUMENT", message)
}
