package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	reservation "github.com/chimerakang/reservation-go"
	"github.com/chimerakang/reservation-go/middleware/ginmw"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Reservations is the lifecycle surface served over HTTP.
// Implemented by lifecycle.Coordinator.
type Reservations interface {
	List(ctx context.Context, caller reservation.Identity, includeDeleted bool) ([]reservation.Reservation, error)
	Get(ctx context.Context, caller reservation.Identity, id string) (reservation.Reservation, error)
	Create(ctx context.Context, caller reservation.Identity, f reservation.Fields) (reservation.Reservation, error)
	Upsert(ctx context.Context, caller reservation.Identity, id string, f reservation.Fields) (reservation.UpsertResult, error)
	Delete(ctx context.Context, caller reservation.Identity, id string) error
	PatchStatus(ctx context.Context, caller reservation.Identity, id, status string) (reservation.Reservation, error)
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"authors":     []string{"Biletado Team"},
		"api_version": APIVersion,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	ready := s.ready(c.Request.Context())
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"live": true, "ready": ready})
}

func (s *Server) handleLive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"live": true})
}

func (s *Server) handleReady(c *gin.Context) {
	if !s.ready(c.Request.Context()) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

func (s *Server) ready(ctx context.Context) bool {
	if s.deps.Ready == nil {
		return true
	}
	if err := s.deps.Ready(ctx); err != nil {
		s.logger.WarnContext(ctx, "readiness check failed", "error", err)
		return false
	}
	return true
}

func (s *Server) handleList(c *gin.Context) {
	includeDeleted := false
	if raw := strings.TrimSpace(c.Query("include_deleted")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeBadRequest(c, "include_deleted must be a boolean")
			return
		}
		includeDeleted = v
	}

	list, err := s.deps.Reservations.List(c.Request.Context(), ginmw.GetIdentity(c), includeDeleted)
	if err != nil {
		writeError(c, s.logger, err, "")
		return
	}
	c.JSON(http.StatusOK, toListResponse(list))
}

func (s *Server) handleGet(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	r, err := s.deps.Reservations.Get(c.Request.Context(), ginmw.GetIdentity(c), id)
	if err != nil {
		writeError(c, s.logger, err, id)
		return
	}
	c.JSON(http.StatusOK, toResponse(r))
}

func (s *Server) handleCreate(c *gin.Context) {
	var req ReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	r, err := s.deps.Reservations.Create(c.Request.Context(), ginmw.GetIdentity(c), req.Fields())
	if err != nil {
		writeError(c, s.logger, err, "")
		return
	}
	c.JSON(http.StatusCreated, toResponse(r))
}

func (s *Server) handleUpsert(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req ReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	res, err := s.deps.Reservations.Upsert(c.Request.Context(), ginmw.GetIdentity(c), id, req.Fields())
	if err != nil {
		writeError(c, s.logger, err, id)
		return
	}
	status := http.StatusOK
	if res.Outcome == reservation.OutcomeCreated {
		status = http.StatusCreated
	}
	c.JSON(status, toResponse(res.Reservation))
}

func (s *Server) handleDelete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := s.deps.Reservations.Delete(c.Request.Context(), ginmw.GetIdentity(c), id); err != nil {
		writeError(c, s.logger, err, id)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handlePatchStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	status := strings.TrimSpace(c.Query("new_status"))
	if status == "" {
		writeBadRequest(c, "new_status is required")
		return
	}
	r, err := s.deps.Reservations.PatchStatus(c.Request.Context(), ginmw.GetIdentity(c), id, status)
	if err != nil {
		writeError(c, s.logger, err, id)
		return
	}
	c.JSON(http.StatusOK, toResponse(r))
}

func (s *Server) handleToken(c *gin.Context) {
	if s.deps.Issuer == nil {
		ginmw.WriteErrorCode(c, http.StatusNotFound, "NOT_FOUND", "token issuing is disabled")
		return
	}
	username := strings.TrimSpace(c.Query("username"))
	if username == "" {
		writeBadRequest(c, "username is required")
		return
	}
	tok, exp, err := s.deps.Issuer.Issue(username, 0, nil)
	if err != nil {
		writeError(c, s.logger, err, "")
		return
	}
	s.logger.InfoContext(c.Request.Context(), "issued test token", "user", username, "expires_at", exp)
	c.JSON(http.StatusOK, TokenResponse{
		AccessToken: tok,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.deps.Issuer.Lifetime() / time.Second),
	})
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Reservations API",
		"endpoints": gin.H{
			"health":       "/health",
			"auth_token":   "/auth/token",
			"reservations": APIPrefix + "/reservations",
			"metrics":      "/metrics",
		},
	})
}

func (s *Server) handleRootHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": formatTime(time.Now()),
	})
}

func parseID(c *gin.Context) (string, bool) {
	value := strings.TrimSpace(c.Param("id"))
	if _, err := uuid.Parse(value); err != nil {
		writeBadRequest(c, "id must be a UUID")
		return "", false
	}
	return value, true
}
