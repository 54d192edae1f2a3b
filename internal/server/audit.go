package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/fedbill/internal/audit/domain"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
	"github.com/smallbiznis/fedbill/pkg/db/pagination"
	"go.uber.org/zap"
)

type listAuditRequest struct {
	pagination.Pagination
	Action     string `form:"action"`
	TargetType string `form:"target_type"`
	TargetID   string `form:"target_id"`
	ActorID    string `form:"actor_id"`
	UserID     string `form:"user_id"`
	Provider   string `form:"provider"`
	StartAt    string `form:"start_at"`
	EndAt      string `form:"end_at"`
}

// recordAudit never fails the request; a lost audit entry is logged instead.
func (s *Server) recordAudit(c *gin.Context, action, targetType, targetID string, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.AuditLog(c.Request.Context(), action, targetType, targetID, metadata); err != nil {
		s.log.Warn("audit log dropped",
			zap.String("action", action),
			zap.String("target_id", targetID),
			zap.Error(err),
		)
	}
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	if s.audit == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	var req listAuditRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	startAt, err := parseQueryTime("start_at", req.StartAt)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	endAt, err := parseQueryTime("end_at", req.EndAt)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var tenant *tenantdomain.Principal
	if req.UserID != "" || req.Provider != "" {
		tenant = &tenantdomain.Principal{UserID: req.UserID, Provider: req.Provider}
	}

	resp, err := s.audit.List(c.Request.Context(), auditdomain.ListAuditLogRequest{
		Pagination: req.Pagination,
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		ActorID:    req.ActorID,
		Tenant:     tenant,
		StartAt:    startAt,
		EndAt:      endAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func parseQueryTime(field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, newValidationError(field, "invalid_time", field+" must be RFC3339")
	}
	return &t, nil
}
