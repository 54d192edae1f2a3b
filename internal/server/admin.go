package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/fedbill/internal/audit/domain"
	"go.uber.org/zap"
)

type userRequest struct {
	UserID   string `json:"userId"`
	Provider string `json:"provider"`
	PlanName string `json:"financePlanName"`
}

type policyRequest struct {
	Subject string `json:"subject"`
	Role    string `json:"role"`
}

func (s *Server) Reload(c *gin.Context) {
	if err := s.finance.Reload(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}
	s.log.Info("reload requested", zap.String("subject", c.GetString(contextSubjectKey)))
	s.recordAudit(c, "plans.reload", auditdomain.TargetTypePlan, "", map[string]any{"plans": len(s.finance.Plans())})
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"plans": s.finance.Plans()}})
}

func (s *Server) AddUser(c *gin.Context) {
	req, ok := bindUserRequest(c)
	if !ok {
		return
	}
	p, err := principal(req.UserID, req.Provider)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.finance.AddUser(c.Request.Context(), p, req.PlanName); err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, "user.add", auditdomain.TargetTypeUser, p.String(), map[string]any{"plan": req.PlanName})
	c.JSON(http.StatusCreated, gin.H{"data": req})
}

func (s *Server) ChangeUserPlan(c *gin.Context) {
	req, ok := bindUserRequest(c)
	if !ok {
		return
	}
	p, err := principal(req.UserID, req.Provider)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.finance.ChangePlan(c.Request.Context(), p, req.PlanName); err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, "user.change_plan", auditdomain.TargetTypeUser, p.String(), map[string]any{"plan": req.PlanName})
	c.JSON(http.StatusOK, gin.H{"data": req})
}

func (s *Server) UnregisterUser(c *gin.Context) {
	p, err := principalFromPath(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.finance.UnregisterUser(c.Request.Context(), p); err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, "user.unregister", auditdomain.TargetTypeUser, p.String(), nil)
	c.Status(http.StatusNoContent)
}

func (s *Server) RemoveUser(c *gin.Context) {
	p, err := principalFromPath(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.finance.RemoveUser(c.Request.Context(), p); err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, "user.remove", auditdomain.TargetTypeUser, p.String(), nil)
	c.Status(http.StatusNoContent)
}

func (s *Server) GrantRole(c *gin.Context) {
	req, ok := bindPolicyRequest(c)
	if !ok {
		return
	}
	if err := s.authzSvc.GrantRole(c.Request.Context(), req.Subject, req.Role); err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, "policy.grant", auditdomain.TargetTypeSubject, req.Subject, map[string]any{"role": req.Role})
	s.respondRoles(c, req.Subject)
}

func (s *Server) RevokeRole(c *gin.Context) {
	req, ok := bindPolicyRequest(c)
	if !ok {
		return
	}
	if err := s.authzSvc.RevokeRole(c.Request.Context(), req.Subject, req.Role); err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, "policy.revoke", auditdomain.TargetTypeSubject, req.Subject, map[string]any{"role": req.Role})
	s.respondRoles(c, req.Subject)
}

func (s *Server) respondRoles(c *gin.Context, subject string) {
	roles, err := s.authzSvc.Roles(subject)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"subject": subject,
		"roles":   roles,
	}})
}

func bindUserRequest(c *gin.Context) (userRequest, bool) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return req, false
	}
	req.PlanName = strings.TrimSpace(req.PlanName)
	if req.PlanName == "" {
		AbortWithError(c, newValidationError("financePlanName", "required", "financePlanName is required"))
		return req, false
	}
	return req, true
}

func bindPolicyRequest(c *gin.Context) (policyRequest, bool) {
	var req policyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return req, false
	}
	req.Subject = strings.TrimSpace(req.Subject)
	if req.Subject == "" {
		AbortWithError(c, newValidationError("subject", "required", "subject is required"))
		return req, false
	}
	return req, true
}
