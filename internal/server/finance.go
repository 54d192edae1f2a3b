package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/fedbill/internal/audit/domain"
	obscontext "github.com/smallbiznis/fedbill/internal/observability/context"
	plandomain "github.com/smallbiznis/fedbill/internal/plan/domain"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
)

// FinanceService is the part of the finance manager the HTTP surface uses.
type FinanceService interface {
	IsAuthorized(ctx context.Context, p tenantdomain.Principal, op plandomain.Operation) (bool, error)
	GetFinanceStateProperty(p tenantdomain.Principal, property string) (string, error)
	UpdateFinanceState(ctx context.Context, p tenantdomain.Principal, state map[string]string) error
	ChangePlan(ctx context.Context, p tenantdomain.Principal, newPlan string) error
	UnregisterUser(ctx context.Context, p tenantdomain.Principal) error
	AddUser(ctx context.Context, p tenantdomain.Principal, planName string) error
	RemoveUser(ctx context.Context, p tenantdomain.Principal) error
	GetInvoice(p tenantdomain.Principal, id string) (tenantdomain.Invoice, error)
	CreateFinancePlan(ctx context.Context, name, planType string, options map[string]string) error
	GetFinancePlanOptions(name string) (map[string]string, error)
	ChangeOptions(ctx context.Context, name string, options map[string]string) error
	RemoveFinancePlan(ctx context.Context, name string) error
	Plans() []string
	Reload(ctx context.Context) error
}

type authorizedRequest struct {
	UserID    string               `json:"userId"`
	Provider  string               `json:"provider"`
	Operation plandomain.Operation `json:"operation"`
}

func (s *Server) Version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"name":    s.cfg.AppName,
		"version": s.cfg.AppVersion,
	}})
}

func (s *Server) IsAuthorized(c *gin.Context) {
	var req authorizedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	p, err := principal(req.UserID, req.Provider)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if strings.TrimSpace(string(req.Operation.Type)) == "" {
		AbortWithError(c, newValidationError("operation.type", "required", "operation type is required"))
		return
	}

	ctx := obscontext.WithTenant(c.Request.Context(), p.UserID, p.Provider)
	authorized, err := s.finance.IsAuthorized(ctx, p, req.Operation)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"authorized": authorized}})
}

func (s *Server) UpdateFinanceState(c *gin.Context) {
	p, err := principalFromPath(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var state map[string]string
	if err := c.ShouldBindJSON(&state); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(state) == 0 {
		AbortWithError(c, newValidationError("state", "required", "finance state is required"))
		return
	}

	ctx := obscontext.WithTenant(c.Request.Context(), p.UserID, p.Provider)
	if err := s.finance.UpdateFinanceState(ctx, p, state); err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, "finance_state.update", auditdomain.TargetTypeUser, p.String(), optionsMetadata(state))
	c.Status(http.StatusNoContent)
}

func (s *Server) GetFinanceStateProperty(c *gin.Context) {
	p, err := principalFromPath(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	property := strings.TrimSpace(c.Param("property"))
	value, err := s.finance.GetFinanceStateProperty(p, property)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"property": property,
		"value":    value,
	}})
}

func principalFromPath(c *gin.Context) (tenantdomain.Principal, error) {
	return principal(c.Param("userId"), c.Param("provider"))
}

func principal(userID, provider string) (tenantdomain.Principal, error) {
	p := tenantdomain.Principal{
		UserID:   strings.TrimSpace(userID),
		Provider: strings.TrimSpace(provider),
	}
	if p.UserID == "" {
		return p, newValidationError("userId", "required", "userId is required")
	}
	if p.Provider == "" {
		return p, newValidationError("provider", "required", "provider is required")
	}
	return p, nil
}
