package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/fedbill/internal/audit/domain"
)

type createPlanRequest struct {
	Name    string            `json:"name"`
	Type    string            `json:"type"`
	Options map[string]string `json:"options"`
}

type planOptionsRequest struct {
	Options map[string]string `json:"options"`
}

type planResponse struct {
	Name    string            `json:"name"`
	Options map[string]string `json:"options,omitempty"`
}

func (s *Server) ListPlans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.finance.Plans()})
}

func (s *Server) CreatePlan(c *gin.Context) {
	var req createPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		AbortWithError(c, newValidationError("name", "required", "name is required"))
		return
	}

	planType := strings.TrimSpace(req.Type)
	if err := s.finance.CreateFinancePlan(c.Request.Context(), name, planType, req.Options); err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, "plan.create", auditdomain.TargetTypePlan, name, map[string]any{"type": planType, "options": optionsMetadata(req.Options)})
	c.JSON(http.StatusCreated, gin.H{"data": planResponse{Name: name, Options: req.Options}})
}

func (s *Server) GetPlan(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	options, err := s.finance.GetFinancePlanOptions(name)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": planResponse{Name: name, Options: options}})
}

func (s *Server) ChangePlanOptions(c *gin.Context) {
	var req planOptionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(req.Options) == 0 {
		AbortWithError(c, newValidationError("options", "required", "options are required"))
		return
	}

	name := strings.TrimSpace(c.Param("name"))
	if err := s.finance.ChangeOptions(c.Request.Context(), name, req.Options); err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, "plan.change_options", auditdomain.TargetTypePlan, name, map[string]any{"options": optionsMetadata(req.Options)})
	c.Status(http.StatusNoContent)
}

func (s *Server) RemovePlan(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	if err := s.finance.RemoveFinancePlan(c.Request.Context(), name); err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, "plan.remove", auditdomain.TargetTypePlan, name, nil)
	c.Status(http.StatusNoContent)
}

func optionsMetadata(options map[string]string) map[string]any {
	out := make(map[string]any, len(options))
	for k, v := range options {
		out[k] = v
	}
	return out
}
