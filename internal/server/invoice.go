package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/fedbill/internal/providers/pdf"
)

func (s *Server) GetInvoicePDF(c *gin.Context) {
	p, err := principalFromPath(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	invoiceID := strings.TrimSpace(c.Param("invoiceId"))
	if invoiceID == "" {
		AbortWithError(c, newValidationError("invoiceId", "required", "invoiceId is required"))
		return
	}

	invoice, err := s.finance.GetInvoice(p, invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	doc, err := s.pdf.GenerateInvoice(c.Request.Context(), invoice)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	body, err := io.ReadAll(doc)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+pdf.FileName(invoice)+`"`)
	c.Data(http.StatusOK, "application/pdf", body)
}
