package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/backoffice/internal/invoice/domain"
)

type overdueDecisionRequest struct {
	InvoiceID     string `json:"invoice_id"`
	InstallmentID string `json:"installment_id"`
}

func (r overdueDecisionRequest) toCandidate() (invoicedomain.OverdueCandidate, error) {
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(r.InvoiceID))
	if err != nil {
		return invoicedomain.OverdueCandidate{}, invalidRequestError()
	}
	candidate := invoicedomain.OverdueCandidate{InvoiceID: invoiceID}
	if trimmed := strings.TrimSpace(r.InstallmentID); trimmed != "" {
		installmentID, err := snowflake.ParseString(trimmed)
		if err != nil {
			return invoicedomain.OverdueCandidate{}, invalidRequestError()
		}
		candidate.InstallmentID = &installmentID
	}
	return candidate, nil
}

func (s *Server) GetOverdueCandidate(c *gin.Context) {
	candidate, ok := s.scanner.Candidate()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"data": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": candidate})
}

func (s *Server) ConfirmOverduePayment(c *gin.Context) {
	var req overdueDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	candidate, err := req.toCandidate()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.scanner.Confirm(c.Request.Context(), candidate); err != nil {
		AbortWithError(c, err)
		return
	}

	// the confirmed item may not have been the only overdue one
	s.scanner.ScheduleScan(context.Background())

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"confirmed": true}})
}

func (s *Server) DeclineOverduePayment(c *gin.Context) {
	var req overdueDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	candidate, err := req.toCandidate()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.scanner.Decline(candidate); err != nil {
		AbortWithError(c, err)
		return
	}

	s.scanner.ScheduleScan(context.Background())

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"declined": true}})
}
