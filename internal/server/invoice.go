package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/backoffice/internal/invoice/domain"
)

func (s *Server) ListInvoices(c *gin.Context) {
	invoices, err := s.invoiceSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"invoices": invoices}})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	invoice, err := s.invoiceSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req invoicedomain.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invoice, err := s.invoiceSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// the timer outlives the request, so the scan runs on its own context
	s.scanner.ScheduleScan(context.Background())

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) UpdateInvoice(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var req invoicedomain.UpdateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invoice, err := s.invoiceSvc.Update(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.scanner.ScheduleScan(context.Background())

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) DeleteInvoice(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := s.invoiceSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}
