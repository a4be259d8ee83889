package handlers

import (
	"net/http"

	"temani/internal/http/middleware"
	"temani/internal/services"

	"github.com/gin-gonic/gin"
)

// ReceiptHandler serves the post-completion receipt PDF.
type ReceiptHandler struct {
	Receipts services.ReceiptService
}

// GET /api/bookings/:id/receipt
func (h ReceiptHandler) Get(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	svc := h.Receipts
	svc.RequestID = middleware.GetRequestID(c)
	pdf, filename, err := svc.Generate(id, middleware.Actor(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}
