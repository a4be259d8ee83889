package handlers

import (
	"net/http"
	"time"

	"temani/internal/repositories"
	"temani/internal/services"

	"github.com/gin-gonic/gin"
)

// AdminHandler exposes operator tooling: manual job runs and the
// pending payout queue.
type AdminHandler struct {
	Reconcile services.ReconcileService
	Transfers repositories.TransferRepository
}

// POST /api/admin/jobs/:name/run
func (h AdminHandler) RunJob(c *gin.Context) {
	name := c.Param("name")
	started := time.Now()
	if err := h.Reconcile.Run(c.Request.Context(), name); err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":     "job selesai",
		"job":         name,
		"duration_ms": time.Since(started).Milliseconds(),
	})
}

// GET /api/admin/jobs
func (h AdminHandler) ListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": services.JobNames})
}

// GET /api/admin/transfers/unsettled
func (h AdminHandler) UnsettledTransfers(c *gin.Context) {
	items, err := h.Transfers.ListUnsettled()
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transfers": items})
}

type settleTransferPayload struct {
	TransferRef string `json:"transfer_ref"`
}

// POST /api/admin/transfers/:id/settle
func (h AdminHandler) SettleTransfer(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	var req settleTransferPayload
	if !BindJSONOrError(c, &req) {
		return
	}
	if req.TransferRef == "" {
		RespondError(c, http.StatusBadRequest, "transfer_ref wajib diisi", nil)
		return
	}
	if err := h.Transfers.MarkSettled(id, req.TransferRef, time.Now().UTC()); err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transfer ditandai selesai"})
}
