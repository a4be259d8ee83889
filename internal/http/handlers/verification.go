package handlers

import (
	"net/http"

	"temani/internal/domain/models"
	"temani/internal/http/middleware"
	"temani/internal/services"
	"temani/internal/utils"

	"github.com/gin-gonic/gin"
)

// VerificationHandler serves meeting verification endpoints.
type VerificationHandler struct {
	Verification services.VerificationService
}

type submitVerificationRequest struct {
	Code             string  `json:"code"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	OverrideLocation bool    `json:"override_location"`
}

// POST /api/bookings/:id/verify
func (h VerificationHandler) Submit(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	var req submitVerificationRequest
	if !BindJSONOrError(c, &req) {
		return
	}

	res, err := h.Verification.Submit(c.Request.Context(), middleware.Actor(c), services.SubmitInput{
		BookingID:        id,
		Code:             req.Code,
		Latitude:         req.Latitude,
		Longitude:        req.Longitude,
		OverrideLocation: req.OverrideLocation,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	if res.ConfirmationRequired {
		c.JSON(http.StatusOK, gin.H{
			"message":              "lokasi Anda di luar radius titik temu, konfirmasi untuk melanjutkan",
			"confirmationRequired": true,
			"distance":             res.DistanceMeters,
			"minutesRemaining":     res.MinutesRemaining,
		})
		return
	}

	msg := "verifikasi Anda tercatat, menunggu pihak lain"
	if res.BothVerified {
		msg = "pertemuan terverifikasi, selamat menikmati waktu Anda"
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "result": res})
}

// POST /api/bookings/:id/verify/extend
func (h VerificationHandler) Extend(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	deadline, err := h.Verification.RequestExtension(c.Request.Context(), id, middleware.Actor(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "batas waktu verifikasi diperpanjang",
		"deadline": utils.FormatDateTime(deadline),
	})
}

// GET /api/bookings/:id/verify
func (h VerificationHandler) Status(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	v, err := h.Verification.Status(id, middleware.Actor(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	// Each party only ever sees its own code; the counterpart types it.
	own := v.ClientCode
	if middleware.Actor(c).Role == string(models.RoleCompanion) {
		own = v.CompanionCode
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         v.Status,
		"deadline":       utils.FormatDateTime(v.Deadline),
		"extension_used": v.ExtensionUsed,
		"your_code":      own,
	})
}

// GET /api/bookings/:id/verify/attempts
func (h VerificationHandler) Attempts(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	if _, err := h.Verification.Status(id, middleware.Actor(c)); err != nil {
		RespondDomainError(c, err)
		return
	}
	attempts, err := h.Verification.Attempts(id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempts": attempts})
}
