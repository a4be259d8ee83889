package handlers

import (
	"net/http"
	"time"

	"temani/internal/http/middleware"
	"temani/internal/services"
	"temani/internal/utils"

	"github.com/gin-gonic/gin"
)

// BookingHandler serves the booking lifecycle endpoints.
type BookingHandler struct {
	Bookings services.BookingService
}

type createBookingRequest struct {
	CompanionID    int64   `json:"companion_id"`
	StartAt        string  `json:"start_at"`
	EndAt          string  `json:"end_at"`
	TotalAmount    int64   `json:"total_amount"`
	PaymentToken   string  `json:"payment_token"`
	MeetingLat     float64 `json:"meeting_lat"`
	MeetingLng     float64 `json:"meeting_lng"`
	MeetingAddress string  `json:"meeting_address"`
}

// POST /api/bookings
func (h BookingHandler) Create(c *gin.Context) {
	var req createBookingRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	startAt, err := utils.ParseDateTime(req.StartAt)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "start_at tidak valid (format: 2006-01-02 15:04:05)", nil)
		return
	}
	endAt, err := utils.ParseDateTime(req.EndAt)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "end_at tidak valid (format: 2006-01-02 15:04:05)", nil)
		return
	}

	actor := middleware.Actor(c)
	b, err := h.Bookings.Create(c.Request.Context(), services.CreateBookingInput{
		ClientID:       int64(actor.UserID),
		CompanionID:    req.CompanionID,
		StartAt:        startAt,
		EndAt:          endAt,
		TotalAmount:    req.TotalAmount,
		PaymentToken:   req.PaymentToken,
		MeetingLat:     req.MeetingLat,
		MeetingLng:     req.MeetingLng,
		MeetingAddress: req.MeetingAddress,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "booking dibuat, menunggu konfirmasi companion", "booking": b})
}

// POST /api/bookings/:id/accept
func (h BookingHandler) Accept(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	b, err := h.Bookings.Accept(c.Request.Context(), id, middleware.Actor(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "booking dikonfirmasi", "booking": b})
}

type cancelBookingRequest struct {
	Reason string `json:"reason"`
}

// POST /api/bookings/:id/cancel
func (h BookingHandler) Cancel(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	var req cancelBookingRequest
	if c.Request.Body != nil {
		_ = c.ShouldBindJSON(&req) // reason is optional
	}
	b, err := h.Bookings.Cancel(c.Request.Context(), id, middleware.Actor(c), req.Reason)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "booking dibatalkan", "booking": b})
}

// POST /api/bookings/:id/complete
func (h BookingHandler) Complete(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	b, err := h.Bookings.Complete(c.Request.Context(), id, middleware.Actor(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "booking selesai, terima kasih", "booking": b})
}

// GET /api/bookings/:id
func (h BookingHandler) Get(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	b, err := h.Bookings.Get(id, middleware.Actor(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": b})
}

// GET /api/bookings
func (h BookingHandler) List(c *gin.Context) {
	p := PageFromQuery(c)
	items, total, err := h.Bookings.List(middleware.Actor(c), p)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"bookings":  items,
		"page":      p.Page,
		"page_size": p.PageSize,
		"total":     total,
		"served_at": time.Now().UTC(),
	})
}
