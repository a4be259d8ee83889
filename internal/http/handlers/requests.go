package handlers

import (
	"net/http"
	"time"

	"temani/internal/http/middleware"
	"temani/internal/services"
	"temani/internal/utils"

	"github.com/gin-gonic/gin"
)

// RequestHandler serves custom booking request endpoints.
type RequestHandler struct {
	Requests services.RequestService
}

type createRequestPayload struct {
	CompanionID   int64  `json:"companion_id"`
	Message       string `json:"message"`
	ProposedStart string `json:"proposed_start"`
	ProposedEnd   string `json:"proposed_end"`
	TotalAmount   int64  `json:"total_amount"`
	PaymentToken  string `json:"payment_token"`
}

// POST /api/requests
func (h RequestHandler) Create(c *gin.Context) {
	var req createRequestPayload
	if !BindJSONOrError(c, &req) {
		return
	}

	var proposedStart, proposedEnd *time.Time
	if req.ProposedStart != "" {
		t, err := utils.ParseDateTime(req.ProposedStart)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "proposed_start tidak valid", nil)
			return
		}
		proposedStart = &t
	}
	if req.ProposedEnd != "" {
		t, err := utils.ParseDateTime(req.ProposedEnd)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "proposed_end tidak valid", nil)
			return
		}
		proposedEnd = &t
	}

	actor := middleware.Actor(c)
	rq, err := h.Requests.Create(c.Request.Context(), services.CreateRequestInput{
		ClientID:      int64(actor.UserID),
		CompanionID:   req.CompanionID,
		Message:       req.Message,
		ProposedStart: proposedStart,
		ProposedEnd:   proposedEnd,
		TotalAmount:   req.TotalAmount,
		PaymentToken:  req.PaymentToken,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "request terkirim ke companion", "request": rq})
}

type acceptRequestPayload struct {
	StartAt        string  `json:"start_at"`
	EndAt          string  `json:"end_at"`
	MeetingLat     float64 `json:"meeting_lat"`
	MeetingLng     float64 `json:"meeting_lng"`
	MeetingAddress string  `json:"meeting_address"`
}

// POST /api/requests/:id/accept
func (h RequestHandler) Accept(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	var req acceptRequestPayload
	if c.Request.Body != nil {
		_ = c.ShouldBindJSON(&req) // schedule optional when the request proposed one
	}

	in := services.AcceptRequestInput{
		MeetingLat:     req.MeetingLat,
		MeetingLng:     req.MeetingLng,
		MeetingAddress: req.MeetingAddress,
	}
	if req.StartAt != "" {
		t, err := utils.ParseDateTime(req.StartAt)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "start_at tidak valid", nil)
			return
		}
		in.StartAt = t
	}
	if req.EndAt != "" {
		t, err := utils.ParseDateTime(req.EndAt)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "end_at tidak valid", nil)
			return
		}
		in.EndAt = t
	}

	b, err := h.Requests.Accept(c.Request.Context(), id, middleware.Actor(c), in)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "request diterima, booking terkonfirmasi", "booking": b})
}

type rejectRequestPayload struct {
	Reason string `json:"reason"`
}

// POST /api/requests/:id/reject
func (h RequestHandler) Reject(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	var req rejectRequestPayload
	if c.Request.Body != nil {
		_ = c.ShouldBindJSON(&req)
	}
	if err := h.Requests.Reject(c.Request.Context(), id, middleware.Actor(c), req.Reason); err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "request ditolak, dana dikembalikan ke klien"})
}

// GET /api/requests/:id
func (h RequestHandler) Get(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	rq, err := h.Requests.Get(id, middleware.Actor(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": rq})
}
