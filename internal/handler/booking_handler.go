package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mirelo-edu/tutor-api/internal/models"
	"github.com/mirelo-edu/tutor-api/internal/service"
	appErrors "github.com/mirelo-edu/tutor-api/pkg/errors"
	"github.com/mirelo-edu/tutor-api/pkg/response"
)

// BookingHandler serves the public booking page and the admin review queue.
type BookingHandler struct {
	bookings *service.BookingService
	slots    *service.SlotService
}

// NewBookingHandler constructs handler.
func NewBookingHandler(bookings *service.BookingService, slots *service.SlotService) *BookingHandler {
	return &BookingHandler{bookings: bookings, slots: slots}
}

// ListSlots godoc
// @Summary Enumerate bookable slots for a link and month
// @Tags Booking
// @Produce json
// @Param id path string true "Booking link ID"
// @Param month query string true "Month (YYYY-MM)"
// @Success 200 {object} response.Envelope
// @Router /booking-links/{id}/slots [get]
func (h *BookingHandler) ListSlots(c *gin.Context) {
	year, month, err := parseMonth(c.Query("month"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid month, expected YYYY-MM"))
		return
	}
	slots, err := h.slots.Enumerate(c.Request.Context(), c.Param("id"), year, month)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// Submit godoc
// @Summary Submit a booking request for a slot
// @Tags Booking
// @Accept json
// @Produce json
// @Param id path string true "Booking link ID"
// @Param payload body service.SubmitBookingRequest true "Slot selection"
// @Success 201 {object} response.Envelope
// @Router /booking-links/{id}/requests [post]
func (h *BookingHandler) Submit(c *gin.Context) {
	var req service.SubmitBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.LinkID = c.Param("id")
	request, err := h.bookings.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// Cancel godoc
// @Summary Withdraw a pending booking request
// @Tags Booking
// @Param id path string true "Request ID"
// @Param studentId query string true "Owning student ID"
// @Success 204
// @Router /booking-requests/{id} [delete]
func (h *BookingHandler) Cancel(c *gin.Context) {
	studentID := c.Query("studentId")
	if studentID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "studentId is required"))
		return
	}
	if err := h.bookings.Cancel(c.Request.Context(), c.Param("id"), studentID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// List godoc
// @Summary List booking requests for admin review
// @Tags Booking
// @Produce json
// @Param linkId query string false "Filter by link"
// @Param studentId query string false "Filter by student"
// @Param teacherId query string false "Filter by teacher"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/booking-requests [get]
func (h *BookingHandler) List(c *gin.Context) {
	var filter models.BookingRequestFilter
	filter.LinkID = c.Query("linkId")
	filter.StudentID = c.Query("studentId")
	filter.TeacherID = c.Query("teacherId")
	if raw := c.Query("status"); raw != "" {
		status := models.BookingRequestStatus(raw)
		if !status.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid status"))
			return
		}
		filter.Status = &status
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}

	requests, pagination, err := h.bookings.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination)
}

type reviewRequest struct {
	AdminNote *string `json:"admin_note,omitempty"`
}

// Approve godoc
// @Summary Approve a pending booking request
// @Tags Booking
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body reviewRequest false "Review note"
// @Success 200 {object} response.Envelope
// @Router /admin/booking-requests/{id}/approve [post]
func (h *BookingHandler) Approve(c *gin.Context) {
	var req reviewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	sessionID, err := h.bookings.Approve(c.Request.Context(), c.Param("id"), req.AdminNote, actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"session_id": sessionID}, nil)
}

// Reject godoc
// @Summary Reject a pending booking request
// @Tags Booking
// @Accept json
// @Param id path string true "Request ID"
// @Param payload body reviewRequest false "Review note"
// @Success 204
// @Router /admin/booking-requests/{id}/reject [post]
func (h *BookingHandler) Reject(c *gin.Context) {
	var req reviewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	if err := h.bookings.Reject(c.Request.Context(), c.Param("id"), req.AdminNote, actorFrom(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
