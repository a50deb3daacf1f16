package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mirelo-edu/tutor-api/internal/service"
	appErrors "github.com/mirelo-edu/tutor-api/pkg/errors"
	"github.com/mirelo-edu/tutor-api/pkg/response"
)

// SessionHandler manages admin session and appointment endpoints.
type SessionHandler struct {
	service *service.SessionService
}

// NewSessionHandler constructs handler.
func NewSessionHandler(svc *service.SessionService) *SessionHandler {
	return &SessionHandler{service: svc}
}

// Create godoc
// @Summary Create a session for a class
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body service.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Router /admin/sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	var req service.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.service.CreateSession(c.Request.Context(), req, actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// GenerateWeekly godoc
// @Summary Materialize a weekly meeting pattern over a date window
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body service.GenerateWeeklyRequest true "Generation payload"
// @Success 200 {object} response.Envelope
// @Router /admin/sessions/generate-weekly [post]
func (h *SessionHandler) GenerateWeekly(c *gin.Context) {
	var req service.GenerateWeeklyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.GenerateWeekly(c.Request.Context(), req, actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

type reassignRequest struct {
	TeacherID string `json:"teacher_id" binding:"required"`
}

// Reassign godoc
// @Summary Reassign a session's teacher
// @Tags Sessions
// @Accept json
// @Param id path string true "Session ID"
// @Param payload body reassignRequest true "New teacher"
// @Success 204
// @Router /admin/sessions/{id}/reassign [post]
func (h *SessionHandler) Reassign(c *gin.Context) {
	var req reassignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.service.ReassignTeacher(c.Request.Context(), c.Param("id"), req.TeacherID, actorFrom(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Cancel godoc
// @Summary Cancel a session
// @Tags Sessions
// @Param id path string true "Session ID"
// @Success 204
// @Router /admin/sessions/{id} [delete]
func (h *SessionHandler) Cancel(c *gin.Context) {
	if err := h.service.CancelSession(c.Request.Context(), c.Param("id"), actorFrom(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CreateAppointment godoc
// @Summary Book a standalone 1-on-1 appointment
// @Tags Appointments
// @Accept json
// @Produce json
// @Param payload body service.CreateAppointmentRequest true "Appointment payload"
// @Success 201 {object} response.Envelope
// @Router /admin/appointments [post]
func (h *SessionHandler) CreateAppointment(c *gin.Context) {
	var req service.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	appt, err := h.service.CreateAppointment(c.Request.Context(), req, actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, appt)
}
