package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mirelo-edu/tutor-api/internal/service"
	appErrors "github.com/mirelo-edu/tutor-api/pkg/errors"
	"github.com/mirelo-edu/tutor-api/pkg/response"
)

// AvailabilityHandler manages teacher availability endpoints.
type AvailabilityHandler struct {
	service *service.AvailabilityService
}

// NewAvailabilityHandler constructs handler.
func NewAvailabilityHandler(svc *service.AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: svc}
}

// ListWeekly godoc
// @Summary List a teacher's weekly availability template
// @Tags Availability
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/availability/weekly [get]
func (h *AvailabilityHandler) ListWeekly(c *gin.Context) {
	rules, err := h.service.ListWeekly(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rules, nil)
}

// CreateWeekly godoc
// @Summary Add a weekly availability rule
// @Tags Availability
// @Accept json
// @Produce json
// @Param payload body service.CreateWeeklyRuleRequest true "Rule payload"
// @Success 201 {object} response.Envelope
// @Router /teachers/{id}/availability/weekly [post]
func (h *AvailabilityHandler) CreateWeekly(c *gin.Context) {
	var req service.CreateWeeklyRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.TeacherID = c.Param("id")
	rule, err := h.service.CreateWeeklyRule(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rule)
}

// DeleteWeekly godoc
// @Summary Remove a weekly availability rule
// @Tags Availability
// @Param id path string true "Teacher ID"
// @Param ruleId path string true "Rule ID"
// @Success 204
// @Router /teachers/{id}/availability/weekly/{ruleId} [delete]
func (h *AvailabilityHandler) DeleteWeekly(c *gin.Context) {
	if err := h.service.DeleteWeeklyRule(c.Request.Context(), c.Param("id"), c.Param("ruleId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SetDateOverride godoc
// @Summary Replace a day's availability override
// @Tags Availability
// @Accept json
// @Produce json
// @Param id path string true "Teacher ID"
// @Param date path string true "Date (YYYY-MM-DD)"
// @Param payload body service.SetDateOverrideRequest true "Override payload"
// @Success 204
// @Router /teachers/{id}/availability/dates/{date} [put]
func (h *AvailabilityHandler) SetDateOverride(c *gin.Context) {
	date, err := parseDate(c.Param("date"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date, expected YYYY-MM-DD"))
		return
	}
	var req service.SetDateOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.TeacherID = c.Param("id")
	req.Date = date
	if err := h.service.SetDateOverride(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ClearDate godoc
// @Summary Remove a day's availability override
// @Tags Availability
// @Param id path string true "Teacher ID"
// @Param date path string true "Date (YYYY-MM-DD)"
// @Success 204
// @Router /teachers/{id}/availability/dates/{date} [delete]
func (h *AvailabilityHandler) ClearDate(c *gin.Context) {
	date, err := parseDate(c.Param("date"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date, expected YYYY-MM-DD"))
		return
	}
	if err := h.service.ClearDate(c.Request.Context(), c.Param("id"), date); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ResolveDay godoc
// @Summary Resolve a teacher's effective availability for a date
// @Tags Availability
// @Produce json
// @Param id path string true "Teacher ID"
// @Param date path string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/availability/dates/{date} [get]
func (h *AvailabilityHandler) ResolveDay(c *gin.Context) {
	date, err := parseDate(c.Param("date"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date, expected YYYY-MM-DD"))
		return
	}
	ranges, err := h.service.Resolve(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ranges, nil)
}

// MaterializeMonth godoc
// @Summary Materialize the weekly template into date rows for a month
// @Tags Availability
// @Produce json
// @Param id path string true "Teacher ID"
// @Param year query int true "Year"
// @Param month query int true "Month (1-12)"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/availability/materialize [post]
func (h *AvailabilityHandler) MaterializeMonth(c *gin.Context) {
	year, err := strconv.Atoi(c.Query("year"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid year"))
		return
	}
	month, err := strconv.Atoi(c.Query("month"))
	if err != nil || month < 1 || month > 12 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid month"))
		return
	}
	created, err := h.service.MaterializeMonth(c.Request.Context(), c.Param("id"), year, time.Month(month))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"created": created}, nil)
}
