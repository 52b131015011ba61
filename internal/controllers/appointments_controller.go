package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Gkimbo/cleaningCompany-sub028/internal/dtos"
	"github.com/Gkimbo/cleaningCompany-sub028/internal/middleware"
	"github.com/Gkimbo/cleaningCompany-sub028/internal/services"
	"github.com/Gkimbo/cleaningCompany-sub028/internal/utils"
)

var validate = validator.New()

type AppointmentsController struct {
	completionService *services.CompletionService
}

func NewAppointmentsController(s *services.CompletionService) *AppointmentsController {
	return &AppointmentsController{completionService: s}
}

// POST /api/v1/appointments/start
func (c *AppointmentsController) StartJobHandler(w http.ResponseWriter, r *http.Request) {
	apptID, userID, ok := c.parseActionRequest(w, r)
	if !ok {
		return
	}

	appt, err := c.completionService.StartJob(r.Context(), apptID, userID)
	if err != nil {
		respondDomainError(w, err, "Could not start job")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dtos.NewAppointmentResponse(appt))
}

// POST /api/v1/appointments/submit-completion
func (c *AppointmentsController) SubmitCompletionHandler(w http.ResponseWriter, r *http.Request) {
	apptID, userID, ok := c.parseActionRequest(w, r)
	if !ok {
		return
	}

	appt, err := c.completionService.SubmitCompletion(r.Context(), apptID, userID)
	if err != nil {
		respondDomainError(w, err, "Could not submit completion")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dtos.NewAppointmentResponse(appt))
}

// POST /api/v1/appointments/approve-completion
func (c *AppointmentsController) ApproveCompletionHandler(w http.ResponseWriter, r *http.Request) {
	apptID, userID, ok := c.parseActionRequest(w, r)
	if !ok {
		return
	}

	appt, err := c.completionService.ApproveCompletion(r.Context(), apptID, userID)
	if err != nil {
		respondDomainError(w, err, "Could not approve completion")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dtos.NewAppointmentResponse(appt))
}

// parseActionRequest pulls the appointment id from the body and the caller
// id from the auth context. A false return means the response was already
// written.
func (c *AppointmentsController) parseActionRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	ctxUserID := r.Context().Value(middleware.ContextKeyUserID)
	if ctxUserID == nil {
		utils.RespondErrorWithCode(w, http.StatusUnauthorized, utils.ErrCodeUnauthorized, "Missing userID in context", nil)
		return uuid.Nil, uuid.Nil, false
	}
	userID, err := uuid.Parse(ctxUserID.(string))
	if err != nil {
		utils.RespondErrorWithCode(w, http.StatusUnauthorized, utils.ErrCodeUnauthorized, "Invalid userID in token", nil, err)
		return uuid.Nil, uuid.Nil, false
	}

	var req dtos.AppointmentActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Invalid JSON body", nil, err)
		return uuid.Nil, uuid.Nil, false
	}
	if err := validate.Struct(req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeValidation, "Validation failed", err.Error())
		return uuid.Nil, uuid.Nil, false
	}
	apptID, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeValidation, "Invalid appointment_id", nil, err)
		return uuid.Nil, uuid.Nil, false
	}
	return apptID, userID, true
}

func respondDomainError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, utils.ErrAppointmentNotFound):
		utils.RespondErrorWithCode(w, http.StatusNotFound, utils.ErrCodeNotFound, "Appointment not found", nil)
	case errors.Is(err, utils.ErrNotAssignedCleaner):
		utils.RespondErrorWithCode(w, http.StatusForbidden, utils.ErrCodeForbidden, "You are not assigned to this appointment", nil)
	case errors.Is(err, utils.ErrNotHomeowner):
		utils.RespondErrorWithCode(w, http.StatusForbidden, utils.ErrCodeForbidden, "Only the appointment's homeowner can do this", nil)
	case errors.Is(err, utils.ErrWrongStatus):
		utils.RespondErrorWithCode(w, http.StatusConflict, utils.ErrCodeConflict, "Appointment is not in a state that allows this action", nil)
	default:
		utils.Logger.WithError(err).Error(fallback)
		utils.RespondErrorWithCode(w, http.StatusInternalServerError, utils.ErrCodeInternal, fallback, nil, err)
	}
}
