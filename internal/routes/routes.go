package routes

const (
	Health = "/health"

	AppointmentsStart             = "/api/v1/appointments/start"
	AppointmentsSubmitCompletion  = "/api/v1/appointments/submit-completion"
	AppointmentsApproveCompletion = "/api/v1/appointments/approve-completion"
)
