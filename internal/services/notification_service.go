package services

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/Gkimbo/cleaningCompany-sub028/internal/config"
	"github.com/Gkimbo/cleaningCompany-sub028/internal/constants"
	"github.com/Gkimbo/cleaningCompany-sub028/internal/models"
	"github.com/Gkimbo/cleaningCompany-sub028/internal/repositories"
	"github.com/Gkimbo/cleaningCompany-sub028/internal/utils"
)

// Notifier is the outbound messaging surface the scanners and handlers
// call. Every method is fire-and-forget: delivery failures are logged and
// never fail the state transition that triggered them.
type Notifier interface {
	OverdueReminder(ctx context.Context, appt *models.Appointment, offsetMinutes int32)
	SubmissionReceived(ctx context.Context, appt *models.Appointment)
	AutoApprovalOccurred(ctx context.Context, appt *models.Appointment)
	CaptureFailed(ctx context.Context, appt *models.Appointment, reason string)
}

type NotificationService struct {
	cfg            *config.Config
	twilioClient   *twilio.RestClient
	sendgridClient *sendgrid.Client
	homeownerRepo  repositories.HomeownerRepository
	cleanerRepo    repositories.CleanerRepository
}

func NewNotificationService(
	cfg *config.Config,
	homeownerRepo repositories.HomeownerRepository,
	cleanerRepo repositories.CleanerRepository,
) *NotificationService {
	return &NotificationService{
		cfg: cfg,
		twilioClient: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.TwilioAccountSID,
			Password: cfg.TwilioAuthToken,
		}),
		sendgridClient: sendgrid.NewSendClient(cfg.SendGridAPIKey),
		homeownerRepo:  homeownerRepo,
		cleanerRepo:    cleanerRepo,
	}
}

// OverdueReminder texts every assigned cleaner that the job is still open
// past its scheduled end.
func (s *NotificationService) OverdueReminder(ctx context.Context, appt *models.Appointment, offsetMinutes int32) {
	body := fmt.Sprintf(
		"Your %s cleaning is %d minutes past its scheduled end and has not been submitted. Please submit it in the app, or it will be completed automatically.",
		appt.ServiceDate.Format("Jan 2"), offsetMinutes)

	for _, cleanerID := range appt.AssignedCleanerIDs {
		cleaner, err := s.cleanerRepo.GetByID(ctx, cleanerID)
		if err != nil || cleaner == nil {
			utils.Logger.WithFields(logrus.Fields{
				"appointment_id": appt.ID,
				"cleaner_id":     cleanerID,
			}).WithError(err).Warn("Overdue reminder: cleaner lookup failed")
			continue
		}
		s.sendSMS(cleaner.PhoneNumber, body)
	}
}

// SubmissionReceived tells the homeowner review has started and how long
// they have before auto-approval.
func (s *NotificationService) SubmissionReceived(ctx context.Context, appt *models.Appointment) {
	owner, err := s.homeownerRepo.GetByID(ctx, appt.HomeownerID)
	if err != nil || owner == nil {
		utils.Logger.WithField("appointment_id", appt.ID).WithError(err).
			Warn("Submission notification: homeowner lookup failed")
		return
	}

	body := fmt.Sprintf(
		"Hi %s, your cleaning on %s was submitted for your review. If you take no action it will be approved automatically.",
		owner.FirstName, appt.ServiceDate.Format("January 2"))
	s.sendEmail(owner.Email, constants.EmailSubjectSubmissionReceived, body)
	s.sendSMS(owner.PhoneNumber, body)
}

// AutoApprovalOccurred tells the homeowner the review window lapsed and
// asks for after-the-fact feedback.
func (s *NotificationService) AutoApprovalOccurred(ctx context.Context, appt *models.Appointment) {
	owner, err := s.homeownerRepo.GetByID(ctx, appt.HomeownerID)
	if err != nil || owner == nil {
		utils.Logger.WithField("appointment_id", appt.ID).WithError(err).
			Warn("Auto-approval notification: homeowner lookup failed")
		return
	}

	body := fmt.Sprintf(
		"Hi %s, your cleaning on %s was automatically approved and your cleaner has been paid. Please leave feedback in the app.",
		owner.FirstName, appt.ServiceDate.Format("January 2"))
	s.sendEmail(owner.Email, constants.EmailSubjectAutoApproved, body)
}

// CaptureFailed asks the homeowner to fix their payment method. The
// appointment stays flagged until support clears it.
func (s *NotificationService) CaptureFailed(ctx context.Context, appt *models.Appointment, reason string) {
	owner, err := s.homeownerRepo.GetByID(ctx, appt.HomeownerID)
	if err != nil || owner == nil {
		utils.Logger.WithField("appointment_id", appt.ID).WithError(err).
			Warn("Capture-failed notification: homeowner lookup failed")
		return
	}

	body := fmt.Sprintf(
		"Hi %s, we could not charge your payment method for the cleaning on %s. Please update your card in the app and contact support so we can retry.",
		owner.FirstName, appt.ServiceDate.Format("January 2"))
	s.sendEmail(owner.Email, constants.EmailSubjectCaptureFailed, body)
	s.sendSMS(owner.PhoneNumber, body)

	utils.Logger.WithFields(logrus.Fields{
		"appointment_id": appt.ID,
		"reason":         reason,
	}).Info("Capture-failed notification sent")
}

func (s *NotificationService) sendSMS(to, body string) {
	if to == "" {
		return
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.cfg.LDFlag_TwilioFromPhone)
	params.SetBody(body)

	if _, err := s.twilioClient.Api.CreateMessage(params); err != nil {
		utils.Logger.WithField("to", to).WithError(err).Error("Failed to send SMS")
	}
}

func (s *NotificationService) sendEmail(to, subject, body string) {
	if to == "" {
		return
	}
	from := mail.NewEmail(utils.OrganizationName, s.cfg.LDFlag_SendgridFromEmail)
	message := mail.NewSingleEmail(from, subject, mail.NewEmail("", to), body, body)

	if s.cfg.LDFlag_SendgridSandboxMode {
		settings := mail.NewMailSettings()
		settings.SetSandboxMode(mail.NewSetting(true))
		message.SetMailSettings(settings)
	}

	resp, err := s.sendgridClient.Send(message)
	if err != nil {
		utils.Logger.WithField("to", to).WithError(err).Error("Failed to send email")
		return
	}
	if resp.StatusCode >= 400 {
		utils.Logger.WithFields(logrus.Fields{
			"to":     to,
			"status": resp.StatusCode,
		}).Error("SendGrid rejected email")
	}
}
