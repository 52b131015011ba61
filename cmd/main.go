package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"
	"github.com/rs/cors"
	_ "time/tzdata"

	"github.com/Gkimbo/cleaningCompany-sub028/internal/app"
	"github.com/Gkimbo/cleaningCompany-sub028/internal/config"
	"github.com/Gkimbo/cleaningCompany-sub028/internal/constants"
	"github.com/Gkimbo/cleaningCompany-sub028/internal/controllers"
	"github.com/Gkimbo/cleaningCompany-sub028/internal/middleware"
	"github.com/Gkimbo/cleaningCompany-sub028/internal/repositories"
	"github.com/Gkimbo/cleaningCompany-sub028/internal/routes"
	"github.com/Gkimbo/cleaningCompany-sub028/internal/services"
	"github.com/Gkimbo/cleaningCompany-sub028/internal/utils"
)

func main() {
	utils.InitLogger(config.AppName)
	cfg := config.LoadConfig()
	defer cfg.Close()

	application, err := app.NewApp(cfg)
	if err != nil {
		utils.Logger.Fatal("Failed to initialize appointments-service:", err)
	}
	defer application.Close()

	// Repositories
	apptRepo := repositories.NewAppointmentRepository(application.DB)
	completionRepo := repositories.NewCleanerCompletionRepository(application.DB)
	payoutRepo := repositories.NewPayoutRecordRepository(application.DB)
	homeownerRepo := repositories.NewHomeownerRepository(application.DB)
	cleanerRepo := repositories.NewCleanerRepository(application.DB)
	pricingRepo := repositories.NewPricingRepository(application.DB)

	// Services
	gateway := services.NewStripeGateway(cfg.StripeSecretKey)
	notifier := services.NewNotificationService(cfg, homeownerRepo, cleanerRepo)
	payoutService := services.NewPayoutService(apptRepo, payoutRepo, cleanerRepo, pricingRepo, gateway)

	windowDays := constants.CaptureWindowDays
	if cfg.LDFlag_UseShortCaptureWindow {
		windowDays = constants.ShortCaptureWindowDays
		utils.Logger.Warnf("Using short capture window: %d day(s)", windowDays)
	}
	captureService := services.NewCaptureService(apptRepo, homeownerRepo, gateway, payoutService, notifier, windowDays)
	completionService := services.NewCompletionService(apptRepo, completionRepo, pricingRepo, payoutService, notifier)
	approvalMonitor := services.NewApprovalMonitorService(apptRepo, payoutService, notifier)
	autoCompleteMonitor := services.NewAutoCompleteMonitorService(apptRepo, pricingRepo, payoutService, notifier)

	// Controllers
	healthController := controllers.NewHealthController(application)
	appointmentsController := controllers.NewAppointmentsController(completionService)

	// Router setup
	router := mux.NewRouter()
	router.HandleFunc(routes.Health, healthController.HealthCheckHandler).Methods(http.MethodGet)

	secured := router.NewRoute().Subrouter()
	secured.Use(middleware.AuthMiddleware(cfg.RSAPublicKey))
	secured.HandleFunc(routes.AppointmentsStart, appointmentsController.StartJobHandler).Methods(http.MethodPost)
	secured.HandleFunc(routes.AppointmentsSubmitCompletion, appointmentsController.SubmitCompletionHandler).Methods(http.MethodPost)
	secured.HandleFunc(routes.AppointmentsApproveCompletion, appointmentsController.ApproveCompletionHandler).Methods(http.MethodPost)

	// Cron job setup
	c := cron.New(cron.WithLocation(time.UTC))

	_, err = c.AddFunc(constants.CaptureScanCronSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), constants.CaptureScanTimeout)
		defer cancel()
		utils.Logger.Info("Starting capture scan cron job...")
		if _, err := captureService.RunCaptureScan(ctx); err != nil {
			utils.Logger.WithError(err).Error("Capture scan failed")
		}
	})
	if err != nil {
		utils.Logger.WithError(err).Fatal("Failed to schedule capture scan cron")
	}

	_, err = c.AddFunc(constants.ApprovalMonitorCronSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), constants.MonitorScanTimeout)
		defer cancel()
		if _, err := approvalMonitor.RunApprovalScan(ctx); err != nil {
			utils.Logger.WithError(err).Error("Approval scan failed")
		}
	})
	if err != nil {
		utils.Logger.WithError(err).Fatal("Failed to schedule approval monitor cron")
	}

	_, err = c.AddFunc(constants.AutoCompleteMonitorCronSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), constants.MonitorScanTimeout)
		defer cancel()
		if _, err := autoCompleteMonitor.RunAutoCompleteScan(ctx); err != nil {
			utils.Logger.WithError(err).Error("Auto-complete scan failed")
		}
	})
	if err != nil {
		utils.Logger.WithError(err).Fatal("Failed to schedule auto-complete monitor cron")
	}

	_, err = c.AddFunc(constants.PayoutRetryCronSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), constants.MonitorScanTimeout)
		defer cancel()
		if _, err := payoutService.RunPayoutRetryScan(ctx); err != nil {
			utils.Logger.WithError(err).Error("Payout retry scan failed")
		}
	})
	if err != nil {
		utils.Logger.WithError(err).Fatal("Failed to schedule payout retry cron")
	}

	c.Start()
	utils.Logger.Info("Scheduled capture, monitor and payout cron jobs")

	allowedOrigins := []string{cfg.AppUrl}
	if !cfg.LDFlag_CORSHighSecurity {
		allowedOrigins = append(allowedOrigins, utils.CORSLowSecurityAllowedOriginLocalhost)
	}

	co := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	utils.Logger.Infof("Starting %s on port: %s", cfg.AppName, cfg.AppPort)
	if err := http.ListenAndServe(":"+cfg.AppPort, co.Handler(router)); err != nil {
		utils.Logger.Fatal("appointments-service failed to start:", err)
	}
}
