package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/mirelo-edu/tutor-api/internal/handler"
	"github.com/mirelo-edu/tutor-api/internal/middleware"
	"github.com/mirelo-edu/tutor-api/internal/repository"
	"github.com/mirelo-edu/tutor-api/internal/service"
	"github.com/mirelo-edu/tutor-api/pkg/cache"
	"github.com/mirelo-edu/tutor-api/pkg/config"
	"github.com/mirelo-edu/tutor-api/pkg/database"
	"github.com/mirelo-edu/tutor-api/pkg/logger"
	corsmiddleware "github.com/mirelo-edu/tutor-api/pkg/middleware/cors"
	reqidmiddleware "github.com/mirelo-edu/tutor-api/pkg/middleware/requestid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	validate := validator.New()

	// Repositories.
	txManager := repository.NewTxManager(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	appointmentRepo := repository.NewAppointmentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	classRepo := repository.NewClassRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	packageRepo := repository.NewPackageRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	auditSvc := service.NewAuditService(auditRepo, cfg.Audit, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Booking.SlotCacheTTL, logr, cfg.Booking.SlotCacheEnabled)
	availabilitySvc := service.NewAvailabilityService(availabilityRepo, auditSvc, validate, logr)
	conflictSvc := service.NewConflictService(availabilitySvc, sessionRepo, appointmentRepo, attendanceRepo, teacherRepo, metricsSvc, logr)
	slotSvc := service.NewSlotService(availabilitySvc, bookingRepo, sessionRepo, appointmentRepo, attendanceRepo, teacherRepo, cacheSvc, metricsSvc, logr)
	bookingSvc := service.NewBookingService(bookingRepo, conflictSvc, sessionRepo, enrollmentRepo, classRepo, txManager, slotSvc, auditSvc, metricsSvc, validate, logr)
	sessionSvc := service.NewSessionService(sessionRepo, classRepo, enrollmentRepo, appointmentRepo, conflictSvc, packageRepo, txManager, auditSvc, metricsSvc, validate, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	auditSvc.Start(ctx)
	defer auditSvc.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	availabilityHandler := handler.NewAvailabilityHandler(availabilitySvc)
	bookingHandler := handler.NewBookingHandler(bookingSvc, slotSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)

	api := r.Group(cfg.APIPrefix)
	{
		teachers := api.Group("/teachers/:id/availability")
		{
			teachers.GET("/weekly", availabilityHandler.ListWeekly)
			teachers.POST("/weekly", availabilityHandler.CreateWeekly)
			teachers.DELETE("/weekly/:ruleId", availabilityHandler.DeleteWeekly)
			teachers.GET("/dates/:date", availabilityHandler.ResolveDay)
			teachers.PUT("/dates/:date", availabilityHandler.SetDateOverride)
			teachers.DELETE("/dates/:date", availabilityHandler.ClearDate)
			teachers.POST("/materialize", availabilityHandler.MaterializeMonth)
		}

		api.GET("/booking-links/:id/slots", bookingHandler.ListSlots)
		api.POST("/booking-links/:id/requests", bookingHandler.Submit)
		api.DELETE("/booking-requests/:id", bookingHandler.Cancel)

		admin := api.Group("/admin")
		{
			admin.GET("/booking-requests", bookingHandler.List)
			admin.POST("/booking-requests/:id/approve", bookingHandler.Approve)
			admin.POST("/booking-requests/:id/reject", bookingHandler.Reject)
			admin.POST("/sessions", sessionHandler.Create)
			admin.POST("/sessions/generate-weekly", sessionHandler.GenerateWeekly)
			admin.POST("/sessions/:id/reassign", sessionHandler.Reassign)
			admin.DELETE("/sessions/:id", sessionHandler.Cancel)
			admin.POST("/appointments", sessionHandler.CreateAppointment)
		}
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
