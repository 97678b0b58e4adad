package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/openacad/sis-api/api/swagger"
	"github.com/openacad/sis-api/internal/handler"
	"github.com/openacad/sis-api/internal/middleware"
	"github.com/openacad/sis-api/internal/models"
	"github.com/openacad/sis-api/internal/repository"
	"github.com/openacad/sis-api/internal/service"
	"github.com/openacad/sis-api/pkg/cache"
	"github.com/openacad/sis-api/pkg/config"
	"github.com/openacad/sis-api/pkg/database"
	"github.com/openacad/sis-api/pkg/jobs"
	"github.com/openacad/sis-api/pkg/logger"
	corsmiddleware "github.com/openacad/sis-api/pkg/middleware/cors"
	reqidmiddleware "github.com/openacad/sis-api/pkg/middleware/requestid"
)

// @title OpenAcad SIS API
// @version 1.0.0
// @description Student information system: enrollment admission, grading, and transcripts
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	offeringRepo := repository.NewOfferingRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled && redisClient != nil)

	notificationSvc := service.NewNotificationService(notificationRepo, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
	}, logr)
	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	authSvc := service.NewAuthService(userRepo, cfg.JWT, validate, logr)
	userSvc := service.NewUserService(userRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, userRepo, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, validate, logr)
	roomSvc := service.NewRoomService(roomRepo, validate, logr)
	offeringSvc := service.NewOfferingService(offeringRepo, courseRepo, roomRepo, userRepo, validate, logr)
	gpaSvc := service.NewGPAService(studentRepo, metricsSvc, logr)
	reportSvc := service.NewReportService(enrollmentRepo, studentRepo, offeringRepo, cacheSvc, service.ReportConfig{
		InstitutionName: cfg.Reports.InstitutionName,
		CacheTTL:        cfg.Cache.TTL,
	}, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, offeringRepo, courseRepo, studentRepo, notificationSvc, metricsSvc, validate, logr)
	gradeSvc := service.NewGradeService(assessmentRepo, enrollmentRepo, studentRepo, gpaSvc, notificationSvc, reportSvc, metricsSvc, service.DefaultGradeScale, validate, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	roomHandler := handler.NewRoomHandler(roomSvc)
	offeringHandler := handler.NewOfferingHandler(offeringSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc, studentSvc)
	gradeHandler := handler.NewGradeHandler(gradeSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	reportHandler := handler.NewReportHandler(reportSvc, studentSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r, cfg, authSvc,
		authHandler, userHandler, studentHandler, courseHandler, roomHandler,
		offeringHandler, enrollmentHandler, gradeHandler, notificationHandler, reportHandler)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

func registerRoutes(
	r *gin.Engine,
	cfg *config.Config,
	authSvc *service.AuthService,
	auth *handler.AuthHandler,
	users *handler.UserHandler,
	students *handler.StudentHandler,
	courses *handler.CourseHandler,
	rooms *handler.RoomHandler,
	offerings *handler.OfferingHandler,
	enrollments *handler.EnrollmentHandler,
	grades *handler.GradeHandler,
	notifications *handler.NotificationHandler,
	reports *handler.ReportHandler,
) {
	prefix := cfg.APIPrefix
	if prefix == "" {
		prefix = "/api/v1"
	}
	api := r.Group(prefix)

	api.POST("/auth/login", auth.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	authed.GET("/auth/me", auth.Me)
	authed.PUT("/auth/password", auth.ChangePassword)

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar)
	admin := middleware.RequireRoles(models.RoleAdmin)
	graders := middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar, models.RoleInstructor)

	authed.GET("/users", admin, users.List)
	authed.GET("/users/:id", admin, users.Get)
	authed.POST("/users", admin, users.Create)
	authed.PUT("/users/:id", admin, users.Update)

	authed.GET("/students", staff, students.List)
	authed.GET("/me/student", students.Me)
	authed.GET("/students/:id", students.Get)
	authed.POST("/students", staff, students.Create)
	authed.PUT("/students/:id", staff, students.Update)
	authed.GET("/students/:id/transcript", reports.Transcript)

	authed.GET("/courses", courses.List)
	authed.GET("/courses/:id", courses.Get)
	authed.POST("/courses", staff, courses.Create)
	authed.PUT("/courses/:id", staff, courses.Update)
	authed.DELETE("/courses/:id", staff, courses.Delete)

	authed.GET("/rooms", rooms.List)
	authed.GET("/rooms/:id", rooms.Get)
	authed.POST("/rooms", staff, rooms.Create)
	authed.PUT("/rooms/:id", staff, rooms.Update)

	authed.GET("/offerings", offerings.List)
	authed.GET("/offerings/:id", offerings.Get)
	authed.POST("/offerings", staff, offerings.Create)
	authed.PUT("/offerings/:id", staff, offerings.Update)
	authed.POST("/offerings/:id/cancel", staff, offerings.Cancel)
	authed.GET("/offerings/:id/roster", graders, reports.ClassRoster)

	authed.GET("/enrollments", enrollments.List)
	authed.GET("/enrollments/:id", enrollments.Get)
	authed.POST("/enrollments", enrollments.Enroll)
	authed.POST("/enrollments/:id/drop", enrollments.Drop)

	authed.GET("/assessments", graders, grades.ListAssessments)
	authed.POST("/assessments", graders, grades.CreateAssessment)
	authed.PUT("/assessments/:id", graders, grades.UpdateAssessment)
	authed.DELETE("/assessments/:id", graders, grades.DeleteAssessment)
	authed.GET("/enrollments/:id/grade/preview", graders, grades.Preview)
	authed.POST("/enrollments/:id/grade/finalize", graders, grades.Finalize)
	authed.PUT("/enrollments/:id/grade", staff, grades.Amend)

	authed.GET("/notifications", notifications.List)
	authed.POST("/notifications/:id/read", notifications.MarkRead)
	authed.PUT("/notifications", notifications.MarkAllRead)
}
