package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/sfxc-dev/attendance-api/api/swagger"
	"github.com/sfxc-dev/attendance-api/internal/handler"
	"github.com/sfxc-dev/attendance-api/internal/middleware"
	"github.com/sfxc-dev/attendance-api/internal/repository"
	"github.com/sfxc-dev/attendance-api/internal/service"
	"github.com/sfxc-dev/attendance-api/pkg/cache"
	"github.com/sfxc-dev/attendance-api/pkg/config"
	"github.com/sfxc-dev/attendance-api/pkg/database"
	"github.com/sfxc-dev/attendance-api/pkg/logger"
	corsmiddleware "github.com/sfxc-dev/attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/sfxc-dev/attendance-api/pkg/middleware/requestid"
	"github.com/sfxc-dev/attendance-api/pkg/storage"
)

// @title School Attendance API
// @version 1.0.0
// @description RFID attendance tracking for school events
// @BasePath /api/v1
// @schemes http

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
		logr.Sugar().Warnw("redis unavailable, stats caching disabled", "error", err)
		redisClient = nil
	}

	templates, err := storage.NewLocalStorage(cfg.Exports.TemplateDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare template storage", "error", err)
	}

	semesterRepo := repository.NewSemesterRepository(db)
	eventRepo := repository.NewEventRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	semesterSvc := service.NewSemesterService(semesterRepo, logr)
	eventSvc := service.NewEventService(eventRepo, semesterRepo, logr)
	studentSvc := service.NewStudentService(studentRepo, templates, cfg.Kiosk.RFIDLength, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, eventRepo, studentRepo, cacheRepo, metricsSvc, nil, logr, service.AttendanceServiceConfig{
		RFIDLength:    cfg.Kiosk.RFIDLength,
		StatsCacheTTL: cfg.Kiosk.StatsCacheTTL,
	})
	recordSvc := service.NewRecordService(studentRepo, eventRepo, semesterRepo, attendanceRepo, nil, nil, logr)

	metricsHandler := handler.NewMetricsHandler(metricsSvc)
	semesterHandler := handler.NewSemesterHandler(semesterSvc)
	eventHandler := handler.NewEventHandler(eventSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc, metricsSvc)
	recordHandler := handler.NewRecordHandler(recordSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Kiosk routes stay public: scanners run unattended on the school LAN.
	api.POST("/attendance", attendanceHandler.Record)
	api.GET("/attendance/stats/:slotId", attendanceHandler.Stats)
	api.GET("/kiosk/events", eventHandler.Upcoming)
	api.GET("/kiosk/events/:id", eventHandler.Get)

	admin := api.Group("", middleware.JWT(cfg.JWT.Secret))
	{
		admin.GET("/attendance", attendanceHandler.List)
		admin.DELETE("/attendance/:id", attendanceHandler.Delete)

		admin.GET("/records", recordHandler.Matrix)
		admin.GET("/records/export", recordHandler.Export)

		admin.GET("/semesters", semesterHandler.List)
		admin.GET("/semesters/active", semesterHandler.Active)
		admin.GET("/semesters/:id", semesterHandler.Get)
		admin.POST("/semesters", semesterHandler.Create)
		admin.PUT("/semesters/:id", semesterHandler.Update)
		admin.POST("/semesters/:id/activate", semesterHandler.Activate)
		admin.POST("/semesters/:id/deactivate", semesterHandler.Deactivate)
		admin.DELETE("/semesters/:id", semesterHandler.Delete)

		admin.GET("/events", eventHandler.List)
		admin.GET("/events/:id", eventHandler.Get)
		admin.POST("/events", eventHandler.Create)
		admin.PUT("/events/:id", eventHandler.Update)
		admin.DELETE("/events/:id", eventHandler.Delete)

		admin.GET("/students", studentHandler.List)
		admin.GET("/students/:id", studentHandler.Get)
		admin.POST("/students", studentHandler.Create)
		admin.PUT("/students/:id", studentHandler.Update)
		admin.DELETE("/students/:id", studentHandler.Delete)
		admin.POST("/students/import", studentHandler.Import)
		admin.GET("/students/import/template", studentHandler.Template)
		admin.GET("/students/export", studentHandler.Export)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
