package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"btl-backend/config"
	"btl-backend/internal/api"
	"btl-backend/internal/broker"
	"btl-backend/internal/gateway"
	"btl-backend/internal/notify"
	"btl-backend/internal/redisclient"
	"btl-backend/internal/service"
	"btl-backend/internal/store"
	"btl-backend/internal/util"
	"btl-backend/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting registration service")

	tp, err := util.InitTracer("btl-backend", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicRegistration)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	gatewayClient := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.KeyID, cfg.Gateway.KeySecret)
	mailer := notify.NewTemplateMailer(cfg.Mail.APIURL, cfg.Mail.APIKey)
	pdfRenderer := notify.NewHTTPRenderer(cfg.Mail.PDFRenderURL)

	orderService := service.NewOrderService(db, gatewayClient, service.Fees{
		School:     cfg.Business.SchoolFee,
		TeamMember: cfg.Business.TeamMemberFee,
	}, cfg.Business.TeamsPerSchoolCap)
	reconciler := service.NewReconciler(db, redisClient, eventPublisher, pdfRenderer,
		cfg.Gateway.WebhookSecret, cfg.Gateway.KeySecret, cfg.Business.TeamsPerSchoolCap)
	workshopService := service.NewWorkshopService(db, eventPublisher, cfg.Business.WorkshopCap)
	submissionService := service.NewSubmissionService(db)
	adminService := service.NewAdminService(db)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	emailConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicRegistration, cfg.Kafka.ConsumerGroup)
	emailWorker := worker.NewEmailWorker(emailConsumer, mailer, db, worker.Templates{
		School:   cfg.Mail.SchoolTemplateKey,
		Team:     cfg.Mail.TeamTemplateKey,
		Workshop: cfg.Mail.WorkshopTemplateKey,
	})
	go func() {
		if err := emailWorker.Start(workerCtx); err != nil {
			log.Printf("Email worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(orderService, reconciler, workshopService, submissionService, adminService)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	emailWorker.Stop()

	log.Println("Server exited")
}
