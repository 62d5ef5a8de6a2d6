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

	"storefront-core/config"
	"storefront-core/internal/api"
	"storefront-core/internal/broker"
	"storefront-core/internal/mailer"
	"storefront-core/internal/redisclient"
	"storefront-core/internal/service"
	"storefront-core/internal/store"
	"storefront-core/internal/util"
	"storefront-core/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront core")

	tp, err := util.InitTracer("storefront-core", cfg.Observ.JaegerEndpoint)
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

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	var external service.ExternalSender
	if cfg.Email.PostmarkToken != "" {
		external = mailer.NewService(cfg.Email.PostmarkToken, cfg.Email.From)
	}

	dispatcher := service.NewDispatcher(db, external)
	inventory := service.NewInventoryAdjuster(db, redisClient)
	gateway := service.NewPayPalGateway(
		cfg.PayPal.BaseURL,
		cfg.PayPal.ClientID,
		cfg.PayPal.Secret,
		time.Duration(cfg.PayPal.TimeoutSeconds)*time.Second,
	)
	orderService := service.NewOrderService(db, db, inventory, dispatcher, eventPublisher, nil)

	ctx := context.Background()
	if err := inventory.SyncToCache(ctx); err != nil {
		log.Printf("Failed to sync stock cache: %v", err)
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	notificationWorker := worker.NewNotificationWorker(consumer, dispatcher, redisClient)
	go func() {
		if err := notificationWorker.Start(workerCtx); err != nil {
			log.Printf("Notification worker error: %v", err)
		}
	}()

	scheduler := service.NewScheduler(
		db,
		dispatcher,
		eventPublisher,
		nil,
		time.Duration(cfg.Business.SweepIntervalMinutes)*time.Minute,
		time.Duration(cfg.Business.CancelAfterHours)*time.Hour,
		time.Duration(cfg.Business.RemindAfterHours)*time.Hour,
	)
	scheduler.Start(workerCtx)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(orderService, gateway, db, cfg.PayPal.Currency)
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
	scheduler.Stop()
	notificationWorker.Stop()

	log.Println("Server exited")
}
