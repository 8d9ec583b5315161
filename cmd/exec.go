package cmd

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tiketi/config"
	"tiketi/internal/handlers"
	"tiketi/internal/services"
	"tiketi/internal/services/gateway"
	"tiketi/internal/services/gateway/paystack"
	"tiketi/internal/status"
	"tiketi/internal/store"
	"tiketi/monitoring"
	"tiketi/security"
	"tiketi/utils"

	_ "tiketi/migrations"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	// Initialize PubNub (buyer notifications)
	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey

	pn := pubnub.NewPubNub(pnConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Payment gateways. The card adapter carries the confirmation feed;
	// the mobile-money adapter shares the same Paystack credentials.
	registry := gateway.NewRegistry(gateway.NewFactory())
	if err := registry.Register(ctx, gateway.ProviderPaystack, &paystack.Config{
		BaseURL:          cfg.Paystack.BaseURL,
		SecretKey:        cfg.Paystack.SecretKey,
		CallbackURL:      cfg.Paystack.CallbackURL,
		FeedSubscribeKey: cfg.GatewayFeedSubKey,
		FeedChannel:      cfg.GatewayFeedChannel,
		FeedUUID:         cfg.GatewayFeedUUID,
	}); err != nil {
		return err
	}
	if err := registry.Register(ctx, gateway.ProviderMpesa, &paystack.Config{
		BaseURL:     cfg.Paystack.BaseURL,
		SecretKey:   cfg.Paystack.SecretKey,
		CallbackURL: cfg.Paystack.CallbackURL,
	}); err != nil {
		return err
	}
	defer registry.Close(context.Background())
	slog.Info("payment providers registered", "providers", registry.Available())

	txnChan := make(chan *status.Transaction, 16)
	if feedGateway, err := registry.Get(gateway.ProviderPaystack); err == nil {
		feedGateway.SetTransactionChannel(txnChan)
	}

	// Initialize services
	st := store.New(app)
	monitor := monitoring.NewMonitor(redisClient, cfg.NotifyQueueKey, cfg.NotifyDeadLetter)
	qrService := services.NewQRService(cfg.QRSecret)
	mailer := services.NewMailer(cfg.ResendAPIKey, cfg.MailFrom)
	smsService := services.NewSMSService(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber)
	realtime := services.NewRealtime(pn)

	notifService := services.NewNotificationService(redisClient, st, qrService, mailer, smsService, monitor,
		services.NotificationConfig{
			QueueKey:      cfg.NotifyQueueKey,
			DeadLetterKey: cfg.NotifyDeadLetter,
			MaxAttempts:   cfg.NotifyMaxAttempts,
			PollTimeout:   cfg.NotifyPollTimeout,
		})
	paymentService := services.NewPaymentService(st, registry, qrService, notifService, realtime, monitor,
		services.PaymentConfig{
			CallbackURL:    cfg.Paystack.CallbackURL,
			GatewayTimeout: cfg.GatewayTimeout,
			PaymentTimeout: cfg.PaymentTimeout,
		})
	eventService := services.NewEventService(st)
	ticketService := services.NewTicketService(st, qrService)

	// Initialize handlers
	paymentHandler := handlers.NewPaymentHandler(app, paymentService, cfg.Paystack.WebhookKey)
	eventHandler := handlers.NewEventHandler(app, eventService)
	ticketHandler := handlers.NewTicketHandler(app, ticketService)

	rateLimiter := security.NewRateLimiter(redisClient)
	scannerAuth := security.NewScannerAuth(cfg.ScannerKeyHash)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.Environment == "development",
	})

	// Start background tasks
	go notifService.Run(ctx)
	go paymentService.HandleGatewayFeed(ctx, txnChan)
	go expiryLoop(ctx, paymentService, cfg.PaymentTimeout)

	if cfg.EnableMetrics {
		go serveMetrics(cfg.MetricsPort)
	}

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Event catalog
		e.Router.GET("/api/v1/events", eventHandler.ListEvents)
		e.Router.GET("/api/v1/events/categories", eventHandler.Categories)
		e.Router.GET("/api/v1/events/{eventId}", eventHandler.GetEvent)
		e.Router.POST("/api/v1/events", eventHandler.CreateEvent)
		e.Router.PATCH("/api/v1/events/{eventId}", eventHandler.UpdateEvent)
		e.Router.DELETE("/api/v1/events/{eventId}", eventHandler.DeleteEvent)

		// Payments
		e.Router.POST("/api/v1/payments",
			rateLimiter.Limit("pay-init", cfg.PaymentRateLimit, cfg.PaymentRateWindow, paymentHandler.InitiatePayment))
		e.Router.POST("/api/v1/payments/verify/{reference}",
			rateLimiter.Limit("pay-verify", cfg.PaymentRateLimit, cfg.PaymentRateWindow, paymentHandler.VerifyPayment))
		e.Router.POST("/api/v1/payments/webhook", paymentHandler.Webhook)
		e.Router.GET("/api/v1/payments", paymentHandler.ListPayments)
		e.Router.GET("/api/v1/payments/{paymentId}", paymentHandler.GetPayment)

		// Tickets
		e.Router.GET("/api/v1/tickets/my-tickets", ticketHandler.MyTickets)
		e.Router.GET("/api/v1/tickets/{ticketId}", ticketHandler.GetTicket)
		e.Router.POST("/api/v1/tickets/{ticketId}/cancel", ticketHandler.CancelTicket)

		// Gate scanner
		e.Router.POST("/api/v1/tickets/validate", scannerAuth.Require(ticketHandler.ValidateTicket))
		e.Router.POST("/api/v1/tickets/check-in", scannerAuth.Require(ticketHandler.CheckIn))

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// expiryLoop cancels abandoned pending payments on a fixed cadence.
func expiryLoop(ctx context.Context, paymentService *services.PaymentService, timeout time.Duration) {
	interval := timeout / 2
	if interval < time.Minute {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			paymentService.ExpireStalePayments(ctx)
		}
	}
}

func serveMetrics(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	slog.Info("metrics server listening", "port", port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		slog.Error("metrics server", "error", err)
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
