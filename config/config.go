package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string
	PublicURL   string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Paystack configuration
	Paystack PaystackConfig

	// PubNub configuration (buyer notifications)
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// PubNub gateway event feed (async charge confirmations)
	GatewayFeedSubKey  string
	GatewayFeedChannel string
	GatewayFeedUUID    string

	// Mail configuration (Resend)
	ResendAPIKey string
	MailFrom     string

	// Twilio configuration
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string

	// QR signing
	QRSecret string

	// Scanner auth (bcrypt hash of the gate scanner API key)
	ScannerKeyHash string

	// Notification queue configuration
	NotifyQueueKey    string
	NotifyDeadLetter  string
	NotifyMaxAttempts int
	NotifyPollTimeout time.Duration

	// Timeout configuration
	GatewayTimeout time.Duration
	PaymentTimeout time.Duration

	// Rate limiting
	PaymentRateLimit  int
	PaymentRateWindow time.Duration

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

type PaystackConfig struct {
	BaseURL     string
	SecretKey   string
	CallbackURL string
	WebhookKey  string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),
		PublicURL:   getEnv("PUBLIC_URL", "http://localhost:8090"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// Paystack
		Paystack: PaystackConfig{
			BaseURL:     getEnv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
			SecretKey:   getEnv("PAYSTACK_SECRET_KEY", ""),
			CallbackURL: getEnv("PAYSTACK_CALLBACK_URL", ""),
			WebhookKey:  getEnv("PAYSTACK_WEBHOOK_KEY", ""),
		},

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		GatewayFeedSubKey:  getEnv("GATEWAY_FEED_SUB_KEY", ""),
		GatewayFeedChannel: getEnv("GATEWAY_FEED_CHANNEL", "gateway-payment-events"),
		GatewayFeedUUID:    getEnv("GATEWAY_FEED_UUID", "tiketi-server"),

		// Mail
		ResendAPIKey: getEnv("RESEND_API_KEY", ""),
		MailFrom:     getEnv("MAIL_FROM", "Tiketi <noreply@tiketi.app>"),

		// Twilio
		TwilioAccountSID:  getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:   getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioPhoneNumber: getEnv("TWILIO_PHONE_NUMBER", ""),

		// QR signing
		QRSecret: getEnv("QR_SECRET", ""),

		// Scanner auth
		ScannerKeyHash: getEnv("SCANNER_KEY_HASH", ""),

		// Notification queue
		NotifyQueueKey:    getEnv("NOTIFY_QUEUE_KEY", "notifications:pending"),
		NotifyDeadLetter:  getEnv("NOTIFY_DEAD_LETTER_KEY", "notifications:dead"),
		NotifyMaxAttempts: getEnvAsInt("NOTIFY_MAX_ATTEMPTS", 3),
		NotifyPollTimeout: getEnvAsDuration("NOTIFY_POLL_TIMEOUT", "2s"),

		// Timeouts
		GatewayTimeout: getEnvAsDuration("GATEWAY_TIMEOUT", "10s"),
		PaymentTimeout: getEnvAsDuration("PAYMENT_TIMEOUT", "10m"),

		// Rate limiting
		PaymentRateLimit:  getEnvAsInt("PAYMENT_RATE_LIMIT", 10),
		PaymentRateWindow: getEnvAsDuration("PAYMENT_RATE_WINDOW", "1m"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
