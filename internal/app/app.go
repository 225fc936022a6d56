package app

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cradoe/lumenbank/internal/audit"
	"github.com/cradoe/lumenbank/internal/cache"
	"github.com/cradoe/lumenbank/internal/config"
	"github.com/cradoe/lumenbank/internal/env"
	"github.com/cradoe/lumenbank/internal/errHandler"
	"github.com/cradoe/lumenbank/internal/file"
	"github.com/cradoe/lumenbank/internal/helper"
	"github.com/cradoe/lumenbank/internal/joint"
	"github.com/cradoe/lumenbank/internal/ledger"
	"github.com/cradoe/lumenbank/internal/repository"
	"github.com/cradoe/lumenbank/internal/smtp"
	"github.com/cradoe/lumenbank/internal/stream"
	"github.com/joho/godotenv"
)

// Application wires every service the process needs. Handlers, workers,
// and the server all hang off this one struct.
type Application struct {
	Config       config.Config
	DB           repository.Database
	Logger       *slog.Logger
	Mailer       *smtp.Mailer
	Cache        *cache.Cache
	Kafka        *stream.KafkaStream
	FileUploader *file.FileUploader
	Poster       *ledger.Poster
	Activator    *joint.Activator
	Auditor      *audit.Auditor
	WG           sync.WaitGroup
	errorHandler *errHandler.ErrorHandler
	helper       *helper.HelperRepository
}

func NewApplication(logger *slog.Logger) (*Application, error) {
	if err := godotenv.Load(); err != nil {
		logger.Error("Error loading .env file", "error", err)
	}

	var cfg config.Config

	// defaults here are development values only; production settings come
	// from the environment
	cfg.BaseURL = env.GetString("BASE_URL", "http://localhost:4444")
	cfg.HttpPort = env.GetInt("HTTP_PORT", 4444)

	cfg.Db.Dsn = env.GetString("DB_DSN", "user:pass@localhost:5432/db")
	cfg.Db.Automigrate = env.GetBool("DB_AUTOMIGRATE", true)

	cfg.Jwt.SecretKey = env.GetString("JWT_SECRET_KEY", "ajf5nx3qmp6zquevllxocxqvyz42ypuo")

	// server errors won't be emailed if NOTIFICATIONS_EMAIL is not set
	cfg.Notifications.Email = env.GetString("NOTIFICATIONS_EMAIL", "")

	cfg.Smtp.Host = env.GetString("SMTP_HOST", "example.smtp.host")
	cfg.Smtp.Port = env.GetInt("SMTP_PORT", 25)
	cfg.Smtp.Username = env.GetString("SMTP_USERNAME", "example_username")
	cfg.Smtp.Password = env.GetString("SMTP_PASSWORD", "pa55word")
	cfg.Smtp.From = env.GetString("SMTP_FROM", "Lumenbank <no_reply@example.org>")

	cfg.KafkaServers = env.GetString("KAFKA_SERVERS", "localhost:9092")
	cfg.RedisServer = env.GetString("REDIS_SERVER", "localhost:6379")

	cfg.FileUploader.ApiKey = env.GetString("CLOUDINARY_API_KEY", "")
	cfg.FileUploader.CloudName = env.GetString("CLOUDINARY_CLOUD_NAME", "")
	cfg.FileUploader.ApiSecret = env.GetString("CLOUDINARY_API_SECRET", "")

	// must stay empty outside development
	cfg.Verification.BypassEmails = env.GetStringList("VERIFICATION_BYPASS_EMAILS", nil)

	cfg.Settlement.AutoCompleteDelaySeconds = env.GetInt("SETTLEMENT_AUTOCOMPLETE_DELAY_SECONDS", 1800)
	cfg.Settlement.SweepIntervalSeconds = env.GetInt("SETTLEMENT_SWEEP_INTERVAL_SECONDS", 60)

	db, err := repository.New(cfg.Db.Dsn, cfg.Db.Automigrate)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	mailer, err := smtp.NewMailer(cfg.Smtp.Host, cfg.Smtp.Port, cfg.Smtp.Username, cfg.Smtp.Password, cfg.Smtp.From)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mailer: %w", err)
	}

	errorHandler := errHandler.New(cfg.Notifications.Email, cfg.BaseURL, mailer, logger)

	kafkaStream := stream.New(cfg.KafkaServers)

	redisCache := cache.New(cfg.RedisServer, 0)

	fileUploader := file.New(cfg.FileUploader.CloudName, cfg.FileUploader.ApiKey, cfg.FileUploader.ApiSecret)

	poster := ledger.NewPoster(&ledger.Poster{
		Accounts:          db.Account(),
		Transactions:      db.Transaction(),
		Stream:            kafkaStream,
		Logger:            logger,
		AutoCompleteDelay: time.Duration(cfg.Settlement.AutoCompleteDelaySeconds) * time.Second,
	})

	activator := joint.NewActivator(&joint.Activator{
		Accounts:     db.Account(),
		Requests:     db.JointRequest(),
		Transactions: db.Transaction(),
		Users:        db.User(),
		Stream:       kafkaStream,
		Logger:       logger,
	})

	auditor := audit.NewAuditor(&audit.Auditor{
		DB:     db,
		Logger: logger,
	})

	app := &Application{
		Config:       cfg,
		DB:           db,
		Logger:       logger,
		Mailer:       mailer,
		Cache:        redisCache,
		Kafka:        kafkaStream,
		FileUploader: fileUploader,
		Poster:       poster,
		Activator:    activator,
		Auditor:      auditor,
		errorHandler: errorHandler,
	}

	app.helper = helper.New(&cfg.BaseURL, &app.WG, errorHandler)

	return app, nil
}
