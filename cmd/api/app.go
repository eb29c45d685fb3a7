package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/rs/zerolog"

	"github.com/careconnect/careconnect-api/internal/config"
	"github.com/careconnect/careconnect-api/internal/events"
	"github.com/careconnect/careconnect-api/internal/handlers"
	"github.com/careconnect/careconnect-api/internal/mailer"
	"github.com/careconnect/careconnect-api/internal/queue"
	"github.com/careconnect/careconnect-api/internal/services"
	"github.com/careconnect/careconnect-api/internal/storage"
	"github.com/careconnect/careconnect-api/internal/store"
	"github.com/careconnect/careconnect-api/internal/store/memstore"
	"github.com/careconnect/careconnect-api/internal/store/mongostore"
	"github.com/careconnect/careconnect-api/internal/utils"
)

const memoryQueueCapacity = 256

// app owns every shared client. It is built once per command and closed on
// exit.
type app struct {
	cfg *config.Config
	log zerolog.Logger

	store    store.Store
	queue    queue.Queue
	blobs    storage.BlobStore
	filesDir string
	events   events.Publisher
	mail     mailer.Sender
	jwt      *utils.JWTManager

	handler *handlers.Handler
	worker  *services.ReportWorker

	closers []func(context.Context) error
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).Level(level).With().Timestamp().Logger()
	}
	return logger
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	return cfg, newLogger(cfg), nil
}

// newApp connects the store, object storage, queue, event stream and mail
// relay selected by cfg and wires the services on top of them.
func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, jwt: utils.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)}
	if err := a.connect(ctx); err != nil {
		_ = a.close(context.Background())
		return nil, err
	}

	notify := services.NewNotificationService(a.store, log)
	appointments := services.NewAppointmentService(a.store, notify, a.events, log)
	reports := services.NewReportService(a.store, a.queue, a.blobs, notify, log)

	a.handler = &handlers.Handler{
		Store: a.store,
		Accounts: services.NewAccountService(a.store, a.jwt, a.mail, appointments, services.AccountOptions{
			BcryptCost:  cfg.BcryptCost,
			ResetTTL:    cfg.ResetTokenTTL,
			FrontendURL: cfg.FrontendURL,
		}, log),
		Appointments:  appointments,
		Clinical:      services.NewClinicalService(a.store, notify, log),
		Reports:       reports,
		Notifications: notify,
		Dashboard:     services.NewDashboardService(a.store),
		Log:           log,
		Production:    cfg.IsProduction(),
	}
	a.worker = services.NewReportWorker(reports, a.queue, cfg.ReportWorkers, log)
	return a, nil
}

func (a *app) connect(ctx context.Context) error {
	cfg := a.cfg

	switch cfg.StoreDriver {
	case "mongo":
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		st, err := mongostore.Connect(dialCtx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoTransactions)
		if err != nil {
			return err
		}
		a.store = st
		a.closers = append(a.closers, st.Close)
		a.log.Info().Str("database", cfg.MongoDatabase).Msg("connected to MongoDB")
	default:
		a.store = memstore.New()
		a.log.Warn().Msg("using the in-memory store; data is lost on exit")
	}

	var awsCfg aws.Config
	if cfg.S3Bucket != "" || cfg.SQSQueueName != "" {
		var err error
		if awsCfg, err = awsconfig.LoadDefaultConfig(ctx); err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
	}

	if cfg.S3Bucket != "" {
		a.blobs = storage.NewS3Store(storage.NewS3Client(awsCfg), cfg.S3Bucket, cfg.S3PublicURL)
		a.log.Info().Str("bucket", cfg.S3Bucket).Msg("storing reports in S3")
	} else {
		a.blobs = storage.NewDiskStore(cfg.StorageDir, strings.TrimRight(cfg.PublicBaseURL, "/")+"/files")
		a.filesDir = cfg.StorageDir
		a.log.Info().Str("dir", cfg.StorageDir).Msg("storing reports on disk")
	}

	if cfg.SQSQueueName != "" {
		q, err := queue.NewSQS(ctx, queue.NewSQSClient(awsCfg), cfg.SQSQueueName, a.log)
		if err != nil {
			return err
		}
		a.queue = q
	} else {
		a.queue = queue.NewMemory(memoryQueueCapacity)
	}

	if len(cfg.KafkaBrokers) > 0 {
		k := events.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
		a.events = k
		a.closers = append(a.closers, func(context.Context) error { return k.Close() })
	} else {
		a.events = events.Nop{}
	}

	if cfg.SMTPHost != "" {
		m, err := mailer.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom)
		if err != nil {
			return err
		}
		a.mail = m
	} else {
		a.mail = mailer.LogSender{Log: a.log}
	}
	return nil
}

// close releases clients in reverse order of creation.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
