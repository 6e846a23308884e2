package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
	"toolocal-bot/internal/auth"
	"toolocal-bot/internal/config"
	"toolocal-bot/internal/database"
	"toolocal-bot/internal/handlers"
	"toolocal-bot/internal/locales"
	"toolocal-bot/internal/mediagroups"
	"toolocal-bot/internal/moderation"
	"toolocal-bot/internal/publisher"
	"toolocal-bot/internal/quota"

	appBot "toolocal-bot/bot"

	sentry "github.com/getsentry/sentry-go"
	telego "github.com/mymmrac/telego"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	locales.Init(cfg.DefaultLanguage)

	err = sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.AppEnv,
		Release:          cfg.Version,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
		Debug:            cfg.Debug,
	})
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, db, err := database.ConnectDB(ctx, cfg)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal(err)
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
			sentry.CaptureException(err)
		} else {
			log.Println("Disconnected from MongoDB.")
		}
	}()

	submissionRepo := database.NewMongoSubmissionRepository(db)
	quotaRepo := database.NewMongoQuotaRepository(db)
	adminRepo := database.NewMongoAdminRepository(db)

	var bot *telego.Bot
	if cfg.Debug {
		bot, err = telego.NewBot(cfg.BotToken, telego.WithDefaultDebugLogger())
	} else {
		bot, err = telego.NewBot(cfg.BotToken, telego.WithDefaultLogger(false, false))
	}
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to create telego bot: %v", err)
	}

	registry, err := auth.NewAdminRegistry(cfg.MainAdminID, adminRepo)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to create admin registry: %v", err)
	}

	channelPublisher, err := publisher.New(bot, cfg.ChannelID)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to create channel publisher: %v", err)
	}

	limiter := quota.NewLimiter(quotaRepo, cfg.MaxSubmissionsPerDay, cfg.SubmissionCooldown)
	aggregator := mediagroups.NewAggregator(cfg.MediaGroupQuiet, mediagroups.DefaultMaxGroupSize)

	workflow := moderation.NewWorkflow(bot, submissionRepo, limiter, registry, channelPublisher, aggregator)

	messageHandler := handlers.NewMessageHandler(
		registry,
		limiter,
		submissionRepo,
		quotaRepo,
		channelPublisher,
		cfg.Version,
	)

	updatesChan, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to start long polling: %v", err)
	}

	wrapper, err := appBot.New(appBot.Deps{
		Bot:         bot,
		UpdatesChan: updatesChan,
		Debug:       cfg.Debug,
		Handler:     messageHandler,
		Workflow:    workflow,
	})
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal(err)
	}

	go wrapper.Start(ctx)

	<-ctx.Done()

	log.Println("Shutting down bot...")
	aggregator.Shutdown()
	log.Println("Bot shutdown complete.")
}
