package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/transferbox/transferbox/internal/area"
	"github.com/transferbox/transferbox/internal/audit"
	"github.com/transferbox/transferbox/internal/config"
	"github.com/transferbox/transferbox/internal/content"
	"github.com/transferbox/transferbox/internal/db"
	"github.com/transferbox/transferbox/internal/directory"
	"github.com/transferbox/transferbox/internal/jobs"
	"github.com/transferbox/transferbox/internal/notify"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if *debug {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	if err := os.MkdirAll(cfg.Paths.Data, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("failed to create data directory")
	}

	database, err := db.Open(cfg.Paths.Database, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer database.Close()
	logger.Info().Str("path", cfg.Paths.Database).Msg("database opened")

	// Repositories and stores
	dirRepo := directory.NewRepo(database.DB)
	areaStore := area.NewStore(database.DB, area.Limits{
		MaxUploadKB:         cfg.Limits.MaxUploadKB,
		PersonalBoxUploadKB: cfg.Limits.PersonalBoxUploadKB,
	}, logger)
	auditLog := audit.NewLog(database.DB, logger)
	checker := area.NewChecker(dirRepo.IsMemberOfAny)

	contentRepo, err := content.NewFSRepository(cfg.Paths.ContentRoot, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open content repository")
	}
	contentRepo.SetChangeFunc(func(areaID int64, count int, bytes int64) {
		if err := areaStore.UpdateAttachmentStats(areaID, count, bytes); err != nil {
			logger.Error().Err(err).Int64("area", areaID).Msg("failed to update attachment stats")
		}
	})

	// Mail and notifications
	mailer := notify.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port,
		cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From, cfg.SMTP.FromName)
	engine := notify.NewEngine(checker, dirRepo, mailer, cfg.Server.BaseURL, logger)

	// Periodic jobs
	scheduler := jobs.NewScheduler(logger)
	auditFlush := jobs.NewAuditFlush(areaStore, auditLog, engine,
		cfg.Limits.DebounceWindow(), cfg.Limits.AuditRetention(), logger)
	retention := jobs.NewRetention(areaStore, contentRepo, logger)
	preDeletion := jobs.NewPreDeletion(areaStore, contentRepo, engine, cfg.Jobs.Holidays, logger)
	sanity := jobs.NewSanityCheck(areaStore, contentRepo, logger)

	for _, item := range []struct {
		name string
		spec string
		run  func()
	}{
		{"auditflush", cfg.Jobs.AuditFlush, auditFlush.Run},
		{"retention", cfg.Jobs.Retention, retention.Run},
		{"predeletion", cfg.Jobs.PreDeletion, preDeletion.Run},
		{"sanity", cfg.Jobs.SanityCheck, sanity.Run},
	} {
		if err := scheduler.Add(item.name, item.spec, item.run); err != nil {
			logger.Fatal().Err(err).Str("job", item.name).Msg("failed to schedule job")
		}
	}
	scheduler.Start()
	defer scheduler.Stop()
	logger.Info().Msg("periodic jobs scheduled")

	// Health endpoint
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Ping(); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintln(w, "ok")
	})
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.HealthPort)
		logger.Info().Str("addr", addr).Msg("health endpoint listening")
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error().Err(err).Msg("health endpoint failed")
		}
	}()

	// Wait for shutdown signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	logger.Info().Str("signal", received.String()).Msg("shutting down")
}
