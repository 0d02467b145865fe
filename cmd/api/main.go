package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"call-assistant/internal/audio"
	"call-assistant/internal/audit"
	"call-assistant/internal/auth"
	"call-assistant/internal/calls"
	"call-assistant/internal/config"
	"call-assistant/internal/events"
	"call-assistant/internal/llm"
	"call-assistant/internal/mcp"
	"call-assistant/internal/store"
	"call-assistant/internal/stream"
	"call-assistant/internal/summarize"
	"call-assistant/internal/telephony"
	"call-assistant/internal/tools"
	"call-assistant/internal/transcription"
	"call-assistant/pkg/logger"
	"call-assistant/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const version = "1.0.0"

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, cfg.App.ServiceName)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	app, err := build(rootCtx, cfg, log)
	if err != nil {
		log.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer app.close(log)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	registerRoutes(r, app)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Transcribing a long recording can outlast a short write deadline.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("mcp server listening",
			"addr", srv.Addr,
			"env", cfg.App.Env,
			"tools", len(app.dispatcher.Tools()),
			"store", cfg.Store.Driver,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

// application holds every long-lived component the routes need.
type application struct {
	cfg config.Config

	db    *store.DB
	redis *redis.Client

	calls      calls.Repository
	events     *events.Emitter
	releaser   telephony.CallReleaser
	validator  *auth.Validator
	registry   *stream.Registry
	audio      *audio.Accumulator
	audit      *audit.Service
	dispatcher *mcp.Dispatcher
	server     *mcp.Server
}

func build(ctx context.Context, cfg config.Config, log *slog.Logger) (*application, error) {
	app := &application{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			app.close(log)
		}
	}()

	// Storage
	var auditRepo audit.Repository
	switch cfg.Store.Driver {
	case "sqlite":
		db, err := store.Open(ctx, store.DialectSQLite, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		app.db = db
	case "postgres":
		db, err := store.Open(ctx, store.DialectPostgres, cfg.PostgresDSN())
		if err != nil {
			return nil, err
		}
		app.db = db
	}
	if app.db != nil {
		app.calls = calls.NewSQLRepo(app.db.DB, app.db)
		auditRepo = audit.NewSQLRepo(app.db.DB, app.db)
	} else {
		app.calls = calls.NewMemoryRepo()
		auditRepo = audit.NewMemoryRepo()
	}

	if addr := cfg.RedisAddr(); addr != "" {
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: addr})
		if err != nil {
			return nil, err
		}
		app.redis = rdb
	}

	// Events
	var pub events.Publisher
	if cfg.MQTT.Broker != "" {
		p, err := events.NewMQTTPublisher(events.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			QoS:      1,
		})
		if err != nil {
			return nil, err
		}
		pub = p
	}
	app.events = events.NewEmitter(pub, cfg.MQTT.TopicPrefix, log)

	// Telephony
	twilio, err := telephony.NewTwilioProvider(telephony.TwilioOptions{
		AccountSID:        cfg.Twilio.AccountSID,
		AuthToken:         cfg.Twilio.AuthToken,
		From:              cfg.Twilio.PhoneNumber,
		BaseURL:           cfg.Twilio.APIBaseURL,
		StatusCallbackURL: cfg.StatusCallbackURL(),
		MediaStreamURL:    cfg.MediaStreamURL(),
		Timeout:           cfg.Twilio.Timeout,
	}, log)
	if err != nil {
		return nil, err
	}
	var provider telephony.Provider = twilio
	if cfg.Twilio.MaxConcurrentCalls > 0 && app.redis != nil {
		slots := telephony.NewRedisSlots(app.redis, cfg.Twilio.MaxConcurrentCalls, 4*time.Hour)
		limited := telephony.NewLimitedProvider(twilio, slots, cfg.Twilio.PhoneNumber, log)
		provider = limited
		app.releaser = limited
	}

	// Language models
	var (
		completer llm.Completer
		backend   transcription.Backend = transcription.SimulatedTranscriber{}
	)
	if client := llm.New(cfg.LLM); client != nil {
		completer = client
		backend = transcription.NewOpenAITranscriber(client)
	} else {
		log.Warn("OPENAI_API_KEY not set; using simulated transcription and rule-based summaries")
	}

	// Live audio
	audioOpts := audio.Options{
		Format: audio.Format{
			SampleRate:     cfg.Audio.SampleRate,
			Channels:       cfg.Audio.Channels,
			BytesPerSample: cfg.Audio.BytesPerSample,
		},
		ChunkSeconds: cfg.Audio.ChunkSeconds,
		ScratchDir:   cfg.Audio.ScratchDir,
		IdleTimeout:  cfg.Audio.IdleTimeout,
	}
	if cfg.Audio.ArchiveBucket != "" {
		arch, err := audio.NewS3Archiver(cfg.Audio.AWSRegion, cfg.Audio.ArchiveBucket, "chunks")
		if err != nil {
			return nil, err
		}
		audioOpts.Archiver = arch
	}
	app.registry = stream.NewRegistry(log, stream.Options{})
	app.audio = audio.NewAccumulator(app.registry, transcription.ChunkTranscriber{Backend: backend}, audioOpts, log)

	transcriber := transcription.NewService(transcription.Options{
		Backend:     backend,
		Provider:    provider,
		Streams:     app.audio,
		Broadcaster: app.registry,
		Events:      app.events,
		Format:      audioOpts.Format,
	}, log)
	summarizer := summarize.New(completer, log)

	// Tokens
	var tokens auth.TokenStore = auth.NewMemoryStore()
	if app.redis != nil {
		tokens = auth.NewRedisStore(app.redis, "")
	}
	var manager *auth.Manager
	if cfg.Auth.JWTSecret != "" {
		if manager, err = auth.NewManager(cfg.Auth); err != nil {
			return nil, err
		}
	}
	app.validator = auth.NewValidator(tokens, manager, log)
	if cfg.Auth.TokensFile != "" {
		prov := auth.NewProvisioner(tokens, cfg.Auth.TokenTTL, log)
		if err := prov.LoadAndApply(ctx, cfg.Auth.TokensFile); err != nil {
			return nil, err
		}
		if err := prov.Watch(ctx, cfg.Auth.TokensFile); err != nil {
			log.Warn("token file watch disabled", "path", cfg.Auth.TokensFile, "err", err)
		}
	}

	// Tools
	app.audit = audit.NewService(auditRepo, log)
	app.dispatcher = mcp.NewDispatcher(log, mcp.WithObserver(app.audit.Observer()))
	if err := tools.Register(app.dispatcher, tools.Deps{
		Provider:    provider,
		Calls:       app.calls,
		Transcriber: transcriber,
		Summarizer:  summarizer,
		Validator:   app.validator,
		Events:      app.events,
		Log:         log,
	}); err != nil {
		return nil, err
	}
	app.server = mcp.NewServer(app.dispatcher, mcp.ServerInfo{Name: cfg.App.ServiceName, Version: version}, log)
	tools.RegisterStreamMethods(app.server, transcriber)
	app.server.Bind(app.registry)

	ok = true
	return app, nil
}

// close releases resources in reverse dependency order. Nil components are skipped.
func (a *application) close(log *slog.Logger) {
	if a.audio != nil {
		a.audio.StopAll()
	}
	if a.registry != nil {
		a.registry.Close()
	}
	if err := a.events.Close(); err != nil {
		log.Warn("event publisher close failed", "err", err)
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
