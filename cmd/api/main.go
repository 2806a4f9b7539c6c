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

	"call-signaling/internal/audit"
	"call-signaling/internal/auth"
	"call-signaling/internal/callhistory"
	"call-signaling/internal/callmembers"
	"call-signaling/internal/config"
	"call-signaling/internal/coordinator"
	"call-signaling/internal/directory"
	"call-signaling/internal/eventbus"
	"call-signaling/internal/httpapi"
	"call-signaling/internal/media"
	"call-signaling/internal/messages"
	"call-signaling/internal/metrics"
	"call-signaling/internal/notify"
	"call-signaling/internal/presence"
	"call-signaling/internal/push"
	"call-signaling/internal/reporting"
	"call-signaling/internal/roomguard"
	"call-signaling/internal/scheduler"
	"call-signaling/internal/socket"
	"call-signaling/pkg/logger"
	"call-signaling/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const pendingRingsInterval = 15 * time.Second

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.DB.AutoMigrate {
		if err := utils.ApplySchema(rootCtx, db,
			callhistory.Schema,
			callmembers.Schema,
			messages.Schema,
			audit.Schema,
		); err != nil {
			log.Error("schema apply failed", "err", err)
			os.Exit(1)
		}
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	registry, err := presence.NewRedisRegistry(rdb, cfg.Call.StatusTTL)
	if err != nil {
		log.Error("presence init failed", "err", err)
		os.Exit(1)
	}
	devices, err := presence.NewRedisDevices(rdb, cfg.Call.DevicePresenceTTL)
	if err != nil {
		log.Error("device presence init failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec, err := metrics.NewRecorder(reg)
	if err != nil {
		log.Error("metrics init failed", "err", err)
		os.Exit(1)
	}

	dir := directory.NewPostgresDirectory(db)
	history := callhistory.NewPostgresRepo(db)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))

	hub := socket.NewHub(socket.Options{
		Rooms:          dir,
		Devices:        devices,
		Metrics:        rec,
		Logger:         log,
		AllowedOrigins: cfg.WS.AllowedOrigins,
		SameOriginOnly: cfg.IsProduction(),
	})

	// Events go through NATS when several instances share the socket load.
	var emitter notify.Emitter = hub
	if cfg.NATS.URL != "" {
		nc, err := eventbus.Connect(cfg.NATS.URL, "call-signaling", log)
		if err != nil {
			log.Error("nats init failed", "err", err)
			os.Exit(1)
		}
		defer nc.Close()
		relay, err := eventbus.NewRelay(nc, cfg.NATS.Subject, hub, log)
		if err != nil {
			log.Error("relay init failed", "err", err)
			os.Exit(1)
		}
		if err := relay.Start(); err != nil {
			log.Error("relay start failed", "err", err)
			os.Exit(1)
		}
		defer relay.Close()
		hub.SetRelay(relay)
		emitter = relay
	}

	var pushSender notify.PushSender
	if cfg.Push.FCMServerKey != "" {
		fcm, err := push.NewFCMSender(push.FCMConfig{
			ServerKey: cfg.Push.FCMServerKey,
			PerMinute: cfg.Push.RatePerMinute,
		})
		if err != nil {
			log.Error("push init failed", "err", err)
			os.Exit(1)
		}
		pushSender = fcm
	} else {
		log.Warn("push disabled: PUSH_FCM_SERVER_KEY not set")
	}

	dispatch := notify.NewDispatcher(notify.Options{
		Emitter:  emitter,
		Push:     pushSender,
		Tokens:   dir,
		Rooms:    dir,
		Messages: messages.NewService(messages.NewPostgresRepo(db)),
		Metrics:  rec,
		Logger:   log,
	})

	sched := scheduler.NewTimerScheduler(log, 30*time.Second)
	guard := roomguard.New(dir)

	coord, err := coordinator.New(coordinator.Deps{
		History:   history,
		Members:   callmembers.NewPostgresRepo(db),
		Presence:  registry,
		Devices:   devices,
		Scheduler: sched,
		Notify:    dispatch,
		Guard:     guard,
		Rooms:     dir,
		Users:     dir,
		Settings: coordinator.StaticSettings{
			Enabled:     cfg.Call.Enabled,
			RingTimeout: cfg.Call.RingTimeout,
		},
		Audit:   auditSvc,
		Metrics: rec,
	})
	if err != nil {
		log.Error("coordinator init failed", "err", err)
		os.Exit(1)
	}

	issuer, err := media.NewIssuer(cfg.Media.TokenSecret, cfg.Media.TokenTTL)
	if err != nil {
		log.Error("media init failed", "err", err)
		os.Exit(1)
	}

	h := httpapi.Handlers{
		Auth:     authManager,
		Calls:    coord,
		History:  callhistory.NewService(history),
		Media:    media.NewService(issuer, coord, guard),
		Reports:  reporting.NewService(history),
		Presence: registry,
		Audit:    auditSvc,
		Hub:      hub,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, h, reg, db, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Websocket writes carry their own deadlines.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go reportPendingRings(rootCtx, sched, rec)

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
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
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Warn("scheduler stop timed out", "pending", sched.Pending(), "err", err)
	}
	dispatch.Flush()
}

func reportPendingRings(ctx context.Context, sched *scheduler.TimerScheduler, rec *metrics.Recorder) {
	t := time.NewTicker(pendingRingsInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rec.SetPendingRings(sched.Pending())
		}
	}
}
