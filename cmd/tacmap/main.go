package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/Raincor5/tacmap/internal/config"
	"github.com/Raincor5/tacmap/internal/conn"
	"github.com/Raincor5/tacmap/internal/directory"
	"github.com/Raincor5/tacmap/internal/notify"
	"github.com/Raincor5/tacmap/internal/outbox"
	"github.com/Raincor5/tacmap/internal/reconcile"
	"github.com/Raincor5/tacmap/internal/sequencer"
	"github.com/Raincor5/tacmap/internal/session"
	"github.com/Raincor5/tacmap/internal/simserver"
	"github.com/Raincor5/tacmap/pkg/wire"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to config file")
		joinCode   = flag.String("join", "", "join an existing session by code")
		createName = flag.String("create", "", "create a session with this name")
	)
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir, err := directory.OpenSQLite(cfg.SQLitePath)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	serverAddr := cfg.ServerAddr
	if cfg.Offline {
		srv := simserver.NewServer(ctx, dir, log.Named("simserver"))
		httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: srv.Routes()}
		g.Go(func() error {
			log.Info("offline server listening", zap.String("addr", cfg.ListenAddr))
			if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutCtx)
		})
		serverAddr = "ws://localhost" + cfg.ListenAddr + "/ws"
	}

	rec := reconcile.New(reconcile.Config{
		Horizon: cfg.SnapshotHorizon,
		Delay:   cfg.InterpolationDelay,
		Rate:    cfg.InterpolationRate,
	}, log.Named("reconcile"))

	var mgr *session.Manager
	out := outbox.New(cfg.OutboxMaxRetries, func(m wire.Message, retries int) {
		mgr.HandleDrop(m, retries)
	}, log.Named("outbox"))
	seq := sequencer.New(log.Named("sequencer"))
	ctrl := conn.NewController(conn.Config{
		HeartbeatInterval:           cfg.HeartbeatInterval,
		BackgroundHeartbeatInterval: cfg.BackgroundHeartbeatInterval,
		ConnectTimeout:              cfg.ConnectTimeout,
		BackoffBase:                 cfg.BackoffBase,
		MaxAttempts:                 cfg.MaxAttempts,
	}, conn.WebsocketTransport{}, conn.Callbacks{
		OnMessage:   func(m wire.Message) { mgr.HandleMessage(m) },
		OnState:     func(st conn.Status) { mgr.HandleConnState(st) },
		OnConnected: func(resumed bool) { mgr.HandleConnected(resumed) },
	}, log.Named("conn"))
	defer ctrl.Close()

	mgr = session.NewManager(session.Deps{
		Link:      ctrl,
		Outbox:    out,
		Sequencer: seq,
		Reconcile: rec,
		Directory: dir,
		Notifier:  notify.LogNotifier{Log: log.Named("alerts")},
		Log:       log.Named("session"),
	})
	defer mgr.Close()

	g.Go(func() error {
		rec.Run(ctx)
		return nil
	})

	ctrl.Connect(serverAddr)

	switch {
	case *createName != "":
		if err := mgr.CreateSession(*createName, cfg.PlayerName); err != nil {
			return err
		}
	case *joinCode != "":
		if err := mgr.JoinSession(*joinCode, cfg.PlayerName); err != nil {
			return err
		}
	}

	views := mgr.Subscribe("cli", 16)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case v, ok := <-views:
				if !ok {
					return nil
				}
				logView(log, v)
			}
		}
	})

	return g.Wait()
}

func logView(log *zap.Logger, v session.View) {
	fields := []zap.Field{
		zap.String("conn", string(v.Conn.State)),
		zap.Int("pendingInputs", v.Pending),
	}
	if v.Session != nil {
		fields = append(fields,
			zap.String("code", v.Session.Code),
			zap.Int("players", len(v.Session.Players)),
			zap.Int("pins", len(v.Session.Pins)))
	}
	if v.LastError != "" {
		fields = append(fields, zap.String("lastError", v.LastError))
	}
	log.Info("view", fields...)
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("bad log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
