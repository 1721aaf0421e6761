package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/firerescue/viewer/internal/config"
	coresys "github.com/firerescue/viewer/internal/core/system"
	"github.com/firerescue/viewer/internal/data"
	gonet "github.com/firerescue/viewer/internal/net"
	"github.com/firerescue/viewer/internal/observer"
	"github.com/firerescue/viewer/internal/persist"
	"github.com/firerescue/viewer/internal/protocol"
	"github.com/firerescue/viewer/internal/reconcile"
	"github.com/firerescue/viewer/internal/record"
	"github.com/firerescue/viewer/internal/scripting"
	"github.com/firerescue/viewer/internal/session"
	"github.com/firerescue/viewer/internal/system"
	"github.com/firerescue/viewer/internal/world"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config
	cfgPath := "config/client.toml"
	if p := os.Getenv("FIRERESCUE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	// 3. World description and timing scripts
	desc, err := data.LoadWorld(cfg.World.Description)
	if err != nil {
		return fmt.Errorf("world: %w", err)
	}
	var timing session.Timing
	if cfg.Scripts.Dir != "" {
		engine, err := scripting.NewEngine(cfg.Scripts.Dir, log)
		if err != nil {
			return fmt.Errorf("scripts: %w", err)
		}
		defer engine.Close()
		timing = engine
	}

	// 4. Session
	sessCfg, err := session.FromConfig(cfg, desc, timing)
	if err != nil {
		return err
	}
	sess, err := session.New(sessCfg, log)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	log.Info("world loaded",
		zap.String("path", cfg.World.Description),
		zap.Int("walls", sess.Registry().WallCount()),
		zap.Int("doors", sess.Registry().DoorCount()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 5. Observer stream
	var scene world.ArtifactScene
	if cfg.Observer.Enabled {
		hub := observer.NewHub(cfg.Observer.Buffer, log)
		hub.Attach(sess.Bus())
		defer hub.Close()
		scene = hub

		mux := http.NewServeMux()
		mux.Handle(cfg.Observer.Path, hub.Handler())
		mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
			rw.WriteHeader(http.StatusOK)
		})
		srv := &http.Server{Addr: cfg.Observer.BindAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("observer server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Info("observer listening", zap.String("addr", cfg.Observer.BindAddress), zap.String("path", cfg.Observer.Path))
	}

	// 6. Transport
	client := gonet.NewClient(cfg.Transport.ServerURL, cfg.Transport.RequestTimeout, log)
	poller := gonet.NewPoller(client, gonet.PollerOptions{
		Interval:   cfg.Transport.PollInterval,
		RetryBase:  cfg.Transport.RetryBase,
		RetryMax:   cfg.Transport.RetryMax,
		MaxRetries: cfg.Transport.MaxRetries,
		Buffer:     cfg.Transport.QueueSize,
	}, log)

	// 7. Systems
	runner := coresys.NewRunner()
	input := system.NewInputSystem(poller.Results(), sess, cfg.Tick.MaxBatchesPerTick, log)
	runner.Register(input)
	runner.Register(system.NewAnimationSystem(sess.Scheduler()))
	runner.Register(system.NewOutputSystem(sess.Bus()))
	runner.Register(system.NewCleanupSystem(sess.POIs(), scene, cfg.Tick.ValidateEvery, log))

	if cfg.Recording.Enabled {
		recording := system.NewRecordingSystem(record.NewWriter(cfg.Recording.Dir, cfg.Recording.Prefix), log)
		input.Tap(recording.Capture)
		runner.Register(recording)
		defer recording.Close()
	}

	if cfg.Journal.Enabled {
		journalSys, closeDB, err := openJournal(ctx, cfg, sess, log)
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		defer closeDB()
		defer journalSys.FlushAll()
		runner.Register(journalSys)
	}

	// 8. Game loop
	go poller.Run(ctx)

	ticker := time.NewTicker(cfg.Tick.Rate)
	defer ticker.Stop()
	log.Info("client running",
		zap.String("server", cfg.Transport.ServerURL),
		zap.Duration("tick", cfg.Tick.Rate),
	)

	idleReported := false
	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Tick.Rate)
			if !input.Drained() || sess.Scheduler().Active() > 0 || sess.Bus().Pending() > 0 {
				continue
			}
			if !cfg.Observer.Enabled {
				logFinal(log, runner, sess)
				return nil
			}
			if !idleReported {
				logFinal(log, runner, sess)
				log.Info("transport finished, still serving observers until interrupted")
				idleReported = true
			}
		case <-ctx.Done():
			log.Info("shutdown signal received")
			logFinal(log, runner, sess)
			return nil
		}
	}
}

func openJournal(ctx context.Context, cfg *config.Config, sess *session.Session, log *zap.Logger) (*system.JournalSystem, func(), error) {
	dbCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	db, err := persist.NewDB(dbCtx, cfg.Journal, cfg.Client.Name, log)
	if err != nil {
		return nil, nil, err
	}
	version, err := persist.RunMigrations(dbCtx, db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	journal := persist.NewJournal(persist.NewJournalRepo(db), log)
	if err := journal.Begin(dbCtx, persist.SessionInfo{
		ClientName: cfg.Client.Name,
		ServerURL:  cfg.Transport.ServerURL,
		World:      cfg.World.Description,
	}); err != nil {
		db.Close()
		return nil, nil, err
	}
	sess.OnFrame(func(f *protocol.Frame, o reconcile.Outcome) {
		journal.Record(sess.Stats().Batches, f, o)
	})
	log.Info("journal ready", zap.Int64("schema", version), zap.Int64("session", journal.Session()))
	return system.NewJournalSystem(journal, sess, log, cfg.Journal.FlushEvery), db.Close, nil
}

func logFinal(log *zap.Logger, runner *coresys.Runner, sess *session.Session) {
	st := sess.Stats()
	log.Info("session summary",
		zap.Uint64("ticks", runner.Ticks()),
		zap.Duration("elapsed", runner.Elapsed()),
		zap.String("state", sess.State()),
		zap.String("message", sess.Message()),
		zap.Int("turn", st.Turn),
		zap.Int("batches", st.Batches),
		zap.Int("frames", st.Frames),
		zap.Int("diagnostics", st.Diagnostics),
		zap.Int("rescued", st.Rescued),
		zap.Int("lost", st.Lost),
		zap.Int("damage", st.Damage),
	)
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
