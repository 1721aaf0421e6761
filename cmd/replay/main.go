package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
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
	"github.com/firerescue/viewer/internal/protocol"
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
	var (
		cfgPath  = flag.String("config", envOr("FIRERESCUE_CONFIG", "config/client.toml"), "client config")
		file     = flag.String("file", "", "recording to replay (default: latest in recording.dir)")
		interval = flag.Duration("interval", time.Second, "pause between recorded batches")
		serve    = flag.Bool("serve", false, "stream to observers and keep serving after the replay ends")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	path := *file
	if path == "" {
		paths, err := record.List(cfg.Recording.Dir, cfg.Recording.Prefix)
		if err != nil {
			return fmt.Errorf("list recordings: %w", err)
		}
		if len(paths) == 0 {
			return fmt.Errorf("no recordings in %s", cfg.Recording.Dir)
		}
		path = paths[len(paths)-1]
	}

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
	sessCfg, err := session.FromConfig(cfg, desc, timing)
	if err != nil {
		return err
	}
	sess, err := session.New(sessCfg, log)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var scene world.ArtifactScene
	if *serve {
		hub := observer.NewHub(cfg.Observer.Buffer, log)
		hub.Attach(sess.Bus())
		defer hub.Close()
		scene = hub
		mux := http.NewServeMux()
		mux.Handle(cfg.Observer.Path, hub.Handler())
		srv := &http.Server{Addr: cfg.Observer.BindAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("observer server stopped", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	results := make(chan gonet.Result, 1)
	feedErr := make(chan error, 1)
	go func() { feedErr <- feed(ctx, path, *interval, results) }()

	runner := coresys.NewRunner()
	input := system.NewInputSystem(results, sess, 1, log)
	runner.Register(input)
	runner.Register(system.NewAnimationSystem(sess.Scheduler()))
	runner.Register(system.NewOutputSystem(sess.Bus()))
	runner.Register(system.NewCleanupSystem(sess.POIs(), scene, cfg.Tick.ValidateEvery, log))

	log.Info("replaying", zap.String("file", path), zap.Duration("interval", *interval))
	ticker := time.NewTicker(cfg.Tick.Rate)
	defer ticker.Stop()
	done := false
	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Tick.Rate)
			if done || !input.Drained() || sess.Scheduler().Active() > 0 || sess.Bus().Pending() > 0 {
				continue
			}
			if err := <-feedErr; err != nil {
				return fmt.Errorf("replay %s: %w", path, err)
			}
			st := sess.Stats()
			log.Info("replay complete",
				zap.String("state", sess.State()),
				zap.Int("batches", st.Batches),
				zap.Int("frames", st.Frames),
				zap.Int("diagnostics", st.Diagnostics),
			)
			if !*serve {
				return nil
			}
			done = true
		case <-ctx.Done():
			return nil
		}
	}
}

// feed pushes recorded entries into the input channel, one per interval.
func feed(ctx context.Context, path string, interval time.Duration, out chan<- gonet.Result) error {
	defer close(out)
	r, err := record.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		res := gonet.Result{Raw: e.Batch}
		if e.Err != "" {
			res.Err = errors.New(e.Err)
		} else if res.Batch, err = protocol.Decode(e.Batch); err != nil {
			res.Err = fmt.Errorf("entry %d: %w", e.Seq, err)
		}
		select {
		case out <- res:
		case <-ctx.Done():
			return nil
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return nil
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
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
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
