// Package app wires the sampler to its outputs and drives the sampling loop.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"kstat-sampler/internal/config"
	"kstat-sampler/internal/eventbus"
	"kstat-sampler/internal/health"
	"kstat-sampler/internal/history"
	"kstat-sampler/internal/logging"
	"kstat-sampler/internal/metrics"
	"kstat-sampler/internal/sampler"
	"kstat-sampler/internal/source"
	"kstat-sampler/internal/storage"
)

// Sampler is the part of sampler.Sampler the loop needs.
type Sampler interface {
	Host() string
	Sample(ctx context.Context) (metrics.Snapshot, error)
}

type App struct {
	cfg *config.Config
	log *slog.Logger
	now func() time.Time

	sampler Sampler
	sinks   []Sink
	rotator *storage.Rotator
	httpSrv *http.Server
	closers []func() error
}

// OpenSource returns the transport selected by cfg.Mode.
func OpenSource(cfg *config.Config) (source.Source, error) {
	switch cfg.Mode {
	case config.ModeLocal:
		return source.NewLocal(cfg.Root), nil
	case config.ModeSSH:
		src, err := source.NewSSH(source.SSHOptions{
			Host:        cfg.Host,
			Port:        cfg.Port,
			User:        cfg.User,
			Password:    cfg.Secrets.SSHPassword,
			KeyFile:     cfg.KeyFile,
			Passphrase:  cfg.Secrets.SSHPassphrase,
			KnownHosts:  cfg.KnownHosts,
			DialTimeout: cfg.DialTimeout(),
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}

// NewSampler builds the sampler for the configured host.
func NewSampler(cfg *config.Config, src source.Source, logger *slog.Logger) *sampler.Sampler {
	return sampler.New(cfg.HostName(), src, logger,
		sampler.WithReadTimeout(cfg.ReadTimeout()),
		sampler.WithStaleAfter(cfg.StaleAfterCycles),
	)
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, log: logger, now: time.Now}
	if err := a.init(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init() error {
	src, err := OpenSource(a.cfg)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	a.closers = append(a.closers, src.Close)
	a.sampler = NewSampler(a.cfg, src, a.log.With("module", "sampler"))

	fileLog, err := logging.NewLogger(a.cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.closers = append(a.closers, fileLog.Close)
	a.sinks = append(a.sinks, fileSink{fileLog})

	var pruners []storage.Pruner
	var healthOpts []health.Option
	if a.cfg.History.DBPath != "" {
		repo, err := openHistory(a.cfg.History.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		a.closers = append(a.closers, repo.DB().Close)
		a.sinks = append(a.sinks, historySink{repo})
		pruners = append(pruners, repo)
		healthOpts = append(healthOpts, health.WithHistory(repo))
	}
	a.rotator = storage.NewRotator(a.cfg.LogDir, a.cfg.RetentionDays, a.log.With("module", "retention"), pruners...)

	if a.cfg.NATS.URL != "" {
		pub, err := eventbus.NewPublisher(a.cfg.NATS.URL, a.cfg.NATS.Subject)
		if err != nil {
			return fmt.Errorf("failed to connect to nats: %w", err)
		}
		a.closers = append(a.closers, func() error { pub.Close(); return nil })
		a.sinks = append(a.sinks, busSink{pub})
		healthOpts = append(healthOpts, health.WithBus(pub))
	}

	if a.cfg.Health.Addr != "" {
		srv := health.NewServer(a.sampler.Host(), 3*a.cfg.SampleInterval(), healthOpts...)
		a.sinks = append(a.sinks, healthSink{srv})
		a.httpSrv = &http.Server{Addr: a.cfg.Health.Addr, Handler: srv.Routes(), ReadHeaderTimeout: 5 * time.Second}
	}
	return nil
}

func openHistory(path string) (*history.Repository, error) {
	db, err := history.Open(path)
	if err != nil {
		return nil, err
	}
	if err := history.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return history.NewRepository(db), nil
}

// Tick runs one cycle and hands the outcome to every sink.
func (a *App) Tick(ctx context.Context) {
	snap, err := a.sampler.Sample(ctx)
	if err != nil {
		at := a.now()
		a.log.Warn("sample", "host", a.sampler.Host(), "err", err)
		for _, s := range a.sinks {
			if serr := s.Failure(ctx, a.sampler.Host(), at, err); serr != nil {
				a.log.Error("record failure", "sink", s.Name(), "err", serr)
			}
		}
		return
	}

	if len(snap.Errors) > 0 {
		a.log.Info("partial snapshot", "host", snap.Host, "cycle", snap.Cycle, "failed", len(snap.Errors))
	}
	for _, s := range a.sinks {
		if err := s.Snapshot(ctx, snap); err != nil {
			a.log.Error("write snapshot", "sink", s.Name(), "cycle", snap.Cycle, "err", err)
		}
	}
}

// Run samples immediately and then on every interval until ctx ends.
func (a *App) Run(ctx context.Context) error {
	if a.httpSrv != nil {
		go func() {
			a.log.Info("health server listening", "addr", a.httpSrv.Addr)
			if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.log.Error("health server failed", "err", err)
			}
		}()
	}
	if a.rotator != nil {
		a.rotator.Start()
		defer a.rotator.Stop()
	}

	ticker := time.NewTicker(a.cfg.SampleInterval())
	defer ticker.Stop()

	a.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			if a.httpSrv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				_ = a.httpSrv.Shutdown(shutdownCtx)
				cancel()
			}
			return nil
		case <-ticker.C:
			a.Tick(ctx)
		}
	}
}

// Close releases every resource New opened, last opened first.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
