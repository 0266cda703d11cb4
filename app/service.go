// Package app wires the configuration into a running engine.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/trainops/instructor-dispatch/api"
	"github.com/trainops/instructor-dispatch/config"
	"github.com/trainops/instructor-dispatch/core/assign"
	"github.com/trainops/instructor-dispatch/core/assignment"
	"github.com/trainops/instructor-dispatch/core/candidate"
	"github.com/trainops/instructor-dispatch/core/distance"
	coremetrics "github.com/trainops/instructor-dispatch/core/metrics"
	"github.com/trainops/instructor-dispatch/core/outbox"
	"github.com/trainops/instructor-dispatch/infra/geo"
	"github.com/trainops/instructor-dispatch/infra/logger"
	"github.com/trainops/instructor-dispatch/infra/metrics"
	"github.com/trainops/instructor-dispatch/infra/notify"
	"github.com/trainops/instructor-dispatch/infra/quota"
	"github.com/trainops/instructor-dispatch/infra/store"
	"github.com/trainops/instructor-dispatch/internal/eventbus"
)

// Service orchestrates the API server, the outbox dispatcher and the periodic
// jobs.
type Service struct {
	Assignments *assignment.Service
	Batch       *distance.Batch
	Resolver    *candidate.Resolver
	Engine      *assign.Engine
	Dispatcher  *outbox.Dispatcher

	cfg     *config.Config
	db      *sql.DB
	counter distance.UsageCounter
	sender  outbox.MessageSender
	bus     eventbus.EventBus
	log     logger.Logger
	handler http.Handler
}

// New creates a Service from the configuration. Without a database URL the
// engine runs fully in memory, which is what the tests and local demos use.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	logg := logger.New("service")
	bus := eventbus.New()

	var sink coremetrics.Sink = coremetrics.NopSink{}
	var latency coremetrics.MessageLatencyRecorder
	if cfg.Metrics.PrometheusEnabled {
		prom, err := metrics.NewPromSink(cfg.Metrics)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sink = prom
		latency = prom
	}

	svc := &Service{cfg: cfg, bus: bus, log: logg}

	var (
		asgStore  assignment.Store
		outStore  outbox.Store
		dir       assignment.ScheduleDirectory
		candDir   candidate.Directory
		candAsgs  candidate.AssignmentSource
		candDists candidate.DistanceSource
		distStore distance.Store
	)
	if cfg.Database.URL != "" {
		db, err := store.Open(cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := store.InitSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		svc.db = db
		directory := store.NewDirectory(db)
		asg := store.NewAssignmentStore(db)
		asgStore, outStore = asg, store.NewOutboxStore(db)
		dir, candDir, candAsgs, candDists = directory, directory, asg, directory
		distStore = store.NewDistanceStore(db)
	} else {
		logg.Warnf("no database configured, running in memory")
		mem := assignment.NewMemoryStore()
		memDir := NewMemoryDirectory()
		memDist := distance.NewMemoryStore()
		asgStore, outStore = mem, mem
		dir, candDir, candAsgs, candDists = memDir, memDir, mem, memDist
		distStore = memDist
	}

	if cfg.Redis.Enabled {
		counter, err := quota.NewRedisCounter(ctx, cfg.Redis, cfg.Distance.DailyQuota)
		if err != nil {
			return nil, fmt.Errorf("redis counter: %w", err)
		}
		svc.counter = counter
	} else {
		svc.counter = distance.NewMemoryCounter(cfg.Distance.DailyQuota)
	}

	provider, err := geo.New(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("geo provider: %w", err)
	}

	if cfg.Notify.Enabled {
		sender, err := notify.NewMQTTSender(cfg.Notify)
		if err != nil {
			return nil, fmt.Errorf("mqtt sender: %w", err)
		}
		svc.sender = sender
	} else {
		svc.sender = &notify.LogSender{Log: logger.New("notify")}
	}

	svc.Resolver, err = candidate.NewResolver(candDir, candAsgs, candDists, cfg.Candidates.PageSize, logger.New("candidate"))
	if err != nil {
		return nil, err
	}
	svc.Engine = assign.NewEngine(cfg.Matching, logger.New("assign"))
	svc.Assignments, err = assignment.NewService(asgStore, dir, bus, sink, logger.New("assignment"), cfg.Assignment)
	if err != nil {
		return nil, err
	}
	svc.Batch, err = distance.NewBatch(distStore, provider, svc.counter, cfg.Distance, bus, sink, logger.New("distance"))
	if err != nil {
		return nil, err
	}
	svc.Dispatcher, err = outbox.NewDispatcher(outStore, svc.sender, bus, logger.New("outbox"), latency,
		time.Duration(cfg.Outbox.IntervalSeconds)*time.Second, cfg.Outbox.BatchSize)
	if err != nil {
		return nil, err
	}

	svc.handler = api.NewServer(svc.Resolver, svc.Engine, svc.Assignments, svc.Batch, cfg.HTTP.Token, logger.New("api")).Handler()
	return svc, nil
}

// Run starts the HTTP server and the background loops, blocking until the
// context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	go s.Dispatcher.Run(ctx)
	go s.runJobs(ctx)
	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.HTTP.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("api listening on :%d", s.cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// runJobs drives the periodic distance batch and the promotion batch.
func (s *Service) runJobs(ctx context.Context) {
	start := func(mins int, name string, run func(context.Context)) {
		if mins <= 0 {
			return
		}
		go func() {
			ticker := time.NewTicker(time.Duration(mins) * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.log.Debugf("running %s job", name)
					run(ctx)
				}
			}
		}()
	}
	start(s.cfg.Jobs.DistanceEveryMins, "distance batch", func(ctx context.Context) {
		if _, err := s.Batch.Run(ctx, 0); err != nil {
			s.log.Errorf("distance batch: %v", err)
		}
	})
	start(s.cfg.Jobs.PromoteEveryMins, "promotion", func(ctx context.Context) {
		if _, err := s.Assignments.Promote(ctx); err != nil {
			s.log.Errorf("promotion: %v", err)
		}
	})
}

// Close releases held connections.
func (s *Service) Close() error {
	if closer, ok := s.sender.(interface{ Close() }); ok {
		closer.Close()
	}
	if closer, ok := s.counter.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
