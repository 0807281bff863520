package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/outreachloop/followup/config"
	"github.com/outreachloop/followup/internal/cron"
	"github.com/outreachloop/followup/internal/logger"
	"github.com/outreachloop/followup/internal/models"
	"github.com/outreachloop/followup/internal/repository"
	"github.com/outreachloop/followup/internal/tracing"
	"github.com/outreachloop/followup/services"
)

// Server supervises the poll loop, the dispatch tick and the schedule sync
// loop, and owns graceful shutdown.
type Server struct {
	config       *config.Config
	logger       logger.Logger
	services     *services.Services
	repositories *repository.Repositories
	cronManager  *cron.CronManager
	redisClient  redis.UniversalClient
	tracerCloser io.Closer
}

func NewServer(cfg *config.Config, db *gorm.DB) (*Server, error) {
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		log.Fatalf("Could not initialize jaeger tracer: %s", err.Error())
	}
	opentracing.SetGlobalTracer(tracer)

	redisOptions, err := redis.ParseURL(cfg.RedisConfig.URL)
	if err != nil {
		return nil, err
	}
	redisClient := redis.NewClient(redisOptions)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}

	repos := repository.InitRepositories(db)
	svcs := services.InitServices(cfg, redisClient, appLogger, repos)
	cronManager := cron.NewCronManager(appLogger, svcs.DispatchService, svcs.ScheduleIndexService, svcs.MailboxService)

	return &Server{
		config:       cfg,
		logger:       appLogger,
		services:     svcs,
		repositories: repos,
		cronManager:  cronManager,
		redisClient:  redisClient,
		tracerCloser: closer,
	}, nil
}

func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Inbound replies flow from the poller into the bounded pipeline.
	s.services.MailboxService.SetHandler(func(ctx context.Context, message *models.InboundMessage) {
		s.wrapGoroutine("pipeline_submit", func() {
			s.services.PipelineService.Submit(ctx, message)
		})
	})

	s.logger.Info("Starting mailbox poller...")
	if err := s.services.MailboxService.Start(ctx); err != nil {
		return err
	}

	s.logger.Info("Starting cron manager...")
	s.cronManager.StartCron()

	// Prime the schedule index so a restart does not wait a full sync period.
	s.wrapGoroutine("initial_schedule_sync", func() {
		if err := s.services.ScheduleIndexService.Sync(ctx); err != nil {
			s.logger.Warnf("initial schedule sync failed: %v", err)
		}
	})

	s.logger.Info("Followup engine is now running. Press Ctrl+C to exit.")
	return s.waitForShutdown(cancel)
}

func (s *Server) waitForShutdown(cancel context.CancelFunc) error {
	defer s.recoverWithJaeger("shutdown")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	s.logger.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	s.logger.Info("Stopping mailbox poller...")
	stopDone := make(chan struct{})
	go s.wrapGoroutine("mailbox_shutdown", func() {
		defer close(stopDone)
		if err := s.services.MailboxService.Stop(); err != nil {
			s.logger.Errorf("mailbox poller shutdown error: %v", err)
		}
	})
	select {
	case <-stopDone:
	case <-time.After(10 * time.Second):
		s.logger.Warn("mailbox poller stop timed out")
	}

	s.logger.Info("Draining pipeline...")
	s.services.PipelineService.Drain(shutdownCtx)

	s.logger.Info("Stopping cron manager...")
	s.cronManager.Stop()

	if err := s.redisClient.Close(); err != nil {
		s.logger.Warnf("redis close error: %v", err)
	}
	if s.tracerCloser != nil {
		s.tracerCloser.Close()
	}

	s.logger.Info("Shutdown complete")
	return nil
}

func (s *Server) recoverWithJaeger(name string) {
	if r := recover(); r != nil {
		span := opentracing.GlobalTracer().StartSpan(
			fmt.Sprintf("panic.%s", name),
		)
		defer span.Finish()

		ext.Error.Set(span, true)
		span.LogKV(
			"event", "panic",
			"process", name,
			"error", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)

		s.logger.Errorf("Panic in %s: %v\n%s", name, r, debug.Stack())
	}
}

func (s *Server) wrapGoroutine(name string, fn func()) {
	defer s.recoverWithJaeger(name)
	fn()
}
