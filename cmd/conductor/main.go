// Command conductor is the Conductor Controller process: it loads
// configuration, connects to Postgres and Redis, runs pending schema
// migrations, wires every application-layer collaborator together, and
// serves the two messaging-transport sockets until told to stop.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowconductor/conductor/internal/application/controller"
	"github.com/flowconductor/conductor/internal/application/notifier"
	"github.com/flowconductor/conductor/internal/application/schedulecache"
	"github.com/flowconductor/conductor/internal/application/setup"
	"github.com/flowconductor/conductor/internal/application/status"
	"github.com/flowconductor/conductor/internal/application/tracker"
	"github.com/flowconductor/conductor/internal/infrastructure/cache"
	"github.com/flowconductor/conductor/internal/infrastructure/config"
	"github.com/flowconductor/conductor/internal/infrastructure/logger"
	"github.com/flowconductor/conductor/internal/infrastructure/storage"
	"github.com/flowconductor/conductor/internal/infrastructure/storage/migrations"
	"github.com/flowconductor/conductor/internal/infrastructure/timer"
	"github.com/flowconductor/conductor/internal/infrastructure/transport"
)

const (
	subscriberBufSize = 256
	statusBufSize     = 256
	timerBufSize      = 64
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("conductor: load configuration: %v", err)
	}

	appLogger := logger.New(cfg.Logging)
	appLogger.Info("conductor: starting")

	db, err := storage.Connect(cfg.Database.URL, cfg.Database.Debug)
	if err != nil {
		appLogger.Error("conductor: connect database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	migrator, err := storage.NewMigrator(db, migrations.FS, appLogger)
	if err != nil {
		appLogger.Error("conductor: prepare migrator", "err", err)
		os.Exit(1)
	}
	ctx := context.Background()
	if err := migrator.Init(ctx); err != nil {
		appLogger.Error("conductor: init migration tables", "err", err)
		os.Exit(1)
	}
	if err := migrator.Up(ctx); err != nil {
		appLogger.Error("conductor: apply migrations", "err", err)
		os.Exit(1)
	}

	redisCache, err := cache.New(cfg.Redis)
	if err != nil {
		appLogger.Error("conductor: connect redis", "err", err)
		os.Exit(1)
	}
	defer redisCache.Close()
	appLogger.Info("conductor: redis connected")

	nodeRepo := storage.NewNodeRepository(db)
	templateRepo := storage.NewWorkflowTemplateRepository(db)
	scheduleRepo := storage.NewScheduleRepository(db)
	execRepo := storage.NewExecutionRepository(db)

	setupSvc := setup.New(nodeRepo, templateRepo, execRepo)
	agentTracker := tracker.New(false)
	schedCache := schedulecache.New()

	if err := warmScheduleCache(ctx, scheduleRepo, schedCache); err != nil {
		appLogger.Error("conductor: warm schedule cache", "err", err)
		os.Exit(1)
	}

	hub := transport.NewHub(appLogger)
	subServer := transport.NewSubscriberServer(subscriberBufSize, appLogger)

	timerSource := timer.New(redisCache, timerBufSize)
	if err := warmTimerSource(ctx, scheduleRepo, timerSource); err != nil {
		appLogger.Error("conductor: warm timer source", "err", err)
		os.Exit(1)
	}
	timerSource.Start()
	defer timerSource.Stop()

	notif := notifier.New(cfg.Notifier, appLogger)

	statusPub := status.New(hub, statusBufSize, appLogger)
	statusPub.Register(newLogObserver(appLogger))

	ctrl := controller.New(controller.Deps{
		Nodes:              nodeRepo,
		Schedules:          scheduleRepo,
		ExecStore:          execRepo,
		Setup:              setupSvc,
		Tracker:            agentTracker,
		Cache:              schedCache,
		Hub:                hub,
		Sub:                subServer.Inbound(),
		TimerFired:         timerSource.Fired(),
		Sched:              timerSource,
		Pub:                statusPub,
		Notif:              notif,
		HeartbeatInterval:  cfg.Heartbeat.Interval,
		HeartbeatDeadAfter: cfg.Heartbeat.DeadAfter,
		Logger:             appLogger,
	})

	runCtx, cancelRun := context.WithCancel(context.Background())
	go statusPub.Run(runCtx)
	go ctrl.Run(runCtx)

	mux := http.NewServeMux()
	mux.HandleFunc("/pub/{agentID}", func(w http.ResponseWriter, r *http.Request) {
		if err := hub.ServeHTTP(r.PathValue("agentID"), w, r); err != nil {
			appLogger.Warn("conductor: publisher upgrade failed", "err", err)
		}
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if err := hub.ServeStatusHTTP(w, r); err != nil {
			appLogger.Warn("conductor: status upgrade failed", "err", err)
		}
	})
	pubServer := &http.Server{
		Addr:         cfg.Messaging.PubAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	subMux := http.NewServeMux()
	subMux.HandleFunc("/sub", func(w http.ResponseWriter, r *http.Request) {
		if err := subServer.ServeHTTP(w, r); err != nil {
			appLogger.Warn("conductor: subscriber upgrade failed", "err", err)
		}
	})
	subHTTPServer := &http.Server{
		Addr:         cfg.Messaging.SubAddr,
		Handler:      subMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 2)
	go func() {
		appLogger.Info("conductor: publisher listening", "addr", cfg.Messaging.PubAddr)
		if err := pubServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("publisher server: %w", err)
		}
	}()
	go func() {
		appLogger.Info("conductor: subscriber listening", "addr", cfg.Messaging.SubAddr)
		if err := subHTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("subscriber server: %w", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		appLogger.Error("conductor: server error", "err", err)
	case sig := <-shutdown:
		appLogger.Info("conductor: shutdown initiated", "signal", sig)
	}

	cancelRun()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, srv := range []*http.Server{pubServer, subHTTPServer} {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("conductor: graceful shutdown failed", "err", err)
			if err := srv.Close(); err != nil {
				appLogger.Error("conductor: server close failed", "err", err)
			}
		}
	}

	appLogger.Info("conductor: stopped")
}

// logObserver is the default Status Publisher observer: it writes every
// event to the structured application log, grounded on the teacher's
// ConsoleLogger (a log sink registered alongside the primary notification
// path, not a replacement for it).
type logObserver struct {
	log *logger.Logger
}

func newLogObserver(log *logger.Logger) *logObserver {
	return &logObserver{log: log}
}

func (o *logObserver) Name() string          { return "log" }
func (o *logObserver) Filter() status.Filter { return nil }

func (o *logObserver) OnEvent(ctx context.Context, e status.Event) error {
	o.log.Info("status: "+string(e.Type),
		"execution_id", e.ExecutionID,
		"exec_wf_id", e.ExecWfID,
		"exec_vertex_id", e.ExecVertexID,
		"agent_id", e.AgentID,
		"status", e.Status,
		"err", e.ErrorMsg,
	)
	return nil
}

// warmScheduleCache preloads the Schedule Cache from the persistent store so
// the controller can resolve node/schedule lookups without hitting the
// database on every cache event.
func warmScheduleCache(ctx context.Context, repo *storage.ScheduleRepository, c *schedulecache.Cache) error {
	nodes, err := repo.ListNodes(ctx)
	if err != nil {
		return fmt.Errorf("list nodes: %w", err)
	}
	c.PutNodes(nodes)

	schedules, err := repo.ListSchedules(ctx)
	if err != nil {
		return fmt.Errorf("list schedules: %w", err)
	}
	c.PutSchedules(schedules)

	assocs, err := repo.ListNodeSchedules(ctx)
	if err != nil {
		return fmt.Errorf("list node-schedules: %w", err)
	}
	cacheAssocs := make([]schedulecache.Assoc, 0, len(assocs))
	for _, a := range assocs {
		cacheAssocs = append(cacheAssocs, schedulecache.Assoc{ID: a.ID, NodeID: a.NodeID, ScheduleID: a.ScheduleID})
	}
	c.PutAssocs(cacheAssocs)
	return nil
}

// warmTimerSource registers a cron job with the Timer Source for every
// schedule already on record that has at least one node association
// (schedules without one are skipped), so triggers fire on the next tick after a
// restart instead of waiting for a cache-save event that may never come.
func warmTimerSource(ctx context.Context, repo *storage.ScheduleRepository, src *timer.Source) error {
	schedules, err := repo.ListSchedules(ctx)
	if err != nil {
		return fmt.Errorf("list schedules: %w", err)
	}
	assocs, err := repo.ListNodeSchedules(ctx)
	if err != nil {
		return fmt.Errorf("list node-schedules: %w", err)
	}

	nodeIDsBySchedule := make(map[int64][]int64)
	for _, a := range assocs {
		nodeIDsBySchedule[a.ScheduleID] = append(nodeIDsBySchedule[a.ScheduleID], a.NodeID)
	}

	for _, sched := range schedules {
		nodeIDs := nodeIDsBySchedule[sched.ID]
		if len(nodeIDs) == 0 {
			continue
		}
		if err := src.ScheduleCronJob(sched.ID, sched.Cron, nodeIDs); err != nil {
			return fmt.Errorf("schedule %d: %w", sched.ID, err)
		}
	}
	return nil
}
