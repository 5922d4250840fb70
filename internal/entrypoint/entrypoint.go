package entrypoint

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikestefanello/backlite"

	"github.com/jwhitley/stacks/internal/config"
	"github.com/jwhitley/stacks/internal/database"
	"github.com/jwhitley/stacks/internal/database/books"
	http_controllers "github.com/jwhitley/stacks/internal/http"
	"github.com/jwhitley/stacks/internal/importer"
	"github.com/jwhitley/stacks/internal/jobstore"
	"github.com/jwhitley/stacks/internal/metadata"
	"github.com/jwhitley/stacks/internal/readinghistory"
	"github.com/jwhitley/stacks/internal/scheduler"
	"github.com/jwhitley/stacks/internal/tasks"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: router,
	}

	go func() {
		fmt.Printf("Starting server at %s:%d\n", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop background workers before the listener so in-flight jobs can
	// write their final status
	if onShutdown != nil {
		onShutdown(ctx)
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}

	log.Println("Server exiting")
}

func Run(cfg *config.Config, version string) {
	log.Printf("Starting Stacks v%s", version)

	if err := os.MkdirAll(cfg.Uploads.Dir, 0o755); err != nil {
		log.Fatalf("Failed to prepare uploads directory %s: %v", cfg.Uploads.Dir, err)
	}

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	catalog := books.NewRepository(db.DB)
	store := jobstore.NewGormStore(db.DB)

	// Metadata enrichment against OpenLibrary
	openLibraryClient := metadata.NewOpenLibraryClient()
	batcher := metadata.NewBatcher(openLibraryClient, cfg.Enrichment)

	emitter := importer.NewEmitter(store, cfg.Telemetry)
	runner := importer.NewRunner(store, catalog, batcher, emitter)
	reconciler := readinghistory.NewReconciler(store, catalog, openLibraryClient, emitter, cfg.History)

	// Task queue for detached imports
	var taskClient *tasks.Client
	var taskCtxCancel context.CancelFunc
	if cfg.Tasks.Enabled {
		taskCfg := tasks.Config{
			Workers:           cfg.Tasks.Workers,
			MaxRetries:        cfg.Tasks.MaxRetries,
			RetryDelay:        cfg.Tasks.RetryDelay,
			TaskTimeout:       cfg.Tasks.TaskTimeout,
			ReleaseAfter:      cfg.Tasks.ReleaseAfter,
			CleanupInterval:   cfg.Tasks.CleanupInterval,
			RetentionDuration: cfg.Tasks.RetentionDuration,
		}

		taskClient, err = tasks.NewClient(cfg.Database.Path, taskCfg)
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}()

		enqueueFinalize := func(_ context.Context, task backlite.Task) error {
			_, err := taskClient.Add(task).Save()
			return err
		}

		taskClient.Register(
			tasks.NewImportBooksQueue(runner),
			tasks.NewAnalyzeHistoryQueue(reconciler, enqueueFinalize),
			tasks.NewFinalizeHistoryQueue(reconciler),
		)

		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		go taskClient.Start(taskCtx)
	} else {
		log.Printf("WARNING: Task queue disabled. Imports cannot run; set 'TASKS_ENABLED' to enable.")
	}

	// Stale-job failover
	cleanupScheduler := scheduler.NewCleanupScheduler(store, cfg.Cleanup)
	if err := cleanupScheduler.Start(context.Background()); err != nil {
		log.Printf("WARNING: Failed to start cleanup scheduler: %v", err)
	}

	routerCfg := http_controllers.RouterConfig{
		Database:   db,
		Catalog:    catalog,
		JobStore:   store,
		Reconciler: reconciler,
		TaskClient: taskClient,
		UploadsDir: cfg.Uploads.Dir,
		Version:    version,
	}

	router := http_controllers.NewRouter(routerCfg)

	onShutdown := func(ctx context.Context) {
		cleanupScheduler.Stop()
		if taskClient != nil && taskCtxCancel != nil {
			taskClient.Stop(ctx)
			taskCtxCancel()
		}
	}

	Serve(router, cfg, onShutdown)
}
