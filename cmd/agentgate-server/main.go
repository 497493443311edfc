package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kazz187/agentgate/internal/config"
	"github.com/kazz187/agentgate/internal/coordinator"
	"github.com/kazz187/agentgate/internal/enforce"
	"github.com/kazz187/agentgate/internal/eventbus"
	"github.com/kazz187/agentgate/internal/eventlog"
	"github.com/kazz187/agentgate/internal/notify"
	"github.com/kazz187/agentgate/internal/policy"
	policyrepo "github.com/kazz187/agentgate/internal/policy/repositoryimpl"
	"github.com/kazz187/agentgate/internal/pool"
	"github.com/kazz187/agentgate/internal/server"
	subscriptionrepo "github.com/kazz187/agentgate/internal/subscription/repositoryimpl"
	"github.com/kazz187/agentgate/pkg/clog"
	"github.com/kazz187/agentgate/pkg/panicerr"
	"github.com/kazz187/agentgate/pkg/storage"
	"github.com/kazz187/agentgate/pkg/worktree"
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	// Setup logger
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	// Setup storage
	var store storage.Storage
	switch env.StorageEnv.Type {
	case "s3":
		store, err = storage.NewS3Storage(context.Background(), env.StorageEnv.S3Bucket, env.StorageEnv.S3Prefix, env.StorageEnv.S3Region)
		if err != nil {
			slog.Error("failed to create S3 storage", "error", err)
			os.Exit(1)
		}
	default:
		store, err = storage.NewLocalStorage(env.StorageEnv.BaseDir)
		if err != nil {
			slog.Error("failed to create local storage", "error", err)
			os.Exit(1)
		}
	}

	// Setup event log: durable store fanned out over the in-process bus.
	bus := eventbus.New()
	events := eventbus.NewStorePublisher(eventlog.NewStorageStore(store), bus)

	// Setup policy store and resolver
	policyStore := policy.NewStore(policyrepo.NewYAMLRepository(store))
	resolver := policy.NewResolver(policyStore)

	// Setup approvals
	approvals := enforce.NewApprovalRegistry(events, env.GovernanceEnv.ApprovalTTL)

	// Setup engine pool
	engines := make([]pool.Engine, 0, env.GovernanceEnv.MaxEngines)
	for i := 0; i < env.GovernanceEnv.MaxEngines; i++ {
		engines = append(engines, pool.NewPlanEngine(fmt.Sprintf("engine-%d", i), store))
	}
	enginePool := pool.New(engines...)

	// Setup executor
	var executor coordinator.Executor
	var sourceControl enforce.BranchAuthority
	switch env.GovernanceEnv.Executor {
	case "shell":
		workspaces, err := worktree.NewManager(env.GovernanceEnv.WorkDir)
		if err != nil {
			slog.Error("failed to create worktree manager", "error", err)
			os.Exit(1)
		}
		executor = &coordinator.ShellExecutor{Dir: env.GovernanceEnv.WorkDir, Workspaces: workspaces}
		sourceControl = workspaces
	default:
		executor = coordinator.LogExecutor{}
	}

	coord := coordinator.New(coordinator.Config{
		Pool:                enginePool,
		Store:               events,
		Bus:                 bus,
		Resolver:            resolver,
		Approvals:           approvals,
		Executor:            executor,
		SourceControl:       sourceControl,
		ExecutorMaxAttempts: env.GovernanceEnv.ExecutorMaxAttempts,
	})

	// Setup push notification
	vapidEnv := config.VAPIDEnvFromEnv(env)
	subRepo := subscriptionrepo.NewYAMLRepository(store)
	pushSender := notify.NewSender(vapidEnv, subRepo)
	pushDispatcher := notify.NewDispatcher(bus, pushSender)

	srv := server.NewServer(env, approvals, events, policyStore, subRepo, coord)

	// Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	go pushDispatcher.Start(ctx)

	if dir := env.GovernanceEnv.OverridesDir; dir != "" {
		go func() {
			if err := policyStore.Watch(ctx, dir); err != nil && ctx.Err() == nil {
				slog.Error("override watcher stopped", "error", err)
			}
		}()
	}

	go func() {
		if err := panicerr.SafeContext(srv.ListenAndServe)(ctx); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	enginePool.Drain()
	coord.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
