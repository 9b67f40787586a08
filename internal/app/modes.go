package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/inkpress/comicmint/internal/server"
	"github.com/inkpress/comicmint/internal/server/handler"
	"github.com/inkpress/comicmint/internal/server/ws"
	"github.com/inkpress/comicmint/internal/service"
	"github.com/inkpress/comicmint/internal/sweep"
)

// services bundles the use-case layer built on top of the wired
// dependencies. Modes share one construction path so server and sweep
// always agree on fee parameters.
type services struct {
	listing    *service.ListingService
	settlement *service.SettlementService
	reconcile  *service.ReconcileService
}

func (a *App) buildServices(deps *Dependencies) *services {
	settlement := service.NewSettlementService(
		deps.ListingStore,
		deps.TransactionStore,
		deps.Catalog,
		deps.Ledger,
		deps.LockManager,
		deps.SignalBus,
		deps.AuditStore,
		a.logger,
		a.cfg.Marketplace.PlatformPercent,
	)
	if deps.Notifier != nil {
		settlement = settlement.WithNotifier(deps.Notifier)
	}

	return &services{
		listing: service.NewListingService(
			deps.ListingStore,
			deps.Catalog,
			deps.RateLimiter,
			deps.SignalBus,
			deps.AuditStore,
			deps.ViewCounter,
			a.logger,
		),
		settlement: settlement,
		reconcile: service.NewReconcileService(
			deps.ListingStore,
			deps.TransactionStore,
			deps.Catalog,
			deps.AuditStore,
			a.logger,
			a.cfg.Marketplace.PlatformPercent,
		),
	}
}

// ServerMode runs the HTTP API and WebSocket hub without the background
// sweeper. Ended auctions are still expired lazily on bid, but settlement
// of reserve-met endings waits for a sweep-mode process or an explicit
// completion call.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	svcs := a.buildServices(deps)
	a.startHTTPServer(ctx, g, deps, svcs)

	return g.Wait()
}

// SweepMode runs only the background maintenance loop: auction completion,
// view-count flushing, and archiving.
func (a *App) SweepMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	svcs := a.buildServices(deps)
	a.startSweeper(ctx, g, deps, svcs)

	return g.Wait()
}

// FullMode runs the HTTP API, the WebSocket hub, and the sweeper in one
// process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	svcs := a.buildServices(deps)
	a.startHTTPServer(ctx, g, deps, svcs)
	a.startSweeper(ctx, g, deps, svcs)

	return g.Wait()
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"postgres": deps.PingPostgres,
			"redis":    deps.PingRedis,
		}),
		Listings:    handler.NewListingHandler(svcs.listing, a.logger),
		Settlement:  handler.NewSettlementHandler(svcs.settlement, a.logger),
		Transaction: handler.NewTransactionHandler(deps.TransactionStore, a.logger),
		Reconcile:   handler.NewReconcileHandler(svcs.reconcile, a.logger),
		Hub:         hub,
	}

	srv := server.New(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, deps.RateLimiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startSweeper adds the maintenance loop goroutine to the given errgroup.
func (a *App) startSweeper(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	var archiver sweep.Archiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}

	sweeper := sweep.New(sweep.Config{
		Interval:        a.cfg.Sweep.Interval.Duration,
		Batch:           a.cfg.Sweep.Batch,
		ArchiveInterval: a.cfg.Sweep.ArchiveInterval.Duration,
		Retention:       time.Duration(a.cfg.Sweep.RetentionDays) * 24 * time.Hour,
	}, deps.ListingStore, svcs.settlement, deps.ViewCounter, archiver, a.logger)

	g.Go(func() error {
		return sweeper.Run(ctx)
	})
}
