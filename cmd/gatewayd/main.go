// Command gatewayd maintains the gateway database: it applies migrations,
// prunes expired auth records and reports change-feed activity.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/sociallink/internal/app"
	"github.com/and161185/sociallink/internal/changefeed"
	"github.com/and161185/sociallink/internal/config"
	"github.com/and161185/sociallink/internal/logging"
	"github.com/and161185/sociallink/internal/migrate"
	"github.com/and161185/sociallink/internal/model"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, migrates the schema and runs the maintenance loops until signalled.
func main() {
	// Flags
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides SOCIAL_DSN)")
	interval := flag.Duration("janitor-interval", 0, "prune interval (overrides SOCIAL_JANITOR_INTERVAL)")
	once := flag.Bool("once", false, "migrate, prune once and exit")
	skipMigrate := flag.Bool("skip-migrate", false, "do not apply migrations on start")
	watch := flag.Bool("watch", true, "log change-feed activity")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	if *dsn != "" {
		cfg.DSN = *dsn
	}
	if *interval > 0 {
		cfg.JanitorInterval = *interval
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "build logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !*skipMigrate {
		v, err := migrate.Up(ctx, cfg.DSN)
		if err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
		logger.Info("schema ready", zap.Int64("version", v))
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init", zap.Error(err))
	}
	defer a.Close()

	if *once {
		if err := a.Janitor.RunOnce(ctx); err != nil {
			logger.Error("prune", zap.Error(err))
			a.Close()
			os.Exit(1)
		}
		return
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Janitor.Run(ctx, cfg.JanitorInterval)
	}()

	if *watch {
		hub, err := a.Feed(ctx)
		if err != nil {
			logger.Error("change feed", zap.Error(err))
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				watchFeed(ctx, hub, logger.Named("feed"), time.Minute)
			}()
		}
	}

	<-ctx.Done()
	wg.Wait()
	logger.Info("shutdown complete")
}

// feedTables are the tables with change notifications.
var feedTables = []string{model.TableChats, model.TableMessages, model.TablePosts}

// watchFeed counts notifications per table and logs a summary every period.
// It returns when ctx is done or the hub stops.
func watchFeed(ctx context.Context, hub *changefeed.Hub, log *zap.Logger, period time.Duration) {
	type tick struct {
		table string
	}
	events := make(chan tick, changefeed.DefaultBuffer)
	var wg sync.WaitGroup
	for _, table := range feedTables {
		sub := hub.Subscribe(changefeed.Filter{Table: table})
		wg.Add(1)
		go func(table string) {
			defer wg.Done()
			defer sub.Close()
			_ = changefeed.ConsumeBatch(ctx, sub, func(_ context.Context, evs []model.ChangeEvent) {
				for range evs {
					select {
					case events <- tick{table: table}:
					default:
					}
				}
			})
		}(table)
	}

	counts := map[string]int{}
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-hub.Done():
			log.Error("change feed stopped", zap.Error(hub.Err()))
			wg.Wait()
			return
		case ev := <-events:
			counts[ev.table]++
		case <-t.C:
			fields := make([]zap.Field, 0, len(feedTables))
			for _, table := range feedTables {
				fields = append(fields, zap.Int(table, counts[table]))
			}
			log.Info("change feed activity", fields...)
			clear(counts)
		}
	}
}
