package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiwari-pos/station/internal/cache"
	"github.com/kiwari-pos/station/internal/config"
	"github.com/kiwari-pos/station/internal/handler"
	"github.com/kiwari-pos/station/internal/refresh"
	"github.com/kiwari-pos/station/internal/router"
	"github.com/kiwari-pos/station/internal/service"
	"github.com/kiwari-pos/station/internal/upstream"
	"github.com/kiwari-pos/station/internal/ws"
)

const purgeInterval = 10 * time.Minute

type purger interface {
	Purge(ctx context.Context) (int64, error)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	defer closeStore()
	if p, ok := store.(purger); ok {
		go purgeLoop(ctx, p)
	}
	local := cache.NewLocal(store)

	client := upstream.NewClient(cfg.UpstreamURL, cfg.HTTPTimeout)
	sessions := service.NewSessionService(client, local, func(ts upstream.TokenSource) service.SessionBackend {
		return client.WithTokens(ts)
	}, cfg.JWTSecret)
	conn := func(sid string) *upstream.Conn {
		return client.WithTokens(sessions.Tokens(sid))
	}

	hub := ws.NewHub()
	go hub.Run()

	trigger := refresh.NewTrigger()
	orders := service.NewOrderService(func(sid string) service.OrderBackend { return conn(sid) }, sessions.Latest, hub, trigger)
	carts := service.NewCartService(func(sid string) service.CartBackend { return conn(sid) }, local, trigger)
	drawer := service.NewDrawerService(func(sid string) service.DrawerBackend { return conn(sid) })

	notifier := upstream.NewNotifier(cfg.UpstreamWSURL, sessions.BackendToken, orders.HandleEvent)
	loop := refresh.NewLoop(trigger, cfg.PollInterval, orders.Refresh, notifier.Run)

	r, err := router.New(cfg, router.Services{
		Sessions:    sessions,
		Carts:       carts,
		Orders:      orders,
		Drawer:      drawer,
		Catalog:     func(sid string) handler.CatalogSource { return conn(sid) },
		Hub:         hub,
		RefreshedAt: orders.RefreshedAt,
	})
	if err != nil {
		log.Fatalf("router: %v", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := loop.Run(ctx); err != nil {
			log.Printf("ERROR: refresh loop stopped: %v", err)
		}
	}()

	go func() {
		log.Printf("Starting station server on :%s (upstream %s, cache %s)", cfg.Port, cfg.UpstreamURL, cfg.CacheBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: shutdown: %v", err)
	}
}

// openStore connects the configured cache backend. The returned func releases it.
func openStore(ctx context.Context, cfg *config.Config) (cache.Store, func(), error) {
	switch cfg.CacheBackend {
	case cache.BackendRedis:
		rdb, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		return cache.NewRedisStore(rdb, "station:"), func() { rdb.Close() }, nil

	case cache.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		store := cache.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	}
	return cache.NewMemoryStore(), func() {}, nil
}

// purgeLoop drops expired keys for stores without native expiry.
func purgeLoop(ctx context.Context, p purger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.Purge(ctx)
			if err != nil {
				log.Printf("WARN: purge cache: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("purged %d expired cache entries", n)
			}
		}
	}
}
