package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/pebble/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"kalam-backend/internal/api"
	"kalam-backend/internal/api/routes"
	v1 "kalam-backend/internal/api/routes/v1"
	"kalam-backend/internal/auth"
	"kalam-backend/internal/config"
	"kalam-backend/internal/libraries"
	"kalam-backend/internal/repo"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and WebSocket relay",
	RunE:  runServe,
}

type stores struct {
	rooms repo.RoomRepoInterface
	chats repo.ChatRepoInterface
	close func()
}

func openStores(cfg *config.Config) (*stores, error) {
	switch cfg.Store {
	case config.StorePostgres:
		db, err := config.ConnectDB(cfg.DBURL)
		if err != nil {
			return nil, err
		}
		if err := config.MigrateAllModels(db, cfg.DBMigrate); err != nil {
			_ = config.CloseDB(db)
			return nil, err
		}
		return &stores{
			rooms: repo.NewRoomRepository(db),
			chats: repo.NewChatRepository(db),
			close: func() { _ = config.CloseDB(db) },
		}, nil
	case config.StorePebble:
		if err := os.MkdirAll(cfg.PebblePath, 0o755); err != nil {
			return nil, fmt.Errorf("create pebble directory: %w", err)
		}
		chats, err := repo.OpenPebbleChatRepo(cfg.PebblePath, &pebble.Options{})
		if err != nil {
			return nil, err
		}
		log.Warn().Msg("pebble store keeps chats only; rooms are held in memory")
		return &stores{
			rooms: repo.NewMemoryRoomRepository(),
			chats: chats,
			close: func() { _ = chats.Close() },
		}, nil
	default:
		log.Warn().Msg("using in-memory store; history is lost on restart")
		return &stores{
			rooms: repo.NewMemoryRoomRepository(),
			chats: repo.NewMemoryChatRepository(),
			close: func() {},
		}, nil
	}
}

func openSnapshotStore(ctx context.Context, cfg *config.Config) (libraries.SnapshotStore, func(), error) {
	if cfg.GCSBucket == "" {
		return libraries.DirSnapshotStore{Dir: cfg.SnapshotDir}, func() {}, nil
	}
	gcs, err := libraries.NewGCSClient(ctx, cfg.GCPCredentials, cfg.GCSBucket)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init gcs client: %w", err)
	}
	return gcs, func() { _ = gcs.Close() }, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	authn, err := auth.NewAuthenticator(cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("JWT_SECRET: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer st.close()

	snapshots, closeSnapshots, err := openSnapshotStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSnapshots()

	persister := libraries.NewPersister(st.chats, cfg.PersistQueue, 5*time.Second)
	defer persister.Close()
	relay := libraries.NewRelay(libraries.NewRegistry(), libraries.WithPersister(persister))

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		bridge := libraries.NewRedisBridge(rdb)
		relay.UseBridge(bridge)
		defer relay.Close()
		go func() {
			if err := bridge.Run(ctx, relay.Deliver); err != nil {
				log.Error().Err(err).Msg("redis bridge stopped")
			}
		}()
		log.Info().Str("addr", cfg.RedisAddr).Msg("redis bridge enabled")
	}

	// Create and configure Fiber app
	app := api.NewServer()

	// Register routes
	routes.Register(app, v1.Deps{
		Auth:         authn,
		Relay:        relay,
		Rooms:        st.rooms,
		Chats:        st.chats,
		Snapshots:    snapshots,
		HistoryLimit: cfg.HistoryLimit,
	})

	go func() {
		<-ctx.Done()
		if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Warn().Err(err).Msg("shutdown")
		}
	}()

	// Start server
	if err := api.StartServer(app, cfg.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	log.Info().Msg("shutdown complete")
	return nil
}
