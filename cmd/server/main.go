package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/strings28/task-shelter/internal/api"
	"github.com/strings28/task-shelter/internal/config"
	"github.com/strings28/task-shelter/internal/service"
	"github.com/strings28/task-shelter/internal/storage"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	configAppName = "app"
	configExt     = "env"
	configDir     = "config"
)

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stdout", "app_log.log"}
	cfg.ErrorOutputPaths = []string{"stderr", "app_log.log"}
	return cfg.Build()
}

// appStore is what main needs from a store beyond the service-facing
// interface: explicit snapshot flushing for the shutdown path.
type appStore interface {
	storage.Store
	FlushSnapshot(ctx context.Context) error
}

func main() {
	zapLogger, err := newLogger()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "can init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = zapLogger.Sync()
	}()

	logger := zapLogger.Named("server")

	logger.Info("running server", zap.Int("pid", os.Getpid()))

	cfg, err := readConfig()
	if err != nil || cfg == nil {
		logger.Fatal("cant read config, check file", zap.Error(err), zap.String("name", configAppName))
	}
	gin.SetMode(cfg.GinMode)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatal("cant create data dir", zap.Error(err), zap.String("dir", cfg.DataDir))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	store, snapEnabled, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("cant open store", zap.Error(err), zap.String("mode", cfg.StorageMode))
	}

	idGen := service.NewRandomIDGenerator("")
	taskSvc, err := service.NewTaskService(store, idGen, time.Now)
	if err != nil {
		logger.Fatal("cant create task service", zap.Error(err))
	}
	authSvc, err := service.NewAuthService(service.AuthServiceOptions{
		Store:      store,
		IDGen:      idGen,
		Secret:     cfg.JWTSecret,
		TokenTTL:   cfg.TokenTTL,
		BcryptCost: cfg.BcryptCost,
	})
	if err != nil {
		logger.Fatal("cant create auth service", zap.Error(err))
	}

	var snapWG sync.WaitGroup
	snapStop := make(chan struct{})
	if snapEnabled {
		snapWG.Add(1)
		go func() {
			defer snapWG.Done()
			ticker := time.NewTicker(cfg.SnapshotInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					logger.Info("starting period snapshotting")
					snapCtx, cancel := context.WithTimeout(context.Background(), cfg.SnapshotTimeout)
					if err := store.FlushSnapshot(snapCtx); err != nil {
						logger.Error("period snapshot failed", zap.Error(err))
					}
					cancel()
					logger.Info("period snapshotting done")
				case <-snapStop:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	} else {
		logger.Info("snapshotting disabled", zap.String("storage_mode", cfg.StorageMode))
	}

	srv, err := api.NewServer(&api.ServerOptions{
		TaskService: taskSvc,
		AuthService: authSvc,
		Logger:      logger,

		Addr: cfg.ServerAddr,
	})
	if err != nil {
		logger.Fatal("cant create api server", zap.Error(err))
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", cfg.ServerAddr))
		if err := srv.Run(); err != nil {
			if errors.Is(err, http.ErrServerClosed) {
				return
			}
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("server failed", zap.Error(err))
	}

	offCtx, offCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer offCancel()
	if err := srv.Shutdown(offCtx); err != nil {
		logger.Error("cant shutdown server", zap.Error(err))
	}

	close(snapStop)
	snapWG.Wait()
	if snapEnabled {
		fCtx, fCancel := context.WithTimeout(context.Background(), cfg.SnapshotTimeout)
		if err := store.FlushSnapshot(fCtx); err != nil {
			logger.Error("cant flush snapshot", zap.Error(err))
		}
		fCancel()
	}
	if err := store.Close(); err != nil {
		logger.Error("cant close store", zap.Error(err))
	}
	logger.Info("shutdown done")
}

func openStore(ctx context.Context, cfg *config.AppConfig) (appStore, bool, error) {
	switch cfg.StorageMode {
	case "memory":
		st, err := storage.NewFileStore(
			filepath.Join(cfg.DataDir, "snapshot.json"),
			filepath.Join(cfg.DataDir, "wal.log"),
		)
		if err != nil {
			return nil, false, err
		}
		if err := st.Load(ctx); err != nil {
			_ = st.Close()
			return nil, false, err
		}
		return st, true, nil
	case "bbolt":
		st, err := storage.NewBoltStore(filepath.Join(cfg.DataDir, "tasks.db"))
		if err != nil {
			return nil, false, err
		}
		return st, false, nil
	default:
		return nil, false, fmt.Errorf("unknown storage mode %q", cfg.StorageMode)
	}
}

func readConfig() (*config.AppConfig, error) {
	return config.LoadAppConfig(configAppName, configExt, configDir, ".")
}
