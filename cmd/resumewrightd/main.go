package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/resumewright/resumewright/internal/checkpoint"
	"github.com/resumewright/resumewright/internal/config"
	"github.com/resumewright/resumewright/internal/convert"
	"github.com/resumewright/resumewright/internal/engine"
	"github.com/resumewright/resumewright/internal/hub"
	"github.com/resumewright/resumewright/internal/message"
	"github.com/resumewright/resumewright/internal/progress"
	"github.com/resumewright/resumewright/internal/settings"
	"github.com/resumewright/resumewright/internal/storage"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	syncArea, localArea, closeStorage, err := openStorage(cfg)
	if err != nil {
		slog.Error("storage", "error", err)
		os.Exit(1)
	}
	defer closeStorage()

	settingsStore := settings.NewStore(syncArea)
	checkpoints := checkpoint.NewStore(localArea)
	// Re-derive a consistent checkpoint view before any job is accepted.
	checkpoints.Initialize(context.Background())

	eng := engine.NewClient(cfg.EngineURL, cfg.EngineMaxRetries)
	eng.Probe(context.Background())
	if st := eng.Status(); !st.Initialized {
		slog.Warn("conversion engine not ready", "error", st.Error)
	}

	router := message.NewRouter()
	h := hub.New(router)
	orch := convert.New(checkpoints, progress.NewTracker(), settingsStore, eng, h)

	message.RegisterConversionHandlers(router, orch)
	message.RegisterSettingsHandlers(router, settingsStore)
	message.RegisterEngineStatusHandler(router, eng)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", h.ServeWS)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok") //nolint:errcheck
	})

	srv := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("resumewrightd listening", "addr", cfg.ListenAddr, "storage", cfg.StorageBackend)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// openStorage opens the configured backend and returns the settings (sync)
// and checkpoint (local) areas plus a close function.
func openStorage(cfg *config.Config) (syncArea, localArea storage.Area, closeFn func(), err error) {
	switch cfg.StorageBackend {
	case config.BackendRedis:
		r, err := storage.OpenRedis(context.Background(), cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, nil, err
		}
		return r.Area(storage.AreaSync), r.Area(storage.AreaLocal), func() { r.Close() }, nil
	default:
		db, err := storage.OpenSQLite(cfg.DBPath)
		if err != nil {
			return nil, nil, nil, err
		}
		return db.Area(storage.AreaSync), db.Area(storage.AreaLocal), func() { db.Close() }, nil
	}
}
