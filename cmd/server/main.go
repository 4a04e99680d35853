package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mediagrab/internal/api"
	"mediagrab/internal/diag"
	"mediagrab/internal/download"
	"mediagrab/internal/platform/config"
	"mediagrab/internal/platform/logger"
	"mediagrab/internal/platform/metrics"
	"mediagrab/internal/provider"
	"mediagrab/internal/pyenv"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "3001")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	downloadDir := config.GetEnv("DOWNLOAD_DIR", "downloads")
	filePrefix := config.GetEnv("FILE_PREFIX", "grab")
	fileTTL := config.GetEnvDuration("FILE_TTL", download.DefaultTTL)
	sweepInterval := config.GetEnvDuration("SWEEP_INTERVAL", download.DefaultSweepInterval)
	fetchTimeout := config.GetEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	proxyURL := config.GetEnv("PROXY_URL", "")
	distDir := config.GetEnv("PYTHON_DIST_DIR", "python_dist")
	tmpDir := config.GetEnv("TMP_DIR", "tmp_custom")

	log := logger.New(logLevel, logFormat)

	for _, dir := range []string{downloadDir, tmpDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Error("cannot create directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	ring := diag.NewRing(diag.DefaultCapacity)
	py := pyenv.NewResolver(distDir)
	repairer := pyenv.NewRepairer(distDir, ".", nil)
	met := metrics.New()
	client := &http.Client{Timeout: fetchTimeout}

	ytdlp := provider.NewYtDlp(py, tmpDir, ring, logger.Component(log, "yt-dlp"))
	snaptik := provider.NewSnapTik(client, proxyURL, logger.Component(log, "snaptik"))
	tikwm := provider.NewTikwm(client, logger.Component(log, "tikwm"))

	shortForm := provider.NewChain(logger.Component(log, "provider"), snaptik, tikwm)
	shortForm.OnFallback = met.IncProviderFallback
	generic := provider.NewChain(logger.Component(log, "provider"), ytdlp)

	exec := download.NewExecutor(downloadDir, filePrefix, ytdlp, client, ring, logger.Component(log, "download"))
	exec.OnDownload = met.IncDownloads

	sweeper := download.NewSweeper(downloadDir, filePrefix, fileTTL, sweepInterval, logger.Component(log, "sweeper"))
	sweeper.OnDeleted = met.AddSwept

	h := api.NewHandler(shortForm, generic, exec, repairer, py, downloadDir, ring, log, met)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", met.Handler().ServeHTTP)
	h.Mount(r)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go sweeper.Run(sweepCtx)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"download_dir", downloadDir,
		"file_ttl", fileTTL.String(),
		"sweep_interval", sweepInterval.String(),
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")
	stopSweeper()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
