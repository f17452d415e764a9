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

	"github.com/aridsondez/queue-engine/internal/api"
	"github.com/aridsondez/queue-engine/internal/config"
	"github.com/aridsondez/queue-engine/internal/logging"
	"github.com/aridsondez/queue-engine/internal/queue"
	"github.com/aridsondez/queue-engine/internal/queue/engine"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.NewStderr(cfg.LogLevel)

	st, closeStore, err := engine.Open(ctx, cfg, queue.SystemClock{}, logger)
	if err != nil {
		log.Fatalf("open queue engine: %v", err)
	}
	defer closeStore()

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpSrv := api.NewServer(addr, st, logger)

	logger.Info("HTTP server listening", logging.F("addr", addr), logging.F("backend", cfg.Backend))
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}
