package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/relaychat/relaychat/internal/server"
)

func main() {
	fmt.Println("Starting Relay chat server...")

	cfg, err := server.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogging(cfg)

	hub := server.NewHub()
	go hub.Run()

	mux := server.SetupRoutes(hub)
	httpServer := server.CreateServer(cfg.Port, mux)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.StartServer(httpServer)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	case sig := <-quit:
		log.Printf("Received %s, shutting down", sig)
	}

	grace := cfg.ShutdownGrace()
	if err := server.ShutdownServer(httpServer, grace); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if err := hub.Shutdown(grace); err != nil {
		log.Printf("Hub shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

// setupLogging routes the standard logger to a rotating file when one is
// configured; otherwise logs stay on stderr.
func setupLogging(cfg *server.Config) {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if cfg.Log.File == "" {
		return
	}

	log.SetOutput(&lumberjack.Logger{
		Filename:   cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
	})
}
