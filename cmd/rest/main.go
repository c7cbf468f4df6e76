package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"paintroom-be/internal/bootstrap"
	"paintroom-be/internal/config"
	"paintroom-be/internal/server"
	"paintroom-be/internal/tracer"
	"paintroom-be/pkg/database"
)

func main() {
	cfg := config.Load()

	shutdownTracer := tracer.Setup(context.Background(), cfg.Tracing, cfg.App)
	defer shutdownTracer(context.Background())

	// database
	gormDB, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Panicf("Unable to connect to GORM DB: %v", err)
	}

	// wiring
	container := bootstrap.NewContainer(gormDB, cfg)
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// background workers
	go container.WebSocketHub.Run(ctx)

	log.Println("Background: Starting Consumer Service...")
	if err := container.ConsumerService.Consume(ctx); err != nil {
		log.Printf("Background Consumer Error: %v", err)
	}
	if err := container.LobbyService.Start(); err != nil {
		log.Printf("Background Lobby Subscriber Error: %v", err)
	}
	go container.ExpiryReaper.Run(ctx)

	srv := server.New(cfg, container)

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		if err := srv.Shutdown(); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	if err := srv.Run(); err != nil {
		log.Printf("Server stopped: %v", err)
	}
}
