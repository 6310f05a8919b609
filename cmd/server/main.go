package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/Tani1964/DelphiX/internal/clients"
	"github.com/Tani1964/DelphiX/internal/config"
	"github.com/Tani1964/DelphiX/internal/db"
	internalhttp "github.com/Tani1964/DelphiX/internal/http"
	"github.com/Tani1964/DelphiX/internal/jobs"
	"github.com/Tani1964/DelphiX/internal/sos"
	"github.com/Tani1964/DelphiX/internal/verify"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connection failed: %v", err)
	}
	defer pool.Close()

	store := db.NewStore(pool)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatalf("redis ping failed: %v", err)
		}
		cancel()
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Printf("redis close error: %v", err)
			}
		}()
	}

	registry := clients.NewRegistryClient(cfg.RegistryAPIURL, cfg.RegistryAPIKey, cfg.AdapterTimeout)
	pinata := clients.NewPinataClient(cfg.PinataAPIKey, cfg.PinataSecretKey, cfg.IPFSGateway, cfg.AdapterTimeout)
	vision := clients.NewVisionClient(cfg.GoogleCloudAPIKey, cfg.AdapterTimeout)
	places := clients.NewPlacesClient(cfg.GoogleMapsAPIKey, cfg.AdapterTimeout)
	notifier := clients.NewAlertNotifier(cfg.SOSAlertWebhookURL, cfg.AdapterTimeout)

	verifier := verify.New(registry, pinata, store, store, vision, cfg.AdapterTimeout)
	monitor := sos.NewMonitor(store, store, places, notifier, cfg.SOSInactivityThreshold, cfg.FacilitySearchRadius)

	server := internalhttp.NewServer(cfg, store, verifier, monitor, places, redisClient)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	jobs.StartSOSSweepJob(ctx, cfg, monitor)

	go func() {
		log.Printf("delphix http listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
