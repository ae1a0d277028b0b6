/**
 * @description
 * This is the main entry point for the assistant-service. It is responsible
 * for initializing all components of the service: configuration, the ledger
 * store (PostgreSQL, or the in-memory demo ledger when no database is
 * configured), the RabbitMQ event producer, the optional Redis rate limiter,
 * the tool dispatcher, the realtime relay, and the HTTP server. It wires
 * everything together and starts the service.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5/pgxpool: PostgreSQL connection pooling.
 * - github.com/redis/go-redis/v9: Redis client for tool rate limiting.
 * - internal/api, internal/app, internal/config, internal/relay,
 *   internal/store: Internal packages for the service.
 * - pkg/realtime: Client for the hosted realtime AI endpoint.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/voicebank/assistant-service/internal/api"
	"github.com/voicebank/assistant-service/internal/app"
	"github.com/voicebank/assistant-service/internal/config"
	"github.com/voicebank/assistant-service/internal/relay"
	"github.com/voicebank/assistant-service/internal/store"
	"github.com/voicebank/assistant-service/pkg/rabbitmq"
	"github.com/voicebank/assistant-service/pkg/realtime"
)

func main() {
	// Load a local .env file if present, then the full configuration.
	_ = godotenv.Load()
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	log.Printf("level=info component=bootstrap msg=\"starting assistant-service\" port=%s", cfg.ServerPort)

	defaultUserID := uuid.Nil
	if raw := strings.TrimSpace(cfg.DefaultUserID); raw != "" {
		parsed, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"invalid DEFAULT_USER_ID\" value=%q err=%v", raw, parseErr)
		}
		defaultUserID = parsed
	}

	var repository store.Repository
	if cfg.DatabaseURL == "" {
		// Demo mode: an in-memory ledger seeded with the demo user. Useful
		// for local development without PostgreSQL.
		memory := store.NewMemoryRepository()
		demoUser := memory.SeedDemo()
		repository = memory
		if defaultUserID == uuid.Nil {
			defaultUserID = demoUser.ID
		}
		log.Printf("level=warn component=bootstrap msg=\"no DATABASE_URL configured; using in-memory demo ledger\" demo_user=%s", demoUser.ID)
	} else {
		poolConfig, parseErr := pgxpool.ParseConfig(cfg.DatabaseURL)
		if parseErr != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", parseErr)
		}
		poolConfig.MaxConns = 20
		poolConfig.MinConns = 2
		poolConfig.MaxConnLifetime = 30 * time.Minute
		poolConfig.MaxConnIdleTime = 5 * time.Minute

		dbpool, poolErr := pgxpool.NewWithConfig(context.Background(), poolConfig)
		if poolErr != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", poolErr)
		}
		defer dbpool.Close()
		repository = store.NewPostgresRepository(dbpool)
		log.Println("level=info component=bootstrap msg=\"database connected\"")
	}

	// Event producer: ledger mutations are published for downstream
	// consumers; the service runs fine without a broker.
	var eventProducer rabbitmq.Publisher
	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		eventProducer = &rabbitmq.EventProducerFallback{}
		log.Println("level=warn component=bootstrap msg=\"no RABBITMQ_URL configured; ledger events disabled\"")
	} else if producer, prodErr := rabbitmq.NewEventProducer(cfg.RabbitMQURL, cfg.LedgerEventExchange); prodErr != nil {
		eventProducer = &rabbitmq.EventProducerFallback{}
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", prodErr)
	} else {
		eventProducer = producer
		defer producer.Close()
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	ledgerService := app.NewService(repository, eventProducer)
	dispatcher := app.NewDispatcher(ledgerService, time.Duration(cfg.ToolDispatchTimeoutSeconds)*time.Second)

	if cfg.ToolRateLimitPerMinute > 0 {
		if cfg.RedisURL == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; tool rate limiting disabled\" env=REDIS_URL")
		} else if redisOptions, redisErr := redis.ParseURL(cfg.RedisURL); redisErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; tool rate limiting disabled\" err=%v", redisErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; tool rate limiting disabled\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				dispatcher.SetRateLimiter(
					app.NewRedisToolRateLimiter(redisClient, cfg.RedisRateLimitPrefix),
					cfg.ToolRateLimitPerMinute,
				)
				log.Println("level=info component=bootstrap msg=\"redis connected; tool rate limiting enabled\"")
			}
		}
	}

	realtimeClient := realtime.NewClient(cfg.RealtimeEndpointURL, cfg.RealtimeAPIKey, cfg.RealtimeDeployment, cfg.RealtimeAPIVersion)
	relayHandler := relay.NewHandler(realtimeClient, dispatcher, defaultUserID, cfg.AssistantInstructions)

	handlers := api.NewHandlers(ledgerService)
	router := api.Routes(handlers, relayHandler, cfg.APIAuthSecret)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)
		if serveErr := server.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", serveErr)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", shutdownErr)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
