// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"biolens-workers/internal/common/camunda"
	"biolens-workers/internal/common/config"
	"biolens-workers/internal/common/database"
	"biolens-workers/internal/common/genai"
	"biolens-workers/internal/common/logger"
	"biolens-workers/internal/common/observability"
	"biolens-workers/internal/consultation"
	"biolens-workers/internal/consultation/store"

	ch "biolens-workers/internal/workers/consultation/consultation-history"
	gc "biolens-workers/internal/workers/consultation/generate-consultation"
	se "biolens-workers/internal/workers/notification/send-escalation"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("worker-manager")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	var zeebeWrapper *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebeWrapper, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      10 * time.Second,
			RequestTimeout:         time.Duration(cfg.Camunda.RequestTimeout) * time.Millisecond,
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zeebeClient := zeebeWrapper.Zbc()
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Consultation pipeline ---
	genaiClient := genai.NewClient(&genai.Config{
		BaseURL:     cfg.APIs.GenAI.BaseURL,
		APIKey:      cfg.APIs.GenAI.APIKey,
		Model:       cfg.APIs.GenAI.Model,
		Timeout:     time.Duration(cfg.APIs.GenAI.Timeout) * time.Millisecond,
		MaxTokens:   cfg.APIs.GenAI.MaxTokens,
		Temperature: cfg.APIs.GenAI.Temperature,
	}, log)

	orchestrator := consultation.NewOrchestrator(consultation.Config{
		MaxAttempts:            cfg.Consultation.MaxAttempts,
		BaseDelay:              time.Duration(cfg.Consultation.BaseDelayMs) * time.Millisecond,
		RateLimitDelay:         time.Duration(cfg.Consultation.RateLimitDelayMs) * time.Millisecond,
		MaxRateLimitRetries:    cfg.Consultation.MaxRateLimitRetries,
		BreakerThreshold:       cfg.Consultation.BreakerThreshold,
		BreakerRecoveryTimeout: time.Duration(cfg.Consultation.BreakerRecoverySeconds) * time.Second,
		MaxSymptomLength:       cfg.Consultation.MaxSymptomLength,
		ErrorHistorySize:       cfg.Consultation.ErrorHistorySize,
	}, genaiClient, log)

	consultationStore := store.New(pg.DB, redis.Client, log)

	zapLog.Info("Consultation pipeline initialized")

	// --- Register Workers ---

	if cfg.Workers[gc.TaskType].Enabled {
		handler := gc.NewHandler(&gc.Config{
			Enabled:       true,
			MaxJobsActive: cfg.Workers[gc.TaskType].MaxJobsActive,
			Timeout:       time.Duration(cfg.Workers[gc.TaskType].Timeout) * time.Millisecond,
			StoreResults:  true,
		}, orchestrator, consultationStore, obs, log)
		startWorker(zeebeClient, gc.TaskType, cfg.Workers[gc.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[ch.TaskType].Enabled {
		handlerCfg := ch.DefaultConfig()
		handlerCfg.MaxJobsActive = cfg.Workers[ch.TaskType].MaxJobsActive
		handlerCfg.Timeout = time.Duration(cfg.Workers[ch.TaskType].Timeout) * time.Millisecond
		handler := ch.NewHandler(handlerCfg, consultationStore, log)
		startWorker(zeebeClient, ch.TaskType, cfg.Workers[ch.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[se.TaskType].Enabled {
		handler, err := se.NewHandler(&se.Config{
			Enabled:       true,
			MaxJobsActive: cfg.Workers[se.TaskType].MaxJobsActive,
			Timeout:       time.Duration(cfg.Workers[se.TaskType].Timeout) * time.Millisecond,
			EmailEnabled:  cfg.Notifications.Email.Enabled,
			SMSEnabled:    cfg.Notifications.SMS.Enabled,
			FromEmail:     cfg.Notifications.Email.FromEmail,
			AWSRegion:     cfg.Notifications.AWS.Region,
		}, log)
		if err != nil {
			zapLog.Fatal("failed to create send-escalation handler", zap.Error(err))
		}
		startWorker(zeebeClient, se.TaskType, cfg.Workers[se.TaskType], handler.Handle, zapLog)
	}

	zapLog.Info("All workers registered successfully")

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			health := orchestrator.Health()
			w.Header().Set("Content-Type", "application/json")
			if health.Healthy {
				w.WriteHeader(http.StatusOK)
			} else {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"healthy":           health.Healthy,
				"recommendedAction": health.RecommendedAction,
				"time":              time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"errors": orchestrator.Statistics(),
				"recent": orchestrator.RecentErrors(10),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening on :8080")
		if err := http.ListenAndServe(":8080", nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_ = shutdownCtx

	if err := zeebeWrapper.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func startWorker(client zbc.Client, taskType string, wcfg config.WorkerConfig, handlerFunc func(worker.JobClient, entities.Job), log *zap.Logger) {
	if !wcfg.Enabled {
		log.Info("worker disabled", zap.String("taskType", taskType))
		return
	}

	client.NewJobWorker().
		JobType(taskType).
		Handler(handlerFunc).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
		Open()

	log.Info("worker started",
		zap.String("taskType", taskType),
		zap.Int("maxJobsActive", wcfg.MaxJobsActive),
		zap.Int("timeout_ms", wcfg.Timeout),
	)
}
