package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hearttrack-data/internal/config"
	"hearttrack-data/internal/database"
	httpapi "hearttrack-data/internal/http"
	"hearttrack-data/internal/logger"
	"hearttrack-data/internal/mqtt"
	"hearttrack-data/internal/repository"
	"hearttrack-data/internal/service"
	"hearttrack-data/internal/store"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// 本地开发：.env 不存在时静默跳过
	_ = godotenv.Load()

	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "hearttrack-data")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	var kv store.KV
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Warn("Redis unavailable, latest-vitals cache disabled", zap.Error(err))
	} else {
		kv = store.NewRedisKV(redisClient)
	}

	// 仓储：DB 可用走 Postgres，否则回退内存实现保证 API 仍可联测
	var (
		db           *sql.DB
		devicesRepo  repository.DevicesRepository
		readingsRepo repository.ReadingsRepository
		patientsRepo repository.PatientsRepository
	)
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(&cfg.Database); err == nil {
			db = d
			log.Info("DB enabled for hearttrack-data")
		} else {
			log.Warn("DB enabled but connection failed, falling back to in-memory repos", zap.Error(err))
		}
	}
	if db != nil {
		devicesRepo = repository.NewPostgresDevicesRepo(db)
		readingsRepo = repository.NewPostgresReadingsRepo(db)
		patientsRepo = repository.NewPostgresPatientsRepo(db)
	} else {
		devicesRepo = repository.NewMemoryDevicesRepo()
		readingsRepo = repository.NewMemoryReadingsRepo()
		patientsRepo = repository.NewMemoryPatientsRepo()
	}

	ingestSvc := service.NewIngestService(devicesRepo, readingsRepo, kv, cfg.Telemetry.APIKey, log)
	querySvc := service.NewReadingQueryService(readingsRepo, devicesRepo, patientsRepo, kv, cfg.Retention.Days, log)
	deviceSvc := service.NewDeviceService(devicesRepo, readingsRepo, patientsRepo, kv, log)
	patientSvc := service.NewPatientService(patientsRepo, log)

	router := httpapi.NewRouter(log)
	router.RegisterHealthRoutes()
	router.RegisterTelemetryRoutes(httpapi.NewTelemetryHandler(ingestSvc, log))
	router.RegisterReadingsRoutes(httpapi.NewReadingsHandler(querySvc, log))
	router.RegisterDeviceRoutes(httpapi.NewDeviceHandler(deviceSvc, log))
	router.RegisterPatientRoutes(httpapi.NewPatientHandler(patientSvc, querySvc, log))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 保留清理
	sweeper := service.NewRetentionSweeper(
		readingsRepo,
		cfg.Retention.Days,
		time.Duration(cfg.Retention.SweepMinutes)*time.Minute,
		log,
	)
	go sweeper.Run(ctx)

	// MQTT 遥测通道（默认关闭）
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		broker := mqtt.NewTelemetryBroker(ingestSvc, log)
		client, err := mqtt.NewClient(&cfg.MQTT)
		if err != nil {
			log.Warn("MQTT enabled but connection failed, channel disabled", zap.Error(err))
		} else {
			mqttClient = client
			onError := func(err error) {
				log.Error("MQTT message handling failed", zap.Error(err))
			}
			if err := client.Subscribe(cfg.MQTT.Topic, cfg.MQTT.QoS, broker.HandleMessage, onError); err != nil {
				log.Error("MQTT subscribe failed", zap.Error(err))
			} else {
				log.Info("MQTT telemetry channel active",
					zap.String("broker", cfg.MQTT.Broker),
					zap.String("topic", cfg.MQTT.Topic),
				)
			}
		}
	}

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		cancel()
	case err := <-errCh:
		if err != nil {
			log.Error("HTTP server exited", zap.Error(err))
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	if mqttClient != nil {
		mqttClient.Disconnect()
	}
	_ = redisClient.Close()
	if db != nil {
		_ = db.Close()
	}
}
