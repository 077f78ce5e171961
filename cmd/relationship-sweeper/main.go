package main

import (
	"context"
	"os"
	"time"

	"github.com/opalhealth/backend/pkg/common/config"
	"github.com/opalhealth/backend/pkg/common/database"
	"github.com/opalhealth/backend/pkg/common/logger"
	"github.com/opalhealth/backend/pkg/relationships"
)

const sweepLockKey = "relationships:sweep:lock"

// The sweeper runs from cron. A Redis lock keeps overlapping runs from
// double-processing when the schedule fires while a previous run is live.
func main() {
	logger.Init()
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	redisClient, err := database.ConnectRedis(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to redis")
	}
	defer redisClient.Close()

	acquired, err := redisClient.SetNX(ctx, sweepLockKey, time.Now().UTC().Format(time.RFC3339), cfg.SweepLockTTL).Result()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to acquire sweep lock")
	}
	if !acquired {
		logger.Log.Info("Another sweep is running; exiting")
		os.Exit(0)
	}
	defer redisClient.Del(ctx, sweepLockKey)

	db, err := database.ConnectPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer database.ClosePostgres(db)

	service := relationships.NewService(relationships.NewRepository(db))

	expired, err := service.ExpireOutgrown(ctx, time.Now().UTC())
	if err != nil {
		logger.Log.WithError(err).Fatal("sweep failed")
	}

	logger.Log.WithField("expired", expired).Info("Relationship sweep complete")
}
