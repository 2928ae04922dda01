package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"churnguard/abtest"
	"churnguard/cache"
	"churnguard/config"
	"churnguard/database"
	"churnguard/database/analytics"
	"churnguard/features"
	"churnguard/model"
	"churnguard/retention"
)

// App represents the main application
type App struct {
	config    *config.Config
	db        *database.Database
	pool      *database.DB
	redis     *cache.RedisClient
	repo      *database.CustomerRepository
	analytics *analytics.Repository
	predCache *cache.PredictionCache

	engineer   *features.Engineer
	churnModel *model.ChurnModel
	tracker    *retention.Tracker
	evaluator  *abtest.Evaluator

	predRefresher *PredictionRefresher
	measurement   *MeasurementTracker
}

// New creates a new application instance
func New(cfg *config.Config) *App {
	return &App{
		config:   cfg,
		engineer: features.NewEngineer(),
	}
}

// Start starts the application
func (a *App) Start() error {
	// 1. Database connection (GORM for the repository layer)
	fmt.Println("🗄️  Connecting to database...")

	dbPort, err := strconv.Atoi(a.config.DatabasePort)
	if err != nil {
		return fmt.Errorf("invalid database port: %w", err)
	}

	db, err := database.Connect(
		a.config.DatabaseHost,
		dbPort,
		a.config.DatabaseName,
		a.config.DatabaseUser,
		a.config.DatabasePassword,
	)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	a.db = db

	// Raw connection pool for the analytics queries
	pool, err := database.NewConnection(database.Config{
		Host:     a.config.DatabaseHost,
		Port:     a.config.DatabasePort,
		User:     a.config.DatabaseUser,
		Password: a.config.DatabasePassword,
		DBName:   a.config.DatabaseName,
	})
	if err != nil {
		return fmt.Errorf("analytics pool connection failed: %w", err)
	}
	a.pool = pool

	// 2. Redis connection
	fmt.Println("🧠 Connecting to Redis...")
	redisClient := cache.NewRedisClient(
		a.config.RedisHost,
		a.config.RedisPort,
		a.config.RedisPassword,
	)
	if redisClient == nil {
		fmt.Println("⚠️  Redis connection failed. Prediction caching disabled.")
	} else {
		a.redis = redisClient
	}
	a.predCache = cache.NewPredictionCache(a.redis)

	// 3. Schema initialization
	a.repo = database.NewCustomerRepository(a.db)
	if err := a.repo.InitSchema(); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}
	a.analytics = analytics.NewRepository(a.pool.GetConn())
	a.tracker = retention.NewTrackerWithPeriod(a.repo, a.config.Engine.DefaultMeasurementDays)
	a.evaluator = abtest.NewEvaluator(a.repo)

	// 4. Model: load the persisted artifact, or train from scratch
	if err := a.ensureModel(); err != nil {
		return fmt.Errorf("model initialization failed: %w", err)
	}

	// 5. Background workers
	log.Println("🚀 Starting risk engine workers...")

	a.predRefresher = NewPredictionRefresher(
		a.repo, a.analytics, a.engineer, a.churnModel, a.predCache,
		time.Duration(a.config.Engine.PredictionRefreshMinutes)*time.Minute,
		a.config.Engine.HighRiskMinScore, a.config.Engine.HighRiskLimit,
	)
	go a.predRefresher.Start()

	a.measurement = NewMeasurementTracker(
		a.repo, a.analytics, a.tracker, a.engineer, a.churnModel,
		time.Duration(a.config.Engine.MeasurementSweepMinutes)*time.Minute,
		a.config.Engine.MeasurementBatchSize,
	)
	go a.measurement.Start()

	// 6. Wait for interrupt and perform graceful shutdown
	return a.gracefulShutdown()
}

// ensureModel loads the model artifact from disk, falling back to a full
// training run when the artifact is missing and training is allowed
func (a *App) ensureModel() error {
	modelPath := a.config.Engine.ModelPath

	m, err := model.Load(modelPath)
	if err == nil {
		a.churnModel = m
		log.Printf("✅ Loaded churn model from %s", modelPath)
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		log.Printf("⚠️ Failed to load model artifact: %v", err)
	}

	if !a.config.Engine.TrainOnStartup {
		return fmt.Errorf("no model artifact at %s and training on startup is disabled", modelPath)
	}

	log.Println("📊 No model artifact found, training from customer data...")

	cfg := model.DefaultConfig()
	cfg.VotingWeights = [3]float64{
		a.config.Engine.DepthWiseWeight,
		a.config.Engine.LeafWiseWeight,
		a.config.Engine.ForestWeight,
	}

	trainer := NewTrainer(a.repo, a.engineer, cfg)
	m, _, err = trainer.Train(time.Now())
	if err != nil {
		return err
	}
	a.churnModel = m

	if err := os.MkdirAll(filepath.Dir(modelPath), 0o755); err != nil {
		return err
	}
	if err := m.Save(modelPath); err != nil {
		return err
	}
	log.Printf("✅ Churn model trained and saved to %s", modelPath)
	return nil
}

// gracefulShutdown handles graceful shutdown with timeout
func (a *App) gracefulShutdown() error {
	// Setup signal handling
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	// Wait for interrupt signal
	<-interrupt
	fmt.Println("\n🛑 Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Shutdown tasks with timeout
	shutdownComplete := make(chan struct{})
	go func() {
		if a.predRefresher != nil {
			fmt.Println("🔄 Stopping prediction refresher...")
			a.predRefresher.Stop()
		}
		if a.measurement != nil {
			fmt.Println("📋 Stopping measurement tracker...")
			a.measurement.Stop()
		}

		// Close database connections
		if a.pool != nil {
			if err := a.pool.Close(); err != nil {
				log.Printf("Error closing analytics pool: %v", err)
			}
		}
		if a.db != nil {
			if err := a.db.Close(); err != nil {
				log.Printf("Error closing database: %v", err)
			} else {
				fmt.Println("✅ Database connection closed")
			}
		}

		// Close Redis connection
		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				log.Printf("Error closing redis: %v", err)
			} else {
				fmt.Println("✅ Redis connection closed")
			}
		}

		close(shutdownComplete)
	}()

	// Wait for shutdown to complete or timeout
	select {
	case <-shutdownComplete:
		fmt.Println("✅ Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		fmt.Println("⚠️  Shutdown timeout exceeded, forcing exit")
		return fmt.Errorf("shutdown timeout")
	}
}
