package database

import (
	"fmt"
	"time"

	"connect-service/config"
	"connect-service/model"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func PostgresConnect(log *zap.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
		config.Config("POSTGRES_HOST"),
		config.Config("POSTGRES_PORT"),
		config.Config("POSTGRES_USER"),
		config.Config("POSTGRES_PASSWORD"),
		config.Config("POSTGRES_DB"),
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	sqlDB.SetMaxIdleConns(config.Int("POSTGRES_MAX_IDLE", 10))
	sqlDB.SetMaxOpenConns(config.Int("POSTGRES_MAX_OPEN", 100))
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("connection opened to postgres", zap.String("host", config.Config("POSTGRES_HOST")))

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Info("postgres database migrated")
	return db, nil
}

// Migrate creates the tables this service reads and writes. The users table
// belongs to the profile service and is created here only when missing.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.User{},
		&model.Message{},
		&model.MediaBlob{},
		&model.ConnectionRequest{},
		&model.UserEdge{},
	)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
