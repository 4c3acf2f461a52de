package database

import (
	"fmt"
	"log"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the global database instance
var DB *gorm.DB

// sqlitePrefix selects the SQLite driver for local development and single-node installs
const sqlitePrefix = "sqlite:"

// Connect establishes a connection to the database.
// DSNs starting with "sqlite:" open a SQLite file; anything else is passed to PostgreSQL.
func Connect(dsn string, logLevel logger.LogLevel) error {
	var err error

	DB, err = gorm.Open(openDialector(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if DB.Dialector.Name() == "sqlite" {
		// SQLite allows one writer; a single connection keeps conditional inserts serialized.
		sqlDB, err := DB.DB()
		if err != nil {
			return fmt.Errorf("failed to get sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	log.Printf("Database connection established (%s)", DB.Dialector.Name())
	return nil
}

func openDialector(dsn string) gorm.Dialector {
	if strings.HasPrefix(dsn, sqlitePrefix) {
		return sqlite.Open(strings.TrimPrefix(dsn, sqlitePrefix))
	}
	return postgres.Open(dsn)
}

// Models lists every table owned or read by the service, in migration order
func Models() []interface{} {
	return []interface{}{
		&User{},
		&Product{},
		&ProductBatch{},
		&Notification{},
		&HealthCheckRun{},
		&AlertSettings{},
		&SlackSettings{},
	}
}

// AutoMigrate runs database migrations
func AutoMigrate() error {
	log.Println("Running database migrations...")

	if err := DB.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Println("Database migrations completed successfully")
	return nil
}

// InitializeDefaults creates default records if they don't exist.
// seed provides the alert settings used when no row exists yet.
func InitializeDefaults(seed *AlertSettings) error {
	log.Println("Initializing default database records...")

	var count int64
	DB.Model(&SlackSettings{}).Count(&count)
	if count == 0 {
		defaultSlackSettings := &SlackSettings{
			Enabled: false, // Disabled by default until configured
		}
		if err := DB.Create(defaultSlackSettings).Error; err != nil {
			return fmt.Errorf("failed to create default slack settings: %w", err)
		}
		log.Println("Created default Slack settings (disabled)")
	}

	if seed == nil {
		seed = NewDefaultAlertSettings()
	}
	settings, err := getOrCreateAlertSettings(DB, seed)
	if err != nil {
		return fmt.Errorf("failed to initialize alert settings: %w", err)
	}
	log.Printf("Alert settings: interval=%dm cooldown=%dh expiry_window=%dd retention=%dd policy=%s",
		settings.HealthCheckIntervalMinutes, settings.DedupCooldownHours,
		settings.ExpiryWindowDays, settings.RetentionDays, settings.RecipientPolicy)

	return nil
}

// GetSlackSettings retrieves Slack settings from the database
func GetSlackSettings() (*SlackSettings, error) {
	var settings SlackSettings
	if err := DB.First(&settings).Error; err != nil {
		return nil, err
	}
	return &settings, nil
}

// UpdateSlackSettings updates Slack settings in the database
func UpdateSlackSettings(settings *SlackSettings) error {
	return DB.Model(&SlackSettings{}).Where("id = ?", settings.ID).Updates(settings).Error
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// Close closes the database connection
func Close() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
