package sqlstore

import (
	"context"
	"fmt"
	"time"

	"livehub/pkg/config"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the configured SQL driver, applies the pool settings and
// migrates the schema.
func Open(cfg *config.Config) (*gorm.DB, error) {
	dialector, err := newDialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logger.Default.LogMode(gormLogLevel(cfg.Logging.Level)),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	st := cfg.Storage
	// Every connection to :memory: opens a separate database.
	if st.Driver == "sqlite" && st.SQLitePath == ":memory:" {
		sqlDB.SetMaxOpenConns(1)
	} else if st.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(st.MaxOpenConns)
	}
	if st.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(st.MaxIdleConns)
	}
	if st.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(st.ConnMaxLifetime)
	}

	if err := Migrate(db); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func newDialector(cfg *config.Config) (gorm.Dialector, error) {
	st := cfg.Storage
	switch st.Driver {
	case "postgres":
		pg := st.Postgres
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			pg.Host, pg.Port, pg.User, pg.Password, pg.DBName, pg.SSLMode,
		)
		return postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), nil

	case "mysql":
		my := st.MySQL
		dsn := fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			my.User, my.Password, my.Host, my.Port, my.DBName,
		)
		return mysql.Open(dsn), nil

	case "sqlite":
		return sqlite.Open(st.SQLitePath), nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %s", st.Driver)
	}
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		return logger.Info
	case "error":
		return logger.Error
	default:
		return logger.Warn
	}
}

// Migrate creates or updates every table the stores use.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&banRecord{},
		&muteRecord{},
		&actionRecord{},
		&chatRecord{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Ping reports whether the database answers within ctx.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
