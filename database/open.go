package database

import (
	"fmt"

	"github.com/valentin-kaiser/go-core/apperror"
	"github.com/valentin-kaiser/go-core/logging"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var logger = logging.GetPackageLogger("database")

// Open establishes a database connection for the configured driver and
// returns the handle. The caller owns the handle and is responsible for
// closing the underlying pool; nothing is cached at package level.
func Open(config *Config) (*gorm.DB, error) {
	if config == nil {
		return nil, apperror.NewError("database configuration is required")
	}

	if err := config.Validate(); err != nil {
		return nil, apperror.Wrap(err)
	}

	var dialector gorm.Dialector
	switch config.Driver {
	case "sqlite":
		dialector = sqlite.Open(config.Name)
	case "mysql", "mariadb":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			config.User, config.Password, config.Host, config.Port, config.Name)
		dialector = mysql.Open(dsn)
	default:
		return nil, apperror.NewErrorf("unsupported database driver %q", config.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, apperror.NewErrorf("could not connect to %s database", config.Driver).AddError(err)
	}

	logger.Info().Field("driver", config.Driver).Field("name", config.Name).Msg("database connection established")
	return db, nil
}
