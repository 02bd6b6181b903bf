package database

import (
	"github.com/valentin-kaiser/go-core/apperror"
)

// Config holds the database connection settings. It is embedded in the
// application configuration and validated with it; sqlite only needs a
// file name, the server drivers need the full connection coordinates.
type Config struct {
	Driver   string `usage:"Database driver, one of 'sqlite', 'mysql' or 'mariadb'"`
	Host     string `usage:"Hostname or IP address of the database server"`
	Port     uint16 `usage:"Port of the database server"`
	User     string `usage:"Database username"`
	Password string `usage:"Database password"`
	Name     string `usage:"Database name, or the sqlite file path"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Driver == "" {
		return apperror.NewError("database driver is required")
	}

	if c.Driver == "sqlite" {
		if c.Name == "" {
			return apperror.NewError("sqlite file path is required")
		}
		return nil
	}

	if c.Host == "" {
		return apperror.NewError("database host is required")
	}
	if c.Port == 0 {
		return apperror.NewError("database port is required")
	}
	if c.User == "" {
		return apperror.NewError("database user is required")
	}
	if c.Password == "" {
		return apperror.NewError("database password is required")
	}
	if c.Name == "" {
		return apperror.NewError("database name is required")
	}
	return nil
}

// Changed reports whether the connection settings differ from n. The
// handle is opened once at startup; a change means the running connection
// no longer matches the configuration.
func (c *Config) Changed(n *Config) bool {
	return c.Driver != n.Driver ||
		c.Host != n.Host ||
		c.Port != n.Port ||
		c.User != n.User ||
		c.Password != n.Password ||
		c.Name != n.Name
}
