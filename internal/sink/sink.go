// Package sink provides the result store that records one row per workload
// execution. The harness depends on it only through the Sink interface; the
// database implementation supports several SQL backends behind one Config.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/whhaicheng/fsload/internal/domain/workload"
)

var (
	// ErrInvalidSinkConfig is returned when the sink configuration is invalid.
	ErrInvalidSinkConfig = errors.New("invalid sink configuration")

	// ErrNotConnected is returned when Record is called before Connect or
	// after Disconnect.
	ErrNotConnected = errors.New("sink is not connected")
)

// Sink records workload results. A failed Record loses that row only; the
// caller logs and continues.
type Sink interface {
	// Connect establishes the sink connection and ensures the result table.
	Connect(ctx context.Context) error

	// Record persists one result row.
	Record(ctx context.Context, res *workload.Result) error

	// Disconnect closes the connection. Safe to call more than once.
	Disconnect() error
}

// Driver identifies a supported sink database backend.
type Driver string

const (
	DriverPostgres  Driver = "postgres"
	DriverMySQL     Driver = "mysql"
	DriverSQLite    Driver = "sqlite"
	DriverSQLServer Driver = "sqlserver"
	DriverOracle    Driver = "oracle"
)

// Validate checks if the driver is supported.
func (d Driver) Validate() error {
	switch d {
	case DriverPostgres, DriverMySQL, DriverSQLite, DriverSQLServer, DriverOracle:
		return nil
	default:
		return fmt.Errorf("%w: unknown driver: %s", ErrInvalidSinkConfig, d)
	}
}

// Config describes the result store connection.
type Config struct {
	// Driver selects the backend.
	Driver Driver `json:"driver" yaml:"driver"`

	// Host is the database host (network drivers).
	Host string `json:"host,omitempty" yaml:"host,omitempty"`

	// Port is the database port (network drivers).
	Port int `json:"port,omitempty" yaml:"port,omitempty"`

	// Database is the database (or Oracle service) name.
	Database string `json:"database,omitempty" yaml:"database,omitempty"`

	// User is the database user.
	User string `json:"user,omitempty" yaml:"user,omitempty"`

	// Password is optional; acquisition is an external concern (environment,
	// .pgpass, secret files). When empty the driver's own mechanisms apply.
	Password string `json:"password,omitempty" yaml:"password,omitempty"`

	// SSLMode is the postgres sslmode (postgres only).
	SSLMode string `json:"sslmode,omitempty" yaml:"sslmode,omitempty"`

	// Path is the database file path (sqlite only).
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Tunnel optionally routes the connection through an SSH tunnel.
	Tunnel *TunnelConfig `json:"ssh_tunnel,omitempty" yaml:"ssh_tunnel,omitempty"`
}

// Validate validates the sink configuration.
func (c *Config) Validate() error {
	if c.Driver == "" {
		return fmt.Errorf("%w: driver is required", ErrInvalidSinkConfig)
	}
	if err := c.Driver.Validate(); err != nil {
		return err
	}

	if c.Driver == DriverSQLite {
		if c.Path == "" {
			return fmt.Errorf("%w: path is required for sqlite", ErrInvalidSinkConfig)
		}
		return nil
	}

	if c.Host == "" {
		return fmt.Errorf("%w: host is required for %s", ErrInvalidSinkConfig, c.Driver)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port must be between 0 and 65535", ErrInvalidSinkConfig)
	}
	if c.Database == "" {
		return fmt.Errorf("%w: database is required for %s", ErrInvalidSinkConfig, c.Driver)
	}
	if c.User == "" {
		return fmt.Errorf("%w: user is required for %s", ErrInvalidSinkConfig, c.Driver)
	}
	if c.Tunnel != nil && c.Tunnel.Enabled {
		if err := c.Tunnel.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Redact returns a display string without credentials.
func (c *Config) Redact() string {
	if c.Driver == DriverSQLite {
		return fmt.Sprintf("%s (%s)", c.Driver, c.Path)
	}
	return fmt.Sprintf("%s (***@%s:%d/%s)", c.Driver, c.Host, c.Port, c.Database)
}
