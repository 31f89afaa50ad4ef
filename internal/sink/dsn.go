package sink

import (
	"fmt"
	"strings"
)

// driverName maps a Driver onto the database/sql driver registration name.
func (c *Config) driverName() string {
	switch c.Driver {
	case DriverPostgres:
		return "postgres"
	case DriverMySQL:
		return "mysql"
	case DriverSQLite:
		return "sqlite"
	case DriverSQLServer:
		return "sqlserver"
	case DriverOracle:
		return "oracle"
	}
	return ""
}

// defaultPort returns the conventional port for the configured driver.
func (c *Config) defaultPort() int {
	switch c.Driver {
	case DriverPostgres:
		return 5432
	case DriverMySQL:
		return 3306
	case DriverSQLServer:
		return 1433
	case DriverOracle:
		return 1521
	}
	return 0
}

// dsn builds the connection string for the configured driver. host and port
// are passed separately so a tunnel can substitute its local endpoint.
func (c *Config) dsn(host string, port int) string {
	if port == 0 {
		port = c.defaultPort()
	}
	switch c.Driver {
	case DriverPostgres:
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "prefer"
		}
		s := fmt.Sprintf("host=%s port=%d dbname=%s user=%s sslmode=%s",
			host, port, c.Database, c.User, sslMode)
		if c.Password != "" {
			s += fmt.Sprintf(" password=%s", c.Password)
		}
		return s
	case DriverMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, host, port, c.Database)
	case DriverSQLite:
		// modernc.org/sqlite only applies pragmas given in _pragma form.
		// WAL keeps writer stalls off the loop's critical path.
		path := strings.NewReplacer("?", "%3F", "#", "%23").Replace(c.Path)
		return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(normal)", path)
	case DriverSQLServer:
		return fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s",
			c.User, c.Password, host, port, c.Database)
	case DriverOracle:
		return fmt.Sprintf("oracle://%s:%s@%s:%d/%s",
			c.User, c.Password, host, port, c.Database)
	}
	return ""
}

// placeholders returns the parameter markers for an n-argument statement in
// the configured driver's dialect.
func (c *Config) placeholders(n int) []string {
	out := make([]string, n)
	for i := 0; i < n; i++ {
		switch c.Driver {
		case DriverPostgres:
			out[i] = fmt.Sprintf("$%d", i+1)
		case DriverSQLServer:
			out[i] = fmt.Sprintf("@p%d", i+1)
		case DriverOracle:
			out[i] = fmt.Sprintf(":%d", i+1)
		default:
			out[i] = "?"
		}
	}
	return out
}
