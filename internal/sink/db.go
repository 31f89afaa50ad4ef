package sink

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"     // mysql driver
	_ "github.com/lib/pq"                  // postgres driver
	_ "github.com/microsoft/go-mssqldb"    // sqlserver driver
	_ "github.com/sijms/go-ora/v2"         // oracle driver
	_ "modernc.org/sqlite"                 // sqlite driver

	"github.com/whhaicheng/fsload/internal/domain/workload"
)

const connectTimeout = 10 * time.Second

// ddlByDriver holds the result table schema per backend dialect. SQL Server
// and Oracle lack a portable IF NOT EXISTS, so for those the table is assumed
// provisioned and only verified with a probe query.
var ddlByDriver = map[Driver]string{
	DriverPostgres: `
		CREATE TABLE IF NOT EXISTS load_test_results (
			id TEXT PRIMARY KEY,
			setup_id TEXT NOT NULL,
			test_name TEXT NOT NULL,
			start_time TIMESTAMPTZ NOT NULL,
			execution_time_seconds DOUBLE PRECISION NOT NULL,
			success BOOLEAN NOT NULL,
			error_message TEXT
		)`,
	DriverMySQL: `
		CREATE TABLE IF NOT EXISTS load_test_results (
			id VARCHAR(36) PRIMARY KEY,
			setup_id VARCHAR(255) NOT NULL,
			test_name VARCHAR(255) NOT NULL,
			start_time DATETIME(6) NOT NULL,
			execution_time_seconds DOUBLE NOT NULL,
			success BOOLEAN NOT NULL,
			error_message TEXT
		)`,
	DriverSQLite: `
		CREATE TABLE IF NOT EXISTS load_test_results (
			id TEXT PRIMARY KEY,
			setup_id TEXT NOT NULL,
			test_name TEXT NOT NULL,
			start_time TEXT NOT NULL,
			execution_time_seconds REAL NOT NULL,
			success BOOLEAN NOT NULL,
			error_message TEXT
		)`,
}

// DBSink records results into a load_test_results table over database/sql.
// One persistent handle is reused across loop iterations.
type DBSink struct {
	cfg Config

	mu     sync.Mutex
	db     *sql.DB
	tunnel *Tunnel
}

// NewDBSink creates a sink for the given configuration. Connect must be
// called before Record.
func NewDBSink(cfg Config) *DBSink {
	return &DBSink{cfg: cfg}
}

// Connect opens the database (through the SSH tunnel when configured),
// verifies the connection, and ensures the result table exists.
func (s *DBSink) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return nil
	}

	host, port := s.cfg.Host, s.cfg.Port
	if port == 0 {
		port = s.cfg.defaultPort()
	}
	if s.cfg.Tunnel != nil && s.cfg.Tunnel.Enabled {
		tunnel, err := OpenTunnel(ctx, s.cfg.Tunnel, host, port)
		if err != nil {
			return fmt.Errorf("open ssh tunnel: %w", err)
		}
		s.tunnel = tunnel
		host, port = "127.0.0.1", tunnel.LocalPort()
	}

	if s.cfg.Driver == DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(s.cfg.Path), 0755); err != nil {
			s.closeTunnelLocked()
			return fmt.Errorf("create sink directory: %w", err)
		}
	}

	db, err := sql.Open(s.cfg.driverName(), s.cfg.dsn(host, port))
	if err != nil {
		s.closeTunnelLocked()
		return fmt.Errorf("open %s sink: %w", s.cfg.Driver, err)
	}
	if s.cfg.Driver == DriverSQLite {
		// modernc sqlite wants a single writer.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		s.closeTunnelLocked()
		return fmt.Errorf("ping %s sink: %w", s.cfg.Driver, err)
	}

	if err := s.ensureSchema(pingCtx, db); err != nil {
		db.Close()
		s.closeTunnelLocked()
		return err
	}

	s.db = db
	slog.Info("result sink connected", slog.String("sink", s.cfg.Redact()))
	return nil
}

// ensureSchema creates the result table where the dialect allows it, and
// probes for it otherwise.
func (s *DBSink) ensureSchema(ctx context.Context, db *sql.DB) error {
	if ddl, ok := ddlByDriver[s.cfg.Driver]; ok {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("ensure result table: %w", err)
		}
		return nil
	}
	var n int
	probe := "SELECT COUNT(*) FROM load_test_results WHERE 1 = 0"
	if err := db.QueryRowContext(ctx, probe).Scan(&n); err != nil {
		return fmt.Errorf("result table load_test_results not available on %s: %w", s.cfg.Driver, err)
	}
	return nil
}

// Record inserts one result row.
func (s *DBSink) Record(ctx context.Context, res *workload.Result) error {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return ErrNotConnected
	}

	ph := s.cfg.placeholders(7)
	query := fmt.Sprintf(`
		INSERT INTO load_test_results
			(id, setup_id, test_name, start_time, execution_time_seconds, success, error_message)
		VALUES (%s)`, strings.Join(ph, ", "))

	var errMsg any
	if res.ErrorMessage != "" {
		errMsg = res.ErrorMessage
	}

	_, err := db.ExecContext(ctx, query,
		res.ID,
		res.SetupID,
		res.TestName,
		s.encodeTime(res.StartTime),
		res.ExecutionSeconds,
		s.encodeBool(res.Success),
		errMsg,
	)
	if err != nil {
		return fmt.Errorf("record result: %w", err)
	}

	slog.Debug("result recorded",
		slog.String("test", res.TestName),
		slog.Bool("success", res.Success),
		slog.Float64("seconds", res.ExecutionSeconds))
	return nil
}

// encodeTime normalizes the start time for the backend. SQLite stores RFC3339
// text so rows stay comparable across tools reading the file.
func (s *DBSink) encodeTime(t time.Time) any {
	if s.cfg.Driver == DriverSQLite {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return t.UTC()
}

// encodeBool maps success onto a value every backend's boolean column accepts.
func (s *DBSink) encodeBool(b bool) any {
	if s.cfg.Driver == DriverOracle {
		if b {
			return 1
		}
		return 0
	}
	return b
}

// Count returns the number of rows in the result table. Used by the
// connectivity check.
func (s *DBSink) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return 0, ErrNotConnected
	}

	var n int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM load_test_results").Scan(&n); err != nil {
		return 0, fmt.Errorf("count results: %w", err)
	}
	return n, nil
}

// Disconnect closes the database handle and any tunnel. Idempotent.
func (s *DBSink) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.db != nil {
		err = s.db.Close()
		s.db = nil
	}
	s.closeTunnelLocked()
	return err
}

// Connected reports whether the sink currently holds an open handle.
func (s *DBSink) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db != nil
}

func (s *DBSink) closeTunnelLocked() {
	if s.tunnel != nil {
		if err := s.tunnel.Close(); err != nil {
			slog.Warn("close ssh tunnel", slog.Any("error", err))
		}
		s.tunnel = nil
	}
}
