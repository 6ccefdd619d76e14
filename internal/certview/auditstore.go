package certview

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"

	applog "github.com/dalbodeule/sip-dtls-transport/internal/logging"
)

// StoreConfig holds PostgreSQL connection and pool settings for the
// peer-certificate audit log. Adapted from the teacher's
// internal/store/postgres.go Config, minus the ent-backed schema
// migration: this package talks to the database with plain
// database/sql + lib/pq, since reproducing ent's generated client by
// hand would mean fabricating code that was never actually generated.
type StoreConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func defaultStoreConfig() StoreConfig {
	return StoreConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// StoreConfigFromEnv mirrors the teacher's ConfigFromEnv, renamed off the
// hop-gate-specific HOP_DB_* prefix onto this module's own.
//
// Environment variables:
//   - SIPDTLS_DB_DSN               : required, PostgreSQL DSN
//   - SIPDTLS_DB_MAX_OPEN_CONNS    : optional, int, default 10
//   - SIPDTLS_DB_MAX_IDLE_CONNS    : optional, int, default 5
//   - SIPDTLS_DB_CONN_MAX_LIFETIME : optional, duration (e.g. "30m"), default 30m
func StoreConfigFromEnv() (StoreConfig, error) {
	cfg := defaultStoreConfig()

	dsn := strings.TrimSpace(os.Getenv("SIPDTLS_DB_DSN"))
	if dsn == "" {
		return StoreConfig{}, fmt.Errorf("SIPDTLS_DB_DSN is required")
	}
	cfg.DSN = dsn

	if v := strings.TrimSpace(os.Getenv("SIPDTLS_DB_MAX_OPEN_CONNS")); v != "" {
		if n, err := parseInt(v); err == nil && n > 0 {
			cfg.MaxOpenConns = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SIPDTLS_DB_MAX_IDLE_CONNS")); v != "" {
		if n, err := parseInt(v); err == nil && n >= 0 {
			cfg.MaxIdleConns = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SIPDTLS_DB_CONN_MAX_LIFETIME")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ConnMaxLifetime = d
		}
	}

	return cfg, nil
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

// auditSchema is applied once per AuditStore, the plain-SQL analogue of
// the teacher's ent client.Schema.Create auto-migration.
const auditSchema = `
CREATE TABLE IF NOT EXISTS peer_certificates (
	session_id   TEXT PRIMARY KEY,
	issuer_dn    TEXT NOT NULL,
	subject_dn   TEXT NOT NULL,
	serial_hex   TEXT NOT NULL,
	not_before   TIMESTAMPTZ NOT NULL,
	not_after    TIMESTAMPTZ NOT NULL,
	verify_status TEXT NOT NULL,
	recorded_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// AuditStore persists the CertificateInfo a session authenticated with,
// keyed by session UUID, for later audit/inspection. It replaces the
// teacher's ent-backed internal/store/postgres.go with a direct
// database/sql table, keeping the connection-pool configuration and
// startup ping/migrate shape.
type AuditStore struct {
	db     *sql.DB
	logger applog.Logger
}

// OpenAuditStore opens the database, configures the pool, pings, and
// applies auditSchema, mirroring the teacher's OpenPostgres lifecycle.
func OpenAuditStore(ctx context.Context, logger applog.Logger, cfg StoreConfig) (*AuditStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns >= 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := db.ExecContext(ctx, auditSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply audit schema: %w", err)
	}

	logger.Info("connected to postgres audit store", applog.Fields{
		"dsn_masked": maskDSN(cfg.DSN),
	})

	return &AuditStore{db: db, logger: logger}, nil
}

// Record upserts the CertificateInfo a sessionID's peer authenticated
// with, overwriting any prior record for that session.
func (s *AuditStore) Record(ctx context.Context, sessionID string, info *Info) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO peer_certificates
			(session_id, issuer_dn, subject_dn, serial_hex, not_before, not_after, verify_status, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (session_id) DO UPDATE SET
			issuer_dn = EXCLUDED.issuer_dn,
			subject_dn = EXCLUDED.subject_dn,
			serial_hex = EXCLUDED.serial_hex,
			not_before = EXCLUDED.not_before,
			not_after = EXCLUDED.not_after,
			verify_status = EXCLUDED.verify_status,
			recorded_at = now()
	`, sessionID, info.IssuerDN, info.SubjectDN, info.SerialHex, info.NotBefore, info.NotAfter, info.VerifyStatus)
	if err != nil {
		return fmt.Errorf("record peer certificate: %w", err)
	}
	return nil
}

// Lookup returns the last-recorded CertificateInfo for sessionID, if any.
func (s *AuditStore) Lookup(ctx context.Context, sessionID string) (*Info, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT issuer_dn, subject_dn, serial_hex, not_before, not_after, verify_status
		FROM peer_certificates WHERE session_id = $1
	`, sessionID)

	info := &Info{}
	if err := row.Scan(&info.IssuerDN, &info.SubjectDN, &info.SerialHex, &info.NotBefore, &info.NotAfter, &info.VerifyStatus); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("lookup peer certificate: %w", err)
	}
	return info, true, nil
}

func (s *AuditStore) Close() error { return s.db.Close() }

func maskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	return "***"
}
