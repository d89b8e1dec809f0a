package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"recordstore/internal/domain"
	pkgerrors "recordstore/pkg/errors"
)

// PostgresClient persists records across horizontally-partitioned Postgres
// instances, one *sql.DB per shard. Replication and durability belong to the
// backend; this client only does point writes and reads against the shard the
// router picked.
type PostgresClient struct {
	shards []*sql.DB
}

// NewPostgresClient opens one handle per shard DSN, in shard order.
func NewPostgresClient(dsns []string) (*PostgresClient, error) {
	if len(dsns) == 0 {
		return nil, fmt.Errorf("at least one shard DSN is required")
	}
	shards := make([]*sql.DB, 0, len(dsns))
	for i, dsn := range dsns {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			closeAll(shards)
			return nil, fmt.Errorf("open shard %d: %w", i, err)
		}
		shards = append(shards, db)
	}
	return &PostgresClient{shards: shards}, nil
}

// EnsureSchema creates the records table on every shard. Idempotent, called
// at startup and by integration tests.
func (c *PostgresClient) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS records (
			id             TEXT PRIMARY KEY,
			payload        JSONB NOT NULL,
			payload_hash   TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL
		)
	`
	for i, db := range c.shards {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("ensure schema on shard %d: %w", i, err)
		}
	}
	return nil
}

func (c *PostgresClient) shard(n int) (*sql.DB, error) {
	if n < 0 || n >= len(c.shards) {
		return nil, fmt.Errorf("shard %d out of range [0,%d)", n, len(c.shards))
	}
	return c.shards[n], nil
}

func (c *PostgresClient) Put(ctx context.Context, shard int, rec domain.Record) error {
	db, err := c.shard(shard)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	hash := hex.EncodeToString(rec.Fingerprint())

	const insert = `
		INSERT INTO records (id, payload, payload_hash, schema_version, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := db.ExecContext(ctx, insert, rec.ID, payload, hash, rec.SchemaVersion, rec.CreatedAt)
	if err != nil {
		return classify("put record", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return classify("put record", err)
	}
	if rows > 0 {
		return nil
	}

	// The id already exists. An identical payload is an idempotent replay;
	// anything else is an identifier collision.
	var existingHash string
	err = db.QueryRowContext(ctx, `SELECT payload_hash FROM records WHERE id = $1`, rec.ID).Scan(&existingHash)
	if err != nil {
		return classify("check existing record", err)
	}
	if existingHash == hash {
		return nil
	}
	return ErrConflict
}

func (c *PostgresClient) Get(ctx context.Context, shard int, id string) (domain.Record, error) {
	db, err := c.shard(shard)
	if err != nil {
		return domain.Record{}, err
	}
	const query = `SELECT payload, schema_version, created_at FROM records WHERE id = $1`
	var (
		payload []byte
		rec     = domain.Record{ID: id}
	)
	err = db.QueryRowContext(ctx, query, id).Scan(&payload, &rec.SchemaVersion, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Record{}, ErrNotFound
	}
	if err != nil {
		return domain.Record{}, classify("get record", err)
	}
	if err := json.Unmarshal(payload, &rec.Payload); err != nil {
		return domain.Record{}, fmt.Errorf("unmarshal payload: %w", err)
	}
	return rec, nil
}

func (c *PostgresClient) Exists(ctx context.Context, shard int, id string) (bool, error) {
	db, err := c.shard(shard)
	if err != nil {
		return false, err
	}
	var exists bool
	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM records WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, classify("check record", err)
	}
	return exists, nil
}

// Ping probes every shard so readiness reflects the whole topology, not just
// shard zero.
func (c *PostgresClient) Ping(ctx context.Context) error {
	for i, db := range c.shards {
		if err := db.PingContext(ctx); err != nil {
			return pkgerrors.Wrap(pkgerrors.KindUnavailable,
				fmt.Sprintf("shard %d unreachable", i), err)
		}
	}
	return nil
}

func (c *PostgresClient) Close() error {
	closeAll(c.shards)
	return nil
}

func closeAll(dbs []*sql.DB) {
	for _, db := range dbs {
		_ = db.Close()
	}
}

// classify maps driver errors onto the core taxonomy. Connection-class and
// resource-class Postgres errors, and anything that is not a pq error at all
// (dial failures, timeouts), count as transient.
func classify(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "53", "57", "58":
			return pkgerrors.Wrap(pkgerrors.KindUnavailable, op+" failed", err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.KindDeadline, op+" abandoned", err)
	}
	return pkgerrors.Wrap(pkgerrors.KindUnavailable, op+" failed", err)
}
