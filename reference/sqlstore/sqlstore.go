// Package sqlstore implements the core.Store capability on top of
// PostgreSQL via pgx/pgxpool: accounts, received notes, UTXOs, block
// headers, and balance deltas, each behind a single-writer scoped
// transaction per ingest batch.
//
// This is a reference implementation exercised by the wallet engine's
// own tests; production deployments may swap in any other core.Store.
package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ccoin/core/internal/core"
	"github.com/ccoin/core/internal/warp/sync"
	"github.com/ccoin/core/pkg/types"
)

// Sentinel errors returned by New (ErrDBConnection) and GetAccountInfo
// (ErrNotFound). These two paths wrap the sentinel, not the underlying
// pgx error, so errors.Is matches the sentinel but not pgx.ErrNoRows;
// the other Store methods wrap the pgx error itself.
var (
	ErrNotFound     = errors.New("not found")
	ErrDBConnection = errors.New("database connection error")
)

// Store implements core.Store on top of a pgxpool.Pool.
type Store struct {
	pool *pgxpool.Pool
}

// Config holds database connection configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
}

// DefaultConfig returns sane local-development defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     5432,
		User:     "wallet",
		Password: "",
		Database: "wallet",
		SSLMode:  "disable",
		MaxConns: 20,
	}
}

// New opens a connection pool and verifies connectivity.
func New(ctx context.Context, cfg *Config) (*Store, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode, cfg.MaxConns,
	)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDBConnection, err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDBConnection, err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

var _ core.Store = (*Store)(nil)

// ListAccounts returns every tracked account.
func (s *Store) ListAccounts(ctx context.Context) ([]types.AccountInfo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT account, birth_height, sapling_ivk, orchard_ivk, transparent_address
		FROM accounts ORDER BY account`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []types.AccountInfo
	for rows.Next() {
		var ai types.AccountInfo
		if err := rows.Scan(&ai.Account, &ai.BirthHeight, &ai.SaplingIVK, &ai.OrchardIVK, &ai.TransparentAddress); err != nil {
			return nil, fmt.Errorf("list accounts: scan: %w", err)
		}
		out = append(out, ai)
	}
	return out, rows.Err()
}

// GetAccountInfo returns one account's viewing data.
func (s *Store) GetAccountInfo(ctx context.Context, account uint32) (types.AccountInfo, error) {
	var ai types.AccountInfo
	row := s.pool.QueryRow(ctx, `
		SELECT account, birth_height, sapling_ivk, orchard_ivk, transparent_address
		FROM accounts WHERE account = $1`, account)
	err := row.Scan(&ai.Account, &ai.BirthHeight, &ai.SaplingIVK, &ai.OrchardIVK, &ai.TransparentAddress)
	if errors.Is(err, pgx.ErrNoRows) {
		return ai, fmt.Errorf("get account info: %w", ErrNotFound)
	}
	if err != nil {
		return ai, fmt.Errorf("get account info: %w", err)
	}
	return ai, nil
}

// GetSyncHeight returns the highest block height fully ingested.
func (s *Store) GetSyncHeight(ctx context.Context) (uint32, error) {
	var height uint32
	row := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(height), 0) FROM blocks`)
	if err := row.Scan(&height); err != nil {
		return 0, fmt.Errorf("get sync height: %w", err)
	}
	return height, nil
}

// SnapToCheckpoint returns the greatest stored checkpoint at or below h.
func (s *Store) SnapToCheckpoint(ctx context.Context, h uint32) (types.CheckpointHeight, error) {
	var height uint32
	row := s.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(height), 0) FROM blocks WHERE height <= $1`, h)
	if err := row.Scan(&height); err != nil {
		return 0, fmt.Errorf("snap to checkpoint: %w", err)
	}
	return types.CheckpointHeight(height), nil
}

// ListReceivedNotes returns shielded notes received at or after
// sinceHeight, filtered by spend status.
func (s *Store) ListReceivedNotes(ctx context.Context, sinceHeight uint32, filter core.SpentFilter) ([]*sync.Note, error) {
	query := `
		SELECT account, pool, value, position, nullifier, txid, output_index,
		       address_be, rseed, rho, spent_height
		FROM notes WHERE height >= $1`
	if filter == core.SpentFilterUnspentOnly {
		query += ` AND spent_height IS NULL`
	}

	rows, err := s.pool.Query(ctx, query, sinceHeight)
	if err != nil {
		return nil, fmt.Errorf("list received notes: %w", err)
	}
	defer rows.Close()

	var out []*sync.Note
	for rows.Next() {
		n := &sync.Note{}
		var pool uint8
		var spentHeight *uint32
		var nullifier, txid, rseed, rho []byte
		if err := rows.Scan(&n.Account, &pool, &n.Value, &n.Position, &nullifier, &txid,
			&n.OutputIndex, &n.AddressBE, &rseed, &rho, &spentHeight); err != nil {
			return nil, fmt.Errorf("list received notes: scan: %w", err)
		}
		n.Pool = types.Pool(pool)
		n.Nullifier = types.HashFromBytes(nullifier)
		n.Txid = types.HashFromBytes(txid)
		n.Rseed = types.HashFromBytes(rseed)
		if rho != nil {
			h := types.HashFromBytes(rho)
			n.Rho = &h
		}
		n.Spent = spentHeight
		out = append(out, n)
	}
	return out, rows.Err()
}

// ListUTXOs returns the transparent UTXO set as of height.
func (s *Store) ListUTXOs(ctx context.Context, height uint32) ([]types.UTXO, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT account, height, txid, vout, address, value
		FROM utxos WHERE height <= $1 AND spent_height IS NULL`, height)
	if err != nil {
		return nil, fmt.Errorf("list utxos: %w", err)
	}
	defer rows.Close()

	var out []types.UTXO
	for rows.Next() {
		var u types.UTXO
		var txid []byte
		if err := rows.Scan(&u.Account, &u.Height, &txid, &u.Vout, &u.Address, &u.Value); err != nil {
			return nil, fmt.Errorf("list utxos: scan: %w", err)
		}
		u.Txid = types.HashFromBytes(txid)
		out = append(out, u)
	}
	return out, rows.Err()
}

// StoreBlock persists one block header, used for snap_to_checkpoint.
func (s *Store) StoreBlock(ctx context.Context, header core.BlockHeader) error {
	_, err := execOrTx(ctx, s.pool, `
		INSERT INTO blocks (height, hash, time, sapling_root, orchard_root)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (height) DO UPDATE SET
			hash = EXCLUDED.hash, time = EXCLUDED.time,
			sapling_root = EXCLUDED.sapling_root, orchard_root = EXCLUDED.orchard_root`,
		header.Height, header.Hash[:], header.Time, header.SaplingRoot[:], header.OrchardRoot[:])
	if err != nil {
		return fmt.Errorf("store block: %w", err)
	}
	return nil
}

// StoreNote persists a newly received shielded note.
func (s *Store) StoreNote(ctx context.Context, pool types.Pool, note *sync.Note) error {
	var rho []byte
	if note.Rho != nil {
		rho = note.Rho[:]
	}
	_, err := execOrTx(ctx, s.pool, `
		INSERT INTO notes (account, pool, value, position, nullifier, txid, output_index,
		                    address_be, rseed, rho, height, spent_height)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (nullifier) DO NOTHING`,
		note.Account, uint8(pool), note.Value, note.Position, note.Nullifier[:], note.Txid[:],
		note.OutputIndex, note.AddressBE, note.Rseed[:], rho, 0, note.Spent)
	if err != nil {
		return fmt.Errorf("store note: %w", err)
	}
	return nil
}

// StoreTxValue persists a balance delta produced by a receipt or spend.
func (s *Store) StoreTxValue(ctx context.Context, delta types.TxValueUpdate) error {
	var idSpent []byte
	if delta.IDSpent != nil {
		idSpent = delta.IDSpent[:]
	}
	_, err := execOrTx(ctx, s.pool, `
		INSERT INTO tx_values (account, txid, height, value, id_spent)
		VALUES ($1, $2, $3, $4, $5)`,
		delta.Account, delta.Txid[:], delta.Height, delta.Value, idSpent)
	if err != nil {
		return fmt.Errorf("store tx value: %w", err)
	}
	return nil
}

// TruncateScan removes all state strictly above height, used to unwind
// a reorg before re-ingesting from the new chain tip.
func (s *Store) TruncateScan(ctx context.Context, height uint32) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		tx := txFromContext(ctx)
		for _, table := range []string{"blocks", "notes", "utxos", "tx_values"} {
			if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE height > $1`, table), height); err != nil {
				return fmt.Errorf("truncate scan: %s: %w", table, err)
			}
		}
		return nil
	})
}

type txKey struct{}

func txFromContext(ctx context.Context) pgx.Tx {
	return ctx.Value(txKey{}).(pgx.Tx)
}

// WithTransaction runs fn inside a single scoped transaction, committing
// on success and rolling back on error — the single-writer discipline
// the sync core's batch commits depend on.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	ctx = context.WithValue(ctx, txKey{}, tx)
	if err := fn(ctx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// execOrTx runs query against the ambient transaction if one is present
// on ctx, otherwise against the pool directly — every Store write goes
// through this so callers can opt into batching via WithTransaction
// without every method needing its own tx-or-pool branch.
func execOrTx(ctx context.Context, pool *pgxpool.Pool, query string, args ...any) (pgx.CommandTag, error) {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx.Exec(ctx, query, args...)
	}
	return pool.Exec(ctx, query, args...)
}

// Schema is the DDL this store expects. Callers run it once against
// a fresh database before first use.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	account             INTEGER PRIMARY KEY,
	birth_height        INTEGER NOT NULL,
	sapling_ivk         BYTEA,
	orchard_ivk         BYTEA,
	transparent_address TEXT
);

CREATE TABLE IF NOT EXISTS blocks (
	height       INTEGER PRIMARY KEY,
	hash         BYTEA NOT NULL,
	time         BIGINT NOT NULL,
	sapling_root BYTEA NOT NULL,
	orchard_root BYTEA NOT NULL
);

CREATE TABLE IF NOT EXISTS notes (
	nullifier    BYTEA PRIMARY KEY,
	account      INTEGER NOT NULL,
	pool         SMALLINT NOT NULL,
	value        BIGINT NOT NULL,
	position     BIGINT NOT NULL,
	txid         BYTEA NOT NULL,
	output_index INTEGER NOT NULL,
	address_be   BYTEA,
	rseed        BYTEA NOT NULL,
	rho          BYTEA,
	height       INTEGER NOT NULL,
	spent_height INTEGER
);

CREATE TABLE IF NOT EXISTS utxos (
	txid         BYTEA NOT NULL,
	vout         INTEGER NOT NULL,
	account      INTEGER NOT NULL,
	height       INTEGER NOT NULL,
	address      TEXT NOT NULL,
	value        BIGINT NOT NULL,
	spent_height INTEGER,
	PRIMARY KEY (txid, vout)
);

CREATE TABLE IF NOT EXISTS tx_values (
	id       BIGSERIAL PRIMARY KEY,
	account  INTEGER NOT NULL,
	txid     BYTEA NOT NULL,
	height   INTEGER NOT NULL,
	value    BIGINT NOT NULL,
	id_spent BYTEA
);
`
