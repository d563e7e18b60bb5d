// Package relationaldb keeps the relational audit trail of the house:
// settlement outcomes and reward movements, written after each committed
// mutation and queryable independently of the hot state.
package relationaldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // sqlite driver

	"github.com/openclear/auctiond/internal/core/amount"
	"github.com/openclear/auctiond/internal/core/house"
	"github.com/openclear/auctiond/internal/core/token"
)

var ErrClosed = errors.New("history database is closed")

const defaultTimeout = 5 * time.Second

// Database implements house.History over a sqlite file.
type Database struct {
	db   *sql.DB
	path string
}

func New(path string) *Database {
	return &Database{path: path}
}

// Open opens the sqlite file and initializes the schema.
func (d *Database) Open(ctx context.Context) error {
	db, err := sql.Open("sqlite", d.path)
	if err != nil {
		return fmt.Errorf("open history database: %w", err)
	}
	// A single writer avoids sqlite's lock contention.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping history database: %w", err)
	}

	d.db = db
	if err := d.initSchema(ctx); err != nil {
		d.db.Close()
		d.db = nil
		return fmt.Errorf("init history schema: %w", err)
	}
	return nil
}

func (d *Database) Close() error {
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

func (d *Database) initSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS settlements (
    lot_id        INTEGER PRIMARY KEY,
    total_in      TEXT NOT NULL,
    total_out     TEXT NOT NULL,
    protocol_fee  TEXT NOT NULL,
    referrer_fee  TEXT NOT NULL,
    curator_fee   TEXT NOT NULL,
    seller_net    TEXT NOT NULL,
    partial_fill  INTEGER NOT NULL,
    settled_at    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS reward_events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    recipient  TEXT NOT NULL,
    token      TEXT NOT NULL,
    delta      TEXT NOT NULL,
    kind       TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reward_events_recipient ON reward_events(recipient);
`
	_, err := d.db.ExecContext(ctx, schema)
	return err
}

func (d *Database) RecordSettlement(rec house.SettlementRecord) error {
	if d.db == nil {
		return ErrClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(ctx, `
INSERT OR REPLACE INTO settlements
    (lot_id, total_in, total_out, protocol_fee, referrer_fee, curator_fee, seller_net, partial_fill, settled_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.LotID, rec.TotalIn, rec.TotalOut, rec.ProtocolFee, rec.ReferrerFee,
		rec.CuratorFee, rec.SellerNet, boolInt(rec.PartialFill), rec.SettledAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record settlement for lot %d: %w", rec.LotID, err)
	}
	return nil
}

func (d *Database) RecordReward(recipient token.Address, tkn token.Token, delta amount.Amount, kind string) error {
	if d.db == nil {
		return ErrClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(ctx, `
INSERT INTO reward_events (recipient, token, delta, kind, created_at)
VALUES (?, ?, ?, ?, ?)`,
		string(recipient), string(tkn), delta.String(), kind,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record reward for %s: %w", recipient, err)
	}
	return nil
}

// Settlement returns the audit row for one lot.
func (d *Database) Settlement(ctx context.Context, lotID uint64) (house.SettlementRecord, error) {
	var rec house.SettlementRecord
	if d.db == nil {
		return rec, ErrClosed
	}

	var partial int
	var settledAt string
	row := d.db.QueryRowContext(ctx, `
SELECT lot_id, total_in, total_out, protocol_fee, referrer_fee, curator_fee, seller_net, partial_fill, settled_at
FROM settlements WHERE lot_id = ?`, lotID)
	err := row.Scan(&rec.LotID, &rec.TotalIn, &rec.TotalOut, &rec.ProtocolFee,
		&rec.ReferrerFee, &rec.CuratorFee, &rec.SellerNet, &partial, &settledAt)
	if err != nil {
		return rec, err
	}
	rec.PartialFill = partial != 0
	rec.SettledAt, _ = time.Parse(time.RFC3339Nano, settledAt)
	return rec, nil
}

// RewardEvent is one row of the reward audit trail.
type RewardEvent struct {
	ID        int64
	Recipient string
	Token     string
	Delta     string
	Kind      string
	CreatedAt time.Time
}

// RewardEvents returns the reward trail for a recipient, newest first.
func (d *Database) RewardEvents(ctx context.Context, recipient token.Address, limit int) ([]RewardEvent, error) {
	if d.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := d.db.QueryContext(ctx, `
SELECT id, recipient, token, delta, kind, created_at
FROM reward_events WHERE recipient = ?
ORDER BY id DESC LIMIT ?`, string(recipient), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RewardEvent
	for rows.Next() {
		var ev RewardEvent
		var createdAt string
		if err := rows.Scan(&ev.ID, &ev.Recipient, &ev.Token, &ev.Delta, &ev.Kind, &createdAt); err != nil {
			return nil, err
		}
		ev.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
