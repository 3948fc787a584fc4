package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/result"
	"github.com/roach88/ndvm/internal/wire"
)

// ReadSlot returns exactly length bytes of the slot starting at offset.
// Bytes past the written data, and all bytes of an unwritten slot, are
// zero.
func (s *Store) ReadSlot(ctx context.Context, account calldata.Address, slot wire.SlotID, offset, length uint32) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM slots WHERE account = ? AND slot = ?
	`, account[:], slot[:]).Scan(&data)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read slot: %w", err)
	}
	return window(data, offset, length), nil
}

// LeaderResult returns the leader result journaled for a call of tx.
// The boolean is false when no leader result exists yet.
func (s *Store) LeaderResult(ctx context.Context, tx string, callNo uint32) (result.Result, bool, error) {
	var b []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT result FROM journal
		WHERE tx = ? AND kind = ? AND call_no = ?
		ORDER BY seq ASC
		LIMIT 1
	`, tx, string(KindLeaderResult), callNo).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("leader result: %w", err)
	}
	r, err := unmarshalResult(b)
	if err != nil {
		return nil, false, fmt.Errorf("leader result: %w", err)
	}
	return r, true, nil
}

// Entries returns the journal of tx in append order.
//
// Returns an empty slice (not nil) if nothing was journaled.
func (s *Store) Entries(ctx context.Context, tx string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, tx, node, kind, call_no, result, detail
		FROM journal
		WHERE tx = ?
		ORDER BY seq ASC
	`, tx)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return entries, nil
}

// Transactions returns the distinct transaction ids in first-seen order.
func (s *Store) Transactions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tx FROM journal GROUP BY tx ORDER BY MIN(seq) ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	txs := []string{}
	for rows.Next() {
		var tx string
		if err := rows.Scan(&tx); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e            Entry
		kind         string
		res, details []byte
	)
	if err := rows.Scan(&e.Seq, &e.Tx, &e.Node, &kind, &e.CallNo, &res, &details); err != nil {
		return Entry{}, fmt.Errorf("scan entry: %w", err)
	}
	e.Kind = Kind(kind)

	var err error
	if e.Result, err = unmarshalResult(res); err != nil {
		return Entry{}, fmt.Errorf("entry %d: %w", e.Seq, err)
	}
	if e.Detail, err = unmarshalDetail(details); err != nil {
		return Entry{}, fmt.Errorf("entry %d: %w", e.Seq, err)
	}
	return e, nil
}
