package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/wire"
)

// WriteSlot writes data at offset into the slot, extending it with zeros
// when the write ends past the current data.
func (s *Store) WriteSlot(ctx context.Context, account calldata.Address, slot wire.SlotID, offset uint32, data []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write slot: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var current []byte
	err = tx.QueryRowContext(ctx, `
		SELECT data FROM slots WHERE account = ? AND slot = ?
	`, account[:], slot[:]).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("write slot: read current: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO slots (account, slot, data)
		VALUES (?, ?, ?)
		ON CONFLICT(account, slot) DO UPDATE SET data = excluded.data
	`, account[:], slot[:], patch(current, offset, data))
	if err != nil {
		return fmt.Errorf("write slot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write slot: commit: %w", err)
	}
	return nil
}

// Append adds e to the journal and returns its sequence number.
// A duplicate leader result or vote is ignored; the sequence number of the
// existing entry is returned.
func (s *Store) Append(ctx context.Context, e Entry) (int64, error) {
	res, err := marshalResult(e.Result)
	if err != nil {
		return 0, fmt.Errorf("append %s: %w", e.Kind, err)
	}
	detail, err := marshalDetail(e.Detail)
	if err != nil {
		return 0, fmt.Errorf("append %s: %w", e.Kind, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("append %s: begin tx: %w", e.Kind, err)
	}
	defer tx.Rollback() // No-op if committed

	out, err := tx.ExecContext(ctx, `
		INSERT INTO journal (tx, node, kind, call_no, result, detail)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, e.Tx, e.Node, string(e.Kind), e.CallNo, res, detail)
	if err != nil {
		return 0, fmt.Errorf("append %s: %w", e.Kind, err)
	}

	rows, err := out.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("append %s: rows affected: %w", e.Kind, err)
	}

	var seq int64
	if rows > 0 {
		seq, err = out.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("append %s: last insert id: %w", e.Kind, err)
		}
	} else {
		err = tx.QueryRowContext(ctx, `
			SELECT seq FROM journal
			WHERE tx = ? AND node = ? AND kind = ? AND call_no = ?
		`, e.Tx, e.Node, string(e.Kind), e.CallNo).Scan(&seq)
		if err != nil {
			return 0, fmt.Errorf("append %s: query existing: %w", e.Kind, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("append %s: commit: %w", e.Kind, err)
	}
	return seq, nil
}
