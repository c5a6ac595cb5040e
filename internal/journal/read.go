package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/crossroads/internal/ir"
)

const dispatchColumns = `id, seq, path, interface, member, sender, no_reply, body, outcome, error_name, ir_version`

// ReadDispatch returns one dispatch. Returns ErrUnknownDispatch if absent.
func (s *Store) ReadDispatch(ctx context.Context, id string) (ir.Dispatch, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+dispatchColumns+` FROM dispatches WHERE id = ?`, id)
	d, err := scanDispatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Dispatch{}, fmt.Errorf("read dispatch %s: %w", id, ErrUnknownDispatch)
	}
	if err != nil {
		return ir.Dispatch{}, fmt.Errorf("read dispatch %s: %w", id, err)
	}
	return d, nil
}

// ListDispatches returns dispatches ordered by seq ASC, id ASC. A limit of
// zero or less returns all of them.
func (s *Store) ListDispatches(ctx context.Context, limit int) ([]ir.Dispatch, error) {
	return s.QueryDispatches(ctx, Filter{Limit: limit})
}

// ReadMessages returns the messages sent under a dispatch in send order.
func (s *Store) ReadMessages(ctx context.Context, dispatchID string) ([]ir.MessageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dispatch_id, seq, kind, path, interface, member, error_name, signature, body
		FROM messages
		WHERE dispatch_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, dispatchID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	msgs := []ir.MessageRecord{}
	for rows.Next() {
		var m ir.MessageRecord
		var body string
		if err := rows.Scan(
			&m.ID, &m.DispatchID, &m.Seq, &m.Kind, &m.Path,
			&m.Interface, &m.Member, &m.ErrorName, &m.Signature, &body,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if m.Body, err = unmarshalBody(body); err != nil {
			return nil, fmt.Errorf("message %s: %w", m.ID, err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

// LastSeq returns the highest dispatch seq, or 0 for an empty journal.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM dispatches`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return seq.Int64, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDispatch(row scanner) (ir.Dispatch, error) {
	var d ir.Dispatch
	var body, outcome string
	if err := row.Scan(
		&d.ID, &d.Seq, &d.Path, &d.Interface, &d.Member, &d.Sender,
		&d.NoReply, &body, &outcome, &d.ErrorName, &d.IRVersion,
	); err != nil {
		return ir.Dispatch{}, err
	}
	d.Outcome = ir.Outcome(outcome)
	var err error
	if d.Body, err = unmarshalBody(body); err != nil {
		return ir.Dispatch{}, fmt.Errorf("dispatch %s: %w", d.ID, err)
	}
	return d, nil
}
