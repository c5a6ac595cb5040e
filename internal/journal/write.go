package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/crossroads/internal/ir"
)

// ErrUnknownDispatch is returned when a dispatch id has no row.
var ErrUnknownDispatch = errors.New("unknown dispatch")

// WriteDispatch inserts a dispatch. Writing the same id twice is a no-op.
func (s *Store) WriteDispatch(ctx context.Context, d ir.Dispatch) error {
	if !ir.ValidOutcomes[d.Outcome] {
		return fmt.Errorf("write dispatch %s: invalid outcome %q", d.ID, d.Outcome)
	}
	body, err := marshalBody(d.Body)
	if err != nil {
		return fmt.Errorf("write dispatch %s: %w", d.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dispatches
		(id, seq, path, interface, member, sender, no_reply, body, outcome, error_name, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		d.ID,
		d.Seq,
		d.Path,
		d.Interface,
		d.Member,
		d.Sender,
		d.NoReply,
		body,
		string(d.Outcome),
		d.ErrorName,
		d.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("write dispatch %s: %w", d.ID, err)
	}
	return nil
}

// CompleteDispatch records how a dispatch ended.
func (s *Store) CompleteDispatch(ctx context.Context, id string, outcome ir.Outcome, errorName string) error {
	if !ir.ValidOutcomes[outcome] {
		return fmt.Errorf("complete dispatch %s: invalid outcome %q", id, outcome)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE dispatches SET outcome = ?, error_name = ? WHERE id = ?
	`, string(outcome), errorName, id)
	if err != nil {
		return fmt.Errorf("complete dispatch %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete dispatch %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("complete dispatch %s: %w", id, ErrUnknownDispatch)
	}
	return nil
}

// WriteMessage inserts a sent message. The dispatch it belongs to must
// exist. Writing the same id twice is a no-op.
func (s *Store) WriteMessage(ctx context.Context, m ir.MessageRecord) error {
	body, err := marshalBody(m.Body)
	if err != nil {
		return fmt.Errorf("write message %s: %w", m.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages
		(id, dispatch_id, seq, kind, path, interface, member, error_name, signature, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		m.ID,
		m.DispatchID,
		m.Seq,
		m.Kind,
		m.Path,
		m.Interface,
		m.Member,
		m.ErrorName,
		m.Signature,
		body,
	)
	if err != nil {
		return fmt.Errorf("write message %s: %w", m.ID, err)
	}
	return nil
}
