package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openticket/boxoffice/internal/model"
)

// queryer abstracts *sql.DB and *sql.Tx so every store method works
// both standalone and inside InTx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// MySQLStore implements Store on top of a MySQL schema (see
// schema.sql).  All queries filter expiry with explicit timestamps
// passed by the caller; columns are stored in UTC.
type MySQLStore struct {
	db *sql.DB
	q  queryer
}

// NewMySQLStore returns a store bound to the provided database.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db, q: db}
}

// InTx runs fn against a transactional view of the store.  The
// transaction is rolled back unless fn succeeds and the commit goes
// through.
func (s *MySQLStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.db == nil {
		return errors.New("store view is already transactional")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&MySQLStore{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

// AcquireLock claims the event's lock row for token.  A fresh row is
// inserted when no lock exists; an existing row is overwritten only
// when it has aged past the timeout (theft).  Anything else is a live
// lock held by someone else.
func (s *MySQLStore) AcquireLock(ctx context.Context, eventID int64, token string, now time.Time, timeout time.Duration) error {
	res, err := s.q.ExecContext(ctx,
		`INSERT IGNORE INTO event_locks (event_id, token, acquired_at) VALUES (?, ?, ?)`,
		eventID, token, now.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert lock: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	// A row exists. Steal it only when its timestamp is stale; the
	// WHERE clause makes the check-and-overwrite a single atomic
	// statement.
	stale := now.UTC().Add(-timeout)
	res, err = s.q.ExecContext(ctx,
		`UPDATE event_locks SET token = ?, acquired_at = ? WHERE event_id = ? AND acquired_at <= ?`,
		token, now.UTC(), eventID, stale,
	)
	if err != nil {
		return fmt.Errorf("steal lock: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	return ErrLockTimeout
}

// ReleaseLock clears the lock row only while token still matches.
func (s *MySQLStore) ReleaseLock(ctx context.Context, eventID int64, token string) error {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM event_locks WHERE event_id = ? AND token = ?`,
		eventID, token,
	)
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return ErrLockRelease
	}
	return nil
}

// Event returns the event row or ErrNotFound.
func (s *MySQLStore) Event(ctx context.Context, eventID int64) (*model.Event, error) {
	const q = `SELECT id, organizer, name, live, has_subevents, created_at FROM events WHERE id = ?`
	var ev model.Event
	err := s.q.QueryRowContext(ctx, q, eventID).Scan(
		&ev.ID, &ev.Organizer, &ev.Name, &ev.Live, &ev.HasSubevents, &ev.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// QuotaByID loads one quota and its item/variation coverage.
func (s *MySQLStore) QuotaByID(ctx context.Context, quotaID int64) (*model.Quota, error) {
	const q = `SELECT id, event_id, subevent_id, name, size, created_at FROM quotas WHERE id = ?`
	var qt model.Quota
	var subevent, size sql.NullInt64
	err := s.q.QueryRowContext(ctx, q, quotaID).Scan(
		&qt.ID, &qt.EventID, &subevent, &qt.Name, &size, &qt.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if subevent.Valid {
		v := subevent.Int64
		qt.SubeventID = &v
	}
	if size.Valid {
		v := size.Int64
		qt.Size = &v
	}
	if err := s.loadCoverage(ctx, &qt); err != nil {
		return nil, err
	}
	return &qt, nil
}

// QuotasForItem returns the quotas of the event covering the given
// item or variation.  Subevent-scoped quotas of a different subevent
// are excluded when subeventID is set.
func (s *MySQLStore) QuotasForItem(ctx context.Context, eventID, itemID int64, variationID, subeventID *int64) ([]model.Quota, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT DISTINCT q.id, q.event_id, q.subevent_id, q.name, q.size, q.created_at
	                FROM quotas q`)
	args := []interface{}{}
	if variationID != nil {
		sb.WriteString(` JOIN quota_variations qv ON qv.quota_id = q.id WHERE q.event_id = ? AND qv.variation_id = ?`)
		args = append(args, eventID, *variationID)
	} else {
		sb.WriteString(` JOIN quota_items qi ON qi.quota_id = q.id WHERE q.event_id = ? AND qi.item_id = ?`)
		args = append(args, eventID, itemID)
	}
	if subeventID != nil {
		sb.WriteString(` AND (q.subevent_id IS NULL OR q.subevent_id = ?)`)
		args = append(args, *subeventID)
	}
	rows, err := s.q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var quotas []model.Quota
	for rows.Next() {
		var qt model.Quota
		var subevent, size sql.NullInt64
		if err := rows.Scan(&qt.ID, &qt.EventID, &subevent, &qt.Name, &size, &qt.CreatedAt); err != nil {
			return nil, err
		}
		if subevent.Valid {
			v := subevent.Int64
			qt.SubeventID = &v
		}
		if size.Valid {
			v := size.Int64
			qt.Size = &v
		}
		quotas = append(quotas, qt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range quotas {
		if err := s.loadCoverage(ctx, &quotas[i]); err != nil {
			return nil, err
		}
	}
	return quotas, nil
}

func (s *MySQLStore) loadCoverage(ctx context.Context, qt *model.Quota) error {
	rows, err := s.q.QueryContext(ctx, `SELECT item_id FROM quota_items WHERE quota_id = ?`, qt.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		qt.ItemIDs = append(qt.ItemIDs, id)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	rows, err = s.q.QueryContext(ctx, `SELECT variation_id FROM quota_variations WHERE quota_id = ?`, qt.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		qt.VariationIDs = append(qt.VariationIDs, id)
	}
	return rows.Err()
}

// coverageFilter builds an "(item_id IN (...) OR variation_id IN
// (...))" predicate for the quota's coverage over the given column
// names.  ok is false when the quota covers nothing, in which case
// its consumption is trivially zero.
func coverageFilter(qt *model.Quota, itemCol, varCol string) (string, []interface{}, bool) {
	var parts []string
	var args []interface{}
	if len(qt.ItemIDs) > 0 {
		ph := make([]string, len(qt.ItemIDs))
		for i, id := range qt.ItemIDs {
			ph[i] = "?"
			args = append(args, id)
		}
		parts = append(parts, fmt.Sprintf("%s IN (%s)", itemCol, strings.Join(ph, ",")))
	}
	if len(qt.VariationIDs) > 0 {
		ph := make([]string, len(qt.VariationIDs))
		for i, id := range qt.VariationIDs {
			ph[i] = "?"
			args = append(args, id)
		}
		parts = append(parts, fmt.Sprintf("%s IN (%s)", varCol, strings.Join(ph, ",")))
	}
	if len(parts) == 0 {
		return "", nil, false
	}
	return "(" + strings.Join(parts, " OR ") + ")", args, true
}

// ConsumptionByQuota recomputes the usage breakdown for each quota
// from the order, cart and waiting list row sets.  There is one
// aggregation query per set and quota; remaining capacity is never
// read from a stored counter.
func (s *MySQLStore) ConsumptionByQuota(ctx context.Context, quotas []model.Quota, subeventID *int64, now time.Time, opts CountOptions) (map[int64]Consumption, error) {
	out := make(map[int64]Consumption, len(quotas))
	for i := range quotas {
		qt := &quotas[i]
		var c Consumption
		filter, filterArgs, ok := coverageFilter(qt, "p.item_id", "p.variation_id")
		if !ok {
			out[qt.ID] = c
			continue
		}
		// A subevent-scoped quota always counts within its own
		// subevent; otherwise the caller's scope applies.
		scope := qt.SubeventID
		if scope == nil {
			scope = subeventID
		}

		// Paid and pending order positions. Overdue pending orders
		// drop out of the count unless the grace policy keeps them.
		var sb strings.Builder
		sb.WriteString(`SELECT o.status, COUNT(*) FROM order_positions p
		                JOIN orders o ON o.id = p.order_id
		                WHERE p.event_id = ? AND ` + filter + ` AND (o.status = ?`)
		args := append([]interface{}{qt.EventID}, filterArgs...)
		args = append(args, model.OrderPaid)
		if opts.GracePending {
			sb.WriteString(` OR o.status = ?)`)
			args = append(args, model.OrderPending)
		} else {
			sb.WriteString(` OR (o.status = ? AND o.expires_at > ?))`)
			args = append(args, model.OrderPending, now.UTC())
		}
		if scope != nil {
			sb.WriteString(` AND p.subevent_id = ?`)
			args = append(args, *scope)
		}
		sb.WriteString(` GROUP BY o.status`)
		rows, err := s.q.QueryContext(ctx, sb.String(), args...)
		if err != nil {
			return nil, fmt.Errorf("count order positions: %w", err)
		}
		for rows.Next() {
			var status model.OrderStatus
			var n int64
			if err := rows.Scan(&status, &n); err != nil {
				rows.Close()
				return nil, err
			}
			switch status {
			case model.OrderPaid:
				c.Paid = n
			case model.OrderPending:
				c.Pending = n
			}
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}

		// Live cart positions.
		cartFilter, cartArgs, _ := coverageFilter(qt, "item_id", "variation_id")
		sb.Reset()
		sb.WriteString(`SELECT COUNT(*) FROM cart_positions WHERE event_id = ? AND expires_at > ? AND ` + cartFilter)
		args = append([]interface{}{qt.EventID, now.UTC()}, cartArgs...)
		if scope != nil {
			sb.WriteString(` AND subevent_id = ?`)
			args = append(args, *scope)
		}
		if err := s.q.QueryRowContext(ctx, sb.String(), args...).Scan(&c.CartHeld); err != nil {
			return nil, fmt.Errorf("count cart positions: %w", err)
		}

		if opts.IncludeWaitingList {
			sb.Reset()
			sb.WriteString(`SELECT COUNT(*) FROM waiting_list_entries WHERE event_id = ? AND ` + cartFilter)
			args = append([]interface{}{qt.EventID}, cartArgs...)
			if scope != nil {
				sb.WriteString(` AND subevent_id = ?`)
				args = append(args, *scope)
			}
			if err := s.q.QueryRowContext(ctx, sb.String(), args...).Scan(&c.WaitingList); err != nil {
				return nil, fmt.Errorf("count waiting list: %w", err)
			}
		}
		out[qt.ID] = c
	}
	return out, nil
}

// InsertCartPositions persists the positions in one bulk statement.
// Generated IDs are contiguous for a single multi-row INSERT, so they
// are filled in from the first inserted ID.
func (s *MySQLStore) InsertCartPositions(ctx context.Context, positions []model.CartPosition) error {
	if len(positions) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO cart_positions (event_id, session_key, item_id, variation_id, subevent_id, price_cents, token, expires_at, created_at) VALUES `)
	args := make([]interface{}, 0, len(positions)*9)
	for i, p := range positions {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, p.EventID, p.SessionKey, p.ItemID, p.VariationID, p.SubeventID,
			p.PriceCents, p.Token, p.ExpiresAt.UTC(), p.CreatedAt.UTC())
	}
	res, err := s.q.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return fmt.Errorf("insert cart positions: %w", err)
	}
	first, err := res.LastInsertId()
	if err != nil {
		return nil
	}
	for i := range positions {
		positions[i].ID = first + int64(i)
	}
	return nil
}

// ExtendCartPositions moves the expiry of the session's live
// positions forward.  Expired rows are not revived.
func (s *MySQLStore) ExtendCartPositions(ctx context.Context, sessionKey string, eventID int64, expiresAt, now time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		`UPDATE cart_positions SET expires_at = ? WHERE session_key = ? AND event_id = ? AND expires_at > ?`,
		expiresAt.UTC(), sessionKey, eventID, now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("extend cart positions: %w", err)
	}
	return res.RowsAffected()
}

// DeleteCartPositions removes all positions of a session for one
// event.
func (s *MySQLStore) DeleteCartPositions(ctx context.Context, sessionKey string, eventID int64) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM cart_positions WHERE session_key = ? AND event_id = ?`,
		sessionKey, eventID,
	)
	if err != nil {
		return 0, fmt.Errorf("delete cart positions: %w", err)
	}
	return res.RowsAffected()
}

// DeleteExpiredCartPositions removes positions whose expiry has
// passed, globally or for one event.
func (s *MySQLStore) DeleteExpiredCartPositions(ctx context.Context, eventID *int64, now time.Time) (int64, error) {
	query := `DELETE FROM cart_positions WHERE expires_at <= ?`
	args := []interface{}{now.UTC()}
	if eventID != nil {
		query += ` AND event_id = ?`
		args = append(args, *eventID)
	}
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired cart positions: %w", err)
	}
	return res.RowsAffected()
}

// InsertOrder persists the order row and its positions.
func (s *MySQLStore) InsertOrder(ctx context.Context, order *model.Order, positions []model.OrderPosition) error {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO orders (code, event_id, status, total_cents, expires_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		order.Code, order.EventID, order.Status, order.TotalCents,
		order.ExpiresAt.UTC(), order.CreatedAt.UTC(), order.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	order.ID = id
	if len(positions) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO order_positions (order_id, event_id, item_id, variation_id, subevent_id, price_cents) VALUES `)
	args := make([]interface{}, 0, len(positions)*6)
	for i := range positions {
		positions[i].OrderID = id
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?)")
		p := &positions[i]
		args = append(args, p.OrderID, p.EventID, p.ItemID, p.VariationID, p.SubeventID, p.PriceCents)
	}
	res, err = s.q.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return fmt.Errorf("insert order positions: %w", err)
	}
	if first, err := res.LastInsertId(); err == nil {
		for i := range positions {
			positions[i].ID = first + int64(i)
		}
	}
	return nil
}

// UpdateOrderStatus transitions the order only when it still is in
// the expected status.  The returned bool is false when the guard did
// not match, e.g. the sweeper trying to expire an order that was paid
// in the meantime.
func (s *MySQLStore) UpdateOrderStatus(ctx context.Context, orderID int64, from, to model.OrderStatus) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, time.Now().UTC(), orderID, from,
	)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ExpirePendingOrders marks overdue pending orders as expired.  The
// status guard is part of the statement, so a concurrent confirmation
// cannot be downgraded.
func (s *MySQLStore) ExpirePendingOrders(ctx context.Context, eventID *int64, now time.Time) (int64, error) {
	query := `UPDATE orders SET status = ?, updated_at = ? WHERE status = ? AND expires_at <= ?`
	args := []interface{}{model.OrderExpired, now.UTC(), model.OrderPending, now.UTC()}
	if eventID != nil {
		query += ` AND event_id = ?`
		args = append(args, *eventID)
	}
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("expire pending orders: %w", err)
	}
	return res.RowsAffected()
}
