package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"WalletLedger/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// querier is the subset shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PG struct {
	pgQueries
	Pool *pgxpool.Pool
}

func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{pgQueries: pgQueries{q: pool}, Pool: pool}
}

func (s *PG) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := fn(&pgTx{pgQueries{q: tx}}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PG) ListEventsAfter(ctx context.Context, after int64, limit int) ([]models.OrderEvent, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT event_id, app_id, order_id::text, event_type, status, payload, created_at
		FROM order_events
		WHERE event_id > $1
		ORDER BY event_id
		LIMIT NULLIF($2, 0)
	`, after, limit)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// RelayEvents claims unrelayed rows with FOR UPDATE SKIP LOCKED. Ids are
// assigned at insert, not at commit, so relay state lives on each row: an
// event committed after a higher id was relayed is still picked up.
func (s *PG) RelayEvents(ctx context.Context, limit int, fn func([]models.OrderEvent) error) (int, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	rows, err := tx.Query(ctx, `
		SELECT event_id, app_id, order_id::text, event_type, status, payload, created_at
		FROM order_events
		WHERE relayed_at IS NULL
		ORDER BY event_id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return 0, err
	}
	events, err := scanEvents(rows)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	if err := fn(events); err != nil {
		return 0, err
	}

	ids := make([]int64, len(events))
	for i, ev := range events {
		ids[i] = ev.EventID
	}
	if _, err := tx.Exec(ctx, `UPDATE order_events SET relayed_at=now() WHERE event_id = ANY($1)`, ids); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return len(events), nil
}

func scanEvents(rows pgx.Rows) ([]models.OrderEvent, error) {
	defer rows.Close()
	var events []models.OrderEvent
	for rows.Next() {
		var ev models.OrderEvent
		var orderID string
		if err := rows.Scan(&ev.EventID, &ev.AppID, &orderID, &ev.Type, &ev.Status, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		var err error
		if ev.OrderID, err = uuid.Parse(orderID); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

type pgTx struct {
	pgQueries
}

type pgQueries struct {
	q querier
}

func (p pgQueries) GetApp(ctx context.Context, appID int64) (*models.App, error) {
	var app models.App
	var systemWallet sql.NullInt64
	err := p.q.QueryRow(ctx, `
		SELECT app_id, system_wallet_id, created_at FROM apps WHERE app_id=$1
	`, appID).Scan(&app.AppID, &systemWallet, &app.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	app.SystemWalletID = systemWallet.Int64
	return &app, nil
}

func (p pgQueries) CurrencyExists(ctx context.Context, appID, currencyID int64) (bool, error) {
	var exists bool
	err := p.q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM currencies WHERE app_id=$1 AND currency_id=$2)
	`, appID, currencyID).Scan(&exists)
	return exists, err
}

func (p pgQueries) GetWallet(ctx context.Context, walletID int64) (*models.Wallet, error) {
	var w models.Wallet
	err := p.q.QueryRow(ctx, `
		SELECT wallet_id, app_id, created_at FROM wallets WHERE wallet_id=$1
	`, walletID).Scan(&w.WalletID, &w.AppID, &w.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &w, nil
}

func (p pgQueries) ListBalances(ctx context.Context, walletID int64) ([]models.CurrencyBalance, error) {
	rows, err := p.q.Query(ctx, `
		SELECT wallet_id, currency_id, balance::text, min_balance::text, updated_at
		FROM wallet_currencies
		WHERE wallet_id=$1
		ORDER BY currency_id
	`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CurrencyBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (p pgQueries) GetOrder(ctx context.Context, appID int64, orderID uuid.UUID) (*models.Order, error) {
	var o models.Order
	var capturedAt, voidedAt sql.NullTime
	err := p.q.QueryRow(ctx, `
		SELECT app_id, currency_id, order_type_id, transaction_type, status,
			allow_partial_success, created_at, captured_at, voided_at
		FROM orders WHERE app_id=$1 AND order_id=$2::uuid
	`, appID, orderID.String()).Scan(
		&o.AppID,
		&o.CurrencyID,
		&o.OrderTypeID,
		&o.TransactionType,
		&o.Status,
		&o.AllowPartialSuccess,
		&o.CreatedAt,
		&capturedAt,
		&voidedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	o.OrderID = orderID
	if capturedAt.Valid {
		o.CapturedAt = &capturedAt.Time
	}
	if voidedAt.Valid {
		o.VoidedAt = &voidedAt.Time
	}

	rows, err := p.q.Query(ctx, `
		SELECT order_item_id, sender_wallet_id, receiver_wallet_id, amount::text, applied
		FROM order_items
		WHERE app_id=$1 AND order_id=$2::uuid
		ORDER BY order_item_id
	`, appID, orderID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		var amount string
		if err := rows.Scan(&item.OrderItemID, &item.SenderWalletID, &item.ReceiverWalletID, &amount, &item.Applied); err != nil {
			return nil, err
		}
		if item.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, item)
	}
	return &o, rows.Err()
}

func (p pgQueries) ListWalletTransactions(ctx context.Context, f TransactionFilter) ([]models.OrderItemView, error) {
	rows, err := p.q.Query(ctx, `
		SELECT o.order_id::text, o.currency_id, o.order_type_id, i.order_item_id,
			i.sender_wallet_id, i.receiver_wallet_id, i.amount::text,
			o.status, o.transaction_type, o.created_at, o.captured_at, o.voided_at
		FROM order_items i
		JOIN orders o ON o.app_id=i.app_id AND o.order_id=i.order_id
		WHERE o.app_id=$1 AND i.applied
			AND (i.sender_wallet_id=$2
				OR (i.receiver_wallet_id=$2 AND (o.transaction_type='Sale' OR o.captured_at IS NOT NULL)))
			AND ($3::bigint IS NULL
				OR (CASE WHEN i.sender_wallet_id=$2 THEN i.receiver_wallet_id ELSE i.sender_wallet_id END)=$3)
			AND ($4::timestamptz IS NULL OR o.created_at >= $4)
			AND ($5::timestamptz IS NULL OR o.created_at < $5)
			AND ($6::bigint IS NULL OR o.order_type_id=$6)
			AND ($7::bigint IS NULL OR o.currency_id=$7)
		ORDER BY o.created_at DESC, i.order_item_id DESC
		LIMIT $8 OFFSET $9
	`, f.AppID, f.WalletID, f.ParticipantWalletID, f.BeginTime, f.EndTime, f.OrderTypeID, f.CurrencyID, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.OrderItemView
	for rows.Next() {
		var v models.OrderItemView
		var orderID, amount string
		var capturedAt, voidedAt sql.NullTime
		if err := rows.Scan(
			&orderID,
			&v.CurrencyID,
			&v.OrderTypeID,
			&v.OrderItemID,
			&v.SenderWalletID,
			&v.ReceiverWalletID,
			&amount,
			&v.Status,
			&v.TransactionType,
			&v.CreatedAt,
			&capturedAt,
			&voidedAt,
		); err != nil {
			return nil, err
		}
		if v.OrderID, err = uuid.Parse(orderID); err != nil {
			return nil, err
		}
		if v.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		if capturedAt.Valid {
			v.CapturedAt = &capturedAt.Time
		}
		if voidedAt.Valid {
			v.VoidedAt = &voidedAt.Time
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (p pgQueries) WalletApps(ctx context.Context, walletIDs []int64) (map[int64]int64, error) {
	out := make(map[int64]int64, len(walletIDs))
	if len(walletIDs) == 0 {
		return out, nil
	}
	rows, err := p.q.Query(ctx, `SELECT wallet_id, app_id FROM wallets WHERE wallet_id = ANY($1)`, walletIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var walletID, appID int64
		if err := rows.Scan(&walletID, &appID); err != nil {
			return nil, err
		}
		out[walletID] = appID
	}
	return out, rows.Err()
}

func (p pgQueries) GetBalanceForUpdate(ctx context.Context, walletID, currencyID int64) (*models.CurrencyBalance, error) {
	row := p.q.QueryRow(ctx, `
		SELECT wallet_id, currency_id, balance::text, min_balance::text, updated_at
		FROM wallet_currencies
		WHERE wallet_id=$1 AND currency_id=$2
		FOR UPDATE
	`, walletID, currencyID)
	b, err := scanBalance(row)
	if err != nil {
		return nil, notFound(err)
	}
	return b, nil
}

func (p pgQueries) SaveBalance(ctx context.Context, b *models.CurrencyBalance) error {
	_, err := p.q.Exec(ctx, `
		INSERT INTO wallet_currencies (wallet_id, currency_id, balance, min_balance, updated_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5)
		ON CONFLICT (wallet_id, currency_id) DO UPDATE
		SET balance=EXCLUDED.balance, min_balance=EXCLUDED.min_balance, updated_at=EXCLUDED.updated_at
	`, b.WalletID, b.CurrencyID, b.Balance.String(), b.MinBalance.String(), b.UpdatedAt)
	return err
}

func (p pgQueries) InsertOrder(ctx context.Context, o *models.Order) error {
	_, err := p.q.Exec(ctx, `
		INSERT INTO orders (
			app_id, order_id, currency_id, order_type_id, transaction_type, status,
			allow_partial_success, created_at, captured_at, voided_at
		) VALUES ($1,$2::uuid,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		o.AppID,
		o.OrderID.String(),
		o.CurrencyID,
		o.OrderTypeID,
		o.TransactionType,
		o.Status,
		o.AllowPartialSuccess,
		o.CreatedAt,
		o.CapturedAt,
		o.VoidedAt,
	)
	if err != nil {
		return duplicate(err)
	}

	for i := range o.Items {
		item := &o.Items[i]
		err := p.q.QueryRow(ctx, `
			INSERT INTO order_items (app_id, order_id, sender_wallet_id, receiver_wallet_id, amount, applied)
			VALUES ($1,$2::uuid,$3,$4,$5::numeric,$6)
			RETURNING order_item_id
		`, o.AppID, o.OrderID.String(), item.SenderWalletID, item.ReceiverWalletID, item.Amount.String(), item.Applied).
			Scan(&item.OrderItemID)
		if err != nil {
			return duplicate(err)
		}
	}
	return nil
}

func (p pgQueries) UpdateOrder(ctx context.Context, o *models.Order) error {
	tag, err := p.q.Exec(ctx, `
		UPDATE orders
		SET status=$3, captured_at=$4, voided_at=$5
		WHERE app_id=$1 AND order_id=$2::uuid
	`, o.AppID, o.OrderID.String(), o.Status, o.CapturedAt, o.VoidedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	for _, item := range o.Items {
		if _, err := p.q.Exec(ctx, `UPDATE order_items SET applied=$2 WHERE order_item_id=$1`, item.OrderItemID, item.Applied); err != nil {
			return err
		}
	}
	return nil
}

func (p pgQueries) AppendEvent(ctx context.Context, e *models.OrderEvent) error {
	return p.q.QueryRow(ctx, `
		INSERT INTO order_events (app_id, order_id, event_type, status, payload, created_at)
		VALUES ($1,$2::uuid,$3,$4,$5,$6)
		RETURNING event_id
	`, e.AppID, e.OrderID.String(), e.Type, e.Status, e.Payload, e.CreatedAt).Scan(&e.EventID)
}

func (p pgQueries) InsertApp(ctx context.Context, app *models.App) error {
	return p.q.QueryRow(ctx, `
		INSERT INTO apps (created_at) VALUES ($1) RETURNING app_id
	`, app.CreatedAt).Scan(&app.AppID)
}

func (p pgQueries) SetSystemWallet(ctx context.Context, appID, walletID int64) error {
	_, err := p.q.Exec(ctx, `UPDATE apps SET system_wallet_id=$2 WHERE app_id=$1`, appID, walletID)
	return err
}

func (p pgQueries) InsertCurrency(ctx context.Context, c *models.Currency) error {
	return p.q.QueryRow(ctx, `
		INSERT INTO currencies (app_id, created_at) VALUES ($1,$2) RETURNING currency_id
	`, c.AppID, c.CreatedAt).Scan(&c.CurrencyID)
}

func (p pgQueries) InsertWallet(ctx context.Context, w *models.Wallet) error {
	return p.q.QueryRow(ctx, `
		INSERT INTO wallets (app_id, created_at) VALUES ($1,$2) RETURNING wallet_id
	`, w.AppID, w.CreatedAt).Scan(&w.WalletID)
}

func scanBalance(row pgx.Row) (*models.CurrencyBalance, error) {
	var b models.CurrencyBalance
	var balance, minBalance string
	var updatedAt time.Time
	if err := row.Scan(&b.WalletID, &b.CurrencyID, &balance, &minBalance, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if b.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, err
	}
	if b.MinBalance, err = decimal.NewFromString(minBalance); err != nil {
		return nil, err
	}
	b.UpdatedAt = updatedAt
	return &b, nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func duplicate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
