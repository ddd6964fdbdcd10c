package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/entrega-local/api/internal/enum"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Postgres is the durable Store used when DATABASE_URL is configured.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store over an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

var _ Store = (*Postgres)(nil)

// Migrate creates the schema if it does not exist yet. Order volume is low
// enough that plain DDL at startup beats a migration tool here.
func (s *Postgres) Migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS orders (
	id              TEXT PRIMARY KEY,
	customer_name   TEXT NOT NULL,
	address         TEXT NOT NULL,
	address_number  TEXT NOT NULL DEFAULT '',
	cep             TEXT NOT NULL DEFAULT '',
	reference_point TEXT NOT NULL DEFAULT '',
	payment_method  TEXT NOT NULL,
	change_for      NUMERIC(10,2),
	total           NUMERIC(10,2) NOT NULL,
	status          TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS order_items (
	order_id     TEXT NOT NULL REFERENCES orders(id),
	position     INT NOT NULL,
	menu_item_id TEXT NOT NULL,
	name         TEXT NOT NULL,
	quantity     INT NOT NULL,
	unit_price   NUMERIC(10,2) NOT NULL,
	PRIMARY KEY (order_id, position)
);
CREATE TABLE IF NOT EXISTS menu_items (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	image_url   TEXT NOT NULL DEFAULT '',
	price       NUMERIC(10,2) NOT NULL
);
CREATE TABLE IF NOT EXISTS drivers (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	hashed_password TEXT NOT NULL,
	active          BOOLEAN NOT NULL DEFAULT TRUE
);`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

// ── Orders ──

func (s *Postgres) CreateOrder(ctx context.Context, o Order) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, customer_name, address, address_number, cep,
			reference_point, payment_method, change_for, total, status,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		o.ID, o.CustomerName, o.Address, o.AddressNumber, o.CEP,
		o.ReferencePoint, string(o.PaymentMethod), nullDecimalToNumeric(o.ChangeFor),
		decimalToNumeric(o.Total), string(o.Status), o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for i, item := range o.Items {
		_, err := tx.Exec(ctx, `
			INSERT INTO order_items (order_id, position, menu_item_id, name, quantity, unit_price)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			o.ID, i, item.MenuItemID, item.Name, item.Quantity, decimalToNumeric(item.UnitPrice),
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const orderColumns = `id, customer_name, address, address_number, cep,
	reference_point, payment_method, change_for, total, status, created_at, updated_at`

func (s *Postgres) GetOrder(ctx context.Context, id string) (Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	o.Items, err = s.orderItems(ctx, id)
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

func (s *Postgres) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	var args []any
	if len(arg.Statuses) > 0 {
		statuses := make([]string, len(arg.Statuses))
		for i, st := range arg.Statuses {
			statuses[i] = string(st)
		}
		query += ` WHERE status = ANY($1)`
		args = append(args, statuses)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		items, err := s.orderItems(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Items = items
	}
	return out, nil
}

func (s *Postgres) UpdateOrderStatus(ctx context.Context, id string, expect, next enum.OrderStatus) (Order, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+orderColumns, id, string(expect), string(next))
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the id is unknown or the status moved under us.
			if _, getErr := s.GetOrder(ctx, id); errors.Is(getErr, ErrNotFound) {
				return Order{}, ErrNotFound
			}
			return Order{}, ErrStatusConflict
		}
		return Order{}, fmt.Errorf("update order status: %w", err)
	}
	o.Items, err = s.orderItems(ctx, id)
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

func (s *Postgres) orderItems(ctx context.Context, orderID string) ([]OrderItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT menu_item_id, name, quantity, unit_price
		FROM order_items WHERE order_id = $1 ORDER BY position`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		var price pgtype.Numeric
		if err := rows.Scan(&it.MenuItemID, &it.Name, &it.Quantity, &price); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		it.UnitPrice = numericToDecimal(price)
		items = append(items, it)
	}
	return items, rows.Err()
}

// ── Menu ──

func (s *Postgres) ListMenu(ctx context.Context) ([]MenuItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, category, image_url, price
		FROM menu_items ORDER BY category, name`)
	if err != nil {
		return nil, fmt.Errorf("list menu: %w", err)
	}
	defer rows.Close()

	var out []MenuItem
	for rows.Next() {
		m, err := scanMenuItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Postgres) GetMenuItem(ctx context.Context, id string) (MenuItem, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, description, category, image_url, price
		FROM menu_items WHERE id = $1`, id)
	m, err := scanMenuItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MenuItem{}, ErrNotFound
		}
		return MenuItem{}, fmt.Errorf("get menu item: %w", err)
	}
	return m, nil
}

func (s *Postgres) CreateMenuItem(ctx context.Context, m MenuItem) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO menu_items (id, name, description, category, image_url, price)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		m.ID, m.Name, m.Description, m.Category, m.ImageURL, decimalToNumeric(m.Price))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("insert menu item: %w", err)
	}
	return nil
}

func (s *Postgres) UpdateMenuItem(ctx context.Context, m MenuItem) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE menu_items SET name=$2, description=$3, category=$4, image_url=$5, price=$6
		WHERE id = $1`,
		m.ID, m.Name, m.Description, m.Category, m.ImageURL, decimalToNumeric(m.Price))
	if err != nil {
		return fmt.Errorf("update menu item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) DeleteMenuItem(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM menu_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete menu item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ── Drivers ──

func (s *Postgres) GetDriver(ctx context.Context, id string) (Driver, error) {
	var d Driver
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, hashed_password, active FROM drivers WHERE id = $1`, id).
		Scan(&d.ID, &d.Name, &d.HashedPassword, &d.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Driver{}, ErrNotFound
		}
		return Driver{}, fmt.Errorf("get driver: %w", err)
	}
	return d, nil
}

func (s *Postgres) ListDrivers(ctx context.Context) ([]Driver, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, hashed_password, active FROM drivers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}
	defer rows.Close()

	var out []Driver
	for rows.Next() {
		var d Driver
		if err := rows.Scan(&d.ID, &d.Name, &d.HashedPassword, &d.Active); err != nil {
			return nil, fmt.Errorf("scan driver: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Postgres) CreateDriver(ctx context.Context, d Driver) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO drivers (id, name, hashed_password, active) VALUES ($1,$2,$3,$4)`,
		d.ID, d.Name, d.HashedPassword, d.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("insert driver: %w", err)
	}
	return nil
}

func (s *Postgres) UpdateDriver(ctx context.Context, d Driver) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE drivers SET name=$2, hashed_password=$3, active=$4 WHERE id = $1`,
		d.ID, d.Name, d.HashedPassword, d.Active)
	if err != nil {
		return fmt.Errorf("update driver: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ── Helpers ──

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var method, status string
	var changeFor, total pgtype.Numeric
	err := row.Scan(&o.ID, &o.CustomerName, &o.Address, &o.AddressNumber, &o.CEP,
		&o.ReferencePoint, &method, &changeFor, &total, &status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	o.PaymentMethod = enum.PaymentMethod(method)
	o.Status = enum.OrderStatus(status)
	o.Total = numericToDecimal(total)
	if changeFor.Valid {
		o.ChangeFor = decimal.NewNullDecimal(numericToDecimal(changeFor))
	}
	return o, nil
}

func scanMenuItem(row pgx.Row) (MenuItem, error) {
	var m MenuItem
	var price pgtype.Numeric
	err := row.Scan(&m.ID, &m.Name, &m.Description, &m.Category, &m.ImageURL, &price)
	if err != nil {
		return MenuItem{}, err
	}
	m.Price = numericToDecimal(price)
	return m, nil
}

// isUniqueViolation checks for pgconn error code 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}

func nullDecimalToNumeric(d decimal.NullDecimal) pgtype.Numeric {
	if !d.Valid {
		return pgtype.Numeric{}
	}
	return decimalToNumeric(d.Decimal)
}
