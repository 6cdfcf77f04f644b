package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	d "github.com/fjod/food-commerce/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Foreign-key violation, see https://www.postgresql.org/docs/current/errcodes-appendix.html
const pqForeignKeyViolation = pq.ErrorCode("23503")

//go:embed migrations/*.sql
var migrationFiles embed.FS

type Repository struct {
	db *sql.DB
}

func NewRepository(ctx context.Context, cred *Credentials) (*Repository, error) {
	return Open(ctx, cred.DSN())
}

// Open connects with a ready lib/pq connection string.
func Open(ctx context.Context, dsn string) (*Repository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Repository{db: db}, nil
}

// RunMigrations applies the migrations compiled into the binary.
func (r *Repository) RunMigrations() error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("could not open embedded migrations: %w", err)
	}

	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "checkout_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (r *Repository) FindCatalogItemsByIDs(ctx context.Context, ids []int64) ([]d.CatalogItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT id, name, description, price, image_url
	          FROM catalog_items WHERE id = ANY($1) ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query catalog items by ids: %w", err)
	}
	defer rows.Close()

	return scanCatalogItems(rows)
}

func (r *Repository) ListCatalogItems(ctx context.Context) ([]d.CatalogItem, error) {
	query := `SELECT id, name, description, price, image_url
	          FROM catalog_items ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query catalog items: %w", err)
	}
	defer rows.Close()

	return scanCatalogItems(rows)
}

func scanCatalogItems(rows *sql.Rows) ([]d.CatalogItem, error) {
	var items []d.CatalogItem
	for rows.Next() {
		var item d.CatalogItem
		if err := rows.Scan(
			&item.ID,
			&item.Name,
			&item.Description,
			&item.UnitPrice,
			&item.ImageURL,
		); err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}

// UpsertCustomerByEmail inserts the profile or overwrites every field of the
// existing row with the same email. The returned profile carries the stored id.
func (r *Repository) UpsertCustomerByEmail(ctx context.Context, c d.CustomerProfile) (*d.CustomerProfile, error) {
	query := `INSERT INTO customers (id, email, full_name, document, mobile, zip_code, street, number,
	                                 complement, neighborhood, city, state, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
	          ON CONFLICT (email) DO UPDATE SET
	              full_name = EXCLUDED.full_name,
	              document = EXCLUDED.document,
	              mobile = EXCLUDED.mobile,
	              zip_code = EXCLUDED.zip_code,
	              street = EXCLUDED.street,
	              number = EXCLUDED.number,
	              complement = EXCLUDED.complement,
	              neighborhood = EXCLUDED.neighborhood,
	              city = EXCLUDED.city,
	              state = EXCLUDED.state,
	              updated_at = NOW()
	          RETURNING id, created_at, updated_at`

	stored := c
	err := r.db.QueryRowContext(ctx, query,
		uuid.New(),
		c.Email,
		c.FullName,
		c.Document,
		c.Mobile,
		c.ZipCode,
		c.Street,
		c.Number,
		c.Complement,
		c.Neighborhood,
		c.City,
		c.State,
	).Scan(&stored.ID, &stored.CreatedAt, &stored.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert customer: %w", err)
	}
	return &stored, nil
}

// CreateOrderWithLines writes a PENDING order and all of its lines in one transaction.
func (r *Repository) CreateOrderWithLines(ctx context.Context, customerID uuid.UUID, lines []d.PricedLine) (*d.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	order := &d.Order{
		ID:         uuid.New(),
		Total:      d.SumLines(lines),
		CustomerID: customerID,
		Status:     d.OrderStatusPending,
		Lines:      make([]d.OrderLine, 0, len(lines)),
	}

	orderQuery := `INSERT INTO orders (id, total, customer_id, status, created_at, updated_at)
	               VALUES ($1, $2, $3, $4, NOW(), NOW())
	               RETURNING created_at, updated_at`
	if err := tx.QueryRowContext(ctx, orderQuery,
		order.ID,
		order.Total,
		order.CustomerID,
		order.Status,
	).Scan(&order.CreatedAt, &order.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	lineQuery := `INSERT INTO order_lines (order_id, catalog_item_id, quantity, unit_price, line_total)
	              VALUES ($1, $2, $3, $4, $5)
	              RETURNING id`
	for _, l := range lines {
		line := d.OrderLine{
			CatalogItemID: l.CatalogItemID,
			Name:          l.Name,
			Quantity:      l.Quantity,
			UnitPrice:     l.UnitPrice,
			LineTotal:     l.LineTotal,
		}
		if err := tx.QueryRowContext(ctx, lineQuery,
			order.ID,
			line.CatalogItemID,
			line.Quantity,
			line.UnitPrice,
			line.LineTotal,
		).Scan(&line.ID); err != nil {
			if isForeignKeyViolation(err) {
				return nil, fmt.Errorf("%w: %d", ErrUnknownCatalogItem, line.CatalogItemID)
			}
			return nil, fmt.Errorf("insert order line: %w", err)
		}
		order.Lines = append(order.Lines, line)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit order: %w", err)
	}
	return order, nil
}

// SetOrderPayment moves a PENDING order to its final status and queues an outbox
// event in the same transaction. Orders that already left PENDING are rejected
// with ErrIllegalTransition.
func (r *Repository) SetOrderPayment(ctx context.Context, orderID uuid.UUID, status d.OrderStatus, transactionID string) error {
	if !d.OrderStatusPending.CanTransitionTo(status) {
		return ErrIllegalTransition
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	updateQuery := `UPDATE orders SET status = $2, transaction_id = $3, updated_at = NOW()
	                WHERE id = $1 AND status = $4
	                RETURNING total, updated_at`
	var total decimal.Decimal
	var updatedAt time.Time
	err = tx.QueryRowContext(ctx, updateQuery,
		orderID,
		status,
		sql.NullString{String: transactionID, Valid: transactionID != ""},
		d.OrderStatusPending,
	).Scan(&total, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return r.missingOrPaid(ctx, tx, orderID)
	}
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	payload, err := json.Marshal(map[string]interface{}{
		"order_id":       orderID,
		"status":         status,
		"transaction_id": transactionID,
		"total":          total.StringFixed(2),
		"updated_at":     updatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	eventType := EventOrderCanceled
	if status == d.OrderStatusPaid {
		eventType = EventOrderPaid
	}
	outboxQuery := `INSERT INTO outbox_events (aggregate_id, event_type, payload, created_at)
	                VALUES ($1, $2, $3, NOW())`
	if _, err := tx.ExecContext(ctx, outboxQuery, orderID.String(), eventType, payload); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order payment: %w", err)
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation
}

// FindStalePendingOrders lists orders still PENDING longer than olderThan after
// creation, oldest first.
func (r *Repository) FindStalePendingOrders(ctx context.Context, olderThan time.Duration, limit int) ([]uuid.UUID, error) {
	query := `SELECT id FROM orders
	          WHERE status = $1 AND created_at < NOW() - make_interval(secs => $2)
	          ORDER BY created_at LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, d.OrderStatusPending, olderThan.Seconds(), limit)
	if err != nil {
		return nil, fmt.Errorf("query stale pending orders: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale order id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return ids, nil
}

func (r *Repository) missingOrPaid(ctx context.Context, tx *sql.Tx, orderID uuid.UUID) error {
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return fmt.Errorf("check order exists: %w", err)
	}
	if !exists {
		return ErrOrderNotFound
	}
	return ErrIllegalTransition
}

func (r *Repository) GetOrderByID(ctx context.Context, id uuid.UUID) (*d.Order, error) {
	query := `SELECT o.id, o.total, o.status, COALESCE(o.transaction_id, ''), o.created_at, o.updated_at,
	                 c.id, c.email, c.full_name, c.document, c.mobile, c.zip_code, c.street, c.number,
	                 c.complement, c.neighborhood, c.city, c.state, c.created_at, c.updated_at
	          FROM orders o JOIN customers c ON c.id = o.customer_id
	          WHERE o.id = $1`

	var order d.Order
	var c d.CustomerProfile
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&order.ID,
		&order.Total,
		&order.Status,
		&order.TransactionID,
		&order.CreatedAt,
		&order.UpdatedAt,
		&c.ID,
		&c.Email,
		&c.FullName,
		&c.Document,
		&c.Mobile,
		&c.ZipCode,
		&c.Street,
		&c.Number,
		&c.Complement,
		&c.Neighborhood,
		&c.City,
		&c.State,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}
	order.CustomerID = c.ID
	order.Customer = &c

	linesQuery := `SELECT l.id, l.catalog_item_id, ci.name, l.quantity, l.unit_price, l.line_total
	               FROM order_lines l JOIN catalog_items ci ON ci.id = l.catalog_item_id
	               WHERE l.order_id = $1 ORDER BY l.id`
	rows, err := r.db.QueryContext(ctx, linesQuery, id)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l d.OrderLine
		if err := rows.Scan(&l.ID, &l.CatalogItemID, &l.Name, &l.Quantity, &l.UnitPrice, &l.LineTotal); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		order.Lines = append(order.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return &order, nil
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at
	          FROM outbox_events WHERE processed_at IS NULL
	          ORDER BY id LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		if err := rows.Scan(&e.ID, &e.AggregateId, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox_events SET processed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark outbox event processed: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
