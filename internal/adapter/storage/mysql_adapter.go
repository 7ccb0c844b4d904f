package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/core/domain"
)

const mysqlErrDuplicateEntry = 1062

//go:embed schema.sql
var schemaSQL string

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// Migrate creates the tables if they do not exist and seeds the catalog.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO users (username, password) VALUES (?, ?)`,
		user.Username, user.PasswordHash,
	)
	if err != nil {
		if isDuplicateEntry(err) {
			return domain.User{}, domain.ErrDuplicateUsername
		}
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	if user.ID, err = result.LastInsertId(); err != nil {
		return domain.User{}, fmt.Errorf("user id: %w", err)
	}

	result, err = tx.ExecContext(ctx, `INSERT INTO cart (user_id, total, version) VALUES (?, 0, 0)`, user.ID)
	if err != nil {
		return domain.User{}, fmt.Errorf("insert cart: %w", err)
	}
	if user.CartID, err = result.LastInsertId(); err != nil {
		return domain.User{}, fmt.Errorf("cart id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.User{}, fmt.Errorf("commit: %w", err)
	}
	return user, nil
}

func (m *MySQLAdapter) GetUserByID(ctx context.Context, id int64) (domain.User, error) {
	return m.getUser(ctx, `WHERE u.id = ?`, id)
}

func (m *MySQLAdapter) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return m.getUser(ctx, `WHERE u.username = ?`, username)
}

func (m *MySQLAdapter) getUser(ctx context.Context, where string, arg any) (domain.User, error) {
	var user domain.User
	err := m.db.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.password, c.id
		FROM users u JOIN cart c ON c.user_id = u.id `+where, arg,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CartID)

	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

func (m *MySQLAdapter) ListItems(ctx context.Context) ([]domain.Item, error) {
	return m.queryItems(ctx, `SELECT id, name, price, description FROM item ORDER BY id`)
}

func (m *MySQLAdapter) GetItem(ctx context.Context, id int64) (domain.Item, error) {
	var it domain.Item
	err := m.db.QueryRowContext(ctx,
		`SELECT id, name, price, description FROM item WHERE id = ?`, id,
	).Scan(&it.ID, &it.Name, &it.Price, &it.Description)

	if errors.Is(err, sql.ErrNoRows) {
		return domain.Item{}, domain.ErrItemNotFound
	}
	if err != nil {
		return domain.Item{}, fmt.Errorf("query item: %w", err)
	}
	return it, nil
}

func (m *MySQLAdapter) FindItemsByName(ctx context.Context, name string) ([]domain.Item, error) {
	return m.queryItems(ctx, `SELECT id, name, price, description FROM item WHERE name = ? ORDER BY id`, name)
}

func (m *MySQLAdapter) queryItems(ctx context.Context, query string, args ...any) ([]domain.Item, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		var it domain.Item
		if err := rows.Scan(&it.ID, &it.Name, &it.Price, &it.Description); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (m *MySQLAdapter) GetCartByUserID(ctx context.Context, userID int64) (domain.Cart, error) {
	var cart domain.Cart
	err := m.db.QueryRowContext(ctx,
		`SELECT id, user_id, total, version FROM cart WHERE user_id = ?`, userID,
	).Scan(&cart.ID, &cart.UserID, &cart.Total, &cart.Version)

	if errors.Is(err, sql.ErrNoRows) {
		return domain.Cart{}, fmt.Errorf("cart %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("query cart: %w", err)
	}

	cart.Items, err = m.queryItems(ctx, `
		SELECT i.id, i.name, i.price, i.description
		FROM cart_item ci JOIN item i ON i.id = ci.item_id
		WHERE ci.cart_id = ?
		ORDER BY ci.position`, cart.ID)
	if err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

func (m *MySQLAdapter) SaveCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE cart
		SET total = ?, version = version + 1, updated_at = NOW()
		WHERE id = ? AND version = ?`,
		cart.Total, cart.ID, cart.Version,
	)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("update cart: %w", err)
	}

	if err := checkVersionUpdate(result); err != nil {
		return domain.Cart{}, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_item WHERE cart_id = ?`, cart.ID); err != nil {
		return domain.Cart{}, fmt.Errorf("clear cart items: %w", err)
	}

	err = insertRows(ctx, tx, `INSERT INTO cart_item (cart_id, position, item_id) VALUES `, 3, len(cart.Items), func(i int) []any {
		return []any{cart.ID, i, cart.Items[i].ID}
	})
	if err != nil {
		return domain.Cart{}, fmt.Errorf("insert cart items: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Cart{}, fmt.Errorf("commit: %w", err)
	}

	cart.Version++
	return cart, nil
}

func (m *MySQLAdapter) CreateOrder(ctx context.Context, order domain.UserOrder) (domain.UserOrder, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.UserOrder{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO user_order (user_id, total, created_at) VALUES (?, ?, ?)`,
		order.User.ID, order.Total, order.CreatedAt,
	)
	if err != nil {
		return domain.UserOrder{}, fmt.Errorf("insert order: %w", err)
	}
	if order.ID, err = result.LastInsertId(); err != nil {
		return domain.UserOrder{}, fmt.Errorf("order id: %w", err)
	}

	err = insertRows(ctx, tx, `INSERT INTO order_item (order_id, position, item_id, name, price, description) VALUES `, 6, len(order.Items), func(i int) []any {
		it := order.Items[i]
		return []any{order.ID, i, it.ID, it.Name, it.Price, it.Description}
	})
	if err != nil {
		return domain.UserOrder{}, fmt.Errorf("insert order items: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.UserOrder{}, fmt.Errorf("commit: %w", err)
	}
	return order, nil
}

func (m *MySQLAdapter) ListOrdersByUserID(ctx context.Context, userID int64) ([]domain.UserOrder, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT o.id, o.total, o.created_at, u.id, u.username
		FROM user_order o JOIN users u ON u.id = o.user_id
		WHERE o.user_id = ?
		ORDER BY o.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.UserOrder
	index := make(map[int64]int)
	for rows.Next() {
		var o domain.UserOrder
		if err := rows.Scan(&o.ID, &o.Total, &o.CreatedAt, &o.User.ID, &o.User.Username); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Items = []domain.Item{}
		index[o.ID] = len(orders)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}

	itemRows, err := m.db.QueryContext(ctx, `
		SELECT oi.order_id, oi.item_id, oi.name, oi.price, oi.description
		FROM order_item oi JOIN user_order o ON o.id = oi.order_id
		WHERE o.user_id = ?
		ORDER BY oi.order_id, oi.position`, userID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var (
			orderID int64
			it      domain.Item
			price   decimal.Decimal
		)
		if err := itemRows.Scan(&orderID, &it.ID, &it.Name, &price, &it.Description); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		it.Price = price
		if i, ok := index[orderID]; ok {
			orders[i].Items = append(orders[i].Items, it)
		}
	}
	return orders, itemRows.Err()
}

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry
}

// placeholders returns "(?, ?), (?, ?)" style groups for multi-row inserts.
// checkVersionUpdate maps a version-guarded UPDATE that matched no row to
// ErrOptimisticLock.
func checkVersionUpdate(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrOptimisticLock
	}
	return nil
}

// insertBatchRows keeps every multi-row INSERT well under MySQL's 65,535
// placeholder limit.
const insertBatchRows = 500

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertRows writes n rows of cols columns through prefix, batching the
// VALUES list. rowArgs returns the column values of row i.
func insertRows(ctx context.Context, db execer, prefix string, cols, n int, rowArgs func(i int) []any) error {
	for start := 0; start < n; start += insertBatchRows {
		end := min(start+insertBatchRows, n)
		args := make([]any, 0, (end-start)*cols)
		for i := start; i < end; i++ {
			args = append(args, rowArgs(i)...)
		}
		if _, err := db.ExecContext(ctx, prefix+placeholders(end-start, cols), args...); err != nil {
			return err
		}
	}
	return nil
}

func placeholders(rows, cols int) string {
	group := "(" + strings.TrimSuffix(strings.Repeat("?, ", cols), ", ") + ")"
	return strings.TrimSuffix(strings.Repeat(group+", ", rows), ", ")
}
