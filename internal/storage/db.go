package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"budget-tracker/internal/models"

	// Import sqlite driver
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row does not exist or is not owned by the
// requesting user. Callers cannot distinguish the two cases.
var ErrNotFound = errors.New("not found")

// DB wraps a sql.DB connection.
type DB struct {
	conn *sql.DB
}

// NewDB opens a database connection and runs migrations.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Serialize access through a single connection. SQLite allows one writer
	// anyway, and in-memory databases exist per connection.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}

	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return nil, err
	}

	if err := runMigrations(conn); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// CreateUser creates a new user with the given username, email and password hash.
func (db *DB) CreateUser(username, email, passwordHash string) (*models.User, error) {
	result, err := db.conn.Exec(
		"INSERT INTO users (username, email, password_hash) VALUES (?, ?, ?)",
		username, email, passwordHash,
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetUserByID(id)
}

// GetUserByID retrieves a user by ID.
func (db *DB) GetUserByID(id int64) (*models.User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, created_at FROM users WHERE id = ?",
		id,
	)
	return scanUser(row)
}

// GetUserByEmail retrieves a user by email.
func (db *DB) GetUserByEmail(email string) (*models.User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, created_at FROM users WHERE email = ?",
		email,
	)
	return scanUser(row)
}

// GetUserByUsername retrieves a user by username.
func (db *DB) GetUserByUsername(username string) (*models.User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, created_at FROM users WHERE username = ?",
		username,
	)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// UserCount returns the number of users in the database.
func (db *DB) UserCount() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}

// CreateSession creates a new session for a user.
func (db *DB) CreateSession(token string, userID int64, expiresAt time.Time) error {
	_, err := db.conn.Exec(
		"INSERT INTO sessions (token, user_id, expires_at, last_activity) VALUES (?, ?, ?, ?)",
		token, userID, expiresAt, time.Now(),
	)
	return err
}

// SessionInfo holds session validation data.
type SessionInfo struct {
	User         *models.User
	LastActivity time.Time
	ExpiresAt    time.Time
}

// ValidateSession checks if a session token is valid and returns the associated user.
func (db *DB) ValidateSession(token string) (*models.User, error) {
	info, err := db.ValidateSessionWithInfo(token)
	if err != nil {
		return nil, err
	}
	return info.User, nil
}

// ValidateSessionWithInfo checks if a session token is valid and returns session details.
func (db *DB) ValidateSessionWithInfo(token string) (*SessionInfo, error) {
	row := db.conn.QueryRow(`
		SELECT u.id, u.username, u.email, u.password_hash, u.created_at, s.last_activity, s.expires_at
		FROM sessions s
		JOIN users u ON s.user_id = u.id
		WHERE s.token = ? AND s.expires_at > CURRENT_TIMESTAMP
	`, token)

	var u models.User
	var lastActivity, expiresAt time.Time
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt, &lastActivity, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &SessionInfo{
		User:         &u,
		LastActivity: lastActivity,
		ExpiresAt:    expiresAt,
	}, nil
}

// RenewSession updates the last_activity and expires_at for a session.
func (db *DB) RenewSession(token string, newExpiresAt time.Time) error {
	_, err := db.conn.Exec(
		"UPDATE sessions SET last_activity = ?, expires_at = ? WHERE token = ?",
		time.Now(), newExpiresAt, token,
	)
	return err
}

// DeleteSession removes a session by token.
func (db *DB) DeleteSession(token string) error {
	_, err := db.conn.Exec("DELETE FROM sessions WHERE token = ?", token)
	return err
}

// CleanExpiredSessions removes all expired sessions.
func (db *DB) CleanExpiredSessions() error {
	_, err := db.conn.Exec("DELETE FROM sessions WHERE expires_at <= CURRENT_TIMESTAMP")
	return err
}

// CreateCategory inserts a category owned by the given user.
func (db *DB) CreateCategory(userID int64, name string) (*models.Category, error) {
	result, err := db.conn.Exec(
		"INSERT INTO categories (name, user_id) VALUES (?, ?)",
		name, userID,
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &models.Category{ID: id, Name: name, UserID: userID}, nil
}

// GetCategoryForUser retrieves a category by ID, scoped to its owner.
func (db *DB) GetCategoryForUser(id, userID int64) (*models.Category, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, user_id FROM categories WHERE id = ? AND user_id = ?",
		id, userID,
	)

	var c models.Category
	if err := row.Scan(&c.ID, &c.Name, &c.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ListCategories returns all categories owned by the given user.
func (db *DB) ListCategories(userID int64) ([]models.Category, error) {
	rows, err := db.conn.Query(
		"SELECT id, name, user_id FROM categories WHERE user_id = ? ORDER BY name",
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.UserID); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}

	return categories, rows.Err()
}

// DeleteCategory removes a category owned by the given user together with
// every transaction referencing it, in a single database transaction.
func (db *DB) DeleteCategory(id, userID int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var ownerID int64
	err = tx.QueryRow("SELECT user_id FROM categories WHERE id = ?", id).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if ownerID != userID {
		return ErrNotFound
	}

	// Children first, then the parent, so a failure leaves both in place.
	if _, err := tx.Exec("DELETE FROM transactions WHERE category_id = ?", id); err != nil {
		return fmt.Errorf("delete category transactions: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM categories WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}

	return tx.Commit()
}

// CreateTransaction inserts a new transaction. The category must exist and
// belong to the transaction's owner; a forged category id is rejected.
func (db *DB) CreateTransaction(t *models.Transaction) error {
	if _, err := db.GetCategoryForUser(t.CategoryID, t.UserID); err != nil {
		return err
	}

	result, err := db.conn.Exec(
		"INSERT INTO transactions (description, amount, date, user_id, category_id) VALUES (?, ?, ?, ?, ?)",
		t.Description, t.Amount, t.Date, t.UserID, t.CategoryID,
	)
	if err != nil {
		return err
	}

	t.ID, err = result.LastInsertId()
	return err
}

// GetTransactionForUser retrieves a transaction by ID, scoped to its owner.
func (db *DB) GetTransactionForUser(id, userID int64) (*models.Transaction, error) {
	row := db.conn.QueryRow(`
		SELECT t.id, t.description, t.amount, t.date, t.user_id, t.category_id, c.name
		FROM transactions t
		JOIN categories c ON t.category_id = c.id
		WHERE t.id = ? AND t.user_id = ?
	`, id, userID)

	var t models.Transaction
	if err := row.Scan(&t.ID, &t.Description, &t.Amount, &t.Date, &t.UserID, &t.CategoryID, &t.CategoryName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// UpdateTransaction overwrites a transaction's fields. The row must be owned
// by t.UserID and the new category must belong to the same user.
func (db *DB) UpdateTransaction(t *models.Transaction) error {
	if _, err := db.GetCategoryForUser(t.CategoryID, t.UserID); err != nil {
		return err
	}

	result, err := db.conn.Exec(
		"UPDATE transactions SET description = ?, amount = ?, date = ?, category_id = ? WHERE id = ? AND user_id = ?",
		t.Description, t.Amount, t.Date, t.CategoryID, t.ID, t.UserID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTransaction removes a transaction owned by the given user.
func (db *DB) DeleteTransaction(id, userID int64) error {
	result, err := db.conn.Exec(
		"DELETE FROM transactions WHERE id = ? AND user_id = ?",
		id, userID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRecentTransactions returns the user's transactions ordered by date
// descending, capped at limit.
func (db *DB) ListRecentTransactions(userID int64, limit int) ([]models.Transaction, error) {
	rows, err := db.conn.Query(`
		SELECT t.id, t.description, t.amount, t.date, t.user_id, t.category_id, c.name
		FROM transactions t
		JOIN categories c ON t.category_id = c.id
		WHERE t.user_id = ?
		ORDER BY t.date DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// TransactionFilter narrows ListTransactions. Nil fields are no-ops; set
// fields are AND-combined.
type TransactionFilter struct {
	StartDate  *time.Time
	EndDate    *time.Time
	CategoryID *int64
}

// ListTransactions returns the user's transactions matching the filter,
// ordered by date descending.
func (db *DB) ListTransactions(userID int64, filter TransactionFilter) ([]models.Transaction, error) {
	query := `
		SELECT t.id, t.description, t.amount, t.date, t.user_id, t.category_id, c.name
		FROM transactions t
		JOIN categories c ON t.category_id = c.id
		WHERE t.user_id = ?`
	args := []any{userID}

	if filter.StartDate != nil {
		query += " AND t.date >= ?"
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		query += " AND t.date <= ?"
		args = append(args, *filter.EndDate)
	}
	if filter.CategoryID != nil {
		query += " AND t.category_id = ?"
		args = append(args, *filter.CategoryID)
	}
	query += " ORDER BY t.date DESC"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]models.Transaction, error) {
	var transactions []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.Description, &t.Amount, &t.Date, &t.UserID, &t.CategoryID, &t.CategoryName); err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}
