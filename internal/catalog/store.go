package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"smartshop/internal/logging"
)

// Store implements Reader and PurchaseReader over SQLite. It also exposes
// the write paths (products, purchases, reviews, profiles) the service
// needs to be usable end to end.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore initializes the SQLite database at the given path.
func NewStore(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewStore")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("catalog: create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("failed to set sqlite foreign_keys=ON: %v", err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: initialize schema: %w", err)
	}
	logging.Store("catalog store ready at %s", path)
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		category TEXT NOT NULL,
		price REAL NOT NULL
	);
	CREATE TABLE IF NOT EXISTS product_profiles (
		product_id INTEGER PRIMARY KEY REFERENCES products(id) ON DELETE CASCADE,
		short_description TEXT NOT NULL DEFAULT '',
		use_cases TEXT NOT NULL DEFAULT '[]',
		features TEXT NOT NULL DEFAULT '[]',
		keywords TEXT NOT NULL DEFAULT '[]',
		audience TEXT NOT NULL DEFAULT '[]',
		review_summary TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS purchases (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		quantity INTEGER NOT NULL DEFAULT 1,
		purchased_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_purchases_user ON purchases(user_id, purchased_at DESC);
	CREATE INDEX IF NOT EXISTS idx_purchases_product ON purchases(product_id);
	CREATE TABLE IF NOT EXISTS reviews (
		product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL,
		rating INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (product_id, user_id)
	);`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// AddProduct inserts a product and returns its id.
func (s *Store) AddProduct(ctx context.Context, p Product) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO products (name, category, price) VALUES (?, ?, ?)`,
		p.Name, p.Category, p.Price)
	if err != nil {
		return 0, fmt.Errorf("catalog: add product %q: %w", p.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("catalog: add product %q: %w", p.Name, err)
	}
	if p.Profile != nil {
		if err := s.setProfileLocked(ctx, id, *p.Profile); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// SetProfile creates or replaces the generated profile for a product.
func (s *Store) SetProfile(ctx context.Context, productID int64, profile Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setProfileLocked(ctx, productID, profile)
}

func (s *Store) setProfileLocked(ctx context.Context, productID int64, profile Profile) error {
	useCases, _ := json.Marshal(emptyIfNil(profile.UseCases))
	features, _ := json.Marshal(emptyIfNil(profile.Features))
	keywords, _ := json.Marshal(emptyIfNil(profile.Keywords))
	audience, _ := json.Marshal(emptyIfNil(profile.Audience))

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_profiles
			(product_id, short_description, use_cases, features, keywords, audience, review_summary)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(product_id) DO UPDATE SET
			short_description = excluded.short_description,
			use_cases = excluded.use_cases,
			features = excluded.features,
			keywords = excluded.keywords,
			audience = excluded.audience,
			review_summary = excluded.review_summary`,
		productID, profile.ShortDescription, useCases, features, keywords, audience, profile.ReviewSummary)
	if err != nil {
		return fmt.Errorf("catalog: set profile for %d: %w", productID, err)
	}
	return nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// ListAll returns every product, newest first, with profiles attached.
func (s *Store) ListAll(ctx context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, selectProducts+` ORDER BY p.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list products: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

// ByIDs returns the products with the given ids. Unknown ids are skipped;
// order of the result is unspecified (callers re-order by their own id list).
func (s *Store) ByIDs(ctx context.Context, ids []int64) ([]Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := selectProducts + ` WHERE p.id IN (` + placeholders(len(ids)) + `)`
	rows, err := s.db.QueryContext(ctx, query, int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("catalog: products by ids: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

// Categories returns the distinct categories present in the catalog, sorted.
func (s *Store) Categories(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT category FROM products`)
	if err != nil {
		return nil, fmt.Errorf("catalog: categories: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// RecordPurchase appends a purchase to the ledger and returns its id.
func (s *Store) RecordPurchase(ctx context.Context, userID, productID int64, quantity int) (int64, error) {
	if quantity < 1 {
		quantity = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM products WHERE id = ?`, productID).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("catalog: record purchase: %w", err)
	}
	if exists == 0 {
		return 0, fmt.Errorf("catalog: record purchase: product %d not found", productID)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO purchases (user_id, product_id, quantity, purchased_at) VALUES (?, ?, ?, ?)`,
		userID, productID, quantity, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("catalog: record purchase: %w", err)
	}
	return res.LastInsertId()
}

// ForUser returns the user's purchases, most recent first. limit <= 0 means
// no limit.
func (s *Store) ForUser(ctx context.Context, userID int64, limit int) ([]Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, user_id, product_id, quantity, purchased_at
		FROM purchases WHERE user_id = ? ORDER BY purchased_at DESC, id DESC`
	args := []interface{}{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: purchases for user %d: %w", userID, err)
	}
	defer rows.Close()
	return scanPurchases(rows)
}

// UsersWhoAlsoBought returns the distinct users (excluding excludeUser) who
// purchased any of the given products.
func (s *Store) UsersWhoAlsoBought(ctx context.Context, productIDs []int64, excludeUser int64) ([]int64, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT DISTINCT user_id FROM purchases
		WHERE product_id IN (` + placeholders(len(productIDs)) + `) AND user_id != ?
		ORDER BY user_id`
	args := append(int64Args(productIDs), excludeUser)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: users who also bought: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ByUsers returns all purchases made by the given users.
func (s *Store) ByUsers(ctx context.Context, userIDs []int64) ([]Purchase, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, user_id, product_id, quantity, purchased_at
		FROM purchases WHERE user_id IN (` + placeholders(len(userIDs)) + `)`
	rows, err := s.db.QueryContext(ctx, query, int64Args(userIDs)...)
	if err != nil {
		return nil, fmt.Errorf("catalog: purchases by users: %w", err)
	}
	defer rows.Close()
	return scanPurchases(rows)
}

// HasPurchased reports whether the user has ever bought the product.
func (s *Store) HasPurchased(ctx context.Context, userID, productID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM purchases WHERE user_id = ? AND product_id = ?`,
		userID, productID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("catalog: has purchased: %w", err)
	}
	return n > 0, nil
}

// UpsertReview creates or replaces a user's review of a product.
func (s *Store) UpsertReview(ctx context.Context, r Review) error {
	if r.Rating < 1 {
		r.Rating = 1
	}
	if r.Rating > 5 {
		r.Rating = 5
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reviews (product_id, user_id, rating, title, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(product_id, user_id) DO UPDATE SET
			rating = excluded.rating,
			title = excluded.title,
			body = excluded.body,
			updated_at = excluded.updated_at`,
		r.ProductID, r.UserID, r.Rating, r.Title, r.Body, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("catalog: upsert review: %w", err)
	}
	return nil
}

// ReviewsForProduct returns reviews newest first. limit <= 0 means no limit.
func (s *Store) ReviewsForProduct(ctx context.Context, productID int64, limit int) ([]Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT product_id, user_id, rating, title, body, updated_at
		FROM reviews WHERE product_id = ? ORDER BY updated_at DESC`
	args := []interface{}{productID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: reviews for product %d: %w", productID, err)
	}
	defer rows.Close()

	var out []Review
	for rows.Next() {
		var r Review
		if err := rows.Scan(&r.ProductID, &r.UserID, &r.Rating, &r.Title, &r.Body, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const selectProducts = `
	SELECT p.id, p.name, p.category, p.price,
		pr.short_description, pr.use_cases, pr.features, pr.keywords, pr.audience, pr.review_summary
	FROM products p
	LEFT JOIN product_profiles pr ON pr.product_id = p.id`

func scanProducts(rows *sql.Rows) ([]Product, error) {
	var out []Product
	for rows.Next() {
		var p Product
		var shortDesc, useCases, features, keywords, audience, reviewSummary sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Price,
			&shortDesc, &useCases, &features, &keywords, &audience, &reviewSummary); err != nil {
			return nil, err
		}
		if shortDesc.Valid {
			prof := &Profile{
				ShortDescription: shortDesc.String,
				ReviewSummary:    reviewSummary.String,
			}
			prof.UseCases = decodeList(useCases.String)
			prof.Features = decodeList(features.String)
			prof.Keywords = decodeList(keywords.String)
			prof.Audience = decodeList(audience.String)
			p.Profile = prof
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPurchases(rows *sql.Rows) ([]Purchase, error) {
	var out []Purchase
	for rows.Next() {
		var p Purchase
		if err := rows.Scan(&p.ID, &p.UserID, &p.ProductID, &p.Quantity, &p.PurchasedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func decodeList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
