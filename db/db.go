package db

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when no submission exists for an id.
	ErrNotFound = errors.New("submission not found")
	// ErrNotPending is returned when a decision targets a submission
	// that has already been moderated.
	ErrNotPending = errors.New("submission already processed")
)

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Submission is one user's track request plus its moderation outcome.
// FileID is the Telegram file id minted by the first upload; it is set
// once and reused for every subsequent send.
type Submission struct {
	ID       int64
	UserID   int
	Username string
	Query    string
	FileID   string
	Title    string
	Artist   string
	Status   string
}

// Counts aggregates submissions per status.
type Counts struct {
	Pending  int
	Approved int
	Rejected int
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS submissions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	username TEXT,
	query TEXT NOT NULL,
	file_id TEXT NOT NULL,
	title TEXT,
	artist TEXT,
	status TEXT NOT NULL DEFAULT 'pending'
)`

const mysqlSchema = `
CREATE TABLE IF NOT EXISTS submissions (
	id BIGINT PRIMARY KEY AUTO_INCREMENT,
	user_id BIGINT NOT NULL,
	username VARCHAR(255),
	query TEXT NOT NULL,
	file_id VARCHAR(255) NOT NULL,
	title TEXT,
	artist TEXT,
	status VARCHAR(16) NOT NULL DEFAULT 'pending'
)`

// Store persists submissions in a single relational table.
type Store struct {
	db *sql.DB
}

// Open connects to the database and creates the submissions table if it
// does not exist yet. Supported drivers: sqlite3, mysql.
func Open(driver, dsn string) (*Store, error) {
	schema := sqliteSchema
	switch driver {
	case "sqlite3":
	case "mysql":
		schema = mysqlSchema
	default:
		return nil, fmt.Errorf("unsupported db driver: %q", driver)
	}
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create submissions table: %w", err)
	}
	return &Store{db: conn}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a new pending submission and returns its id.
func (s *Store) Create(sub *Submission) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO submissions (user_id, username, query, file_id, title, artist, status) VALUES (?, ?, ?, ?, ?, ?, ?)",
		sub.UserID, sub.Username, sub.Query, sub.FileID, sub.Title, sub.Artist, StatusPending,
	)
	if err != nil {
		return 0, fmt.Errorf("insert submission: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	sub.ID = id
	sub.Status = StatusPending
	return id, nil
}

// Get fetches a submission by id.
func (s *Store) Get(id int64) (*Submission, error) {
	var sub Submission
	err := s.db.QueryRow(
		"SELECT id, user_id, username, query, file_id, title, artist, status FROM submissions WHERE id = ?",
		id,
	).Scan(&sub.ID, &sub.UserID, &sub.Username, &sub.Query, &sub.FileID, &sub.Title, &sub.Artist, &sub.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select submission %d: %w", id, err)
	}
	return &sub, nil
}

// SetStatus moves a pending submission to its terminal status. The update
// is conditional on the current status so a second decision on the same
// id never wins the race: the branch is taken solely on the affected-row
// count.
func (s *Store) SetStatus(id int64, status string) error {
	if status != StatusApproved && status != StatusRejected {
		return fmt.Errorf("invalid target status: %q", status)
	}
	res, err := s.db.Exec(
		"UPDATE submissions SET status = ? WHERE id = ? AND status = ?",
		status, id, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("update submission %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.Get(id); err != nil {
			return err
		}
		return ErrNotPending
	}
	return nil
}

// GetCounts returns submission totals per status.
func (s *Store) GetCounts() (*Counts, error) {
	rows, err := s.db.Query("SELECT status, COUNT(*) FROM submissions GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var counts Counts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		switch status {
		case StatusPending:
			counts.Pending = n
		case StatusApproved:
			counts.Approved = n
		case StatusRejected:
			counts.Rejected = n
		}
	}
	return &counts, rows.Err()
}
