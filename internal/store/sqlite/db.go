package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open opens a SQLite database with the given DSN.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL for the directory chat schema. The layout
// mirrors the hosted document store: a rooms collection with denormalized
// preview fields, a participants set per room, and per-room messages.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(64) PRIMARY KEY,
			username VARCHAR(50) UNIQUE NOT NULL COLLATE NOCASE,
			display_name VARCHAR(100) DEFAULT '',
			profile_img TEXT DEFAULT '',
			email VARCHAR(100),
			role VARCHAR(20) NOT NULL DEFAULT 'business',
			hashed_password VARCHAR(255) NOT NULL,
			is_active BOOLEAN DEFAULT TRUE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS chat_rooms (
			id VARCHAR(128) PRIMARY KEY,
			kind VARCHAR(10) NOT NULL,
			last_message TEXT NOT NULL DEFAULT '',
			last_activity_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS room_participants (
			room_id VARCHAR(128) NOT NULL,
			username VARCHAR(50) NOT NULL,
			PRIMARY KEY (room_id, username),
			FOREIGN KEY (room_id) REFERENCES chat_rooms(id)
		);`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id VARCHAR(64) PRIMARY KEY,
			room_id VARCHAR(128) NOT NULL,
			sender_id VARCHAR(50) NOT NULL,
			sender_name VARCHAR(100) NOT NULL DEFAULT '',
			sender_img TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			FOREIGN KEY (room_id) REFERENCES chat_rooms(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);`,
		`CREATE INDEX IF NOT EXISTS idx_rooms_last_activity ON chat_rooms(last_activity_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_participants_username ON room_participants(username);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_room_ts ON chat_messages(room_id, timestamp);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}
