package config

import (
	"database/sql"
	"log"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

const DatabasePath = "./data/mobilecontrol.db"

const schema = `
CREATE TABLE IF NOT EXISTS action_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	serial      TEXT NOT NULL,
	action_type TEXT NOT NULL,
	params      TEXT,
	success     INTEGER NOT NULL,
	message     TEXT,
	frame_bytes INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_action_log_serial ON action_log(serial, created_at);
`

// InitDatabase opens the SQLite database backing the action log and
// applies the schema.
func InitDatabase() (*sql.DB, error) {
	if err := os.MkdirAll("./data", 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", DatabasePath)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Println("Database initialized successfully")
	return db, nil
}
