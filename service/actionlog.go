package service

import (
	"database/sql"
	"encoding/json"
	"log"
	"mobilecontrol/models"
)

// ActionLog persists every facade action result to SQLite as an audit
// trail. A nil ActionLog (or nil db) records nothing, so wiring it is
// optional for library callers.
type ActionLog struct {
	db *sql.DB
}

func NewActionLog(db *sql.DB) *ActionLog {
	return &ActionLog{db: db}
}

// Record writes one action outcome. Failures are logged and swallowed:
// the audit trail never gets to break an action.
func (l *ActionLog) Record(serial, actionType string, params any, res *models.ActionResult) {
	if l == nil || l.db == nil || res == nil {
		return
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		paramsJSON = []byte("{}")
	}

	frameBytes := 0
	if res.Frame != nil {
		frameBytes = len(res.Frame.Data)
	}

	_, err = l.db.Exec(
		`INSERT INTO action_log (serial, action_type, params, success, message, frame_bytes) VALUES (?, ?, ?, ?, ?, ?)`,
		serial, actionType, string(paramsJSON), res.Success, res.Message, frameBytes,
	)
	if err != nil {
		log.Printf("⚠️ [%s] Failed to record %s action: %v", serial, actionType, err)
	}
}
