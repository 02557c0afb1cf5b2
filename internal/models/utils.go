package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// JSONMap represents a JSON object that can be stored in PostgreSQL
type JSONMap map[string]interface{}

// Value implements the driver.Valuer interface for JSONMap
func (j JSONMap) Value() (driver.Value, error) {
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for JSONMap
func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSONMap)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// ActionEntry is one audit record in an email's action history.
type ActionEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	Details   string    `json:"details,omitempty"`
}

// ActionHistory is the append-only audit trail stored as jsonb.
type ActionHistory []ActionEntry

func (h ActionHistory) Value() (driver.Value, error) {
	if h == nil {
		h = ActionHistory{}
	}
	return json.Marshal(h)
}

func (h *ActionHistory) Scan(value interface{}) error {
	if value == nil {
		*h = ActionHistory{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, h)
}
