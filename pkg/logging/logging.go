package logging

import (
	"encoding/json"
	"log"
	"time"
)

type Fields struct {
	Service    string `json:"service"`
	OrderID    string `json:"order_id,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	Reference  string `json:"reference,omitempty"`
	EventID    string `json:"event_id,omitempty"`
	Step       string `json:"step,omitempty"`
	Status     string `json:"status,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Log writes one JSON object per line through the standard logger.
func Log(fields Fields) {
	log.Print(Format(fields, time.Now()))
}

// Err is Log with the error text filled in.
func Err(fields Fields, err error) {
	if err != nil {
		fields.Error = err.Error()
	}
	Log(fields)
}

func Format(fields Fields, now time.Time) string {
	payload := struct {
		Fields
		Timestamp string `json:"timestamp"`
	}{Fields: fields, Timestamp: now.UTC().Format(time.RFC3339Nano)}
	data, err := json.Marshal(payload)
	if err != nil {
		b, _ := json.Marshal(map[string]string{"service": fields.Service, "status": "log_error", "error": err.Error()})
		return string(b)
	}
	return string(data)
}
