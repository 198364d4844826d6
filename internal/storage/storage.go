package storage

import (
	"context"

	"tunlink/internal/storage/models"
)

// Well-known setting keys.
const (
	SettingSelectedServer = "selected_server"
	SettingProtocol       = "protocol"
	SettingEncryption     = "encryption"
	SettingAPIBaseURL     = "api_base_url"
)

// Storage defines the interface for client-side persistence: connection
// defaults and the local connection history. The session coordinator core
// keeps no disk state; only the surrounding CLI reads and writes here.
type Storage interface {
	// Settings operations
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	GetAllSettings(ctx context.Context) (map[string]string, error)

	// History operations
	RecordEvent(ctx context.Context, event *models.HistoryEvent) error
	GetHistory(ctx context.Context, limit int) ([]*models.HistoryEvent, error)
	ClearHistory(ctx context.Context) error

	// Close closes the storage connection
	Close() error
}
