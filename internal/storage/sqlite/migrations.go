package sqlite

const schema = `
-- Application settings
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Connection history (local bookkeeping only)
CREATE TABLE IF NOT EXISTS history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    kind TEXT NOT NULL,
    session_id INTEGER DEFAULT 0,
    server_id INTEGER DEFAULT 0,
    virtual_address TEXT DEFAULT '',
    detail TEXT DEFAULT '',
    occurred_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_history_occurred_at ON history(occurred_at);
CREATE INDEX IF NOT EXISTS idx_history_kind ON history(kind);

CREATE TRIGGER IF NOT EXISTS update_settings_timestamp AFTER UPDATE ON settings
BEGIN
    UPDATE settings SET updated_at = CURRENT_TIMESTAMP WHERE key = NEW.key;
END;
`

const defaultData = `
-- Insert default settings
INSERT OR IGNORE INTO settings (key, value) VALUES
    ('protocol', 'wireguard'),
    ('encryption', 'aes_256_gcm');
`

// runMigrations executes the database schema and default data
func runMigrations(db *DB) error {
	if _, err := db.db.Exec(schema); err != nil {
		return err
	}
	if _, err := db.db.Exec(defaultData); err != nil {
		return err
	}
	return nil
}
