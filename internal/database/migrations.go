package database

// All migrations use IF NOT EXISTS to be idempotent.

// session_values holds the session store. value is sealed when an
// encryption secret is configured.
const migrationSessionValues = `
CREATE TABLE IF NOT EXISTS session_values (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL,
    encrypted INTEGER NOT NULL DEFAULT 0,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

const migrationOrderAudit = `
CREATE TABLE IF NOT EXISTS order_audit (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    action TEXT NOT NULL,
    actor TEXT NOT NULL DEFAULT '',
    order_id TEXT NOT NULL DEFAULT '',
    isin TEXT NOT NULL DEFAULT '',
    details TEXT NOT NULL DEFAULT '',
    outcome TEXT NOT NULL,
    error_code TEXT NOT NULL DEFAULT '',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

const migrationOrderAuditIndexes = `
CREATE INDEX IF NOT EXISTS idx_order_audit_created ON order_audit(created_at);
CREATE INDEX IF NOT EXISTS idx_order_audit_order ON order_audit(order_id);
`
