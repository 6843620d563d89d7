package db

type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{
		name: "create users table",
		sql: `
			CREATE TABLE IF NOT EXISTS users (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				username TEXT UNIQUE NOT NULL COLLATE NOCASE,
				display_name TEXT DEFAULT '',
				email TEXT DEFAULT '',
				deactivated BOOLEAN DEFAULT 0,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)
		`,
	},
	{
		name: "create groups tables",
		sql: `
			CREATE TABLE IF NOT EXISTS groups (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT UNIQUE NOT NULL COLLATE NOCASE,
				description TEXT DEFAULT ''
			);
			CREATE TABLE IF NOT EXISTS group_members (
				group_id INTEGER NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
				user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				PRIMARY KEY (group_id, user_id)
			)
		`,
	},
	{
		name: "create areas table",
		sql: `
			CREATE TABLE IF NOT EXISTS areas (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				description TEXT DEFAULT '',
				kind TEXT NOT NULL DEFAULT 'shared',
				owner_id INTEGER,
				admin_ids TEXT DEFAULT '',
				observer_ids TEXT DEFAULT '',
				access_user_ids TEXT DEFAULT '',
				access_group_ids TEXT DEFAULT '',
				external_download_enabled BOOLEAN DEFAULT 0,
				external_upload_enabled BOOLEAN DEFAULT 0,
				external_token TEXT DEFAULT '',
				external_password TEXT DEFAULT '',
				external_password_hash TEXT DEFAULT '',
				expiry_days INTEGER DEFAULT 30,
				max_upload_kb INTEGER DEFAULT 0,
				attachments_count INTEGER DEFAULT 0,
				attachments_bytes INTEGER DEFAULT 0,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_areas_token ON areas(external_token);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_areas_personal_owner
				ON areas(owner_id) WHERE kind = 'personal'
		`,
	},
	{
		name: "create audit entries table",
		sql: `
			CREATE TABLE IF NOT EXISTS audit_entries (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				area_id INTEGER NOT NULL,
				event_type TEXT NOT NULL,
				by_user_id INTEGER,
				by_external TEXT DEFAULT '',
				upload_user_id INTEGER,
				filename TEXT DEFAULT '',
				description TEXT DEFAULT '',
				old_filename TEXT DEFAULT '',
				old_description TEXT DEFAULT '',
				notified BOOLEAN DEFAULT 0,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_audit_area ON audit_entries(area_id, notified);
			CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_entries(created_at)
		`,
	},
}
