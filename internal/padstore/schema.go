package padstore

// schemaSQL returns all schema statements for the pad database. The history
// table lives here too so that a mutation and its history entry share one
// transaction.
func schemaSQL() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS pads (
			id TEXT PRIMARY KEY,
			read_id TEXT NOT NULL UNIQUE,
			write_id TEXT NOT NULL UNIQUE,
			admin_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			default_view_id TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS markers (
			id TEXT PRIMARY KEY,
			pad_id TEXT NOT NULL,
			lat REAL NOT NULL,
			lon REAL NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			colour TEXT NOT NULL DEFAULT '',
			size INTEGER NOT NULL DEFAULT 0,
			type_id TEXT NOT NULL DEFAULT '',
			data TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_markers_pad_lat ON markers(pad_id, lat)`,
		`CREATE TABLE IF NOT EXISTS lines (
			id TEXT PRIMARY KEY,
			pad_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			type_id TEXT NOT NULL DEFAULT '',
			mode TEXT NOT NULL DEFAULT '',
			route_points TEXT NOT NULL,
			colour TEXT NOT NULL DEFAULT '',
			width INTEGER NOT NULL DEFAULT 0,
			distance REAL NOT NULL DEFAULT 0,
			time_sec INTEGER NOT NULL DEFAULT 0,
			ascent INTEGER NOT NULL DEFAULT 0,
			descent INTEGER NOT NULL DEFAULT 0,
			bounds_top REAL NOT NULL DEFAULT 0,
			bounds_bottom REAL NOT NULL DEFAULT 0,
			bounds_left REAL NOT NULL DEFAULT 0,
			bounds_right REAL NOT NULL DEFAULT 0,
			data TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lines_pad ON lines(pad_id)`,
		`CREATE TABLE IF NOT EXISTS views (
			id TEXT PRIMARY KEY,
			pad_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			bounds_top REAL NOT NULL DEFAULT 0,
			bounds_bottom REAL NOT NULL DEFAULT 0,
			bounds_left REAL NOT NULL DEFAULT 0,
			bounds_right REAL NOT NULL DEFAULT 0,
			base_layer TEXT NOT NULL DEFAULT '',
			layers TEXT NOT NULL DEFAULT '[]'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_views_pad ON views(pad_id)`,
		`CREATE TABLE IF NOT EXISTS object_types (
			id TEXT PRIMARY KEY,
			pad_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			object_kind TEXT NOT NULL,
			fields TEXT NOT NULL DEFAULT '[]'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_object_types_pad ON object_types(pad_id)`,
		`CREATE TABLE IF NOT EXISTS history (
			id TEXT PRIMARY KEY,
			pad_id TEXT NOT NULL,
			object_kind TEXT NOT NULL,
			object_id TEXT NOT NULL,
			action TEXT NOT NULL,
			snapshot TEXT,
			time INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_pad_id ON history(pad_id, id)`,
	}
}
