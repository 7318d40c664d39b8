package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250101-000000",
		Description: "Create runs table",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS runs (
				id TEXT PRIMARY KEY,
				url TEXT NOT NULL,
				instruction TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				chunk_count INTEGER NOT NULL DEFAULT 0,
				cache_hits INTEGER NOT NULL DEFAULT 0,
				api_calls INTEGER NOT NULL DEFAULT 0,
				sections INTEGER NOT NULL DEFAULT 0,
				failures INTEGER NOT NULL DEFAULT 0,
				stopped_at INTEGER NOT NULL DEFAULT 0,
				result_text TEXT,
				export_location TEXT,
				error_message TEXT,
				created_at TEXT NOT NULL,
				completed_at TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,
		},
	})
}
