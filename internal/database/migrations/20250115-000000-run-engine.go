package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250115-000000",
		Description: "Record render engine and elapsed time on runs",
		Up: []string{
			`ALTER TABLE runs ADD COLUMN engine TEXT NOT NULL DEFAULT ''`,
			`ALTER TABLE runs ADD COLUMN elapsed_ms INTEGER NOT NULL DEFAULT 0`,
		},
	})
}
