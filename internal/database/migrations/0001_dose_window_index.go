package migrations

import "gorm.io/gorm"

func init() {
	// Composite index for the overlapping-window fetch used by every dose
	// timeline query.
	Register("0001_dose_entry_window_index",
		func(db *gorm.DB) error {
			return db.Exec("CREATE INDEX IF NOT EXISTS idx_cached_dose_entries_user_window ON cached_dose_entries (user_id, start_time, end_time)").Error
		},
		func(db *gorm.DB) error {
			return db.Exec("DROP INDEX IF EXISTS idx_cached_dose_entries_user_window").Error
		},
	)
}
