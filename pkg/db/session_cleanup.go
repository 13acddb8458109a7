package db

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// CleanupExpired deletes rows of each model whose expires_at is at or before
// now and returns the total removed. Every model must carry an expires_at
// column.
func CleanupExpired(ctx context.Context, gdb *gorm.DB, now time.Time, models ...any) (int64, error) {
	if gdb == nil {
		return 0, nil
	}
	var deleted int64
	for _, model := range models {
		res := gdb.WithContext(ctx).Where("expires_at <= ?", now).Delete(model)
		if res.Error != nil {
			return deleted, res.Error
		}
		deleted += res.RowsAffected
	}
	return deleted, nil
}
