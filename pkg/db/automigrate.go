package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/events-aggregator/pkg/db/models"
	"github.com/angelmondragon/events-aggregator/pkg/enums"
)

// AutoMigrate creates the schema from the models. Only used for sqlite; the
// postgres schema is owned by the goose migrations.
func (c *Client) AutoMigrate(ctx context.Context) error {
	if err := c.conn.WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto migrating models: %w", err)
	}
	return EnsureWatermark(c.conn.WithContext(ctx))
}

// EnsureWatermark inserts the singleton sync watermark row when missing.
func EnsureWatermark(conn *gorm.DB) error {
	row := models.SyncWatermark{ID: models.SyncWatermarkID, Status: enums.SyncStatusIdle}
	if err := conn.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("seeding sync watermark: %w", err)
	}
	return nil
}
