// Package fallback persists point-of-sale orders locally when the primary
// database write fails, so a sale is never lost. Orders recorded here show up
// in history views merged with database orders and are re-inserted into the
// primary database once it is reachable again.
package fallback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/beanline/coffee_shop/internal/models"
)

// storedOrder rows are keyed by their own id, not the order number: numbers
// written during an outage are display placeholders and may collide.
type storedOrder struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	OrderNumber string    `gorm:"index;not null"`
	Payload     []byte    `gorm:"not null"`
	CreatedAt   time.Time
}

func (storedOrder) TableName() string { return "fallback_orders" }

type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the local fallback database.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("fallback: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&storedOrder{}); err != nil {
		return nil, fmt.Errorf("fallback: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Save records an order, items included. Every distinct sale is written:
// a matching order number alone never suppresses the insert, because two
// sales can draw the same placeholder. Only an exact re-submission (same
// number, byte-identical payload) is treated as already saved.
func (s *Store) Save(order *models.Order) error {
	payload, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("fallback: marshal order: %w", err)
	}

	var existing []storedOrder
	if err := s.db.Where("order_number = ?", order.OrderNumber).Find(&existing).Error; err != nil {
		return fmt.Errorf("fallback: check order: %w", err)
	}
	for _, row := range existing {
		if bytes.Equal(row.Payload, payload) {
			return nil
		}
	}

	row := storedOrder{
		OrderNumber: order.OrderNumber,
		Payload:     payload,
		CreatedAt:   order.CreatedAt,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return fmt.Errorf("fallback: save order: %w", err)
	}
	return nil
}

// List returns every locally stored order, newest first.
func (s *Store) List() ([]models.Order, error) {
	var rows []storedOrder
	if err := s.db.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("fallback: list: %w", err)
	}
	orders := make([]models.Order, 0, len(rows))
	for _, r := range rows {
		var o models.Order
		if err := json.Unmarshal(r.Payload, &o); err != nil {
			continue
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// NumberFunc assigns the authoritative order number inside the insert
// transaction.
type NumberFunc func(tx *gorm.DB) (string, bool)

// Flush re-inserts locally stored orders into the primary database, removing
// each local copy on success. The placeholder number recorded during the
// outage is replaced by a freshly assigned one; it never becomes the
// authoritative key.
func (s *Store) Flush(ctx context.Context, primary *gorm.DB, assign NumberFunc) (int, error) {
	var rows []storedOrder
	if err := s.db.Find(&rows).Error; err != nil {
		return 0, fmt.Errorf("fallback: flush read: %w", err)
	}

	flushed := 0
	for _, r := range rows {
		var o models.Order
		if err := json.Unmarshal(r.Payload, &o); err != nil {
			s.db.Delete(&storedOrder{}, r.ID)
			continue
		}

		err := primary.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			number, ok := assign(tx)
			if !ok {
				return fmt.Errorf("order number assignment failed")
			}
			o.OrderNumber = number
			o.ID = 0
			for i := range o.Items {
				o.Items[i].ID = 0
				o.Items[i].OrderID = 0
			}
			return tx.Create(&o).Error
		})
		if err != nil {
			return flushed, fmt.Errorf("fallback: flush insert: %w", err)
		}
		if err := s.db.Delete(&storedOrder{}, r.ID).Error; err != nil {
			return flushed, fmt.Errorf("fallback: flush cleanup: %w", err)
		}
		flushed++
	}
	return flushed, nil
}

// Count reports how many orders are waiting locally.
func (s *Store) Count() (int64, error) {
	var n int64
	err := s.db.Model(&storedOrder{}).Count(&n).Error
	return n, err
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Merge combines database and fallback orders, de-duplicating by order
// number (the database copy wins) and sorting by creation time descending.
func Merge(primary, local []models.Order) []models.Order {
	seen := make(map[string]struct{}, len(primary))
	merged := make([]models.Order, 0, len(primary)+len(local))
	for _, o := range primary {
		seen[o.OrderNumber] = struct{}{}
		merged = append(merged, o)
	}
	for _, o := range local {
		if _, dup := seen[o.OrderNumber]; dup {
			continue
		}
		seen[o.OrderNumber] = struct{}{}
		merged = append(merged, o)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})
	return merged
}
