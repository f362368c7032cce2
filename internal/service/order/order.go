// Package order owns the order lifecycle: status transitions, server-assigned
// order numbers and the draft→pending finalize step.
package order

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"gorm.io/gorm"

	"github.com/beanline/coffee_shop/internal/models"
	"github.com/beanline/coffee_shop/internal/pricing"
	"github.com/beanline/coffee_shop/internal/retry"
)

var (
	ErrInvalidTransition = errors.New("order: status transition not allowed")
	ErrNotFound          = errors.New("order: not found")
	ErrNotDraft          = errors.New("order: not in draft status")
)

// transitions is the full status machine. Terminal states have no entry.
var transitions = map[string][]string{
	models.StatusDraft:     {models.StatusPending, models.StatusCancelled},
	models.StatusPending:   {models.StatusConfirmed, models.StatusCancelled},
	models.StatusConfirmed: {models.StatusPreparing, models.StatusCancelled},
	models.StatusPreparing: {models.StatusReady, models.StatusCancelled},
	models.StatusReady:     {models.StatusCompleted, models.StatusCancelled},
}

// CanTransition reports whether from→to is a legal move.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsTerminal(status string) bool {
	return status == models.StatusCompleted || status == models.StatusCancelled
}

func ValidStatus(status string) bool {
	switch status {
	case models.StatusDraft, models.StatusPending, models.StatusConfirmed,
		models.StatusPreparing, models.StatusReady, models.StatusCompleted,
		models.StatusCancelled:
		return true
	}
	return false
}

type Service struct {
	DB *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{DB: db}
}

// NextNumber assigns the next order number from a per-day counter inside tx.
// The returned bool is false when the counter could not be advanced and the
// number is only a random display placeholder; placeholders must never be
// stored as the order's key.
func (s *Service) NextNumber(tx *gorm.DB) (string, bool) {
	day := time.Now().Format("20060102")

	res := tx.Model(&models.OrderCounter{}).
		Where("day = ?", day).
		UpdateColumn("last", gorm.Expr("last + 1"))
	if res.Error != nil {
		return PlaceholderNumber(), false
	}
	if res.RowsAffected == 0 {
		if err := tx.Create(&models.OrderCounter{Day: day, Last: 1}).Error; err != nil {
			// Lost the creation race; bump the existing row instead.
			if err2 := tx.Model(&models.OrderCounter{}).
				Where("day = ?", day).
				UpdateColumn("last", gorm.Expr("last + 1")).Error; err2 != nil {
				return PlaceholderNumber(), false
			}
		}
	}

	var counter models.OrderCounter
	if err := tx.Where("day = ?", day).First(&counter).Error; err != nil {
		return PlaceholderNumber(), false
	}
	return fmt.Sprintf("%s-%03d", day, counter.Last), true
}

// PlaceholderNumber is the random 3-digit display fallback.
func PlaceholderNumber() string {
	return fmt.Sprintf("%03d", 100+rand.Intn(900))
}

// CreateDraft opens a draft order for a customer. Creation retries under the
// shared policy to absorb unique-constraint collisions when two clients open
// a draft at once; on retry the existing draft is returned instead.
func (s *Service) CreateDraft(ctx context.Context, customerID *uint, name, email string) (*models.Order, error) {
	if customerID != nil {
		var existing models.Order
		err := s.DB.WithContext(ctx).
			Where("customer_id = ? AND status = ?", *customerID, models.StatusDraft).
			Order("created_at DESC").
			First(&existing).Error
		if err == nil {
			return &existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	var draft models.Order
	err := retry.Do(ctx, func() error {
		draft = models.Order{
			OrderNumber:   fmt.Sprintf("DRAFT-%d", time.Now().UnixNano()),
			CustomerID:    customerID,
			CustomerName:  name,
			CustomerEmail: email,
			Status:        models.StatusDraft,
		}
		return s.DB.WithContext(ctx).Create(&draft).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create draft order: %w", err)
	}
	return &draft, nil
}

// Finalize flips a draft to pending: totals are recomputed from its items and
// the real order number is assigned.
func (s *Service) Finalize(ctx context.Context, orderID uint) (*models.Order, error) {
	var order models.Order
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Items").First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if order.Status != models.StatusDraft {
			return ErrNotDraft
		}

		var subtotal float64
		for _, it := range order.Items {
			subtotal += it.TotalPrice
		}
		tax, total := pricing.OrderTotals(subtotal)

		number, assigned := s.NextNumber(tx)
		if !assigned {
			return fmt.Errorf("finalize: order number assignment failed")
		}

		order.OrderNumber = number
		order.Status = models.StatusPending
		order.Subtotal = subtotal
		order.TaxAmount = tax
		order.TotalAmount = total
		return tx.Save(&order).Error
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateStatus advances an order along the machine.
func (s *Service) UpdateStatus(ctx context.Context, orderID uint, next string) (*models.Order, error) {
	if !ValidStatus(next) {
		return nil, ErrInvalidTransition
	}
	var order models.Order
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if !CanTransition(order.Status, next) {
			return ErrInvalidTransition
		}
		order.Status = next
		return tx.Save(&order).Error
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}
