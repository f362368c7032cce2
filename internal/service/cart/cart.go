// Package cart implements the session cart: one persisted cart per owner,
// where the owner is either an authenticated user or an anonymous session
// token, converted into an order at checkout.
package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/beanline/coffee_shop/internal/models"
	"github.com/beanline/coffee_shop/internal/pricing"
	"github.com/beanline/coffee_shop/internal/service/order"
)

// TTL is the expiry horizon of a newly created cart.
const TTL = 24 * time.Hour

var (
	ErrEmptyCart    = errors.New("cart: no items in cart")
	ErrItemNotFound = errors.New("cart: item not found")
	ErrMenuItem     = errors.New("cart: menu item not found")
)

// Owner identifies who a cart belongs to. UserID wins over the session token
// when both are present.
type Owner struct {
	UserID       *uint
	SessionToken string
}

// NewSessionToken mints the anonymous cart token stored in the client's
// cookie.
func NewSessionToken() string {
	return "session_" + uuid.NewString()
}

type Service struct {
	DB     *gorm.DB
	Orders *order.Service
}

func NewService(db *gorm.DB, orders *order.Service) *Service {
	return &Service{DB: db, Orders: orders}
}

// Resolve finds the newest non-expired cart for the owner, creating one with
// a fresh expiry when none exists.
func (s *Service) Resolve(ctx context.Context, owner Owner) (*models.SessionCart, error) {
	q := s.DB.WithContext(ctx).Where("expires_at > ?", time.Now())
	if owner.UserID != nil {
		q = q.Where("user_id = ?", *owner.UserID)
	} else {
		q = q.Where("session_token = ?", owner.SessionToken)
	}

	var cart models.SessionCart
	err := q.Order("created_at DESC").First(&cart).Error
	if err == nil {
		return &cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("resolve cart: %w", err)
	}

	cart = models.SessionCart{
		UserID:       owner.UserID,
		SessionToken: owner.SessionToken,
		ExpiresAt:    time.Now().Add(TTL),
	}
	if err := s.DB.WithContext(ctx).Create(&cart).Error; err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}
	return &cart, nil
}

// Items loads the cart's lines in insertion order.
func (s *Service) Items(ctx context.Context, cartID uint) ([]models.CartItem, error) {
	var items []models.CartItem
	if err := s.DB.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Order("created_at").
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("load cart items: %w", err)
	}
	return items, nil
}

// AddItem adds a menu item to the cart. The unit price resolves from the
// item's size list, falling back to the base price; a non-positive resolved
// price is rejected before anything is written. Adding a (menu item, size)
// pair already in the cart increments that line instead of creating another.
func (s *Service) AddItem(ctx context.Context, cart *models.SessionCart, menuItemID uint, quantity int, size, instructions string) (*models.CartItem, error) {
	if quantity < 1 {
		quantity = 1
	}

	var menuItem models.MenuItem
	if err := s.DB.WithContext(ctx).First(&menuItem, menuItemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMenuItem
		}
		return nil, fmt.Errorf("load menu item: %w", err)
	}

	unitPrice := pricing.ForSize(&menuItem, size)
	if err := pricing.ValidateUnitPrice(unitPrice); err != nil {
		return nil, err
	}

	var existing models.CartItem
	err := s.DB.WithContext(ctx).
		Where("cart_id = ? AND menu_item_id = ? AND size = ?", cart.ID, menuItemID, size).
		First(&existing).Error
	if err == nil {
		return s.UpdateQuantity(ctx, cart.ID, existing.ID, existing.Quantity+quantity)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("check cart line: %w", err)
	}

	item := models.CartItem{
		CartID:              cart.ID,
		MenuItemID:          menuItemID,
		Quantity:            quantity,
		UnitPrice:           unitPrice,
		TotalPrice:          pricing.LineTotal(unitPrice, quantity),
		Size:                size,
		SpecialInstructions: instructions,
	}
	if err := s.DB.WithContext(ctx).Create(&item).Error; err != nil {
		return nil, fmt.Errorf("add cart line: %w", err)
	}
	return &item, nil
}

// UpdateQuantity persists a new quantity with the recomputed line total.
// Quantity zero or below removes the line and returns nil.
func (s *Service) UpdateQuantity(ctx context.Context, cartID, itemID uint, quantity int) (*models.CartItem, error) {
	if quantity <= 0 {
		if err := s.RemoveItem(ctx, cartID, itemID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	var item models.CartItem
	if err := s.DB.WithContext(ctx).
		Where("id = ? AND cart_id = ?", itemID, cartID).
		First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("load cart line: %w", err)
	}

	item.Quantity = quantity
	item.TotalPrice = pricing.LineTotal(item.UnitPrice, quantity)
	if err := s.DB.WithContext(ctx).Save(&item).Error; err != nil {
		return nil, fmt.Errorf("update cart line: %w", err)
	}
	return &item, nil
}

func (s *Service) RemoveItem(ctx context.Context, cartID, itemID uint) error {
	res := s.DB.WithContext(ctx).
		Where("id = ? AND cart_id = ?", itemID, cartID).
		Delete(&models.CartItem{})
	if res.Error != nil {
		return fmt.Errorf("remove cart line: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (s *Service) Clear(ctx context.Context, cartID uint) error {
	if err := s.DB.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&models.CartItem{}).Error; err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// CustomerInfo is what checkout collects.
type CustomerInfo struct {
	Name          string
	Email         string
	Phone         string
	OrderType     string
	PaymentMethod string
	Notes         string
}

// ConvertToOrder turns a non-empty cart into a pending order, snapshotting
// each line's name and price, then empties the cart. Anonymous carts are
// deleted outright so the next visit starts a fresh one. Runs in a single
// transaction: a failed conversion leaves the cart untouched for retry.
func (s *Service) ConvertToOrder(ctx context.Context, cart *models.SessionCart, info CustomerInfo) (*models.Order, error) {
	var placed models.Order

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var items []models.CartItem
		if err := tx.Where("cart_id = ?", cart.ID).Order("created_at").Find(&items).Error; err != nil {
			return fmt.Errorf("load cart items: %w", err)
		}
		if len(items) == 0 {
			return ErrEmptyCart
		}

		subtotal := pricing.CartSubtotal(items)
		tax, total := pricing.OrderTotals(subtotal)

		name := info.Name
		if name == "" {
			name = "Guest Customer"
		}
		orderType := info.OrderType
		if orderType == "" {
			orderType = "takeaway"
		}

		number, assigned := s.Orders.NextNumber(tx)
		if !assigned {
			return fmt.Errorf("order number assignment failed")
		}

		placed = models.Order{
			OrderNumber:   number,
			CustomerID:    cart.UserID,
			CustomerName:  name,
			CustomerEmail: info.Email,
			CustomerPhone: info.Phone,
			OrderType:     orderType,
			Status:        models.StatusPending,
			Subtotal:      subtotal,
			TaxAmount:     tax,
			TotalAmount:   total,
			PaymentMethod: info.PaymentMethod,
			Notes:         info.Notes,
		}
		if err := tx.Create(&placed).Error; err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		orderItems := make([]models.OrderItem, 0, len(items))
		for _, it := range items {
			var menuItem models.MenuItem
			itemName := "Unknown Item"
			if err := tx.First(&menuItem, it.MenuItemID).Error; err == nil {
				itemName = menuItem.Name
			}
			instructions := it.SpecialInstructions
			if it.Size != "" {
				if instructions != "" {
					instructions = fmt.Sprintf("Size: %s; %s", it.Size, instructions)
				} else {
					instructions = fmt.Sprintf("Size: %s", it.Size)
				}
			}
			orderItems = append(orderItems, models.OrderItem{
				OrderID:             placed.ID,
				MenuItemID:          it.MenuItemID,
				MenuItemName:        itemName,
				Quantity:            it.Quantity,
				UnitPrice:           it.UnitPrice,
				TotalPrice:          it.TotalPrice,
				SpecialInstructions: instructions,
			})
		}
		if err := tx.Create(&orderItems).Error; err != nil {
			return fmt.Errorf("create order items: %w", err)
		}
		placed.Items = orderItems

		if err := tx.Where("cart_id = ?", cart.ID).Delete(&models.CartItem{}).Error; err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		if cart.UserID == nil {
			if err := tx.Delete(&models.SessionCart{}, cart.ID).Error; err != nil {
				return fmt.Errorf("delete anonymous cart: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &placed, nil
}
