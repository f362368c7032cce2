package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Order statuses. Transitions between them are owned by the order service.
const (
	StatusDraft     = "draft"
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusPreparing = "preparing"
	StatusReady     = "ready"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

const (
	RoleAdmin    = "admin"
	RoleCashier  = "cashier"
	RoleCustomer = "customer"
)

// Size is one entry of a menu item's size list.
type Size struct {
	Size      string  `json:"size"`
	Price     float64 `json:"price"`
	Available bool    `json:"available"`
}

// Sizes is stored as a JSON column so postgres and the sqlite test driver
// handle it the same way.
type Sizes []Size

func (s Sizes) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func (s *Sizes) Scan(src interface{}) error {
	if src == nil {
		*s = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return errors.New("sizes: unsupported column type")
	}
}

type MenuCategory struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string `gorm:"unique;not null"          json:"name"`
	DisplayOrder int    `gorm:"default:0"                json:"display_order"`
}

type MenuItem struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CategoryID  uint      `gorm:"index"                    json:"category_id"`
	Name        string    `gorm:"not null"                 json:"name"`
	Description string    `json:"description"`
	BasePrice   float64   `gorm:"not null"                 json:"base_price"`
	Sizes       Sizes     `gorm:"type:json"                json:"sizes,omitempty"`
	ImageURL    string    `json:"image_url"`
	IsAvailable bool      `gorm:"default:true"             json:"is_available"`
	IsFeatured  bool      `gorm:"default:false"            json:"is_featured"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type SessionCart struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       *uint     `gorm:"index"                    json:"user_id,omitempty"`
	SessionToken string    `gorm:"uniqueIndex;not null"     json:"session_token"`
	ExpiresAt    time.Time `gorm:"not null"                 json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type CartItem struct {
	ID                  uint      `gorm:"primaryKey;autoIncrement"   json:"id"`
	CartID              uint      `gorm:"index;not null"             json:"cart_id"`
	MenuItemID          uint      `gorm:"not null"                   json:"menu_item_id"`
	Quantity            int       `gorm:"not null;check:quantity>0"  json:"quantity"`
	UnitPrice           float64   `gorm:"not null"                   json:"unit_price"`
	TotalPrice          float64   `gorm:"not null"                   json:"total_price"`
	Size                string    `json:"size,omitempty"`
	SpecialInstructions string    `json:"special_instructions,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type Order struct {
	ID            uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNumber   string      `gorm:"uniqueIndex;not null"     json:"order_number"`
	CustomerID    *uint       `gorm:"index"                    json:"customer_id,omitempty"`
	CustomerName  string      `gorm:"not null"                 json:"customer_name"`
	CustomerEmail string      `json:"customer_email,omitempty"`
	CustomerPhone string      `json:"customer_phone,omitempty"`
	OrderType     string      `gorm:"default:takeaway"         json:"order_type"`
	Status        string      `gorm:"index;not null"           json:"status"`
	Subtotal      float64     `json:"subtotal"`
	TaxAmount     float64     `json:"tax_amount"`
	TotalAmount   float64     `json:"total_amount"`
	PaymentMethod string      `json:"payment_method,omitempty"`
	Notes         string      `json:"notes,omitempty"`
	Items         []OrderItem `gorm:"foreignKey:OrderID"       json:"items,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

type OrderItem struct {
	ID                  uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID             uint    `gorm:"index;not null"           json:"order_id"`
	MenuItemID          uint    `json:"menu_item_id"`
	MenuItemName        string  `gorm:"not null"                 json:"menu_item_name"`
	Quantity            int     `gorm:"not null"                 json:"quantity"`
	UnitPrice           float64 `gorm:"not null"                 json:"unit_price"`
	TotalPrice          float64 `gorm:"not null"                 json:"total_price"`
	SpecialInstructions string  `json:"special_instructions,omitempty"`
}

type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string    `gorm:"unique;not null"          json:"email"`
	PasswordHash string    `gorm:"not null"                 json:"-"`
	Role         string    `gorm:"not null"                 json:"role"`
	FullName     string    `json:"full_name,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type RefreshToken struct {
	ID        uint   `gorm:"primaryKey"      json:"id"`
	Token     string `gorm:"unique;not null" json:"token"`
	UserID    uint   `gorm:"index;not null"  json:"user_id"`
	Role      string `json:"role"`
	ExpiresAt int64  `gorm:"not null"        json:"expires_at"`
	Revoked   bool   `gorm:"default:false"   json:"revoked"`
}

// OrderCounter backs server-assigned order numbers, one row per day.
type OrderCounter struct {
	Day  string `gorm:"primaryKey" json:"day"`
	Last int    `gorm:"not null"   json:"last"`
}
