package cart

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/beanline/coffee_shop/internal/config"
	"github.com/beanline/coffee_shop/internal/models"
	"github.com/beanline/coffee_shop/internal/pricing"
	ordersvc "github.com/beanline/coffee_shop/internal/service/order"
)

func initTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	db := initTestDB(t)
	return NewService(db, ordersvc.NewService(db)), db
}

func seedLatte(t *testing.T, db *gorm.DB) models.MenuItem {
	item := models.MenuItem{
		Name:      "Cafe Latte",
		BasePrice: 120,
		Sizes: models.Sizes{
			{Size: "Small", Price: 120, Available: true},
			{Size: "Medium", Price: 150, Available: true},
			{Size: "Large", Price: 180, Available: true},
		},
		IsAvailable: true,
	}
	require.NoError(t, db.Create(&item).Error)
	return item
}

func TestResolveCreatesAndReuses(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	owner := Owner{SessionToken: NewSessionToken()}
	first, err := svc.Resolve(ctx, owner)
	require.NoError(t, err)
	require.NotZero(t, first.ID)

	second, err := svc.Resolve(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestAddItemIncrementsSameSizeLine(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	latte := seedLatte(t, db)

	cart, err := svc.Resolve(ctx, Owner{SessionToken: NewSessionToken()})
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, cart, latte.ID, 2, "Medium", "")
	require.NoError(t, err)

	line, err := svc.AddItem(ctx, cart, latte.ID, 1, "Medium", "")
	require.NoError(t, err)
	require.Equal(t, 3, line.Quantity)
	require.Equal(t, 150.0, line.UnitPrice)
	require.Equal(t, 450.0, line.TotalPrice)

	items, err := svc.Items(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestAddItemDifferentSizesKeepSeparateLines(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	latte := seedLatte(t, db)

	cart, err := svc.Resolve(ctx, Owner{SessionToken: NewSessionToken()})
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, cart, latte.ID, 1, "Small", "")
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, cart, latte.ID, 1, "Large", "")
	require.NoError(t, err)

	items, err := svc.Items(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestAddItemUnknownSizeFallsBackToBasePrice(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	latte := seedLatte(t, db)

	cart, err := svc.Resolve(ctx, Owner{SessionToken: NewSessionToken()})
	require.NoError(t, err)

	line, err := svc.AddItem(ctx, cart, latte.ID, 1, "XL", "")
	require.NoError(t, err)
	require.Equal(t, 120.0, line.UnitPrice)
}

func TestAddItemRejectsInvalidPrice(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	free := models.MenuItem{Name: "Water", BasePrice: 0, IsAvailable: true}
	require.NoError(t, db.Create(&free).Error)

	cart, err := svc.Resolve(ctx, Owner{SessionToken: NewSessionToken()})
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, cart, free.ID, 1, "", "")
	require.ErrorIs(t, err, pricing.ErrInvalidPrice)

	items, err := svc.Items(ctx, cart.ID)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestUpdateQuantityZeroRemovesLine(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	latte := seedLatte(t, db)

	cart, err := svc.Resolve(ctx, Owner{SessionToken: NewSessionToken()})
	require.NoError(t, err)

	line, err := svc.AddItem(ctx, cart, latte.ID, 2, "Small", "")
	require.NoError(t, err)

	got, err := svc.UpdateQuantity(ctx, cart.ID, line.ID, 0)
	require.NoError(t, err)
	require.Nil(t, got)

	items, err := svc.Items(ctx, cart.ID)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestUpdateQuantityKeepsTotalConsistent(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	latte := seedLatte(t, db)

	cart, err := svc.Resolve(ctx, Owner{SessionToken: NewSessionToken()})
	require.NoError(t, err)

	line, err := svc.AddItem(ctx, cart, latte.ID, 1, "Large", "")
	require.NoError(t, err)

	updated, err := svc.UpdateQuantity(ctx, cart.ID, line.ID, 4)
	require.NoError(t, err)
	require.Equal(t, 4, updated.Quantity)
	require.Equal(t, updated.UnitPrice*4, updated.TotalPrice)
}

func TestConvertToOrderSnapshotsAndClears(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	latte := seedLatte(t, db)

	token := NewSessionToken()
	cart, err := svc.Resolve(ctx, Owner{SessionToken: token})
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, cart, latte.ID, 2, "Medium", "oat milk")
	require.NoError(t, err)

	placed, err := svc.ConvertToOrder(ctx, cart, CustomerInfo{Name: "Dana", PaymentMethod: "cash"})
	require.NoError(t, err)
	require.NotEmpty(t, placed.OrderNumber)
	require.Equal(t, models.StatusPending, placed.Status)
	require.Len(t, placed.Items, 1)
	require.Equal(t, "Cafe Latte", placed.Items[0].MenuItemName)
	require.Equal(t, 2, placed.Items[0].Quantity)
	require.Equal(t, 150.0, placed.Items[0].UnitPrice)
	require.Equal(t, 300.0, placed.Items[0].TotalPrice)
	require.Equal(t, 300.0, placed.Subtotal)
	require.InDelta(t, 24.0, placed.TaxAmount, 1e-9)
	require.InDelta(t, 324.0, placed.TotalAmount, 1e-9)

	// Anonymous cart is deleted outright.
	var count int64
	require.NoError(t, db.Model(&models.SessionCart{}).Where("session_token = ?", token).Count(&count).Error)
	require.Zero(t, count)

	var remaining int64
	require.NoError(t, db.Model(&models.CartItem{}).Where("cart_id = ?", cart.ID).Count(&remaining).Error)
	require.Zero(t, remaining)
}

func TestConvertToOrderEmptyCart(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cart, err := svc.Resolve(ctx, Owner{SessionToken: NewSessionToken()})
	require.NoError(t, err)

	_, err = svc.ConvertToOrder(ctx, cart, CustomerInfo{})
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestConvertToOrderKeepsAuthedCart(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	latte := seedLatte(t, db)

	userID := uint(7)
	cart, err := svc.Resolve(ctx, Owner{UserID: &userID, SessionToken: NewSessionToken()})
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, cart, latte.ID, 1, "", "")
	require.NoError(t, err)

	_, err = svc.ConvertToOrder(ctx, cart, CustomerInfo{Name: "Sam"})
	require.NoError(t, err)

	// The cart row survives for signed-in users; only its lines are gone.
	var count int64
	require.NoError(t, db.Model(&models.SessionCart{}).Where("id = ?", cart.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestTwoAnonymousCartsConvertIndependently(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	latte := seedLatte(t, db)

	espresso := models.MenuItem{Name: "Espresso", BasePrice: 90, IsAvailable: true}
	require.NoError(t, db.Create(&espresso).Error)

	cartA, err := svc.Resolve(ctx, Owner{SessionToken: NewSessionToken()})
	require.NoError(t, err)
	cartB, err := svc.Resolve(ctx, Owner{SessionToken: NewSessionToken()})
	require.NoError(t, err)
	require.NotEqual(t, cartA.ID, cartB.ID)

	_, err = svc.AddItem(ctx, cartA, latte.ID, 1, "Large", "")
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, cartB, espresso.ID, 3, "", "")
	require.NoError(t, err)

	orderA, err := svc.ConvertToOrder(ctx, cartA, CustomerInfo{Name: "A"})
	require.NoError(t, err)
	orderB, err := svc.ConvertToOrder(ctx, cartB, CustomerInfo{Name: "B"})
	require.NoError(t, err)

	require.NotEqual(t, orderA.OrderNumber, orderB.OrderNumber)
	require.Len(t, orderA.Items, 1)
	require.Len(t, orderB.Items, 1)
	require.Equal(t, "Cafe Latte", orderA.Items[0].MenuItemName)
	require.Equal(t, "Espresso", orderB.Items[0].MenuItemName)
	require.Equal(t, 3, orderB.Items[0].Quantity)
}
