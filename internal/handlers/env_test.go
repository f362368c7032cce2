package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/beanline/coffee_shop/internal/config"
	"github.com/beanline/coffee_shop/internal/fallback"
	"github.com/beanline/coffee_shop/internal/models"
	"github.com/beanline/coffee_shop/internal/mykafka"
	cartsvc "github.com/beanline/coffee_shop/internal/service/cart"
	ordersvc "github.com/beanline/coffee_shop/internal/service/order"
)

type testEnv struct {
	T        *testing.T
	E        *echo.Echo
	DB       *gorm.DB
	Auth     *AuthHandler
	Cart     *CartHandler
	Cashier  *CashierHandler
	Menu     *MenuHandler
	Order    *OrderHandler
	Fallback *fallback.Store
}

func initTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	db := initTestDB(t)

	fb, err := fallback.Open(filepath.Join(t.TempDir(), "fallback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { fb.Close() })

	orders := ordersvc.NewService(db)
	carts := cartsvc.NewService(db, orders)
	prod := &mykafka.Producer{}

	return &testEnv{
		T:  t,
		E:  echo.New(),
		DB: db,
		Auth: &AuthHandler{
			DB:            db,
			JWTSecret:     []byte("test-jwt-secret"),
			RefreshSecret: []byte("test-refresh-secret"),
			Producer:      prod,
			AdminEmail:    "owner@beanline.test",
		},
		Cart:     &CartHandler{DB: db, Carts: carts, Producer: prod},
		Cashier:  &CashierHandler{DB: db, Orders: orders, Fallback: fb, Producer: prod},
		Menu:     &MenuHandler{DB: db, Producer: prod},
		Order:    &OrderHandler{DB: db, Orders: orders, Producer: prod},
		Fallback: fb,
	}
}

func (env *testEnv) doJSONRequest(method, path string, body interface{}, cookies ...*http.Cookie) (*httptest.ResponseRecorder, echo.Context) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(env.T, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c := env.E.NewContext(req, rec)
	return rec, c
}

func (env *testEnv) seedMenuItem(name string, basePrice float64, sizes models.Sizes) models.MenuItem {
	item := models.MenuItem{
		Name:        name,
		BasePrice:   basePrice,
		Sizes:       sizes,
		IsAvailable: true,
	}
	require.NoError(env.T, env.DB.Create(&item).Error)
	return item
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError, got %v", err)
	return he.Code
}

// asUser mimics what the auth middleware places on the context.
func asUser(c echo.Context, userID uint, role string) {
	c.Set("userID", userID)
	c.Set("role", role)
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

func itoa(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}

func defaultSizes() models.Sizes {
	return models.Sizes{
		{Size: "Small", Price: 120, Available: true},
		{Size: "Medium", Price: 150, Available: true},
		{Size: "Large", Price: 180, Available: true},
	}
}
