package httpserver

import (
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/beanline/coffee_shop/internal/handlers"
	"github.com/beanline/coffee_shop/internal/metrics"
	"github.com/beanline/coffee_shop/internal/models"
	"github.com/beanline/coffee_shop/internal/realtime"
	"github.com/beanline/coffee_shop/internal/service/token"
)

type Deps struct {
	DB             *gorm.DB
	AuthHandler    *handlers.AuthHandler
	MenuHandler    *handlers.MenuHandler
	CartHandler    *handlers.CartHandler
	OrderHandler   *handlers.OrderHandler
	CashierHandler *handlers.CashierHandler
	SearchHandler  *handlers.SearchHandler
	Tokens         *token.Service
	Hub            *realtime.Hub
	UploadsRoot    string
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error {
		sqlDB, err := d.DB.DB()
		if err != nil || sqlDB.Ping() != nil {
			return c.NoContent(503)
		}
		return c.NoContent(200)
	})
	e.GET("/metrics", metrics.Handler())
	e.GET("/ws", d.Hub.ServeWS)
	e.Static("/uploads", d.UploadsRoot)

	v1 := e.Group("/api/v1")

	v1.POST("/register", d.AuthHandler.Register)
	v1.POST("/login", d.AuthHandler.Login)
	v1.POST("/logout", d.AuthHandler.Logout)
	v1.GET("/me", d.AuthHandler.Me, d.Tokens.AutoRefresh)

	v1.GET("/menu", d.MenuHandler.ListItems)
	v1.GET("/menu/:id", d.MenuHandler.GetItem)
	v1.GET("/categories", d.MenuHandler.ListCategories)
	if d.SearchHandler != nil {
		v1.GET("/search", d.SearchHandler.Search)
	}

	// Cart routes serve anonymous and signed-in customers alike.
	cart := v1.Group("/cart", d.Tokens.OptionalAuth)
	cart.GET("", d.CartHandler.GetCart)
	cart.POST("/items", d.CartHandler.AddItem)
	cart.PATCH("/items/:id", d.CartHandler.UpdateItem)
	cart.DELETE("/items/:id", d.CartHandler.RemoveItem)
	cart.DELETE("", d.CartHandler.ClearCart)
	cart.POST("/checkout", d.CartHandler.Checkout)

	orders := v1.Group("/orders", d.Tokens.AutoRefresh)
	orders.GET("", d.OrderHandler.ListMine)
	orders.GET("/:id", d.OrderHandler.Get)

	cashier := v1.Group("/cashier", d.Tokens.RequireRole(models.RoleCashier, models.RoleAdmin))
	cashier.POST("/orders", d.CashierHandler.Submit)
	cashier.GET("/orders", d.CashierHandler.History)
	cashier.POST("/orders/flush", d.CashierHandler.Flush)
	cashier.POST("/drafts", d.OrderHandler.CreateDraft)
	cashier.POST("/drafts/:id/items", d.OrderHandler.AddDraftItem)
	cashier.POST("/drafts/:id/finalize", d.OrderHandler.Finalize)
	cashier.PATCH("/orders/:id/status", d.OrderHandler.UpdateStatus)

	admin := v1.Group("/admin", d.Tokens.RequireRole(models.RoleAdmin))
	admin.POST("/menu", d.MenuHandler.CreateItem)
	admin.PATCH("/menu/:id", d.MenuHandler.UpdateItem)
	admin.DELETE("/menu/:id", d.MenuHandler.DeleteItem)
	admin.POST("/menu/images", d.MenuHandler.UploadImage)
	admin.GET("/orders", d.OrderHandler.ListAll)
	admin.PATCH("/orders/:id/status", d.OrderHandler.UpdateStatus)
}
