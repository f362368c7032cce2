package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/beanline/coffee_shop/internal/metrics"
	"github.com/beanline/coffee_shop/internal/models"
	"github.com/beanline/coffee_shop/internal/mykafka"
	"github.com/beanline/coffee_shop/internal/pricing"
	"github.com/beanline/coffee_shop/internal/realtime"
	cartsvc "github.com/beanline/coffee_shop/internal/service/cart"
	"github.com/beanline/coffee_shop/internal/service/token"
)

// sessionCookie carries the anonymous cart token between visits.
const sessionCookie = "cartSession"

type CartHandler struct {
	DB       *gorm.DB
	Carts    *cartsvc.Service
	Producer *mykafka.Producer
	Hub      *realtime.Hub
}

// owner resolves the cart owner from the authenticated user, or from the
// session cookie, minting a token on first contact.
func (h *CartHandler) owner(c echo.Context) cartsvc.Owner {
	if userID, ok := token.UserID(c); ok {
		return cartsvc.Owner{UserID: &userID, SessionToken: h.sessionToken(c)}
	}
	return cartsvc.Owner{SessionToken: h.sessionToken(c)}
}

func (h *CartHandler) sessionToken(c echo.Context) string {
	if ck, err := c.Cookie(sessionCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	tok := cartsvc.NewSessionToken()
	c.SetCookie(token.CreateCookie(sessionCookie, tok, "/", time.Now().Add(cartsvc.TTL)))
	return tok
}

type cartResponse struct {
	CartID     uint              `json:"cart_id"`
	Items      []models.CartItem `json:"items"`
	TotalItems int               `json:"total_items"`
	TotalPrice float64           `json:"total_price"`
}

func (h *CartHandler) respond(c echo.Context, cart *models.SessionCart) error {
	items, err := h.Carts.Items(c.Request().Context(), cart.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, cartResponse{
		CartID:     cart.ID,
		Items:      items,
		TotalItems: pricing.CartQuantity(items),
		TotalPrice: pricing.CartSubtotal(items),
	})
}

func (h *CartHandler) GetCart(c echo.Context) error {
	cart, err := h.Carts.Resolve(c.Request().Context(), h.owner(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return h.respond(c, cart)
}

func (h *CartHandler) AddItem(c echo.Context) error {
	var req struct {
		MenuItemID          uint   `json:"menu_item_id"`
		Quantity            int    `json:"quantity"`
		Size                string `json:"size"`
		SpecialInstructions string `json:"special_instructions"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	cart, err := h.Carts.Resolve(c.Request().Context(), h.owner(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	item, err := h.Carts.AddItem(c.Request().Context(), cart, req.MenuItemID, req.Quantity, req.Size, req.SpecialInstructions)
	if err != nil {
		switch {
		case errors.Is(err, cartsvc.ErrMenuItem):
			return echo.NewHTTPError(http.StatusNotFound, "menu item not found")
		case errors.Is(err, pricing.ErrInvalidPrice):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	metrics.CartOperations.WithLabelValues("add").Inc()
	publish(c, h.Producer, "cart_events", fmt.Sprint(cart.ID), map[string]any{
		"type":       "cart_item_added",
		"cartID":     cart.ID,
		"menuItemID": req.MenuItemID,
		"quantity":   item.Quantity,
		"size":       req.Size,
	})
	return h.respond(c, cart)
}

func (h *CartHandler) UpdateItem(c echo.Context) error {
	itemID, err := strconv.Atoi(c.Param("id"))
	if err != nil || itemID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	cart, err := h.Carts.Resolve(c.Request().Context(), h.owner(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if _, err := h.Carts.UpdateQuantity(c.Request().Context(), cart.ID, uint(itemID), req.Quantity); err != nil {
		if errors.Is(err, cartsvc.ErrItemNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "item not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	metrics.CartOperations.WithLabelValues("update").Inc()
	return h.respond(c, cart)
}

func (h *CartHandler) RemoveItem(c echo.Context) error {
	itemID, err := strconv.Atoi(c.Param("id"))
	if err != nil || itemID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	cart, err := h.Carts.Resolve(c.Request().Context(), h.owner(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if err := h.Carts.RemoveItem(c.Request().Context(), cart.ID, uint(itemID)); err != nil {
		if errors.Is(err, cartsvc.ErrItemNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "item not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	metrics.CartOperations.WithLabelValues("remove").Inc()
	return h.respond(c, cart)
}

func (h *CartHandler) ClearCart(c echo.Context) error {
	cart, err := h.Carts.Resolve(c.Request().Context(), h.owner(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := h.Carts.Clear(c.Request().Context(), cart.ID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	metrics.CartOperations.WithLabelValues("clear").Inc()
	return h.respond(c, cart)
}

// Checkout converts the cart into a pending order. Anonymous carts are
// deleted with their cookie so the next visit starts fresh.
func (h *CartHandler) Checkout(c echo.Context) error {
	var req struct {
		Name          string `json:"name"`
		Email         string `json:"email"`
		Phone         string `json:"phone"`
		OrderType     string `json:"order_type"`
		PaymentMethod string `json:"payment_method"`
		Notes         string `json:"notes"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	owner := h.owner(c)
	cart, err := h.Carts.Resolve(c.Request().Context(), owner)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	order, err := h.Carts.ConvertToOrder(c.Request().Context(), cart, cartsvc.CustomerInfo{
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		OrderType:     req.OrderType,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
	})
	if err != nil {
		if errors.Is(err, cartsvc.ErrEmptyCart) {
			return echo.NewHTTPError(http.StatusBadRequest, "no items in cart")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if owner.UserID == nil {
		c.SetCookie(token.CreateCookie(sessionCookie, "", "/", time.Now().Add(-time.Hour)))
	}

	metrics.OrdersCreated.WithLabelValues("storefront").Inc()
	if h.Hub != nil {
		h.Hub.Broadcast("orders", realtime.EventInsert, order)
	}
	publish(c, h.Producer, "order_events", order.OrderNumber, map[string]any{
		"type":        "order_created",
		"orderID":     order.ID,
		"orderNumber": order.OrderNumber,
		"total":       order.TotalAmount,
	})

	return c.JSON(http.StatusCreated, order)
}
