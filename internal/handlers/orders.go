package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/beanline/coffee_shop/internal/models"
	"github.com/beanline/coffee_shop/internal/mykafka"
	"github.com/beanline/coffee_shop/internal/pricing"
	"github.com/beanline/coffee_shop/internal/realtime"
	"github.com/beanline/coffee_shop/internal/retry"
	ordersvc "github.com/beanline/coffee_shop/internal/service/order"
	"github.com/beanline/coffee_shop/internal/service/token"
	"github.com/beanline/coffee_shop/internal/util"
)

type OrderHandler struct {
	DB       *gorm.DB
	Orders   *ordersvc.Service
	Producer *mykafka.Producer
	Hub      *realtime.Hub
}

// ListMine returns the authenticated customer's orders, newest first.
func (h *OrderHandler) ListMine(c echo.Context) error {
	userID, ok := token.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}

	var orders []models.Order
	err := retry.Do(c.Request().Context(), func() error {
		return h.DB.WithContext(c.Request().Context()).
			Preload("Items").
			Where("customer_id = ?", userID).
			Order("created_at DESC").
			Find(&orders).Error
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusOK, orders)
}

func (h *OrderHandler) Get(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var order models.Order
	if err := h.DB.Preload("Items").First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	// Customers may only see their own orders; staff roles see all. The
	// staff check reads the stored role, not the token claim, so a demoted
	// account loses access as soon as its role changes.
	userID, authed := token.UserID(c)
	role := ""
	if authed {
		var user models.User
		if err := h.DB.First(&user, userID).Error; err == nil {
			role = user.Role
		}
	}
	if role != models.RoleAdmin && role != models.RoleCashier {
		if !authed || order.CustomerID == nil || *order.CustomerID != userID {
			return echo.NewHTTPError(http.StatusForbidden, "not your order")
		}
	}
	return c.JSON(http.StatusOK, order)
}

// ListAll is the staff view: every order, optionally filtered by status.
func (h *OrderHandler) ListAll(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Window(page, size)

	q := h.DB.WithContext(c.Request().Context()).Model(&models.Order{})
	if status := c.QueryParam("status"); status != "" {
		if !ordersvc.ValidStatus(status) {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown status")
		}
		q = q.Where("status = ?", status)
	}

	var total int64
	var orders []models.Order
	err := retry.Do(c.Request().Context(), func() error {
		if err := q.Count(&total).Error; err != nil {
			return err
		}
		return q.Preload("Items").Order("created_at DESC").Offset(offset).Limit(limit).Find(&orders).Error
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": orders,
		"meta": map[string]any{
			"page":  page,
			"size":  limit,
			"total": total,
		},
	})
}

// UpdateStatus advances an order along the status machine; anything outside
// it is rejected.
func (h *OrderHandler) UpdateStatus(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	order, err := h.Orders.UpdateStatus(c.Request().Context(), uint(id), req.Status)
	if err != nil {
		switch {
		case errors.Is(err, ordersvc.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		case errors.Is(err, ordersvc.ErrInvalidTransition):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	if h.Hub != nil {
		h.Hub.Broadcast("orders", realtime.EventUpdate, order)
	}
	publish(c, h.Producer, "order_events", order.OrderNumber, map[string]any{
		"type":        "order_status_changed",
		"orderID":     order.ID,
		"orderNumber": order.OrderNumber,
		"status":      order.Status,
	})
	return c.JSON(http.StatusOK, order)
}

// CreateDraft opens (or returns the existing) draft order for the staff
// member's customer.
func (h *OrderHandler) CreateDraft(c echo.Context) error {
	var req struct {
		CustomerName  string `json:"customer_name"`
		CustomerEmail string `json:"customer_email"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.CustomerName == "" {
		req.CustomerName = "Customer"
	}

	var customerID *uint
	if userID, ok := token.UserID(c); ok {
		customerID = &userID
	}

	draft, err := h.Orders.CreateDraft(c.Request().Context(), customerID, req.CustomerName, req.CustomerEmail)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, draft)
}

// AddDraftItem appends a line to a draft order, snapshotting name and price.
func (h *OrderHandler) AddDraftItem(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req struct {
		MenuItemID uint   `json:"menu_item_id"`
		Quantity   int    `json:"quantity"`
		Size       string `json:"size"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Quantity < 1 {
		req.Quantity = 1
	}

	var order models.Order
	if err := h.DB.First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if order.Status != models.StatusDraft {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "order is not a draft")
	}

	var menuItem models.MenuItem
	if err := h.DB.First(&menuItem, req.MenuItemID).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "menu item not found")
	}

	unitPrice := pricing.ForSize(&menuItem, req.Size)
	if err := pricing.ValidateUnitPrice(unitPrice); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	instructions := ""
	if req.Size != "" {
		instructions = fmt.Sprintf("Size: %s", req.Size)
	}
	item := models.OrderItem{
		OrderID:             order.ID,
		MenuItemID:          menuItem.ID,
		MenuItemName:        menuItem.Name,
		Quantity:            req.Quantity,
		UnitPrice:           unitPrice,
		TotalPrice:          pricing.LineTotal(unitPrice, req.Quantity),
		SpecialInstructions: instructions,
	}
	if err := h.DB.Create(&item).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, item)
}

// Finalize flips a draft to pending with a server-assigned order number.
func (h *OrderHandler) Finalize(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	order, err := h.Orders.Finalize(c.Request().Context(), uint(id))
	if err != nil {
		switch {
		case errors.Is(err, ordersvc.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		case errors.Is(err, ordersvc.ErrNotDraft):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, "order is not a draft")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	if h.Hub != nil {
		h.Hub.Broadcast("orders", realtime.EventUpdate, order)
	}
	publish(c, h.Producer, "order_events", order.OrderNumber, map[string]any{
		"type":        "order_finalized",
		"orderID":     order.ID,
		"orderNumber": order.OrderNumber,
	})
	return c.JSON(http.StatusOK, order)
}
