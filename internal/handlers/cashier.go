package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/beanline/coffee_shop/internal/fallback"
	"github.com/beanline/coffee_shop/internal/metrics"
	"github.com/beanline/coffee_shop/internal/models"
	"github.com/beanline/coffee_shop/internal/mykafka"
	"github.com/beanline/coffee_shop/internal/pricing"
	"github.com/beanline/coffee_shop/internal/realtime"
	ordersvc "github.com/beanline/coffee_shop/internal/service/order"
)

type CashierHandler struct {
	DB       *gorm.DB
	Orders   *ordersvc.Service
	Fallback *fallback.Store
	Producer *mykafka.Producer
	Hub      *realtime.Hub
}

type posLine struct {
	MenuItemID uint   `json:"menu_item_id"`
	Quantity   int    `json:"quantity"`
	Size       string `json:"size"`
}

type posRequest struct {
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	PaymentMethod string    `json:"payment_method"`
	Items         []posLine `json:"items"`
}

// Submit writes a walk-in sale as a completed order. The line list is
// transient; nothing persists until this call. When the database write
// fails the order goes to the local fallback store instead, so the sale is
// kept and still shows in history.
func (h *CashierHandler) Submit(c echo.Context) error {
	var req posRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Items) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no items in order")
	}
	if req.CustomerName == "" {
		req.CustomerName = "Walk-in Customer"
	}

	orderItems := make([]models.OrderItem, 0, len(req.Items))
	var subtotal float64
	for _, line := range req.Items {
		if line.Quantity < 1 {
			line.Quantity = 1
		}
		var menuItem models.MenuItem
		if err := h.DB.First(&menuItem, line.MenuItemID).Error; err != nil {
			return echo.NewHTTPError(http.StatusNotFound,
				fmt.Sprintf("menu item %d not found", line.MenuItemID))
		}
		unitPrice := pricing.ForSize(&menuItem, line.Size)
		if err := pricing.ValidateUnitPrice(unitPrice); err != nil {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
		instructions := ""
		if line.Size != "" {
			instructions = fmt.Sprintf("Size: %s", line.Size)
		}
		lineTotal := pricing.LineTotal(unitPrice, line.Quantity)
		subtotal += lineTotal
		orderItems = append(orderItems, models.OrderItem{
			MenuItemID:          menuItem.ID,
			MenuItemName:        menuItem.Name,
			Quantity:            line.Quantity,
			UnitPrice:           unitPrice,
			TotalPrice:          lineTotal,
			SpecialInstructions: instructions,
		})
	}

	tax, total := pricing.OrderTotals(subtotal)
	order := models.Order{
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		OrderType:     "counter",
		Status:        models.StatusCompleted,
		Subtotal:      subtotal,
		TaxAmount:     tax,
		TotalAmount:   total,
		PaymentMethod: req.PaymentMethod,
	}

	txErr := h.DB.Transaction(func(tx *gorm.DB) error {
		number, assigned := h.Orders.NextNumber(tx)
		if !assigned {
			return fmt.Errorf("order number assignment failed")
		}
		order.OrderNumber = number
		if err := tx.Create(&order).Error; err != nil {
			return err
		}
		for i := range orderItems {
			orderItems[i].OrderID = order.ID
		}
		return tx.Create(&orderItems).Error
	})

	if txErr != nil {
		// The sale must not be lost: keep it locally, flagged with a
		// placeholder number.
		c.Logger().Warnf("pos database write failed, saving locally: %v", txErr)
		order.OrderNumber = ordersvc.PlaceholderNumber()
		order.Items = orderItems
		order.CreatedAt = time.Now()
		if err := h.Fallback.Save(&order); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError,
				"order could not be saved: "+err.Error())
		}
		metrics.FallbackOrders.Inc()
		metrics.OrdersCreated.WithLabelValues("fallback").Inc()
		return c.JSON(http.StatusCreated, echo.Map{
			"order":  order,
			"source": "fallback",
		})
	}

	order.Items = orderItems
	metrics.OrdersCreated.WithLabelValues("cashier").Inc()
	if h.Hub != nil {
		h.Hub.Broadcast("orders", realtime.EventInsert, order)
	}
	publish(c, h.Producer, "order_events", order.OrderNumber, map[string]any{
		"type":        "pos_order_completed",
		"orderID":     order.ID,
		"orderNumber": order.OrderNumber,
		"total":       order.TotalAmount,
	})

	return c.JSON(http.StatusCreated, echo.Map{
		"order":  order,
		"source": "database",
	})
}

// History merges database orders with locally stored fallback orders,
// de-duplicated by order number, newest first.
func (h *CashierHandler) History(c echo.Context) error {
	var dbOrders []models.Order
	if err := h.DB.WithContext(c.Request().Context()).
		Preload("Items").
		Order("created_at DESC").
		Limit(200).
		Find(&dbOrders).Error; err != nil {
		c.Logger().Errorf("order history db read failed: %v", err)
		dbOrders = nil
	}

	localOrders, err := h.Fallback.List()
	if err != nil {
		c.Logger().Errorf("order history fallback read failed: %v", err)
	}

	return c.JSON(http.StatusOK, fallback.Merge(dbOrders, localOrders))
}

// Flush re-inserts fallback orders into the database, each under a freshly
// assigned order number.
func (h *CashierHandler) Flush(c echo.Context) error {
	n, err := h.Fallback.Flush(c.Request().Context(), h.DB, h.Orders.NextNumber)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{"flushed": n})
}
