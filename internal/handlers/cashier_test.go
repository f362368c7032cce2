package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/beanline/coffee_shop/internal/config"
	"github.com/beanline/coffee_shop/internal/models"
)

func TestCashierSubmit(t *testing.T) {
	env := newTestEnv(t)
	latte := env.seedMenuItem("Cafe Latte", 120, defaultSizes())
	croissant := env.seedMenuItem("Croissant", 70, nil)

	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/cashier/orders", map[string]any{
		"payment_method": "cash",
		"items": []map[string]any{
			{"menu_item_id": latte.ID, "quantity": 2, "size": "Large"},
			{"menu_item_id": croissant.ID, "quantity": 1},
		},
	})
	require.NoError(t, env.Cashier.Submit(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Order  models.Order `json:"order"`
		Source string       `json:"source"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "database", resp.Source)
	require.Equal(t, models.StatusCompleted, resp.Order.Status)
	require.Equal(t, "Walk-in Customer", resp.Order.CustomerName)
	require.Equal(t, fmt.Sprintf("%s-001", time.Now().Format("20060102")), resp.Order.OrderNumber)
	require.Len(t, resp.Order.Items, 2)
	require.Equal(t, 430.0, resp.Order.Subtotal)
	require.InDelta(t, 34.4, resp.Order.TaxAmount, 1e-9)
	require.InDelta(t, 464.4, resp.Order.TotalAmount, 1e-9)
	require.Equal(t, "Size: Large", resp.Order.Items[0].SpecialInstructions)

	var stored models.Order
	require.NoError(t, env.DB.Preload("Items").First(&stored, resp.Order.ID).Error)
	require.Len(t, stored.Items, 2)
}

func TestCashierSubmitRejectsEmptyAndUnknown(t *testing.T) {
	env := newTestEnv(t)

	_, c := env.doJSONRequest(http.MethodPost, "/api/v1/cashier/orders", map[string]any{
		"items": []map[string]any{},
	})
	require.Equal(t, http.StatusBadRequest, httpCode(t, env.Cashier.Submit(c)))

	_, c2 := env.doJSONRequest(http.MethodPost, "/api/v1/cashier/orders", map[string]any{
		"items": []map[string]any{{"menu_item_id": 999, "quantity": 1}},
	})
	require.Equal(t, http.StatusNotFound, httpCode(t, env.Cashier.Submit(c2)))
}

func TestCashierFallbackKeepsSale(t *testing.T) {
	env := newTestEnv(t)
	latte := env.seedMenuItem("Cafe Latte", 120, defaultSizes())

	// Break the primary write path.
	require.NoError(t, env.DB.Migrator().DropTable(&models.Order{}))

	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/cashier/orders", map[string]any{
		"items": []map[string]any{{"menu_item_id": latte.ID, "quantity": 1, "size": "Small"}},
	})
	require.NoError(t, env.Cashier.Submit(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Order  models.Order `json:"order"`
		Source string       `json:"source"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "fallback", resp.Source)
	require.Len(t, resp.Order.OrderNumber, 3)

	n, err := env.Fallback.Count()
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	// History still shows the sale exactly once even with the database down.
	recHist, cHist := env.doJSONRequest(http.MethodGet, "/api/v1/cashier/orders", nil)
	require.NoError(t, env.Cashier.History(cHist))
	require.Equal(t, http.StatusOK, recHist.Code)

	var history []models.Order
	require.NoError(t, json.Unmarshal(recHist.Body.Bytes(), &history))
	require.Len(t, history, 1)
	require.Equal(t, resp.Order.OrderNumber, history[0].OrderNumber)
	require.Equal(t, 129.6, history[0].TotalAmount)
}

func TestCashierFlushAfterRecovery(t *testing.T) {
	env := newTestEnv(t)
	latte := env.seedMenuItem("Cafe Latte", 120, defaultSizes())

	require.NoError(t, env.DB.Migrator().DropTable(&models.Order{}))

	_, c := env.doJSONRequest(http.MethodPost, "/api/v1/cashier/orders", map[string]any{
		"items": []map[string]any{{"menu_item_id": latte.ID, "quantity": 1}},
	})
	require.NoError(t, env.Cashier.Submit(c))

	// Database comes back.
	require.NoError(t, config.Migrate(env.DB))

	recFlush, cFlush := env.doJSONRequest(http.MethodPost, "/api/v1/cashier/orders/flush", nil)
	require.NoError(t, env.Cashier.Flush(cFlush))
	require.Equal(t, http.StatusOK, recFlush.Code)

	var resp map[string]int
	require.NoError(t, json.Unmarshal(recFlush.Body.Bytes(), &resp))
	require.Equal(t, 1, resp["flushed"])

	var flushedOrder models.Order
	require.NoError(t, env.DB.Preload("Items").First(&flushedOrder).Error)
	require.Equal(t, fmt.Sprintf("%s-001", time.Now().Format("20060102")), flushedOrder.OrderNumber)
	require.Len(t, flushedOrder.Items, 1)

	n, err := env.Fallback.Count()
	require.NoError(t, err)
	require.Zero(t, n)

	// History now serves the flushed order from the database, still once.
	recHist, cHist := env.doJSONRequest(http.MethodGet, "/api/v1/cashier/orders", nil)
	require.NoError(t, env.Cashier.History(cHist))

	var history []models.Order
	require.NoError(t, json.Unmarshal(recHist.Body.Bytes(), &history))
	require.Len(t, history, 1)
}
