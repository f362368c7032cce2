package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/beanline/coffee_shop/internal/models"
)

func TestDraftFlow(t *testing.T) {
	env := newTestEnv(t)
	latte := env.seedMenuItem("Cafe Latte", 120, defaultSizes())

	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/cashier/drafts", map[string]any{
		"customer_name": "Dana",
	})
	require.NoError(t, env.Order.CreateDraft(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var draft models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &draft))
	require.Equal(t, models.StatusDraft, draft.Status)

	rec2, c2 := env.doJSONRequest(http.MethodPost, "/api/v1/cashier/drafts/1/items", map[string]any{
		"menu_item_id": latte.ID,
		"quantity":     2,
		"size":         "Medium",
	})
	c2.SetParamNames("id")
	c2.SetParamValues(itoa(draft.ID))
	require.NoError(t, env.Order.AddDraftItem(c2))
	require.Equal(t, http.StatusCreated, rec2.Code)

	var line models.OrderItem
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &line))
	require.Equal(t, "Cafe Latte", line.MenuItemName)
	require.Equal(t, 150.0, line.UnitPrice)
	require.Equal(t, 300.0, line.TotalPrice)
	require.Equal(t, "Size: Medium", line.SpecialInstructions)

	rec3, c3 := env.doJSONRequest(http.MethodPost, "/api/v1/cashier/drafts/1/finalize", nil)
	c3.SetParamNames("id")
	c3.SetParamValues(itoa(draft.ID))
	require.NoError(t, env.Order.Finalize(c3))
	require.Equal(t, http.StatusOK, rec3.Code)

	var placed models.Order
	require.NoError(t, json.Unmarshal(rec3.Body.Bytes(), &placed))
	require.Equal(t, models.StatusPending, placed.Status)
	require.NotContains(t, placed.OrderNumber, "DRAFT")
	require.Equal(t, 300.0, placed.Subtotal)
	require.InDelta(t, 324.0, placed.TotalAmount, 1e-9)

	// A draft can only be finalized once.
	_, c4 := env.doJSONRequest(http.MethodPost, "/api/v1/cashier/drafts/1/finalize", nil)
	c4.SetParamNames("id")
	c4.SetParamValues(itoa(draft.ID))
	require.Equal(t, http.StatusUnprocessableEntity, httpCode(t, env.Order.Finalize(c4)))
}

func TestAddDraftItemRejectsNonDraft(t *testing.T) {
	env := newTestEnv(t)
	latte := env.seedMenuItem("Cafe Latte", 120, nil)

	order := models.Order{OrderNumber: "20250901-001", CustomerName: "Dana", Status: models.StatusPending}
	require.NoError(t, env.DB.Create(&order).Error)

	_, c := env.doJSONRequest(http.MethodPost, "/api/v1/cashier/drafts/1/items", map[string]any{
		"menu_item_id": latte.ID,
	})
	c.SetParamNames("id")
	c.SetParamValues(itoa(order.ID))
	require.Equal(t, http.StatusUnprocessableEntity, httpCode(t, env.Order.AddDraftItem(c)))
}

func TestUpdateStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)

	order := models.Order{OrderNumber: "20250901-002", CustomerName: "Dana", Status: models.StatusPending}
	require.NoError(t, env.DB.Create(&order).Error)

	rec, c := env.doJSONRequest(http.MethodPatch, "/api/v1/cashier/orders/1/status", map[string]any{
		"status": models.StatusConfirmed,
	})
	c.SetParamNames("id")
	c.SetParamValues(itoa(order.ID))
	require.NoError(t, env.Order.UpdateStatus(c))
	require.Equal(t, http.StatusOK, rec.Code)

	_, c2 := env.doJSONRequest(http.MethodPatch, "/api/v1/cashier/orders/1/status", map[string]any{
		"status": models.StatusCompleted,
	})
	c2.SetParamNames("id")
	c2.SetParamValues(itoa(order.ID))
	require.Equal(t, http.StatusUnprocessableEntity, httpCode(t, env.Order.UpdateStatus(c2)))

	_, c3 := env.doJSONRequest(http.MethodPatch, "/api/v1/cashier/orders/999/status", map[string]any{
		"status": models.StatusConfirmed,
	})
	c3.SetParamNames("id")
	c3.SetParamValues("999")
	require.Equal(t, http.StatusNotFound, httpCode(t, env.Order.UpdateStatus(c3)))
}

func TestGetOrderVisibility(t *testing.T) {
	env := newTestEnv(t)

	owner := models.User{Email: "dana@example.com", PasswordHash: "x", Role: models.RoleCustomer}
	other := models.User{Email: "sam@example.com", PasswordHash: "x", Role: models.RoleCustomer}
	staff := models.User{Email: "pos@beanline.test", PasswordHash: "x", Role: models.RoleCashier}
	demoted := models.User{Email: "ex-pos@beanline.test", PasswordHash: "x", Role: models.RoleCustomer}
	for _, u := range []*models.User{&owner, &other, &staff, &demoted} {
		require.NoError(t, env.DB.Create(u).Error)
	}

	order := models.Order{
		OrderNumber:  "20250901-003",
		CustomerID:   &owner.ID,
		CustomerName: "Dana",
		Status:       models.StatusPending,
	}
	require.NoError(t, env.DB.Create(&order).Error)

	// The owner sees their order.
	rec, c := env.doJSONRequest(http.MethodGet, "/api/v1/orders/1", nil)
	c.SetParamNames("id")
	c.SetParamValues(itoa(order.ID))
	asUser(c, owner.ID, models.RoleCustomer)
	require.NoError(t, env.Order.Get(c))
	require.Equal(t, http.StatusOK, rec.Code)

	// Another customer does not.
	_, c2 := env.doJSONRequest(http.MethodGet, "/api/v1/orders/1", nil)
	c2.SetParamNames("id")
	c2.SetParamValues(itoa(order.ID))
	asUser(c2, other.ID, models.RoleCustomer)
	require.Equal(t, http.StatusForbidden, httpCode(t, env.Order.Get(c2)))

	// Staff see everything.
	rec3, c3 := env.doJSONRequest(http.MethodGet, "/api/v1/orders/1", nil)
	c3.SetParamNames("id")
	c3.SetParamValues(itoa(order.ID))
	asUser(c3, staff.ID, models.RoleCashier)
	require.NoError(t, env.Order.Get(c3))
	require.Equal(t, http.StatusOK, rec3.Code)

	// A token still claiming a staff role does not help once the stored
	// role says otherwise.
	_, c4 := env.doJSONRequest(http.MethodGet, "/api/v1/orders/1", nil)
	c4.SetParamNames("id")
	c4.SetParamValues(itoa(order.ID))
	asUser(c4, demoted.ID, models.RoleCashier)
	require.Equal(t, http.StatusForbidden, httpCode(t, env.Order.Get(c4)))
}

func TestListMine(t *testing.T) {
	env := newTestEnv(t)

	ownerID := uint(1)
	otherID := uint(2)
	orders := []models.Order{
		{OrderNumber: "20250901-004", CustomerID: &ownerID, CustomerName: "Dana", Status: models.StatusPending},
		{OrderNumber: "20250901-005", CustomerID: &otherID, CustomerName: "Sam", Status: models.StatusPending},
	}
	require.NoError(t, env.DB.Create(&orders).Error)

	rec, c := env.doJSONRequest(http.MethodGet, "/api/v1/orders", nil)
	asUser(c, ownerID, models.RoleCustomer)
	require.NoError(t, env.Order.ListMine(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var mine []models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	require.Len(t, mine, 1)
	require.Equal(t, "20250901-004", mine[0].OrderNumber)

	_, cAnon := env.doJSONRequest(http.MethodGet, "/api/v1/orders", nil)
	require.Equal(t, http.StatusUnauthorized, httpCode(t, env.Order.ListMine(cAnon)))
}

func TestListAllFiltersByStatus(t *testing.T) {
	env := newTestEnv(t)

	orders := []models.Order{
		{OrderNumber: "20250901-006", CustomerName: "A", Status: models.StatusPending},
		{OrderNumber: "20250901-007", CustomerName: "B", Status: models.StatusReady},
	}
	require.NoError(t, env.DB.Create(&orders).Error)

	rec, c := env.doJSONRequest(http.MethodGet, "/api/v1/admin/orders?status=ready", nil)
	require.NoError(t, env.Order.ListAll(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []models.Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	require.Equal(t, models.StatusReady, resp.Data[0].Status)

	_, c2 := env.doJSONRequest(http.MethodGet, "/api/v1/admin/orders?status=bogus", nil)
	require.Equal(t, http.StatusBadRequest, httpCode(t, env.Order.ListAll(c2)))
}
