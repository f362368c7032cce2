package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/beanline/coffee_shop/internal/es"
	"github.com/beanline/coffee_shop/internal/models"
	"github.com/beanline/coffee_shop/internal/mykafka"
	"github.com/beanline/coffee_shop/internal/realtime"
	"github.com/beanline/coffee_shop/internal/retry"
	"github.com/beanline/coffee_shop/internal/service/search"
	"github.com/beanline/coffee_shop/internal/storage"
	"github.com/beanline/coffee_shop/internal/util"
)

type MenuHandler struct {
	DB       *gorm.DB
	Producer *mykafka.Producer
	ES       *elasticsearch.Client
	Hub      *realtime.Hub
	Store    *storage.Store
}

// ListItems is the public menu: available items only, paginated. The read
// runs under the shared retry policy; on final failure the client keeps
// whatever it already holds.
func (h *MenuHandler) ListItems(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Window(page, size)

	q := h.DB.WithContext(c.Request().Context()).Model(&models.MenuItem{}).Where("is_available = ?", true)
	if cat := c.QueryParam("category_id"); cat != "" {
		if id, err := strconv.Atoi(cat); err == nil {
			q = q.Where("category_id = ?", id)
		}
	}
	if c.QueryParam("featured") == "true" {
		q = q.Where("is_featured = ?", true)
	}

	var total int64
	var items []models.MenuItem
	err := retry.Do(c.Request().Context(), func() error {
		if err := q.Count(&total).Error; err != nil {
			return err
		}
		return q.Order("name ASC").Offset(offset).Limit(limit).Find(&items).Error
	})
	if err != nil {
		return errorResponse(c, http.StatusServiceUnavailable, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": items,
		"meta": map[string]any{
			"page":        page,
			"size":        limit,
			"total":       total,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
			"has_prev":    page > 1,
			"has_next":    int64(offset+limit) < total,
		},
	})
}

func (h *MenuHandler) GetItem(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var item models.MenuItem
	if err := h.DB.First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "menu item not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, item)
}

func (h *MenuHandler) ListCategories(c echo.Context) error {
	var cats []models.MenuCategory
	if err := h.DB.Order("display_order ASC, name ASC").Find(&cats).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, cats)
}

type menuItemRequest struct {
	CategoryID  uint         `json:"category_id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	BasePrice   float64      `json:"base_price"`
	Sizes       models.Sizes `json:"sizes"`
	ImageURL    string       `json:"image_url"`
	IsAvailable *bool        `json:"is_available"`
	IsFeatured  bool         `json:"is_featured"`
}

func (r *menuItemRequest) validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	if r.BasePrice <= 0 {
		return errors.New("base_price must be positive")
	}
	for _, s := range r.Sizes {
		if s.Price <= 0 {
			return fmt.Errorf("size %q has a non-positive price", s.Size)
		}
	}
	return nil
}

func (h *MenuHandler) CreateItem(c echo.Context) error {
	var req menuItemRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	if err := req.validate(); err != nil {
		return errorResponse(c, http.StatusUnprocessableEntity, err)
	}

	available := true
	if req.IsAvailable != nil {
		available = *req.IsAvailable
	}
	item := models.MenuItem{
		CategoryID:  req.CategoryID,
		Name:        req.Name,
		Description: req.Description,
		BasePrice:   req.BasePrice,
		Sizes:       req.Sizes,
		ImageURL:    req.ImageURL,
		IsAvailable: available,
		IsFeatured:  req.IsFeatured,
	}
	if err := h.DB.Create(&item).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	h.syncItem(c, &item, realtime.EventInsert, "menu_item_created")
	return c.JSON(http.StatusCreated, item)
}

func (h *MenuHandler) UpdateItem(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var req menuItemRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	if err := req.validate(); err != nil {
		return errorResponse(c, http.StatusUnprocessableEntity, err)
	}

	var item models.MenuItem
	if err := h.DB.First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "menu item not found")
		}
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	item.CategoryID = req.CategoryID
	item.Name = req.Name
	item.Description = req.Description
	item.BasePrice = req.BasePrice
	item.Sizes = req.Sizes
	if req.ImageURL != "" {
		item.ImageURL = req.ImageURL
	}
	if req.IsAvailable != nil {
		item.IsAvailable = *req.IsAvailable
	}
	item.IsFeatured = req.IsFeatured

	if err := h.DB.Save(&item).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	h.syncItem(c, &item, realtime.EventUpdate, "menu_item_updated")
	return c.JSON(http.StatusOK, item)
}

func (h *MenuHandler) DeleteItem(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	if err := h.DB.Delete(&models.MenuItem{}, id).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	if h.ES != nil {
		if err := search.DeleteItem(c.Request().Context(), h.ES, es.MenuIndex, uint(id)); err != nil {
			c.Logger().Errorf("es delete error: %v", err)
		}
	}
	if h.Hub != nil {
		h.Hub.Broadcast("menu_items", realtime.EventDelete, map[string]any{"id": id})
	}
	publish(c, h.Producer, "menu_events", strconv.Itoa(id), map[string]any{
		"type":   "menu_item_deleted",
		"itemID": id,
	})

	return c.NoContent(http.StatusNoContent)
}

// UploadImage stores an item image in the menu-images bucket, answering with
// the public URL, or an inline data URI when the bucket is unusable.
func (h *MenuHandler) UploadImage(c echo.Context) error {
	file, err := c.FormFile("image")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "image file is required")
	}

	src, err := file.Open()
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	url := h.Store.UploadOrInline(storage.MenuImagesBucket, file.Filename, data, contentType)
	return c.JSON(http.StatusOK, echo.Map{"url": url})
}

// syncItem fans a menu change out to search, the realtime feed and the event
// bus. All three are best effort; the row is already committed.
func (h *MenuHandler) syncItem(c echo.Context, item *models.MenuItem, event, eventType string) {
	if h.ES != nil {
		if err := search.IndexItem(c.Request().Context(), h.ES, es.MenuIndex, item); err != nil {
			c.Logger().Errorf("es index error: %v", err)
		}
	}
	if h.Hub != nil {
		h.Hub.Broadcast("menu_items", event, item)
	}
	publish(c, h.Producer, "menu_events", fmt.Sprint(item.ID), map[string]any{
		"type":   eventType,
		"itemID": item.ID,
		"name":   item.Name,
	})
}
