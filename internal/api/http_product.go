package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"metal-catalog-service/internal/domain"
	"metal-catalog-service/internal/store"
)

// --- Product Handlers ---

// ProductCreateInput defines the expected input for creating a product.
type ProductCreateInput struct {
	Name        string           `json:"name" validate:"required,max=255"`
	Slug        string           `json:"slug" validate:"required,max=255,slug"`
	Description *string          `json:"description" validate:"omitempty"`
	SKU         string           `json:"sku" validate:"required,max=100"`
	Price       decimal.Decimal  `json:"price"`
	Unit        string           `json:"unit" validate:"required,max=16"`
	CategoryID  *int64           `json:"category_id" validate:"omitempty,gt=0"`
	ImageURL    *string          `json:"image_url" validate:"omitempty,url,max=2048"`
	IsActive    *bool            `json:"is_active"`
	Attributes  *json.RawMessage `json:"attributes"`
}

// ProductUpdateInput defines the expected input for updating a product.
type ProductUpdateInput ProductCreateInput

func (in ProductCreateInput) toProduct() *domain.Product {
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	return &domain.Product{
		Name:        in.Name,
		Slug:        in.Slug,
		Description: in.Description,
		SKU:         in.SKU,
		Price:       in.Price,
		Unit:        in.Unit,
		CategoryID:  in.CategoryID,
		ImageURL:    in.ImageURL,
		IsActive:    active,
		Attributes:  in.Attributes,
	}
}

// validAttributes accepts absent attributes, JSON null, or a JSON object.
func validAttributes(attrs *json.RawMessage) bool {
	if attrs == nil {
		return true
	}
	trimmed := strings.TrimSpace(string(*attrs))
	return trimmed == "null" || strings.HasPrefix(trimmed, "{")
}

func (h *HTTPHandler) productStoreError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrProductNotFound):
		h.respondWithError(w, http.StatusNotFound, store.ErrProductNotFound.Error())
	case errors.Is(err, store.ErrProductSKUExists), errors.Is(err, store.ErrProductSlugExists):
		h.respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrCategoryNotFound):
		h.respondWithError(w, http.StatusBadRequest, "Category for product not found")
	default:
		h.respondWithError(w, http.StatusInternalServerError, fallback)
	}
}

func (h *HTTPHandler) checkProductInput(w http.ResponseWriter, in ProductCreateInput) bool {
	if in.Price.IsNegative() {
		h.respondWithError(w, http.StatusBadRequest, "Validation failed: price must not be negative")
		return false
	}
	if !validAttributes(in.Attributes) {
		h.respondWithError(w, http.StatusBadRequest, "Validation failed: attributes must be a JSON object")
		return false
	}
	return true
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var input ProductCreateInput
	if !h.decodeAndValidate(w, r, &input) || !h.checkProductInput(w, input) {
		return
	}

	createdProduct, err := h.productStore.CreateProduct(r.Context(), input.toProduct())
	if err != nil {
		h.log.Errorw("CreateProduct store operation failed", "sku", input.SKU, "error", err)
		h.productStoreError(w, err, "Failed to create product")
		return
	}

	h.respondWithJSON(w, http.StatusCreated, createdProduct)
}

var productSortFields = map[string]bool{"name": true, "price": true, "created_at": true, "updated_at": true}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	qParams := r.URL.Query()
	page, limit := pageParams(r, 10, 100)
	params := store.ListProductsParams{Limit: limit, Offset: (page - 1) * limit}

	if q := strings.TrimSpace(qParams.Get("q")); q != "" {
		params.SearchQuery = &q
	}
	if idStr := qParams.Get("category_id"); idStr != "" {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil || id <= 0 {
			h.respondWithError(w, http.StatusBadRequest, "Invalid category_id format")
			return
		}
		params.CategoryID = &id
	}
	if priceStr := qParams.Get("min_price"); priceStr != "" {
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil || price < 0 {
			h.respondWithError(w, http.StatusBadRequest, "Invalid min_price format")
			return
		}
		params.MinPrice = &price
	}
	if priceStr := qParams.Get("max_price"); priceStr != "" {
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil || price < 0 {
			h.respondWithError(w, http.StatusBadRequest, "Invalid max_price format")
			return
		}
		params.MaxPrice = &price
	}
	if params.MinPrice != nil && params.MaxPrice != nil && *params.MinPrice > *params.MaxPrice {
		h.respondWithError(w, http.StatusBadRequest, "min_price cannot exceed max_price")
		return
	}
	if activeStr := qParams.Get("is_active"); activeStr != "" {
		b, err := strconv.ParseBool(activeStr)
		if err != nil {
			h.respondWithError(w, http.StatusBadRequest, "Invalid is_active value: must be true or false")
			return
		}
		params.IsActive = &b
	}

	params.SortBy = qParams.Get("sort_by")
	params.SortOrder = strings.ToLower(qParams.Get("sort_order"))
	if params.SortBy != "" && !productSortFields[params.SortBy] {
		h.respondWithError(w, http.StatusBadRequest, "Invalid sort_by field. Allowed: name, price, created_at, updated_at")
		return
	}
	if params.SortOrder != "" && params.SortOrder != "asc" && params.SortOrder != "desc" {
		h.respondWithError(w, http.StatusBadRequest, "Invalid sort_order value. Allowed: asc, desc")
		return
	}

	products, totalCount, err := h.productStore.ListProducts(r.Context(), params)
	if err != nil {
		h.log.Errorw("ListProducts store operation failed", "error", err)
		h.respondWithError(w, http.StatusInternalServerError, "Failed to retrieve products")
		return
	}

	h.respondWithJSON(w, http.StatusOK, struct {
		Data       []domain.Product `json:"data"`
		Pagination PaginationInfo   `json:"pagination"`
	}{
		Data:       products,
		Pagination: newPaginationInfo(page, limit, totalCount),
	})
}

func (h *HTTPHandler) GetProductByID(w http.ResponseWriter, r *http.Request) {
	productID, ok := idParam(r, "productId")
	if !ok {
		h.respondWithError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	product, err := h.productStore.GetProductByID(r.Context(), productID)
	if err != nil {
		h.log.Errorw("GetProductByID store operation failed", "product_id", productID, "error", err)
		h.productStoreError(w, err, "Failed to retrieve product")
		return
	}

	h.respondWithJSON(w, http.StatusOK, product)
}

func (h *HTTPHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := idParam(r, "productId")
	if !ok {
		h.respondWithError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	var input ProductUpdateInput
	if !h.decodeAndValidate(w, r, &input) || !h.checkProductInput(w, ProductCreateInput(input)) {
		return
	}

	product := ProductCreateInput(input).toProduct()
	product.ID = productID

	updatedProduct, err := h.productStore.UpdateProduct(r.Context(), product)
	if err != nil {
		h.log.Errorw("UpdateProduct store operation failed", "product_id", productID, "error", err)
		h.productStoreError(w, err, "Failed to update product")
		return
	}

	h.respondWithJSON(w, http.StatusOK, updatedProduct)
}

func (h *HTTPHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := idParam(r, "productId")
	if !ok {
		h.respondWithError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	if err := h.productStore.DeleteProduct(r.Context(), productID); err != nil {
		h.log.Errorw("DeleteProduct store operation failed", "product_id", productID, "error", err)
		h.productStoreError(w, err, "Failed to delete product")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetRecentProducts returns the newest active products for the home page.
func (h *HTTPHandler) GetRecentProducts(w http.ResponseWriter, r *http.Request) {
	_, limit := pageParams(r, 8, 50)

	products, err := h.productStore.GetRecentProducts(r.Context(), limit)
	if err != nil {
		h.log.Errorw("GetRecentProducts store operation failed", "error", err)
		h.respondWithError(w, http.StatusInternalServerError, "Failed to retrieve recent products")
		return
	}

	h.respondWithJSON(w, http.StatusOK, struct {
		Data []domain.Product `json:"data"`
	}{Data: products})
}
