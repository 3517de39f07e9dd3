package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"metal-catalog-service/internal/domain"
	"metal-catalog-service/internal/recount"
	"metal-catalog-service/internal/store"
)

// Recounter recomputes the stored category product totals.
type Recounter interface {
	Run(ctx context.Context) (*recount.Summary, error)
}

// CategoryTreeCache stores rendered category trees per locale.
type CategoryTreeCache interface {
	Get(ctx context.Context, locale string) ([]byte, bool)
	Set(ctx context.Context, locale string, tree []byte)
	Invalidate(ctx context.Context)
}

type noopTreeCache struct{}

func (noopTreeCache) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (noopTreeCache) Set(context.Context, string, []byte)        {}
func (noopTreeCache) Invalidate(context.Context)                 {}

// HTTPHandler holds dependencies for HTTP handlers.
type HTTPHandler struct {
	categoryStore store.CategoryStorer
	productStore  store.ProductStorer
	leadStore     store.LeadStorer
	recounter     Recounter
	treeCache     CategoryTreeCache
	adminToken    string
	validate      *validator.Validate
	log           *zap.SugaredLogger
}

// HandlerOption configures optional HTTPHandler dependencies.
type HandlerOption func(*HTTPHandler)

// WithLeadStore enables the lead-capture endpoint.
func WithLeadStore(ls store.LeadStorer) HandlerOption {
	return func(h *HTTPHandler) { h.leadStore = ls }
}

// WithRecounter enables the admin recount endpoint.
func WithRecounter(r Recounter) HandlerOption {
	return func(h *HTTPHandler) { h.recounter = r }
}

// WithTreeCache sets the category tree cache.
func WithTreeCache(c CategoryTreeCache) HandlerOption {
	return func(h *HTTPHandler) {
		if c != nil {
			h.treeCache = c
		}
	}
}

// WithAdminToken sets the bearer token required by admin routes. Empty disables them.
func WithAdminToken(token string) HandlerOption {
	return func(h *HTTPHandler) { h.adminToken = token }
}

// WithLogger sets the handler's logger.
func WithLogger(log *zap.SugaredLogger) HandlerOption {
	return func(h *HTTPHandler) {
		if log != nil {
			h.log = log
		}
	}
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// NewHTTPHandler creates a new HTTPHandler with dependencies.
func NewHTTPHandler(cs store.CategoryStorer, ps store.ProductStorer, opts ...HandlerOption) *HTTPHandler {
	v := validator.New()
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})

	h := &HTTPHandler{
		categoryStore: cs,
		productStore:  ps,
		treeCache:     noopTreeCache{},
		validate:      v,
		log:           zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// --- Helpers ---

// ErrorResponse defines the structure for JSON error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PaginationInfo describes a page of a listing.
type PaginationInfo struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

func newPaginationInfo(page, limit, totalItems int) PaginationInfo {
	totalPages := 0
	if totalItems > 0 {
		totalPages = (totalItems + limit - 1) / limit
	}
	return PaginationInfo{Page: page, Limit: limit, TotalItems: totalItems, TotalPages: totalPages}
}

// pageParams reads page/limit query parameters with defaults and an upper bound.
func pageParams(r *http.Request, defaultLimit, maxLimit int) (page, limit int) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	page, err = strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page <= 0 {
		page = 1
	}
	return page, limit
}

// idParam parses a positive int64 URL parameter.
func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (h *HTTPHandler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, ErrorResponse{Error: message})
}

func (h *HTTPHandler) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Errorw("failed to encode JSON response", "error", err)
	}
}

func (h *HTTPHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, input any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(input); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return false
	}
	if err := h.validate.Struct(input); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return false
	}
	return true
}

// --- Category Handlers ---

// CategoryCreateInput defines the expected input for creating a category.
type CategoryCreateInput struct {
	Name             string  `json:"name" validate:"required,max=255"`
	NameKK           *string `json:"name_kk" validate:"omitempty,max=255"`
	Slug             string  `json:"slug" validate:"required,max=255,slug"`
	Description      *string `json:"description" validate:"omitempty"`
	ParentCategoryID *int64  `json:"parent_category_id" validate:"omitempty,gt=0"`
}

// CategoryUpdateInput defines the expected input for updating a category.
type CategoryUpdateInput CategoryCreateInput

func (h *HTTPHandler) categoryStoreError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrCategoryNotFound):
		h.respondWithError(w, http.StatusNotFound, store.ErrCategoryNotFound.Error())
	case errors.Is(err, store.ErrCategoryNameExists), errors.Is(err, store.ErrCategorySlugExists),
		errors.Is(err, store.ErrCategoryHasChildren):
		h.respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrParentCategoryNotFound):
		h.respondWithError(w, http.StatusBadRequest, store.ErrParentCategoryNotFound.Error())
	default:
		h.respondWithError(w, http.StatusInternalServerError, fallback)
	}
}

func (h *HTTPHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var input CategoryCreateInput
	if !h.decodeAndValidate(w, r, &input) {
		return
	}

	category := &domain.Category{
		Name:             input.Name,
		NameKK:           input.NameKK,
		Slug:             input.Slug,
		Description:      input.Description,
		ParentCategoryID: input.ParentCategoryID,
	}

	createdCategory, err := h.categoryStore.CreateCategory(r.Context(), category)
	if err != nil {
		h.log.Errorw("CreateCategory store operation failed", "error", err)
		h.categoryStoreError(w, err, "Failed to create category")
		return
	}

	h.treeCache.Invalidate(r.Context())
	h.respondWithJSON(w, http.StatusCreated, createdCategory)
}

func (h *HTTPHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r, 10, 100)
	params := store.ListCategoriesParams{Limit: limit, Offset: (page - 1) * limit}

	if parentStr := r.URL.Query().Get("parent_id"); parentStr != "" {
		parentID, err := strconv.ParseInt(parentStr, 10, 64)
		if err != nil || parentID <= 0 {
			h.respondWithError(w, http.StatusBadRequest, "Invalid parent_id format")
			return
		}
		params.ParentID = &parentID
	}

	categories, totalCount, err := h.categoryStore.ListCategories(r.Context(), params)
	if err != nil {
		h.log.Errorw("ListCategories store operation failed", "error", err)
		h.respondWithError(w, http.StatusInternalServerError, "Failed to retrieve categories")
		return
	}

	h.respondWithJSON(w, http.StatusOK, struct {
		Data       []domain.Category `json:"data"`
		Pagination PaginationInfo    `json:"pagination"`
	}{
		Data:       categories,
		Pagination: newPaginationInfo(page, limit, totalCount),
	})
}

// CategoryTree serves the nested navigation tree for ?lang=ru|kk.
func (h *HTTPHandler) CategoryTree(w http.ResponseWriter, r *http.Request) {
	locale := r.URL.Query().Get("lang")
	if locale == "" {
		locale = domain.LocaleRU
	}
	if locale != domain.LocaleRU && locale != domain.LocaleKK {
		h.respondWithError(w, http.StatusBadRequest, "Invalid lang value. Allowed: ru, kk")
		return
	}

	body, hit, err := renderCategoryTree(r.Context(), h.categoryStore, h.treeCache, locale)
	if err != nil {
		h.log.Errorw("category tree render failed", "locale", locale, "error", err)
		h.respondWithError(w, http.StatusInternalServerError, "Failed to retrieve category tree")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// renderCategoryTree returns the JSON tree for locale, from cache when possible.
func renderCategoryTree(ctx context.Context, cs store.CategoryStorer, cache CategoryTreeCache, locale string) ([]byte, bool, error) {
	if cached, ok := cache.Get(ctx, locale); ok {
		return cached, true, nil
	}

	categories, err := cs.ListAllCategories(ctx)
	if err != nil {
		return nil, false, err
	}
	body, err := json.Marshal(struct {
		Data []domain.CategoryNode `json:"data"`
	}{Data: domain.BuildCategoryTree(categories, locale)})
	if err != nil {
		return nil, false, err
	}
	cache.Set(ctx, locale, body)
	return body, false, nil
}

func (h *HTTPHandler) GetCategoryByID(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := idParam(r, "categoryId")
	if !ok {
		h.respondWithError(w, http.StatusBadRequest, "Invalid category ID format")
		return
	}

	category, err := h.categoryStore.GetCategoryByID(r.Context(), categoryID)
	if err != nil {
		h.log.Errorw("GetCategoryByID store operation failed", "category_id", categoryID, "error", err)
		h.categoryStoreError(w, err, "Failed to retrieve category")
		return
	}

	h.respondWithJSON(w, http.StatusOK, category)
}

// createsCycle reports whether making parentID the parent of categoryID would put
// categoryID among its own ancestors.
func createsCycle(all []domain.Category, categoryID, parentID int64) bool {
	parents := make(map[int64]*int64, len(all))
	for _, c := range all {
		parents[c.ID] = c.ParentCategoryID
	}
	seen := make(map[int64]bool)
	for cur := &parentID; cur != nil; cur = parents[*cur] {
		if *cur == categoryID {
			return true
		}
		if seen[*cur] {
			return false
		}
		seen[*cur] = true
	}
	return false
}

func (h *HTTPHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := idParam(r, "categoryId")
	if !ok {
		h.respondWithError(w, http.StatusBadRequest, "Invalid category ID format")
		return
	}

	var input CategoryUpdateInput
	if !h.decodeAndValidate(w, r, &input) {
		return
	}

	// A category cannot be its own parent, directly or through its descendants.
	if input.ParentCategoryID != nil {
		if *input.ParentCategoryID == categoryID {
			h.respondWithError(w, http.StatusBadRequest, "Category cannot be its own parent")
			return
		}
		all, err := h.categoryStore.ListAllCategories(r.Context())
		if err != nil {
			h.log.Errorw("ListAllCategories store operation failed", "error", err)
			h.respondWithError(w, http.StatusInternalServerError, "Failed to update category")
			return
		}
		if createsCycle(all, categoryID, *input.ParentCategoryID) {
			h.respondWithError(w, http.StatusBadRequest, "Category cannot be moved under its own descendant")
			return
		}
	}

	category := &domain.Category{
		ID:               categoryID,
		Name:             input.Name,
		NameKK:           input.NameKK,
		Slug:             input.Slug,
		Description:      input.Description,
		ParentCategoryID: input.ParentCategoryID,
	}

	updatedCategory, err := h.categoryStore.UpdateCategory(r.Context(), category)
	if err != nil {
		h.log.Errorw("UpdateCategory store operation failed", "category_id", categoryID, "error", err)
		h.categoryStoreError(w, err, "Failed to update category")
		return
	}

	h.treeCache.Invalidate(r.Context())
	h.respondWithJSON(w, http.StatusOK, updatedCategory)
}

func (h *HTTPHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := idParam(r, "categoryId")
	if !ok {
		h.respondWithError(w, http.StatusBadRequest, "Invalid category ID format")
		return
	}

	if err := h.categoryStore.DeleteCategory(r.Context(), categoryID); err != nil {
		h.log.Errorw("DeleteCategory store operation failed", "category_id", categoryID, "error", err)
		h.categoryStoreError(w, err, "Failed to delete category")
		return
	}

	h.treeCache.Invalidate(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// --- Route Registration ---

// RegisterRoutes sets up the HTTP routes for the service.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/categories", func(r chi.Router) {
		r.Post("/", h.CreateCategory)
		r.Get("/", h.ListCategories)
		r.Get("/tree", h.CategoryTree)
		r.Route("/{categoryId}", func(r chi.Router) {
			r.Get("/", h.GetCategoryByID)
			r.Put("/", h.UpdateCategory)
			r.Delete("/", h.DeleteCategory)
		})
	})

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Post("/", h.CreateProduct)
		r.Get("/", h.ListProducts)
		// Registered before {productId} so "recent" is not parsed as an ID.
		r.Get("/recent", h.GetRecentProducts)
		r.Route("/{productId}", func(r chi.Router) {
			r.Get("/", h.GetProductByID)
			r.Put("/", h.UpdateProduct)
			r.Delete("/", h.DeleteProduct)
		})
	})

	r.Post("/api/v1/leads", h.CreateLead)

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Post("/recount", h.RecountCategories)
	})
}
