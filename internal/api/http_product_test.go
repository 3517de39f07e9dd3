package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"metal-catalog-service/internal/domain"
	"metal-catalog-service/internal/store"
)

// MockProductStorer is a mock implementation of store.ProductStorer
type MockProductStorer struct {
	mock.Mock
}

func (m *MockProductStorer) CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	args := m.Called(ctx, product)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *MockProductStorer) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *MockProductStorer) ListProducts(ctx context.Context, params store.ListProductsParams) ([]domain.Product, int, error) {
	args := m.Called(ctx, params)
	var products []domain.Product
	if arg0 := args.Get(0); arg0 != nil {
		products = arg0.([]domain.Product)
	}
	return products, args.Int(1), args.Error(2)
}

func (m *MockProductStorer) UpdateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	args := m.Called(ctx, product)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *MockProductStorer) DeleteProduct(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockProductStorer) GetRecentProducts(ctx context.Context, limit int) ([]domain.Product, error) {
	args := m.Called(ctx, limit)
	var products []domain.Product
	if arg0 := args.Get(0); arg0 != nil {
		products = arg0.([]domain.Product)
	}
	return products, args.Error(1)
}

// MockLeadStorer is a mock implementation of store.LeadStorer
type MockLeadStorer struct {
	mock.Mock
}

func (m *MockLeadStorer) CreateLead(ctx context.Context, lead *domain.Lead) (*domain.Lead, error) {
	args := m.Called(ctx, lead)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Lead), args.Error(1)
}

func TestHTTPHandler_CreateProduct_Success(t *testing.T) {
	mockProdStore := new(MockProductStorer)
	server := setupTestChiServer(t, nil, mockProdStore)

	attrs := json.RawMessage(`{"gost":"30245-2003","steel":"Ст3сп"}`)
	input := ProductCreateInput{
		Name:       "Труба профильная 40х20х2",
		Slug:       "truba-profilnaya-40x20x2",
		SKU:        "TP-40-20-2",
		Price:      decimal.RequireFromString("1250.50"),
		Unit:       "м",
		CategoryID: PtrTo(int64(3)),
		Attributes: &attrs,
	}

	mockProdStore.On("CreateProduct", mock.Anything, mock.MatchedBy(func(p *domain.Product) bool {
		return p.SKU == "TP-40-20-2" && p.IsActive && p.Price.Equal(decimal.RequireFromString("1250.5"))
	})).Return(&domain.Product{ID: 10, Name: input.Name, SKU: input.SKU, Price: input.Price, IsActive: true}, nil).Once()

	res := doJSON(t, http.MethodPost, server.URL+"/api/v1/products", input)
	require.Equal(t, http.StatusCreated, res.StatusCode)

	var created domain.Product
	require.NoError(t, json.NewDecoder(res.Body).Decode(&created))
	assert.Equal(t, int64(10), created.ID)
	assert.True(t, created.Price.Equal(decimal.RequireFromString("1250.50")))

	mockProdStore.AssertExpectations(t)
}

func TestHTTPHandler_CreateProduct_Rejected(t *testing.T) {
	notObject := json.RawMessage(`["Ст3сп"]`)
	cases := []struct {
		name  string
		input ProductCreateInput
	}{
		{"negative price", ProductCreateInput{Name: "Лист", Slug: "list", SKU: "L-1", Unit: "т", Price: decimal.NewFromInt(-1)}},
		{"missing unit", ProductCreateInput{Name: "Лист", Slug: "list", SKU: "L-1"}},
		{"attributes not an object", ProductCreateInput{Name: "Лист", Slug: "list", SKU: "L-1", Unit: "т", Attributes: &notObject}},
		{"bad image url", ProductCreateInput{Name: "Лист", Slug: "list", SKU: "L-1", Unit: "т", ImageURL: PtrTo("not a url")}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mockProdStore := new(MockProductStorer)
			server := setupTestChiServer(t, nil, mockProdStore)

			res := doJSON(t, http.MethodPost, server.URL+"/api/v1/products", tc.input)

			assert.Equal(t, http.StatusBadRequest, res.StatusCode)
			mockProdStore.AssertNotCalled(t, "CreateProduct", mock.Anything, mock.Anything)
		})
	}
}

func TestHTTPHandler_CreateProduct_StoreErrors(t *testing.T) {
	cases := []struct {
		name       string
		storeErr   error
		wantStatus int
	}{
		{"sku exists", store.ErrProductSKUExists, http.StatusConflict},
		{"slug exists", store.ErrProductSlugExists, http.StatusConflict},
		{"unknown category", store.ErrCategoryNotFound, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mockProdStore := new(MockProductStorer)
			server := setupTestChiServer(t, nil, mockProdStore)

			mockProdStore.On("CreateProduct", mock.Anything, mock.AnythingOfType("*domain.Product")).
				Return(nil, tc.storeErr).Once()

			res := doJSON(t, http.MethodPost, server.URL+"/api/v1/products",
				ProductCreateInput{Name: "Уголок 50х50", Slug: "ugolok-50x50", SKU: "UG-50", Unit: "м", Price: decimal.NewFromInt(890)})

			assert.Equal(t, tc.wantStatus, res.StatusCode)
			mockProdStore.AssertExpectations(t)
		})
	}
}

func TestHTTPHandler_ListProducts_Filters(t *testing.T) {
	mockProdStore := new(MockProductStorer)
	server := setupTestChiServer(t, nil, mockProdStore)

	expected := store.ListProductsParams{
		Limit: 20, Offset: 20,
		SearchQuery: PtrTo("арматура"),
		CategoryID:  PtrTo(int64(3)),
		MinPrice:    PtrTo(100.0),
		IsActive:    PtrTo(true),
		SortBy:      "price",
		SortOrder:   "desc",
	}
	mockProdStore.On("ListProducts", mock.Anything, expected).
		Return([]domain.Product{{ID: 1, Name: "Арматура А500С 12мм"}}, 21, nil).Once()

	res := doJSON(t, http.MethodGet, server.URL+
		"/api/v1/products?page=2&limit=20&q=%D0%B0%D1%80%D0%BC%D0%B0%D1%82%D1%83%D1%80%D0%B0&category_id=3&min_price=100&is_active=true&sort_by=price&sort_order=DESC", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var payload struct {
		Data       []domain.Product `json:"data"`
		Pagination PaginationInfo   `json:"pagination"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	assert.Len(t, payload.Data, 1)
	assert.Equal(t, 2, payload.Pagination.TotalPages)

	mockProdStore.AssertExpectations(t)
}

func TestHTTPHandler_ListProducts_InvalidQuery(t *testing.T) {
	queries := []string{
		"category_id=x",
		"min_price=-5",
		"min_price=500&max_price=100",
		"is_active=maybe",
		"sort_by=stock",
		"sort_order=sideways",
	}

	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			mockProdStore := new(MockProductStorer)
			server := setupTestChiServer(t, nil, mockProdStore)

			res := doJSON(t, http.MethodGet, server.URL+"/api/v1/products?"+q, nil)

			assert.Equal(t, http.StatusBadRequest, res.StatusCode)
			mockProdStore.AssertNotCalled(t, "ListProducts", mock.Anything, mock.Anything)
		})
	}
}

func TestHTTPHandler_GetRecentProducts(t *testing.T) {
	mockProdStore := new(MockProductStorer)
	server := setupTestChiServer(t, nil, mockProdStore)

	mockProdStore.On("GetRecentProducts", mock.Anything, 4).
		Return([]domain.Product{{ID: 9, Name: "Швеллер 10П"}}, nil).Once()

	res := doJSON(t, http.MethodGet, server.URL+"/api/v1/products/recent?limit=4", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var payload struct {
		Data []domain.Product `json:"data"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	require.Len(t, payload.Data, 1)
	assert.Equal(t, int64(9), payload.Data[0].ID)

	mockProdStore.AssertExpectations(t)
}

func TestHTTPHandler_UpdateAndDeleteProduct(t *testing.T) {
	mockProdStore := new(MockProductStorer)
	server := setupTestChiServer(t, nil, mockProdStore)

	mockProdStore.On("UpdateProduct", mock.Anything, mock.MatchedBy(func(p *domain.Product) bool {
		return p.ID == 5 && !p.IsActive
	})).Return(&domain.Product{ID: 5, Name: "Лист 2мм", IsActive: false}, nil).Once()
	mockProdStore.On("UpdateProduct", mock.Anything, mock.MatchedBy(func(p *domain.Product) bool {
		return p.ID == 6
	})).Return(nil, store.ErrProductNotFound).Once()
	mockProdStore.On("DeleteProduct", mock.Anything, int64(5)).Return(nil).Once()

	input := ProductUpdateInput{Name: "Лист 2мм", Slug: "list-2mm", SKU: "L-2", Unit: "т", Price: decimal.NewFromInt(410000), IsActive: PtrTo(false)}

	res := doJSON(t, http.MethodPut, server.URL+"/api/v1/products/5", input)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res = doJSON(t, http.MethodPut, server.URL+"/api/v1/products/6", input)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res = doJSON(t, http.MethodDelete, server.URL+"/api/v1/products/5", nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	res = doJSON(t, http.MethodGet, server.URL+"/api/v1/products/0", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	mockProdStore.AssertExpectations(t)
}

func TestHTTPHandler_CreateLead(t *testing.T) {
	mockLeads := new(MockLeadStorer)
	server := setupTestChiServer(t, nil, nil, WithLeadStore(mockLeads))

	mockLeads.On("CreateLead", mock.Anything, mock.MatchedBy(func(l *domain.Lead) bool {
		return l.Phone == "+77011234567" && l.Locale == domain.LocaleRU && l.Source == "contact"
	})).Return(&domain.Lead{ID: 1, Name: "Ерлан", Phone: "+77011234567", Locale: "ru", Source: "contact"}, nil).Once()
	mockLeads.On("CreateLead", mock.Anything, mock.MatchedBy(func(l *domain.Lead) bool {
		return l.ProductID != nil && *l.ProductID == 404
	})).Return(nil, store.ErrProductNotFound).Once()

	res := doJSON(t, http.MethodPost, server.URL+"/api/v1/leads",
		LeadCreateInput{Name: " Ерлан ", Phone: " +77011234567 "})
	assert.Equal(t, http.StatusCreated, res.StatusCode)

	res = doJSON(t, http.MethodPost, server.URL+"/api/v1/leads",
		LeadCreateInput{Name: "Ерлан", Phone: "+77011234567", ProductID: PtrTo(int64(404)), Source: "quote"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = doJSON(t, http.MethodPost, server.URL+"/api/v1/leads",
		LeadCreateInput{Name: "Ерлан", Phone: "+77011234567", Email: PtrTo("not-an-email")})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	mockLeads.AssertExpectations(t)
}

func TestHTTPHandler_CreateLead_Unavailable(t *testing.T) {
	server := setupTestChiServer(t, nil, nil)

	res := doJSON(t, http.MethodPost, server.URL+"/api/v1/leads", LeadCreateInput{Name: "Ерлан", Phone: "+77011234567"})

	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
}
