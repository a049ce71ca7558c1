package http

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/quotecompare/backend/config"
	"github.com/quotecompare/backend/internal/domain"
	"github.com/quotecompare/backend/internal/infrastructure/cache"
	"github.com/quotecompare/backend/internal/infrastructure/heuristic"
	"github.com/quotecompare/backend/internal/infrastructure/metrics"
	"github.com/quotecompare/backend/internal/infrastructure/pdftext"
	"github.com/quotecompare/backend/internal/infrastructure/sqlite"
	"github.com/quotecompare/backend/internal/usecase"
)

// TestMain sets up test environment before running tests
func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

const acmeQuote = `ACME Supplies Ltd
Steel Bolt 10 1.50 15.00
Hex Nut 20 0.80 16.00
`

const betaQuote = `Beta Hardware Inc
steel bolt  5 1.20 6.00
`

// failingExtractor stands in for the AI service
type failingExtractor struct{ err error }

func (f failingExtractor) ExtractLines(ctx context.Context, text, credential string) ([]domain.ExtractedLine, error) {
	return nil, f.err
}

type uploadResponse struct {
	BatchID string                 `json:"batch_id"`
	Source  string                 `json:"source"`
	Mode    string                 `json:"mode"`
	Items   []domain.QuotationItem `json:"items"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// setupTestRouter wires the real store, cache and extractors behind the router.
// ai may be nil, in which case uploads use the heuristic extractor.
func setupTestRouter(t *testing.T, ai domain.LineExtractor) *gin.Engine {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:           "8080",
			Environment:    "test",
			AllowedOrigins: []string{"http://localhost:*"},
		},
		Extraction: config.ExtractionConfig{Timeout: 5 * time.Second, MaxUploadBytes: 1 << 20},
		Cache:      config.CacheConfig{TTL: time.Hour},
	}

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "items.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	memCache := cache.NewMemoryCache(time.Minute)
	t.Cleanup(memCache.Close)

	reg := metrics.NewRegistry()
	quotations := usecase.NewQuotationService(
		store, pdftext.NewReader(), ai, heuristic.NewExtractor(), memCache, reg,
		usecase.QuotationServiceConfig{
			ExtractionTimeout:    cfg.Extraction.Timeout,
			CacheTTL:             cfg.Cache.TTL,
			DefaultKeyConfigured: ai != nil,
		},
	)
	handler := NewHandler(
		quotations,
		usecase.NewComparisonService(store),
		usecase.NewExportService(store),
		store,
		cfg.Extraction.MaxUploadBytes,
	)

	return SetupRouter(cfg, handler, zerolog.Nop(), reg)
}

func upload(t *testing.T, router *gin.Engine, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/quotations/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var e errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

func TestHealthCheckEndpoint(t *testing.T) {
	router := setupTestRouter(t, nil)

	w := doJSON(router, "GET", "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
	assert.Equal(t, "quotecompare-backend", response["service"])

	for _, method := range []string{"POST", "PUT", "DELETE"} {
		w := doJSON(router, method, "/health", "")
		assert.Equal(t, http.StatusNotFound, w.Code, method)
	}
}

func TestUploadListCompareUpdateFlow(t *testing.T) {
	router := setupTestRouter(t, nil)

	// empty store has nothing to compare
	w := doJSON(router, "GET", "/api/v1/comparison", "")
	require.Equal(t, http.StatusOK, w.Code)
	var empty map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &empty))
	assert.Equal(t, true, empty["empty"])
	assert.Equal(t, "nothing to compare", empty["message"])

	w = upload(t, router, "acme.txt", acmeQuote)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var first uploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.Equal(t, "acme.txt", first.Source)
	assert.Equal(t, string(domain.ModeHeuristic), first.Mode)
	require.Len(t, first.Items, 2)
	assert.Equal(t, "Steel Bolt", first.Items[0].ProductName)
	assert.Equal(t, "ACME Supplies Ltd", first.Items[0].SupplierName)
	assert.True(t, first.Items[0].TotalPrice.Equal(decimal.NewFromInt(15)))

	w = upload(t, router, "beta.txt", betaQuote)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var second uploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	require.Len(t, second.Items, 1)
	assert.NotEqual(t, first.BatchID, second.BatchID)
	betaBolt := second.Items[0]
	assert.Equal(t, int64(3), betaBolt.ID)

	// list returns everything from the store
	w = doJSON(router, "GET", "/api/v1/items", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Items []domain.QuotationItem `json:"items"`
		Count int                    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 3, list.Count)

	// comparison groups the two bolts and marks the cheaper one
	var cmp struct {
		Groups []domain.ProductGroup `json:"groups"`
		Empty  bool                  `json:"empty"`
	}
	w = doJSON(router, "GET", "/api/v1/comparison", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cmp))
	assert.False(t, cmp.Empty)
	require.Len(t, cmp.Groups, 2)
	bolts := cmp.Groups[0]
	assert.Equal(t, "steel bolt", bolts.Key)
	require.Len(t, bolts.Items, 2)
	assert.False(t, bolts.Items[0].IsBest)
	assert.True(t, bolts.Items[1].IsBest)
	assert.Equal(t, "Beta Hardware Inc", bolts.Items[1].SupplierName)

	// price edit re-derives the total from the stored quantity
	w = doJSON(router, "PATCH", "/api/v1/items/3", `{"unit_price": 1.00}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated domain.QuotationItem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.True(t, updated.TotalPrice.Equal(decimal.RequireFromString("5.00")))

	// a client-supplied total is ignored
	w = doJSON(router, "PUT", "/api/v1/items/1", `{"product_name":"Steel Bolt","quantity":"4","unit_price":"1.50","total_price":"999"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.True(t, updated.TotalPrice.Equal(decimal.RequireFromString("6")))

	// name-only edit leaves numbers alone
	w = doJSON(router, "PATCH", "/api/v1/items/2", `{"product_name":"Hex Nut M8"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "Hex Nut M8", updated.ProductName)
	assert.True(t, updated.TotalPrice.Equal(decimal.NewFromInt(16)))

	w = doJSON(router, "GET", "/api/v1/items/3", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.True(t, updated.UnitPrice.Equal(decimal.NewFromInt(1)))
}

func TestUpdateItem_Errors(t *testing.T) {
	router := setupTestRouter(t, nil)
	require.Equal(t, http.StatusCreated, upload(t, router, "acme.txt", acmeQuote).Code)

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantKind   string
	}{
		{"unknown id", "/api/v1/items/999", `{"unit_price": 1}`, http.StatusNotFound, KindNotFound},
		{"malformed id", "/api/v1/items/abc", `{"unit_price": 1}`, http.StatusBadRequest, KindValidationFailed},
		{"non-numeric quantity", "/api/v1/items/1", `{"quantity": "lots"}`, http.StatusBadRequest, KindValidationFailed},
		{"negative price", "/api/v1/items/1", `{"unit_price": -2}`, http.StatusBadRequest, KindValidationFailed},
		{"blank name", "/api/v1/items/1", `{"product_name": " "}`, http.StatusBadRequest, KindValidationFailed},
		{"invalid json", "/api/v1/items/1", `{"unit_price":`, http.StatusBadRequest, KindValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(router, "PATCH", tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantKind, decodeError(t, w).Kind)
		})
	}

	// none of the rejected edits reached the store
	w := doJSON(router, "GET", "/api/v1/items/1", "")
	var item domain.QuotationItem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &item))
	assert.True(t, item.Quantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, item.UnitPrice.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, "Steel Bolt", item.ProductName)
}

func TestGetItem_NotFound(t *testing.T) {
	router := setupTestRouter(t, nil)

	w := doJSON(router, "GET", "/api/v1/items/42", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, KindNotFound, decodeError(t, w).Kind)
}

func TestUpload_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		router := setupTestRouter(t, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/quotations/upload", strings.NewReader(""))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, KindValidationFailed, decodeError(t, w).Kind)
	})

	t.Run("file over the size limit", func(t *testing.T) {
		router := setupTestRouter(t, nil)
		w := upload(t, router, "big.txt", strings.Repeat("x", 1<<20+512))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		e := decodeError(t, w)
		assert.Equal(t, KindValidationFailed, e.Kind)
		assert.Contains(t, e.Error, "exceeds 1048576 bytes")
	})

	t.Run("request body over the limit", func(t *testing.T) {
		router := setupTestRouter(t, nil)
		w := upload(t, router, "huge.txt", strings.Repeat("x", 3<<20))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		e := decodeError(t, w)
		assert.Equal(t, KindValidationFailed, e.Kind)
		assert.Contains(t, e.Error, "exceeds 1048576 bytes")
		assert.NotContains(t, e.Error, "is required")
	})

	t.Run("unsupported document", func(t *testing.T) {
		router := setupTestRouter(t, nil)
		w := upload(t, router, "quote.docx", "PK\x03\x04")

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, KindExtractionFailed, decodeError(t, w).Kind)
	})

	t.Run("nothing extractable", func(t *testing.T) {
		router := setupTestRouter(t, nil)
		w := upload(t, router, "notes.txt", "thank you for your business")

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, KindExtractionFailed, decodeError(t, w).Kind)
	})

	t.Run("AI failure stores nothing", func(t *testing.T) {
		router := setupTestRouter(t, failingExtractor{err: domain.ErrCredentialRejected})
		w := upload(t, router, "acme.txt", acmeQuote)

		assert.Equal(t, http.StatusBadGateway, w.Code)
		e := decodeError(t, w)
		assert.Equal(t, KindExtractionFailed, e.Kind)
		assert.Contains(t, e.Error, "credential rejected")

		w = doJSON(router, "GET", "/api/v1/items", "")
		assert.Contains(t, w.Body.String(), `"count":0`)
	})
}

func TestExportEndpoints(t *testing.T) {
	router := setupTestRouter(t, nil)

	// empty store exports headers only
	w := doJSON(router, "GET", "/api/v1/export/csv", "")
	require.Equal(t, http.StatusOK, w.Code)
	records, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1)

	require.Equal(t, http.StatusCreated, upload(t, router, "acme.txt", acmeQuote).Code)
	require.Equal(t, http.StatusCreated, upload(t, router, "beta.txt", betaQuote).Code)

	t.Run("csv defaults to latest batch", func(t *testing.T) {
		w := doJSON(router, "GET", "/api/v1/export/csv", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
		assert.Contains(t, w.Header().Get("Content-Disposition"), "quotations_latest.csv")

		records, err := csv.NewReader(w.Body).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "beta.txt", records[1][2])
	})

	t.Run("xlsx with all batches", func(t *testing.T) {
		w := doJSON(router, "GET", "/api/v1/export/xlsx?batch=all", "")
		require.Equal(t, http.StatusOK, w.Code)

		f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
		require.NoError(t, err)
		defer f.Close()

		rows, err := f.GetRows("Items")
		require.NoError(t, err)
		assert.Len(t, rows, 4)
		cmpRows, err := f.GetRows("Comparison")
		require.NoError(t, err)
		assert.Len(t, cmpRows, 4)
	})

	t.Run("bad batch", func(t *testing.T) {
		w := doJSON(router, "GET", "/api/v1/export/csv?batch=yesterday", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	router := setupTestRouter(t, nil)
	require.Equal(t, http.StatusCreated, upload(t, router, "acme.txt", acmeQuote).Code)

	w := doJSON(router, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `quotecompare_uploads_total{mode="heuristic"} 1`)
	assert.Contains(t, w.Body.String(), "quotecompare_items_inserted_total 2")
}
