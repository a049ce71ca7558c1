package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/quotecompare/backend/internal/domain"
	"github.com/quotecompare/backend/internal/infrastructure/export"
	"github.com/quotecompare/backend/internal/usecase"
)

const (
	serviceName    = "quotecompare-backend"
	serviceVersion = "1.0.0"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	quotations     *usecase.QuotationService
	comparison     *usecase.ComparisonService
	exports        *usecase.ExportService
	store          Pinger
	maxUploadBytes int64
}

// NewHandler creates a new HTTP handler
func NewHandler(
	quotations *usecase.QuotationService,
	comparison *usecase.ComparisonService,
	exports *usecase.ExportService,
	store Pinger,
	maxUploadBytes int64,
) *Handler {
	return &Handler{
		quotations:     quotations,
		comparison:     comparison,
		exports:        exports,
		store:          store,
		maxUploadBytes: maxUploadBytes,
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	if h.store != nil {
		if err := h.store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"service": serviceName,
				"error":   err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
		"version": serviceVersion,
	})
}

// UploadQuotation handles multipart uploads: "file" is the quotation
// document, "api_key" optionally overrides the configured AI key.
func (h *Handler) UploadQuotation(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		// multipart overhead on top of the file itself
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+1<<20)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, h.tooLargeError())
			return
		}
		respondError(c, domain.NewValidationError("file", "is required"))
		return
	}
	if h.maxUploadBytes > 0 && fh.Size > h.maxUploadBytes {
		respondError(c, h.tooLargeError())
		return
	}

	f, err := fh.Open()
	if err != nil {
		respondError(c, fmt.Errorf("opening upload: %w", err))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		respondError(c, fmt.Errorf("reading upload: %w", err))
		return
	}

	doc := domain.Document{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}
	result, err := h.quotations.Upload(c.Request.Context(), doc, c.PostForm("api_key"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *Handler) tooLargeError() error {
	return domain.NewValidationError("file", fmt.Sprintf("exceeds %d bytes", h.maxUploadBytes))
}

// ListItems returns every stored item
func (h *Handler) ListItems(c *gin.Context) {
	items, err := h.quotations.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

// GetItem returns one item by id
func (h *Handler) GetItem(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	item, err := h.quotations.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// updateItemRequest accepts a full or partial item. Numbers are kept raw so
// that non-numeric values are reported instead of silently zeroed;
// total_price is accepted but ignored since it is always derived.
type updateItemRequest struct {
	ProductID    *string         `json:"product_id"`
	ProductName  *string         `json:"product_name"`
	Quantity     json.RawMessage `json:"quantity"`
	UnitPrice    json.RawMessage `json:"unit_price"`
	TotalPrice   json.RawMessage `json:"total_price"`
	SupplierName *string         `json:"supplier_name"`
}

func (r updateItemRequest) patch() (domain.ItemPatch, error) {
	p := domain.ItemPatch{
		ProductID:    r.ProductID,
		ProductName:  r.ProductName,
		SupplierName: r.SupplierName,
	}
	var err error
	if p.Quantity, err = numericField("quantity", r.Quantity); err != nil {
		return p, err
	}
	if p.UnitPrice, err = numericField("unit_price", r.UnitPrice); err != nil {
		return p, err
	}
	return p, nil
}

func numericField(field string, raw json.RawMessage) (*decimal.Decimal, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(trimmed); err != nil {
		return nil, domain.NewValidationError(field, "must be numeric")
	}
	return &d, nil
}

// UpdateItem applies a full or partial update and returns the stored result
func (h *Handler) UpdateItem(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}

	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.NewValidationError("body", "invalid JSON: "+err.Error()))
		return
	}
	patch, err := req.patch()
	if err != nil {
		respondError(c, err)
		return
	}

	item, err := h.quotations.Update(c.Request.Context(), id, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// Compare returns the grouped best-price view over every stored item
func (h *Handler) Compare(c *gin.Context) {
	cmp, err := h.comparison.Compare(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if cmp.IsEmpty() {
		c.JSON(http.StatusOK, gin.H{
			"groups":  []domain.ProductGroup{},
			"empty":   true,
			"message": "nothing to compare",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": cmp.Groups, "empty": false})
}

// ExportCSV downloads the selected batch as CSV
func (h *Handler) ExportCSV(c *gin.Context) {
	sel, err := h.exports.Select(c.Request.Context(), c.Query("batch"))
	if err != nil {
		respondError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, sel.Items); err != nil {
		respondError(c, err)
		return
	}
	attachment(c, fmt.Sprintf("quotations_%s.csv", sel.Batch))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// ExportXLSX downloads the selected batch as an Excel workbook with a
// comparison sheet
func (h *Handler) ExportXLSX(c *gin.Context) {
	sel, err := h.exports.Select(c.Request.Context(), c.Query("batch"))
	if err != nil {
		respondError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, sel.Items, sel.Comparison); err != nil {
		respondError(c, err)
		return
	}
	attachment(c, fmt.Sprintf("quotations_%s.xlsx", sel.Batch))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func attachment(c *gin.Context, filename string) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}

func itemID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, domain.NewValidationError("id", "must be a positive integer"))
		return 0, false
	}
	return id, true
}
