package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quotecompare/backend/internal/domain"
	"github.com/quotecompare/backend/internal/infrastructure/metrics"
)

// QuotationServiceConfig holds configuration for the quotation service
type QuotationServiceConfig struct {
	ExtractionTimeout time.Duration
	HeuristicFallback bool
	CacheTTL          time.Duration
	// DefaultKeyConfigured is true when the AI extractor can run without an upload key
	DefaultKeyConfigured bool
}

// QuotationService turns uploaded documents into stored items and applies edits
type QuotationService struct {
	items     domain.ItemRepository
	text      domain.TextExtractor
	ai        domain.LineExtractor
	heuristic domain.LineExtractor
	cache     domain.CacheRepository
	metrics   *metrics.Registry
	cfg       QuotationServiceConfig
	newBatch  func() string
}

// NewQuotationService creates a new quotation service. ai may be nil, in which
// case every upload goes through the heuristic extractor. A nil reg gets a
// private registry nobody scrapes.
func NewQuotationService(
	items domain.ItemRepository,
	text domain.TextExtractor,
	ai domain.LineExtractor,
	heuristic domain.LineExtractor,
	cache domain.CacheRepository,
	reg *metrics.Registry,
	config QuotationServiceConfig,
) *QuotationService {
	if config.ExtractionTimeout <= 0 {
		config.ExtractionTimeout = 60 * time.Second
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 24 * time.Hour
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &QuotationService{
		items:     items,
		text:      text,
		ai:        ai,
		heuristic: heuristic,
		cache:     cache,
		metrics:   reg,
		cfg:       config,
		newBatch:  func() string { return uuid.NewString() },
	}
}

// Upload extracts line items from doc and stores them as one batch.
// Flow: read text -> cache -> AI or heuristic extraction -> validate -> insert.
// Nothing is stored unless extraction produced at least one valid item.
func (s *QuotationService) Upload(ctx context.Context, doc domain.Document, credential string) (*domain.UploadResult, error) {
	logger := zerolog.Ctx(ctx)
	start := time.Now()

	text, err := s.text.ExtractText(ctx, doc)
	if err != nil {
		s.metrics.ExtractionFailures.WithLabelValues("unreadable").Inc()
		if !errors.Is(err, domain.ErrExtractionFailed) {
			err = fmt.Errorf("%w: %v", domain.ErrUnreadableDocument, err)
		}
		return nil, err
	}

	lines, mode, err := s.extract(ctx, text, credential)
	s.metrics.ExtractionSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		reason := "service"
		if errors.Is(err, domain.ErrCredentialRejected) {
			reason = "credential"
		} else if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		s.metrics.ExtractionFailures.WithLabelValues(reason).Inc()
		logger.Warn().Err(err).Str("source", doc.Filename).Msg("extraction failed")
		return nil, err
	}

	batchID := s.newBatch()
	source := sourceLabel(doc.Filename)
	newItems := buildItems(logger, lines, batchID, source)
	if len(newItems) == 0 {
		s.metrics.ExtractionFailures.WithLabelValues("empty").Inc()
		return nil, fmt.Errorf("%w: could not extract any items from %s", domain.ErrUnreadableDocument, source)
	}

	stored, err := s.items.InsertBatch(ctx, newItems)
	if err != nil {
		return nil, fmt.Errorf("storing batch: %w", err)
	}

	s.metrics.Uploads.WithLabelValues(string(mode)).Inc()
	s.metrics.ItemsInserted.Add(float64(len(stored)))
	logger.Info().
		Str("batch_id", batchID).
		Str("source", source).
		Str("mode", string(mode)).
		Int("extracted", len(lines)).
		Int("stored", len(stored)).
		Msg("quotation stored")

	return &domain.UploadResult{BatchID: batchID, Source: source, Mode: mode, Items: stored}, nil
}

// extract picks the extractor, consulting the cache first. The cache is keyed
// on the text and the extractor that would run, so a key change never serves
// heuristic results in place of AI ones.
func (s *QuotationService) extract(ctx context.Context, text, credential string) ([]domain.ExtractedLine, domain.ExtractionMode, error) {
	useAI := s.ai != nil && (strings.TrimSpace(credential) != "" || s.cfg.DefaultKeyConfigured)
	mode := domain.ModeHeuristic
	if useAI {
		mode = domain.ModeAI
	}

	key := cacheKey(mode, text)
	if lines, ok := s.getFromCache(ctx, key); ok {
		return lines, domain.ModeCache, nil
	}

	var lines []domain.ExtractedLine
	if useAI {
		actx, cancel := context.WithTimeout(ctx, s.cfg.ExtractionTimeout)
		var err error
		lines, err = s.ai.ExtractLines(actx, text, credential)
		timedOut := errors.Is(actx.Err(), context.DeadlineExceeded)
		cancel()
		if err != nil {
			if timedOut {
				return nil, mode, fmt.Errorf("%w: timed out after %s: %w", domain.ErrExtractionFailed, s.cfg.ExtractionTimeout, context.DeadlineExceeded)
			}
			if !errors.Is(err, domain.ErrExtractionFailed) {
				err = fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
			}
			return nil, mode, err
		}
		if len(lines) == 0 && s.cfg.HeuristicFallback {
			zerolog.Ctx(ctx).Info().Msg("model returned no lines, using heuristic extractor")
			mode = domain.ModeHeuristic
			lines, err = s.heuristic.ExtractLines(ctx, text, "")
			if err != nil {
				return nil, mode, fmt.Errorf("%w: heuristic fallback: %v", domain.ErrExtractionFailed, err)
			}
		}
	} else {
		var err error
		lines, err = s.heuristic.ExtractLines(ctx, text, "")
		if err != nil {
			return nil, mode, fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
		}
	}

	if len(lines) > 0 {
		s.setInCache(ctx, key, lines)
	}
	return lines, mode, nil
}

// List returns every stored item
func (s *QuotationService) List(ctx context.Context) ([]domain.QuotationItem, error) {
	return s.items.ListAll(ctx)
}

// Get returns one item by id
func (s *QuotationService) Get(ctx context.Context, id int64) (*domain.QuotationItem, error) {
	return s.items.GetByID(ctx, id)
}

// Update validates the patch before handing it to the store, which applies
// it and re-derives the total atomically. An empty patch returns the item unchanged.
func (s *QuotationService) Update(ctx context.Context, id int64, patch domain.ItemPatch) (*domain.QuotationItem, error) {
	if err := patch.Validate(); err != nil {
		s.metrics.ItemUpdates.WithLabelValues("invalid").Inc()
		return nil, err
	}
	if patch.IsEmpty() {
		return s.items.GetByID(ctx, id)
	}

	updated, err := s.items.Update(ctx, id, patch)
	switch {
	case err == nil:
		s.metrics.ItemUpdates.WithLabelValues("ok").Inc()
	case errors.Is(err, domain.ErrNotFound):
		s.metrics.ItemUpdates.WithLabelValues("not_found").Inc()
	case errors.Is(err, domain.ErrValidationFailed):
		s.metrics.ItemUpdates.WithLabelValues("invalid").Inc()
	default:
		s.metrics.ItemUpdates.WithLabelValues("error").Inc()
	}
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().Int64("item_id", id).Msg("item updated")
	return updated, nil
}

func (s *QuotationService) getFromCache(ctx context.Context, key string) ([]domain.ExtractedLine, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		return nil, false
	}
	var lines []domain.ExtractedLine
	if err := json.Unmarshal(raw, &lines); err != nil || len(lines) == 0 {
		return nil, false
	}
	return lines, true
}

func (s *QuotationService) setInCache(ctx context.Context, key string, lines []domain.ExtractedLine) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cfg.CacheTTL); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to cache extraction")
	}
}

// cacheKey format: "extract:{mode}:{sha256(text)}"
func cacheKey(mode domain.ExtractionMode, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("extract:%s:%s", mode, hex.EncodeToString(sum[:]))
}

func sourceLabel(filename string) string {
	name := strings.TrimSpace(filepath.Base(filename))
	if name == "" || name == "." || name == "/" {
		return "upload"
	}
	return name
}
