// Package pipeline orchestrates one receipt from raw image bytes to a
// published ledger row: extract, normalize, load-append-publish.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"ledgerbot/internal/drive"
	"ledgerbot/internal/ledger"
	"ledgerbot/internal/receipt"
	"ledgerbot/internal/scanning"
)

// ErrDuplicate is returned when dedup is enabled and an identical
// receipt was already published. It is a skip, not a failure: the
// ledger is intact and the user just gets told.
var ErrDuplicate = errors.New("receipt already recorded in ledger")

// publishTimeout bounds the load-append-publish region. It is derived
// from a background context: once an append has begun, upstream
// cancellation must not tear the ledger update in half.
const publishTimeout = 60 * time.Second

// IDGenerator generates unique IDs for processed receipts.
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time.
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string { return uuid.NewString() }

type systemTimeSource struct{}

func (t *systemTimeSource) Now() time.Time { return time.Now() }

// Config wires a Service. Scanner, Store and DB are injected
// collaborators so tests can substitute fakes.
type Config struct {
	Scanner    scanning.Scanner
	Store      drive.Store
	DB         receipt.DB
	LedgerName string // remote document name, default receipts.xlsx
	Dedup      bool   // opt-in duplicate-submission detection
}

// Service runs the extraction and ledger synchronization pipeline.
type Service struct {
	scanner    scanning.Scanner
	store      drive.Store
	db         receipt.DB
	ledgerName string
	dedup      bool

	idGenerator IDGenerator
	timeSource  TimeSource

	// mu serializes the whole load-append-publish region. Two
	// concurrent runs that both load the prior document would each
	// append one row and the second upload would erase the first.
	mu sync.Mutex
}

// New creates a Service with default ID generator and time source.
func New(cfg Config) *Service {
	if cfg.LedgerName == "" {
		cfg.LedgerName = "receipts.xlsx"
	}
	return &Service{
		scanner:     cfg.Scanner,
		store:       cfg.Store,
		db:          cfg.DB,
		ledgerName:  cfg.LedgerName,
		dedup:       cfg.Dedup,
		idGenerator: &uuidGenerator{},
		timeSource:  &systemTimeSource{},
	}
}

// NewWithDeps creates a Service with custom ID generator and time
// source for testing.
func NewWithDeps(cfg Config, idGen IDGenerator, timeSrc TimeSource) *Service {
	s := New(cfg)
	s.idGenerator = idGen
	s.timeSource = timeSrc
	return s
}

// ProcessPhoto runs the full pipeline for one submitted receipt image
// and returns the normalized record that was appended to the ledger.
// Any stage error halts processing for this receipt only; the published
// ledger is never replaced unless the in-memory append succeeded.
func (s *Service) ProcessPhoto(ctx context.Context, chatID int64, imageData []byte, contentType string) (*receipt.Record, error) {
	rawText, err := s.scanner.Extract(ctx, imageData, contentType)
	if err != nil {
		return nil, err
	}

	record, err := receipt.Normalize(rawText, s.timeSource.Now())
	if err != nil {
		return nil, err
	}

	processed := &receipt.ProcessedReceipt{
		ID:          s.idGenerator.Generate(),
		ChatID:      chatID,
		Fingerprint: record.Fingerprint(),
		Record:      *record,
		CreatedAt:   s.timeSource.Now(),
	}
	if err := s.publish(ctx, record, processed); err != nil {
		return nil, err
	}

	slog.Info("receipt published",
		"merchant", record.MerchantName,
		"date", record.Date,
		"total", record.TotalAmount,
		"ledger", s.ledgerName,
	)
	return record, nil
}

// publish is the serialized load-append-store cycle: the current remote
// document (or a fresh one on first run) plus exactly one new row, with
// the duplicate check and history write inside the same critical section.
func (s *Service) publish(ctx context.Context, record *receipt.Record, processed *receipt.ProcessedReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The duplicate check must run inside the serialized region: two
	// identical submissions racing past an unlocked check would both
	// append before either fingerprint lands in history.
	if s.dedup {
		seen, err := s.db.SeenFingerprint(processed.Fingerprint)
		if err != nil {
			return fmt.Errorf("checking for duplicate receipt: %w", err)
		}
		if seen {
			return ErrDuplicate
		}
	}

	// Once we start mutating shared state, an aborted chat request must
	// not leave a half-published ledger behind.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	doc, err := s.loadDocument(ctx)
	if err != nil {
		return err
	}

	doc.Append(record)

	data, err := doc.Encode()
	if err != nil {
		return fmt.Errorf("encoding ledger document: %w", err)
	}
	if err := s.store.Upload(ctx, s.ledgerName, data); err != nil {
		return err
	}

	if err := s.db.SaveProcessed(processed); err != nil {
		// The ledger row is already durable; losing the local audit row
		// only weakens dedup, so log instead of failing the receipt.
		slog.Warn("failed to save processing history", "id", processed.ID, "error", err)
	}
	return nil
}

func (s *Service) loadDocument(ctx context.Context) (*ledger.Document, error) {
	data, err := s.store.Download(ctx, s.ledgerName)
	if errors.Is(err, drive.ErrNotExist) {
		slog.Info("no remote ledger found, starting a new document", "ledger", s.ledgerName)
		return ledger.New(), nil
	}
	if err != nil {
		return nil, err
	}

	doc, err := ledger.Decode(data)
	if err != nil {
		// Never rebuild from empty over a document we failed to read;
		// that silently discards every prior row.
		return nil, fmt.Errorf("decoding remote ledger document: %w", err)
	}
	return doc, nil
}

// Recent lists the most recently processed receipts from local history.
func (s *Service) Recent(limit int) ([]*receipt.ProcessedReceipt, error) {
	return s.db.ListRecent(limit)
}
