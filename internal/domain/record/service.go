package record

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/openclinical/ccda-analyst/internal/platform/ccda"
)

// ErrInvalidDocument is returned when an uploaded document is not
// well-formed markup.
var ErrInvalidDocument = errors.New("invalid C-CDA document")

// TxFunc runs fn inside a transaction carried by ctx.
type TxFunc func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	repo      Repository
	flattener *ccda.Flattener
	withTx    TxFunc
}

// NewService creates a record service. withTx may be nil, in which case
// batch writes run without a surrounding transaction.
func NewService(repo Repository, flattener *ccda.Flattener, withTx TxFunc) *Service {
	if withTx == nil {
		withTx = func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	return &Service{repo: repo, flattener: flattener, withTx: withTx}
}

// Ingest extracts the identity of one document and stores it.
func (s *Service) Ingest(ctx context.Context, filename string, data []byte) (*Record, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, fmt.Errorf("filename is required")
	}
	rec, err := FromDocument(filename, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Store writes recs in order in one transaction. With reset, existing
// records are removed first in the same transaction.
func (s *Service) Store(ctx context.Context, recs []*Record, reset bool) error {
	return s.withTx(ctx, func(ctx context.Context) error {
		if reset {
			if err := s.repo.Truncate(ctx); err != nil {
				return err
			}
		}
		return s.repo.CreateBatch(ctx, recs)
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	return s.repo.GetByID(ctx, id)
}

// List pages through records ordered by name. A non-empty query matches
// name or patient identifier, case-insensitively.
func (s *Service) List(ctx context.Context, query string, limit, offset int) ([]*Record, int, error) {
	if query = strings.TrimSpace(query); query != "" {
		return s.repo.Search(ctx, query, limit, offset)
	}
	return s.repo.List(ctx, limit, offset)
}

// Summary returns the flattened narrative of a stored document. Documents
// that no longer parse yield the flattener's diagnostic text, not an error.
func (s *Service) Summary(ctx context.Context, id uuid.UUID) (string, *Record, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", nil, err
	}
	return s.flattener.Flatten(ccda.SourceOf(rec.XMLContent)), rec, nil
}

// Sections returns the structured clinical sections of a stored document.
func (s *Service) Sections(ctx context.Context, id uuid.UUID) ([]ccda.ClinicalSection, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.flattener.Sections(ccda.SourceOf(rec.XMLContent))
}
