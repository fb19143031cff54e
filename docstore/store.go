package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// Store persists Yggdrasil documents keyed by project id.
type Store struct {
	bucket Bucket
	logger *slog.Logger
}

// NewStore creates a document store over a revisioned bucket.
func NewStore(bucket Bucket, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{bucket: bucket, logger: logger}
}

// Get loads a document. Returns (nil, nil) when the project is unknown.
func (s *Store) Get(ctx context.Context, projectID string) (*Document, error) {
	entry, err := s.bucket.Get(ctx, projectID)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document %s: %w", projectID, err)
	}
	var doc Document
	if err := json.Unmarshal(entry.Value, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document %s: %w", projectID, err)
	}
	doc.revision = entry.Revision
	return &doc, nil
}

// Exists reports whether a document for the project id is stored.
func (s *Store) Exists(ctx context.Context, projectID string) (bool, error) {
	doc, err := s.Get(ctx, projectID)
	if err != nil {
		return false, err
	}
	return doc != nil, nil
}

// CreateParams carries the immutable fields of a new document.
type CreateParams struct {
	ProjectID         string
	ProjectsReference string
	ProjectName       string
	Method            string
	UserInfo          map[string]UserContact
	Sensitive         bool
}

// Create persists a new document immediately. Creating an already-known
// project id is a no-op that returns the stored document.
func (s *Store) Create(ctx context.Context, p CreateParams) (*Document, error) {
	if existing, err := s.Get(ctx, p.ProjectID); err != nil {
		return nil, err
	} else if existing != nil {
		s.logger.Debug("document already exists", "project", p.ProjectID)
		return existing, nil
	}

	doc := NewDocument(p.ProjectID, p.ProjectsReference, p.ProjectName, p.Method)
	doc.UserInfo = p.UserInfo
	doc.DeliveryInfo.Sensitive = p.Sensitive

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document %s: %w", p.ProjectID, err)
	}
	rev, err := s.bucket.Create(ctx, p.ProjectID, data)
	if err != nil {
		if errors.Is(err, ErrKeyExists) {
			// Lost a create race; the stored document wins.
			return s.Get(ctx, p.ProjectID)
		}
		return nil, fmt.Errorf("create document %s: %w", p.ProjectID, err)
	}
	doc.revision = rev
	s.logger.Info("created yggdrasil document", "project", p.ProjectID, "method", p.Method)
	return doc, nil
}

// Save writes a document back. It reads the current stored revision and
// attaches it to the write; a concurrent writer in between surfaces as
// ErrConflict and the caller is expected to re-read.
func (s *Store) Save(ctx context.Context, doc *Document) error {
	current, err := s.bucket.Get(ctx, doc.ProjectID)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return fmt.Errorf("save document %s: %w", doc.ProjectID, ErrNotFound)
		}
		return fmt.Errorf("save document %s: %w", doc.ProjectID, err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document %s: %w", doc.ProjectID, err)
	}
	rev, err := s.bucket.Update(ctx, doc.ProjectID, data, current.Revision)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			saveConflicts.Inc()
			return ErrConflict
		}
		return fmt.Errorf("save document %s: %w", doc.ProjectID, err)
	}
	doc.revision = rev
	return nil
}

// Update loads a document, applies fn to it, and saves the result. A
// missing project is a logged no-op; a save conflict is logged and the
// write is dropped (the next event re-reads).
func (s *Store) Update(ctx context.Context, projectID string, fn func(*Document) error) error {
	doc, err := s.Get(ctx, projectID)
	if err != nil {
		return err
	}
	if doc == nil {
		s.logger.Error("update on unknown project", "project", projectID)
		return nil
	}
	if err := fn(doc); err != nil {
		return err
	}
	if err := s.Save(ctx, doc); err != nil {
		if errors.Is(err, ErrConflict) {
			s.logger.Warn("dropping conflicting write", "project", projectID)
			return nil
		}
		return err
	}
	return nil
}

// AddSample registers a sample on a document, idempotently.
func (s *Store) AddSample(ctx context.Context, projectID string, sample Sample) error {
	return s.Update(ctx, projectID, func(doc *Document) error {
		doc.AddSample(sample)
		return nil
	})
}

// UpdateSampleStatus transitions a sample and persists the document.
func (s *Store) UpdateSampleStatus(ctx context.Context, projectID, sampleID string, status SampleStatus) error {
	return s.Update(ctx, projectID, func(doc *Document) error {
		return doc.SetSampleStatus(sampleID, status)
	})
}

// SetSampleJobID records a scheduler job id for a sample.
func (s *Store) SetSampleJobID(ctx context.Context, projectID, sampleID, jobID string) error {
	return s.Update(ctx, projectID, func(doc *Document) error {
		return doc.SetSampleJobID(sampleID, jobID)
	})
}

// SetProjectStatus sets the project status explicitly.
func (s *Store) SetProjectStatus(ctx context.Context, projectID string, status ProjectStatus) error {
	return s.Update(ctx, projectID, func(doc *Document) error {
		doc.SetProjectStatus(status)
		return nil
	})
}

// AddNGIReport appends a report entry, rejecting incomplete ones.
func (s *Store) AddNGIReport(ctx context.Context, projectID string, entry NGIReport) error {
	return s.Update(ctx, projectID, func(doc *Document) error {
		return doc.AddNGIReport(entry)
	})
}

// AddDeliveryResult appends a delivery result entry.
func (s *Store) AddDeliveryResult(ctx context.Context, projectID string, entry DeliveryResult) error {
	return s.Update(ctx, projectID, func(doc *Document) error {
		doc.AddDeliveryResult(entry)
		return nil
	})
}

// MarkSamplesDelivered flags the given samples as delivered.
func (s *Store) MarkSamplesDelivered(ctx context.Context, projectID string, sampleIDs []string) error {
	return s.Update(ctx, projectID, func(doc *Document) error {
		for _, id := range sampleIDs {
			if sample := doc.SampleByID(id); sample != nil {
				sample.Delivered = true
			} else {
				s.logger.Warn("delivery for unknown sample", "project", projectID, "sample", id)
			}
		}
		return nil
	})
}
