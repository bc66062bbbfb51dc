package listsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JohanCodinha/blsync/internal/blacklist"
	"github.com/JohanCodinha/blsync/internal/logger"
	"github.com/JohanCodinha/blsync/internal/remote"
	"github.com/JohanCodinha/blsync/internal/secret"
	"github.com/google/uuid"
)

// Document is the public view of a list, as served by GET.
type Document struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Subjects    json.RawMessage `json:"subjects"`
	Items       json.RawMessage `json:"items"`
	UpdatedAt   int64           `json:"updatedAt"`
}

// CreateInput is the body of a create request.
type CreateInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Subjects    json.RawMessage `json:"subjects"`
	Items       json.RawMessage `json:"items"`
}

// UpdateInput is the body of an update request. Nil Name and Description
// keep their stored values.
type UpdateInput struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	Subjects    json.RawMessage `json:"subjects"`
	Items       json.RawMessage `json:"items"`
}

// Service implements list creation, reads and authenticated writes.
type Service struct {
	repo  Repository
	mu    sync.Mutex // serializes read-modify-write updates
	now   func() int64
	newID func() string
}

// NewService creates a service over repo.
func NewService(repo Repository) *Service {
	return &Service{
		repo:  repo,
		now:   func() int64 { return time.Now().UnixMilli() },
		newID: uuid.NewString,
	}
}

// SetClock overrides the clock used for updatedAt.
func (s *Service) SetClock(now func() int64) {
	s.now = now
}

// Create stores a new list and returns its credentials. The plaintext
// secret is returned once; only a hash of its digest is kept.
func (s *Service) Create(ctx context.Context, in CreateInput) (remote.Created, error) {
	subjects, err := validateEntries("subjects", in.Subjects)
	if err != nil {
		return remote.Created{}, err
	}
	items, err := validateEntries("items", in.Items)
	if err != nil {
		return remote.Created{}, err
	}

	plaintext, err := secret.Generate()
	if err != nil {
		return remote.Created{}, err
	}

	id := s.newID()
	hash, err := secret.Hash(secret.Digest(id, plaintext))
	if err != nil {
		return remote.Created{}, err
	}

	rec := Record{
		ID:          id,
		Name:        in.Name,
		Description: in.Description,
		SecretHash:  hash,
		Subjects:    subjects,
		Items:       items,
		UpdatedAt:   s.now(),
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return remote.Created{}, err
	}

	logger.Info("listsvc: created list %s", id)
	return remote.Created{ID: id, WriteSecret: plaintext, UpdatedAt: rec.UpdatedAt}, nil
}

// Get returns the public view of list id.
func (s *Service) Get(ctx context.Context, id string) (Document, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	return Document{
		ID:          rec.ID,
		Name:        rec.Name,
		Description: rec.Description,
		Subjects:    rec.Subjects,
		Items:       rec.Items,
		UpdatedAt:   rec.UpdatedAt,
	}, nil
}

// Update replaces the entries of list id if digest matches its secret.
// updatedAt is always advanced, even when the server clock lags.
func (s *Service) Update(ctx context.Context, id, digest string, in UpdateInput) (remote.UpdateResult, error) {
	subjects, err := validateEntries("subjects", in.Subjects)
	if err != nil {
		return remote.UpdateResult{}, err
	}
	items, err := validateEntries("items", in.Items)
	if err != nil {
		return remote.UpdateResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return remote.UpdateResult{}, err
	}
	if digest == "" {
		return remote.UpdateResult{}, ErrForbidden
	}
	if err := secret.Verify(rec.SecretHash, digest); err != nil {
		if errors.Is(err, secret.ErrMismatch) {
			logger.Warn("listsvc: rejected write to %s", id)
			return remote.UpdateResult{}, ErrForbidden
		}
		return remote.UpdateResult{}, err
	}

	if in.Name != nil {
		rec.Name = *in.Name
	}
	if in.Description != nil {
		rec.Description = *in.Description
	}
	rec.Subjects = subjects
	rec.Items = items
	rec.UpdatedAt = max(s.now(), rec.UpdatedAt+1)

	if err := s.repo.Update(ctx, rec); err != nil {
		return remote.UpdateResult{}, err
	}

	logger.Debug("listsvc: updated list %s at %d", id, rec.UpdatedAt)
	return remote.UpdateResult{Success: true, UpdatedAt: rec.UpdatedAt}, nil
}

// validateEntries checks that raw decodes as an entry array and returns it
// compacted. A missing field is stored as an empty array.
func validateEntries(field string, raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("[]"), nil
	}

	var entries []blacklist.Entry
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, field, err)
	}
	for _, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("%w: %s: empty id", ErrInvalid, field)
		}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, field, err)
	}
	return buf.Bytes(), nil
}
