package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cvfolio/cvfolio-portal/internal/common"
	"github.com/cvfolio/cvfolio-portal/internal/interfaces"
	"github.com/cvfolio/cvfolio-portal/internal/models"
)

const localKeyPrefix = "doc:"

// LocalStore keeps portfolio documents in the local key-value storage.
// Used in dev mode and tests, where no remote document service exists.
// It implements the same contract as Client.
type LocalStore struct {
	kv     interfaces.KeyValueStorage
	logger *common.Logger
}

// NewLocal creates a LocalStore on the given key-value storage.
func NewLocal(kv interfaces.KeyValueStorage, logger *common.Logger) *LocalStore {
	return &LocalStore{kv: kv, logger: logger}
}

func localKey(userID string) string {
	return localKeyPrefix + userID
}

// Get fetches the full document for a user.
func (s *LocalStore) Get(ctx context.Context, userID string) (*models.PortfolioDocument, error) {
	raw, err := s.kv.Get(ctx, localKey(userID))
	if err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, &StoreError{Op: "get", Err: err}
	}

	var doc models.PortfolioDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, &StoreError{Op: "get", Err: fmt.Errorf("corrupt document: %w", err)}
	}
	return &doc, nil
}

// Set applies a section patch with a read-modify-write cycle.
func (s *LocalStore) Set(ctx context.Context, userID string, section models.Section, patch json.RawMessage) error {
	doc, err := s.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			doc = models.NewPortfolioDocument(userID)
		} else {
			return err
		}
	}

	if err := doc.ApplySection(section, patch); err != nil {
		return &StoreError{Op: "set", Err: err}
	}
	return s.Put(ctx, doc)
}

// Put replaces the whole document.
func (s *LocalStore) Put(ctx context.Context, doc *models.PortfolioDocument) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return &StoreError{Op: "put", Err: err}
	}
	if err := s.kv.Set(ctx, localKey(doc.UserID), string(raw)); err != nil {
		return &StoreError{Op: "put", Err: err}
	}
	return nil
}

// GetField fetches a single field of a user's document.
func (s *LocalStore) GetField(ctx context.Context, userID, fieldPath string) (string, error) {
	doc, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}

	switch fieldPath {
	case "api_key":
		return doc.APIKey, nil
	case "tier":
		return string(doc.Tier), nil
	default:
		return "", &StoreError{Op: "get_field", Err: fmt.Errorf("unsupported field path: %q", fieldPath)}
	}
}
