// Package cache is the namespaced key/value store that owns every persisted
// entity of the bookmark mirror.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("cache entry not found")
	ErrConflict = errors.New("cache entry changed concurrently")
)

// Namespaces. Per-user namespaces go through UserNamespace.
const (
	NamespaceBookmarks  = "bookmarkCache"
	NamespaceManga      = "mangaCache"
	NamespaceEnrichment = "hqMangaCache"
	NamespaceSettings   = "settings"

	KeyFirstPage = "firstPage"
)

// Store is a persistent namespaced key/value store. Values are JSON documents.
// All mutations are keyed upserts, last write wins; there are no multi-key
// transactions.
type Store interface {
	Get(ctx context.Context, namespace, key string) (json.RawMessage, error)
	Set(ctx context.Context, namespace, key string, value any) error
	// Update merges the top-level fields of partial into the stored document,
	// creating it when absent.
	Update(ctx context.Context, namespace, key string, partial map[string]any) error
	// SetFieldOnce writes field only if the document does not have it yet.
	// It reports whether the write happened.
	SetFieldOnce(ctx context.Context, namespace, key, field string, value any) (bool, error)
	GetAll(ctx context.Context, namespace string) (map[string]json.RawMessage, error)
	Clear(ctx context.Context, namespace string) error
	Close() error
}

// UserNamespace scopes a namespace to one user.
func UserNamespace(userID, namespace string) string {
	return "user:" + userID + ":" + namespace
}

// Load decodes the value stored under key into dst. It returns false when the
// key does not exist.
func Load(ctx context.Context, s Store, namespace, key string, dst any) (bool, error) {
	raw, err := s.Get(ctx, namespace, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", namespace, key, err)
	}
	return true, nil
}

// LoadAll decodes every value of a namespace.
func LoadAll[T any](ctx context.Context, s Store, namespace string) (map[string]T, error) {
	raw, err := s.GetAll(ctx, namespace)
	if err != nil {
		return nil, err
	}
	out := make(map[string]T, len(raw))
	for key, value := range raw {
		var v T
		if err := json.Unmarshal(value, &v); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", namespace, key, err)
		}
		out[key] = v
	}
	return out, nil
}

// mergeFields overlays partial onto the JSON object in current. A nil or empty
// current document is treated as {}.
func mergeFields(current []byte, partial map[string]any) ([]byte, error) {
	doc := map[string]json.RawMessage{}
	if len(current) > 0 {
		if err := json.Unmarshal(current, &doc); err != nil {
			return nil, fmt.Errorf("existing value is not an object: %w", err)
		}
	}
	for field, value := range partial {
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", field, err)
		}
		doc[field] = encoded
	}
	return json.Marshal(doc)
}

// hasField reports whether the JSON object in current carries field.
func hasField(current []byte, field string) (bool, error) {
	if len(current) == 0 {
		return false, nil
	}
	doc := map[string]json.RawMessage{}
	if err := json.Unmarshal(current, &doc); err != nil {
		return false, fmt.Errorf("existing value is not an object: %w", err)
	}
	_, ok := doc[field]
	return ok, nil
}
