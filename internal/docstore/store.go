// Package docstore is the document-store layer: collections of JSON
// documents with per-collection change subscriptions.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("document not found")

type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// Document is one stored JSON object. Data always contains an "id" field
// equal to ID.
type Document struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection"`
	Data       json.RawMessage `json:"data"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Change is delivered to subscribers. For removals Doc holds the last
// stored version.
type Change struct {
	Type       ChangeType `json:"type"`
	Collection string     `json:"collection"`
	ID         string     `json:"id"`
	Doc        Document   `json:"doc"`
	At         time.Time  `json:"at"`
}

type Handler func(Change)

type Store interface {
	// Add stores data under a generated id and returns it.
	Add(ctx context.Context, collection string, data any) (string, error)
	// Set creates or replaces the document with the given id.
	Set(ctx context.Context, collection, id string, data any) error
	// Update merges the top-level keys of patch into an existing document.
	Update(ctx context.Context, collection, id string, patch map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	Get(ctx context.Context, collection, id string) (Document, error)
	// List returns documents in creation order.
	List(ctx context.Context, collection string) ([]Document, error)
	// Where returns documents whose top-level field equals value.
	Where(ctx context.Context, collection, field, value string) ([]Document, error)
	// Subscribe replays the collection as ChangeAdded events, then streams
	// live changes until the returned func is called or ctx ends.
	Subscribe(ctx context.Context, collection string, fn Handler) (func(), error)
}
