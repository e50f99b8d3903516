// Package ephemeral stores short-lived interaction state behind t_
// identifiers: wizard steps, pending modal input and other single-user
// records that expire on their own.
//
// Writes are last-write-wins. There is no cross-request locking and no
// versioning; concurrent writers to one key simply overwrite each other.
package ephemeral

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// DefaultTTL applies when a record carries no timeout.
const DefaultTTL = 15 * time.Minute

// ErrNotFound is returned by Get for absent or expired keys.
var ErrNotFound = errors.New("ephemeral: key not found")

// Store is a key-value cache with per-key TTL.
//
// Put overwrites unconditionally and resets the TTL. Get never returns a
// value whose TTL has elapsed by more than the backend's sweep bound; the
// bundled backends never return an expired value at all.
type Store interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// ComponentKey is the key for a component callback:
// component-<component type>-<identifier>.
func ComponentKey(componentType int, identifier string) string {
	return "component-" + strconv.Itoa(componentType) + "-" + identifier
}

// ModalKey is the key for a modal submission: modal-submit-<identifier>.
func ModalKey(identifier string) string {
	return "modal-submit-" + identifier
}

// Record is the JSON document stored behind an ephemeral identifier.
type Record struct {
	RoutingID      string          `json:"componentRoutingId"`
	Once           bool            `json:"componentOnce,omitempty"`
	TimeoutSeconds int             `json:"componentTimeout,omitempty"`
	State          json.RawMessage `json:"state,omitempty"`
}

// TTL converts the record timeout, falling back to DefaultTTL.
func (r Record) TTL() time.Duration {
	if r.TimeoutSeconds <= 0 {
		return DefaultTTL
	}
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// PutRecord encodes rec and stores it under key with rec.TTL().
func PutRecord(ctx context.Context, s Store, key string, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if err := s.Put(ctx, key, b, rec.TTL()); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// GetRecord loads and decodes the record under key. Absent keys return
// ErrNotFound.
func GetRecord(ctx context.Context, s Store, key string) (Record, error) {
	b, err := s.Get(ctx, key)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to decode record %s: %w", key, err)
	}
	return rec, nil
}
