// Package store persists conversation sessions.
//
// Keys follow the convention "/{kind}/{id}"; sessions live under
// "/Session/{id}". Values are JSON-encoded.
package store

import (
	"fmt"
)

// EventType describes a store mutation.
type EventType string

const (
	EventAdded    EventType = "ADDED"
	EventModified EventType = "MODIFIED"
	EventDeleted  EventType = "DELETED"
)

// WatchEvent is delivered to watchers for every mutation under their prefix.
type WatchEvent struct {
	Type   EventType
	Kind   string
	Key    string
	Object interface{}
}

// Store is the persistence interface for session records.
type Store interface {
	// Create stores a new object at the given key.
	// Returns ErrAlreadyExists if the key already exists.
	Create(key string, value interface{}) error

	// Get retrieves the object stored at key and deserialises it into target.
	// Returns ErrNotFound if the key does not exist.
	Get(key string, target interface{}) error

	// Update replaces the object at the given key.
	// Returns ErrNotFound if the key does not exist.
	Update(key string, value interface{}) error

	// Delete removes the object at the given key.
	// Returns ErrNotFound if the key does not exist.
	Delete(key string) error

	// List returns every object whose key starts with prefix.
	// factory is called once per result to create a zero-value pointer that
	// the stored JSON is unmarshalled into.
	List(prefix string, factory func() interface{}) ([]interface{}, error)

	// Watch returns a channel that emits events for every mutation whose key
	// starts with prefix. The returned cancel function removes the watcher
	// and closes the channel.
	Watch(prefix string) (<-chan WatchEvent, func())

	// Close releases any resources held by the store (e.g. BoltDB file handle).
	Close() error
}

// Common sentinel errors.
var (
	ErrAlreadyExists = fmt.Errorf("key already exists")
	ErrNotFound      = fmt.Errorf("key not found")
)

// SessionKeyPrefix is the key prefix all session records live under.
const SessionKeyPrefix = "/Session/"

// SessionKey builds the canonical store key for a session.
//
//	SessionKey("4f1c...") => "/Session/4f1c..."
func SessionKey(id string) string {
	return SessionKeyPrefix + id
}
