// Package storage persists flowchat's local state as JSON values under fixed
// string keys. Backends: a directory of JSON files, an SQLite database and an
// in-memory map.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Fixed keys of the persisted state
const (
	KeyConversations      = "conversations"
	KeyActiveConversation = "active-conversation"
	KeySpeechLanguage     = "speech-language"
	KeyAuthToken          = "auth-token"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("storage: key not found")

// Storage is a persistent key/value store.
type Storage interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
	Close() error
}

// GetJSON decodes the value stored under key into v.
func GetJSON(s Storage, key string, v any) error {
	data, err := s.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(s Storage, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", key, err)
	}
	return s.Set(key, data)
}

func validateKey(key string) error {
	if key == "" {
		return errors.New("storage: empty key")
	}
	for _, r := range key {
		if !(r == '-' || r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return fmt.Errorf("storage: invalid key %q", key)
		}
	}
	return nil
}
