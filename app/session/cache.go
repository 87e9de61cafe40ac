package session

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// LoadCached reads a persisted session from path. A missing file is not an
// error; it returns (nil, nil). A session older than ttl is discarded.
func LoadCached(path string, ttl time.Duration) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session cache: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session cache: %w", err)
	}

	if s.Expired(ttl) {
		return nil, nil
	}

	return &s, nil
}

// Persist writes the session to path. The write goes through a temp file so
// an interrupted run never leaves a truncated artifact behind.
func Persist(s *Session, path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write session cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace session cache: %w", err)
	}

	return nil
}
