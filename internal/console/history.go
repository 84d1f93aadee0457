package console

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonathan/blitz/internal/session"
)

// MaxHistory is the number of queries kept.
const MaxHistory = 20

// History is a most-recent-first list of executed queries persisted in a session.Storage.
type History struct {
	storage session.Storage
	logger  *slog.Logger

	mu      sync.Mutex
	entries []string
}

// LoadHistory reads the saved history. An unreadable entry starts an empty history.
func LoadHistory(storage session.Storage, logger *slog.Logger) *History {
	if logger == nil {
		logger = slog.Default()
	}
	h := &History{storage: storage, logger: logger}
	if storage == nil {
		return h
	}
	raw, ok := storage.Get(session.KeySQLHistory)
	if !ok || raw == "" {
		return h
	}
	if err := json.Unmarshal([]byte(raw), &h.entries); err != nil {
		logger.Warn("discarding unreadable sql history", "error", err)
		h.entries = nil
	}
	if len(h.entries) > MaxHistory {
		h.entries = h.entries[:MaxHistory]
	}
	return h
}

// Add records query as the most recent entry, evicting the oldest past MaxHistory.
func (h *History) Add(query string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := make([]string, 0, MaxHistory)
	next = append(next, query)
	next = append(next, h.entries...)
	if len(next) > MaxHistory {
		next = next[:MaxHistory]
	}
	h.entries = next
	h.save()
}

// Entries returns a copy, most recent first.
func (h *History) Entries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.entries...)
}

// Get returns entry i, 0 being the most recent.
func (h *History) Get(i int) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if i < 0 || i >= len(h.entries) {
		return "", fmt.Errorf("no history entry %d", i)
	}
	return h.entries[i], nil
}

// Clear forgets every entry.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
	h.save()
}

// save writes entries to storage. Caller holds mu.
func (h *History) save() {
	if h.storage == nil {
		return
	}
	data, err := json.Marshal(h.entries)
	if err != nil {
		h.logger.Warn("failed to encode sql history", "error", err)
		return
	}
	if err := h.storage.Set(session.KeySQLHistory, string(data)); err != nil {
		h.logger.Warn("failed to persist sql history", "error", err)
	}
}
