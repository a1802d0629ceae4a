package config

import (
	"os"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/gitmesh/gitmesh/internal/errors"
)

// HistoryEntry is one remembered good IP for a host:port, persisted across
// restarts so the pool doesn't start cold every time (spec.md §4.1 "History"
// candidate source).
type HistoryEntry struct {
	Host      string    `json:"host"`
	Port      uint16    `json:"port"`
	IP        string    `json:"ip"`
	LatencyMs uint32    `json:"latency_ms"`
	UpdatedAt time.Time `json:"updated_at"`
}

// History is the decoded shape of data/ip-history.json.
type History struct {
	Entries []HistoryEntry `json:"entries"`
}

// ByHost indexes History's entries for fast lookup by the History resolver.
func (h History) ByHost() map[string][]string {
	out := make(map[string][]string, len(h.Entries))
	for _, e := range h.Entries {
		out[e.Host] = append(out[e.Host], e.IP)
	}
	return out
}

// Store loads, mutates, and atomically persists data/ip-history.json. It
// keeps the whole file in memory and serializes writers, matching the
// expected scale (tens to low hundreds of remembered hosts).
type Store struct {
	path string

	mu  sync.Mutex
	cur History
}

func OpenHistoryStore(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Store{path: path}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading ip-history.json")
	}

	var h History
	if err := jsoniter.Unmarshal(data, &h); err != nil {
		return nil, errors.Wrap(err, "parsing ip-history.json")
	}
	return &Store{path: path, cur: h}, nil
}

// Snapshot returns a copy of the current in-memory history.
func (s *Store) Snapshot() History {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := History{Entries: append([]HistoryEntry(nil), s.cur.Entries...)}
	return out
}

// Record upserts one host's best-known IP and persists the store to disk.
func (s *Store) Record(host string, port uint16, ip string, latencyMs uint32, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := HistoryEntry{Host: host, Port: port, IP: ip, LatencyMs: latencyMs, UpdatedAt: now}
	replaced := false
	for i, e := range s.cur.Entries {
		if e.Host == host && e.Port == port {
			s.cur.Entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		s.cur.Entries = append(s.cur.Entries, entry)
	}

	data, err := jsoniter.MarshalIndent(s.cur, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding ip-history.json")
	}
	return writeAtomic(s.path, data)
}
