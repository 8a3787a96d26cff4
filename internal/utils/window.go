package utils

import (
	"sync"
	"time"
)

type windowEntry struct {
	payload string
	at      time.Time
}

// WindowStore keeps a time-bounded log of entries per key. Entries older than
// the retention are purged lazily on every read and write; Sweep prunes every
// key in one pass so inactive keys do not pin memory.
type WindowStore struct {
	mu        sync.Mutex
	retention time.Duration
	entries   map[string][]windowEntry
}

func NewWindowStore(retention time.Duration) *WindowStore {
	if retention <= 0 {
		retention = time.Minute
	}
	return &WindowStore{
		retention: retention,
		entries:   make(map[string][]windowEntry),
	}
}

// Record appends an entry and returns how many entries the key holds within
// the retention, the new entry included.
func (s *WindowStore) Record(key, payload string, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.pruneLocked(key, now)
	kept = append(kept, windowEntry{payload: payload, at: now})
	s.entries[key] = kept
	return len(kept)
}

// CountSince returns the number of entries for key satisfying now-at < d.
func (s *WindowStore) CountSince(key string, now time.Time, d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.pruneLocked(key, now)
	if len(kept) == 0 {
		delete(s.entries, key)
		return 0
	}
	s.entries[key] = kept

	cutoff := now.Add(-d)
	count := 0
	for _, entry := range kept {
		if entry.at.After(cutoff) {
			count++
		}
	}
	return count
}

// CountMatching is CountSince restricted to entries whose payload is
// byte-identical to payload.
func (s *WindowStore) CountMatching(key, payload string, now time.Time, d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.pruneLocked(key, now)
	if len(kept) == 0 {
		delete(s.entries, key)
		return 0
	}
	s.entries[key] = kept

	cutoff := now.Add(-d)
	count := 0
	for _, entry := range kept {
		if entry.at.After(cutoff) && entry.payload == payload {
			count++
		}
	}
	return count
}

// Payloads returns the payloads still inside the window d, oldest first.
func (s *WindowStore) Payloads(key string, now time.Time, d time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.pruneLocked(key, now)
	if len(kept) == 0 {
		delete(s.entries, key)
		return nil
	}
	s.entries[key] = kept

	cutoff := now.Add(-d)
	payloads := make([]string, 0, len(kept))
	for _, entry := range kept {
		if entry.at.After(cutoff) {
			payloads = append(payloads, entry.payload)
		}
	}
	return payloads
}

func (s *WindowStore) Clear(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Sweep prunes every key and drops the ones left empty. Called from a single
// background ticker, never per event.
func (s *WindowStore) Sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.entries {
		kept := s.pruneLocked(key, now)
		if len(kept) == 0 {
			delete(s.entries, key)
			continue
		}
		s.entries[key] = kept
	}
}

func (s *WindowStore) pruneLocked(key string, now time.Time) []windowEntry {
	cutoff := now.Add(-s.retention)
	entries := s.entries[key]
	idx := 0
	for _, entry := range entries {
		if entry.at.After(cutoff) {
			break
		}
		idx++
	}
	return entries[idx:]
}
