package orderbook

import (
	"sync"
	"time"

	"edgescout/internal/models"
)

const (
	maxSnapshots  = 10
	retention     = 2 * time.Minute
	maxLevels     = 20
	staleAfter    = 2 * time.Minute
	minMatchAge   = 5 * time.Second
	spoofMinSize  = 5000
	priceMatchTol = 0.005
	sizeMatchTol  = 0.2
)

// Store keeps a short ring of simplified books per token. The WebSocket
// handler is the primary writer; the REST refresh backfills tokens with no
// live feed.
type Store struct {
	mu    sync.RWMutex
	rings map[string][]*models.Orderbook
}

func NewStore() *Store {
	return &Store{rings: map[string][]*models.Orderbook{}}
}

// Record appends a simplified copy of the book and evicts anything older
// than the retention window, keeping at most 10 snapshots per token.
func (s *Store) Record(book *models.Orderbook) {
	if book == nil || book.TokenID == "" {
		return
	}
	simplified := simplify(book)

	s.mu.Lock()
	defer s.mu.Unlock()
	ring := append(s.rings[book.TokenID], simplified)
	cutoff := time.Now().Add(-retention)
	keep := ring[:0]
	for _, snap := range ring {
		if snap.FetchedAt.After(cutoff) {
			keep = append(keep, snap)
		}
	}
	if len(keep) > maxSnapshots {
		keep = keep[len(keep)-maxSnapshots:]
	}
	s.rings[book.TokenID] = keep
}

func simplify(book *models.Orderbook) *models.Orderbook {
	out := &models.Orderbook{
		TokenID:   book.TokenID,
		FetchedAt: book.FetchedAt,
	}
	if out.FetchedAt.IsZero() {
		out.FetchedAt = time.Now().UTC()
	}
	n := len(book.Bids)
	if n > maxLevels {
		n = maxLevels
	}
	out.Bids = append(out.Bids, book.Bids[:n]...)
	n = len(book.Asks)
	if n > maxLevels {
		n = maxLevels
	}
	out.Asks = append(out.Asks, book.Asks[:n]...)
	return out
}

// Latest returns the newest non-stale book for a token.
func (s *Store) Latest(tokenID string) (*models.Orderbook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ring := s.rings[tokenID]
	if len(ring) == 0 {
		return nil, false
	}
	latest := ring[len(ring)-1]
	if time.Since(latest.FetchedAt) > staleAfter {
		return nil, false
	}
	return latest, true
}

// History returns all retained snapshots for a token, oldest first.
func (s *Store) History(tokenID string) []*models.Orderbook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ring := s.rings[tokenID]
	out := make([]*models.Orderbook, len(ring))
	copy(out, ring)
	return out
}

// Tokens returns every token with at least one retained snapshot.
func (s *Store) Tokens() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.rings))
	for token := range s.rings {
		out = append(out, token)
	}
	return out
}
