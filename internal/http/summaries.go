package httpapi

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/hperssn/stride/internal/domain"
)

// SummaryStore holds summaries handed off by show so the results view can
// read them back. Entries expire and the store is bounded.
type SummaryStore struct {
	cache *expirable.LRU[string, StoredSummary]
}

type StoredSummary struct {
	ID        string         `json:"summaryId"`
	SessionID string         `json:"sessionId"`
	Handoff   domain.Handoff `json:"handoff"`
	Summary   domain.Summary `json:"summary"`
	CreatedAt time.Time      `json:"createdAt"`
}

func NewSummaryStore(size int, ttl time.Duration) *SummaryStore {
	return &SummaryStore{
		cache: expirable.NewLRU[string, StoredSummary](size, nil, ttl),
	}
}

func (s *SummaryStore) Put(sessionID string, h domain.Handoff) StoredSummary {
	stored := StoredSummary{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Handoff:   h,
		Summary:   domain.Summarize(h),
		CreatedAt: time.Now(),
	}
	s.cache.Add(stored.ID, stored)
	return stored
}

func (s *SummaryStore) Get(id string) (StoredSummary, bool) {
	return s.cache.Get(id)
}

func (s *SummaryStore) Len() int {
	return s.cache.Len()
}
