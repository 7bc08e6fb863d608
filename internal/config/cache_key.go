package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptAnswersKey returns the cache key for an attempt's autosaved answers
// hash (question id → selected option). The hash absorbs high-frequency
// autosaves ahead of the batched PostgreSQL writer and is dropped when the
// attempt is finalized.
func (r *CacheKeyStruct) AttemptAnswersKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:answers", attemptID)
}

var CacheKey = NewCacheKeyStruct()
