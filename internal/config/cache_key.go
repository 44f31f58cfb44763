package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// UserSessionKey returns the cache key for a student's login session (JTI).
func (r *CacheKeyStruct) UserSessionKey(userID int) string {
	return fmt.Sprintf("login:%d", userID)
}

// SessionPayloadKey returns the cache key for an exam session's student
// payload (questions without correct flags).
func (r *CacheKeyStruct) SessionPayloadKey(sessionID string) string {
	return fmt.Sprintf("session:%s:payload", sessionID)
}

// SessionAnswerKeyKey returns the cache key for an exam session's answer key.
func (r *CacheKeyStruct) SessionAnswerKeyKey(sessionID string) string {
	return fmt.Sprintf("session:%s:answer_key", sessionID)
}

// AttemptAnswersKey returns the cache key for an attempt's saved answers hash.
func (r *CacheKeyStruct) AttemptAnswersKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:answers", attemptID)
}

var CacheKey = NewCacheKeyStruct()
