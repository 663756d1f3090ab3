package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionAnswersKey returns the cache key for a session's live answer ledger.
func (r *CacheKeyStruct) SessionAnswersKey(sessionID string) string {
	return fmt.Sprintf("session:%s:answers", sessionID)
}

// SessionStartKey returns the cache key for a session's start timestamp.
func (r *CacheKeyStruct) SessionStartKey(sessionID string) string {
	return fmt.Sprintf("session:%s:started_at", sessionID)
}

// StudentActiveSessionKey returns the cache key for a student's active
// session for a given exam.
func (r *CacheKeyStruct) StudentActiveSessionKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:session", studentID, examID)
}

var CacheKey = NewCacheKeyStruct()
