package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Status is the progress of the last batch run on a document.
type Status struct {
	Op        string                 `json:"op"`
	Status    string                 `json:"status"`
	Processed int                    `json:"processed"`
	Total     int                    `json:"total"`
	Failed    int                    `json:"failed"`
	Message   string                 `json:"message,omitempty"`
	Start     *time.Time             `json:"start_time,omitempty"`
	End       *time.Time             `json:"end_time,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// StatusStore records batch progress per document.
type StatusStore interface {
	Set(ctx context.Context, docID string, st Status) error
	Get(ctx context.Context, docID string) (Status, bool, error)
	Delete(ctx context.Context, docID string) error
}

type MemoryStatus struct {
	mu sync.RWMutex
	m  map[string]Status
}

func NewMemoryStatus() *MemoryStatus { return &MemoryStatus{m: map[string]Status{}} }

func (s *MemoryStatus) Set(_ context.Context, docID string, st Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[docID] = st
	return nil
}

func (s *MemoryStatus) Get(_ context.Context, docID string) (Status, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.m[docID]
	return st, ok, nil
}

func (s *MemoryStatus) Delete(_ context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, docID)
	return nil
}

type RedisStatus struct {
	client *redis.Client
	keyNS  string
	ttl    time.Duration
}

func NewRedisStatus(client *redis.Client, ttl time.Duration) *RedisStatus {
	return &RedisStatus{client: client, keyNS: "doc", ttl: ttl}
}

func (s *RedisStatus) key(docID string) string { return fmt.Sprintf("%s:%s:batch", s.keyNS, docID) }

func (s *RedisStatus) Set(ctx context.Context, docID string, st Status) error {
	m := map[string]interface{}{
		"op":        st.Op,
		"status":    st.Status,
		"processed": st.Processed,
		"total":     st.Total,
		"failed":    st.Failed,
		"message":   st.Message,
	}
	if st.Start != nil {
		m["start"] = st.Start.Format(time.RFC3339Nano)
	}
	if st.End != nil {
		m["end"] = st.End.Format(time.RFC3339Nano)
	}
	if st.Metadata != nil {
		b, _ := json.Marshal(st.Metadata)
		m["metadata"] = string(b)
	}
	if err := s.client.HSet(ctx, s.key(docID), m).Err(); err != nil {
		return err
	}
	if s.ttl > 0 {
		return s.client.Expire(ctx, s.key(docID), s.ttl).Err()
	}
	return nil
}

func (s *RedisStatus) Get(ctx context.Context, docID string) (Status, bool, error) {
	res, err := s.client.HGetAll(ctx, s.key(docID)).Result()
	if err != nil {
		return Status{}, false, err
	}
	if len(res) == 0 {
		return Status{}, false, nil
	}
	st := Status{Op: res["op"], Status: res["status"], Message: res["message"]}
	// ignore parse errors; default 0
	fmt.Sscan(res["processed"], &st.Processed)
	fmt.Sscan(res["total"], &st.Total)
	fmt.Sscan(res["failed"], &st.Failed)
	if v := res["start"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.Start = &t
		}
	}
	if v := res["end"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.End = &t
		}
	}
	if v := res["metadata"]; v != "" {
		_ = json.Unmarshal([]byte(v), &st.Metadata)
	}
	return st, true, nil
}

func (s *RedisStatus) Delete(ctx context.Context, docID string) error {
	return s.client.Del(ctx, s.key(docID)).Err()
}
