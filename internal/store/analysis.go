package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/local/pdfslicer/internal/analysis"
)

// AnalysisStore keeps at most one analysis result per document page.
type AnalysisStore interface {
	Get(ctx context.Context, docID string, index int) (analysis.Result, bool, error)
	Put(ctx context.Context, docID string, index int, res analysis.Result) error
	List(ctx context.Context, docID string) (map[int]analysis.Result, error)
	Clear(ctx context.Context, docID string) error
}

// MemoryStore is the default in-process store.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[int]analysis.Result
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: map[string]map[int]analysis.Result{}}
}

func (s *MemoryStore) Get(_ context.Context, docID string, index int) (analysis.Result, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.docs[docID][index]
	return r, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, docID string, index int, res analysis.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.docs[docID]
	if !ok {
		m = map[int]analysis.Result{}
		s.docs[docID] = m
	}
	res.Keywords = append([]string(nil), res.Keywords...)
	m[index] = res
	return nil
}

func (s *MemoryStore) List(_ context.Context, docID string) (map[int]analysis.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]analysis.Result, len(s.docs[docID]))
	for i, r := range s.docs[docID] {
		out[i] = r
	}
	return out, nil
}

func (s *MemoryStore) Clear(_ context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, docID)
	return nil
}

// RedisAnalysisStore keeps one hash per analyzed page plus a set of analyzed indices.
type RedisAnalysisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisAnalysisStore(client *redis.Client, ttl time.Duration) *RedisAnalysisStore {
	return &RedisAnalysisStore{client: client, ttl: ttl}
}

// Connect parses redisURL and pings the server.
func Connect(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (s *RedisAnalysisStore) pageKey(docID string, index int) string {
	return fmt.Sprintf("doc:%s:page:%d", docID, index)
}

func (s *RedisAnalysisStore) indexKey(docID string) string {
	return fmt.Sprintf("doc:%s:analyzed", docID)
}

func (s *RedisAnalysisStore) Put(ctx context.Context, docID string, index int, res analysis.Result) error {
	kw, err := json.Marshal(res.Keywords)
	if err != nil {
		return err
	}
	key := s.pageKey(docID, index)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{"summary": res.Summary, "keywords": string(kw)})
	pipe.SAdd(ctx, s.indexKey(docID), index)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
		pipe.Expire(ctx, s.indexKey(docID), s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisAnalysisStore) Get(ctx context.Context, docID string, index int) (analysis.Result, bool, error) {
	res, err := s.client.HGetAll(ctx, s.pageKey(docID, index)).Result()
	if err != nil {
		return analysis.Result{}, false, err
	}
	if len(res) == 0 {
		return analysis.Result{}, false, nil
	}
	out := analysis.Result{Summary: res["summary"], Keywords: []string{}}
	if v := res["keywords"]; v != "" {
		if err := json.Unmarshal([]byte(v), &out.Keywords); err != nil {
			return analysis.Result{}, false, fmt.Errorf("decode keywords for page %d: %w", index, err)
		}
	}
	return out, true, nil
}

func (s *RedisAnalysisStore) List(ctx context.Context, docID string) (map[int]analysis.Result, error) {
	members, err := s.client.SMembers(ctx, s.indexKey(docID)).Result()
	if err != nil {
		return nil, err
	}
	idx := make([]int, 0, len(members))
	for _, m := range members {
		if i, err := strconv.Atoi(m); err == nil {
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)
	out := make(map[int]analysis.Result, len(idx))
	for _, i := range idx {
		r, ok, err := s.Get(ctx, docID, i)
		if err != nil {
			return out, err
		}
		if ok {
			out[i] = r
		}
	}
	return out, nil
}

func (s *RedisAnalysisStore) Clear(ctx context.Context, docID string) error {
	members, err := s.client.SMembers(ctx, s.indexKey(docID)).Result()
	if err != nil {
		return err
	}
	keys := []string{s.indexKey(docID)}
	for _, m := range members {
		if i, err := strconv.Atoi(m); err == nil {
			keys = append(keys, s.pageKey(docID, i))
		}
	}
	return s.client.Del(ctx, keys...).Err()
}
