package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"taskboard/backend/internal/cache"
	"taskboard/backend/internal/models"

	"github.com/gofrs/uuid"
)

const defaultTaskListTTL = 2 * time.Minute

// CachedTaskService decorates a TaskService with a read-through cache. Every
// key embeds the owner id, and any mutation drops all of that owner's keys.
//
// An owner whose invalidation failed is served from the store, bypassing the
// cache, until a retried invalidation succeeds. Reads that overlap a mutation
// never leave their result behind in the cache.
type CachedTaskService struct {
	next   TaskService
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.Mutex
	owners map[uuid.UUID]*ownerCacheState
}

// ownerCacheState is bumped by every mutation; readers compare generations to
// detect a mutation that ran while they were loading from the store.
type ownerCacheState struct {
	gen      uint64
	inflight int
	dirty    bool
}

func NewCachedTaskService(next TaskService, c cache.Cache, ttl time.Duration, logger *slog.Logger) *CachedTaskService {
	if ttl <= 0 {
		ttl = defaultTaskListTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedTaskService{
		next:   next,
		cache:  c,
		ttl:    ttl,
		logger: logger,
		owners: make(map[uuid.UUID]*ownerCacheState),
	}
}

func ownerPattern(ownerID uuid.UUID) string {
	return fmt.Sprintf("tasks:%s:*", ownerID)
}

func taskKey(ownerID uuid.UUID, taskID string) string {
	return fmt.Sprintf("tasks:%s:task:%s", ownerID, taskID)
}

// listKey hashes the normalized query so equivalent requests share an entry.
func listKey(q models.TaskQuery) string {
	raw := fmt.Sprintf("status=%s|priority=%s|search=%s|sort=%s|page=%d|limit=%d",
		q.Status, q.Priority, q.Search, q.Sort, q.Page, q.Limit)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("tasks:%s:list:%s", q.OwnerID, hex.EncodeToString(sum[:]))
}

func (s *CachedTaskService) Create(ctx context.Context, ownerID uuid.UUID, in CreateTaskInput) (*models.Task, error) {
	s.beginMutation(ownerID)
	task, err := s.next.Create(ctx, ownerID, in)
	s.endMutation(ctx, ownerID, err == nil)
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (s *CachedTaskService) Get(ctx context.Context, ownerID uuid.UUID, taskID string) (*models.Task, error) {
	key := taskKey(ownerID, taskID)

	gen, usable := s.cacheable(ctx, ownerID)
	if usable {
		var cached models.Task
		if s.lookup(ctx, key, &cached) {
			return &cached, nil
		}
	}

	task, err := s.next.Get(ctx, ownerID, taskID)
	if err != nil {
		return nil, err
	}
	if usable {
		s.store(ctx, ownerID, gen, key, task)
	}
	return task, nil
}

func (s *CachedTaskService) List(ctx context.Context, q models.TaskQuery) (*models.TaskPage, error) {
	key := listKey(q)

	gen, usable := s.cacheable(ctx, q.OwnerID)
	if usable {
		var cached models.TaskPage
		if s.lookup(ctx, key, &cached) {
			if cached.Tasks == nil {
				cached.Tasks = []models.Task{}
			}
			return &cached, nil
		}
	}

	page, err := s.next.List(ctx, q)
	if err != nil {
		return nil, err
	}
	if usable {
		s.store(ctx, q.OwnerID, gen, key, page)
	}
	return page, nil
}

func (s *CachedTaskService) Update(ctx context.Context, ownerID uuid.UUID, taskID string, in UpdateTaskInput) (*models.Task, error) {
	s.beginMutation(ownerID)
	task, err := s.next.Update(ctx, ownerID, taskID, in)
	s.endMutation(ctx, ownerID, err == nil)
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (s *CachedTaskService) Delete(ctx context.Context, ownerID uuid.UUID, taskID string) error {
	s.beginMutation(ownerID)
	err := s.next.Delete(ctx, ownerID, taskID)
	s.endMutation(ctx, ownerID, err == nil)
	return err
}

// stateLocked returns the owner's state, creating it on first use. States are
// kept for the life of the process so generations never repeat.
func (s *CachedTaskService) stateLocked(ownerID uuid.UUID) *ownerCacheState {
	st, ok := s.owners[ownerID]
	if !ok {
		st = &ownerCacheState{}
		s.owners[ownerID] = st
	}
	return st
}

func (s *CachedTaskService) beginMutation(ownerID uuid.UUID) {
	s.mu.Lock()
	st := s.stateLocked(ownerID)
	st.gen++
	st.inflight++
	s.mu.Unlock()
}

func (s *CachedTaskService) endMutation(ctx context.Context, ownerID uuid.UUID, changed bool) {
	if changed {
		s.invalidate(ctx, ownerID)
	}
	s.mu.Lock()
	st := s.stateLocked(ownerID)
	st.gen++
	st.inflight--
	s.mu.Unlock()
}

// cacheable reports whether the owner's entries may be read and written, and
// the generation a later store must still match. A dirty owner gets one
// invalidation retry per call.
func (s *CachedTaskService) cacheable(ctx context.Context, ownerID uuid.UUID) (uint64, bool) {
	s.mu.Lock()
	st := s.stateLocked(ownerID)
	dirty := st.dirty
	s.mu.Unlock()

	if dirty && !s.invalidate(ctx, ownerID) {
		return 0, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st = s.stateLocked(ownerID)
	return st.gen, !st.dirty
}

// current reports whether no mutation has started since gen was taken.
func (s *CachedTaskService) current(ownerID uuid.UUID, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stateLocked(ownerID)
	return st.gen == gen && st.inflight == 0 && !st.dirty
}

func (s *CachedTaskService) markDirty(ownerID uuid.UUID) {
	s.mu.Lock()
	s.stateLocked(ownerID).dirty = true
	s.mu.Unlock()
}

func (s *CachedTaskService) lookup(ctx context.Context, key string, dest interface{}) bool {
	err := s.cache.Get(ctx, key, dest)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.WarnContext(ctx, "cache_read_failed", "key", key, "err", err)
	}
	return false
}

// store writes value unless a mutation started after gen was taken. A
// mutation that slips in between the check and the write is caught by the
// second check, which withdraws the entry again.
func (s *CachedTaskService) store(ctx context.Context, ownerID uuid.UUID, gen uint64, key string, value interface{}) {
	if !s.current(ownerID, gen) {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.ttl); err != nil {
		s.logger.WarnContext(ctx, "cache_write_failed", "key", key, "err", err)
	}
	if s.current(ownerID, gen) {
		return
	}
	if err := s.cache.Delete(ctx, key); err != nil {
		s.markDirty(ownerID)
		s.logger.WarnContext(ctx, "cache_withdraw_failed", "key", key, "err", err)
	}
}

// invalidate drops every entry of the owner. On failure the owner stays dirty
// and bypasses the cache until a later attempt succeeds.
func (s *CachedTaskService) invalidate(ctx context.Context, ownerID uuid.UUID) bool {
	err := s.cache.DeletePattern(ctx, ownerPattern(ownerID))

	s.mu.Lock()
	s.stateLocked(ownerID).dirty = err != nil
	s.mu.Unlock()

	if err != nil {
		s.logger.WarnContext(ctx, "cache_invalidate_failed", "owner_id", ownerID.String(), "err", err)
		return false
	}
	return true
}
