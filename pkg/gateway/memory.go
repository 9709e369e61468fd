package gateway

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strconv"
	"sync"

	"github.com/cuemby/mirror/pkg/types"
)

// MemoryDB is a deterministic in-memory DB used in tests and local
// development. Scans and listings are ordered by document ID.
type MemoryDB struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]interface{}

	unavailable bool
	failBatches int

	// BatchSizes records the size of every committed batch, in order.
	BatchSizes []int
}

// NewMemoryDB creates an empty in-memory database.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{collections: make(map[string]map[string]map[string]interface{})}
}

// SeedDoc inserts or replaces a document directly, bypassing BatchWrite.
func (m *MemoryDB) SeedDoc(collection, id string, data map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.collections[collection] == nil {
		m.collections[collection] = make(map[string]map[string]interface{})
	}
	m.collections[collection][id] = maps.Clone(data)
}

// DeleteDoc removes a document directly.
func (m *MemoryDB) DeleteDoc(collection, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections[collection], id)
}

// GetDoc reads a document directly.
func (m *MemoryDB) GetDoc(collection, id string) (map[string]interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.collections[collection][id]
	if !ok {
		return nil, false
	}
	return maps.Clone(data), true
}

// DocCount returns the number of documents in a collection.
func (m *MemoryDB) DocCount(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection])
}

// SetUnavailable makes every subsequent call fail with ErrUnavailable.
func (m *MemoryDB) SetUnavailable(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = down
}

// FailNextBatches makes the next n BatchWrite calls fail.
func (m *MemoryDB) FailNextBatches(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failBatches = n
}

func (m *MemoryDB) check() error {
	if m.unavailable {
		return fmt.Errorf("memory db: %w", ErrUnavailable)
	}
	return nil
}

func (m *MemoryDB) ListCollections(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryDB) snapshot(collection, since string) []types.Document {
	ids := make([]string, 0, len(m.collections[collection]))
	for id := range m.collections[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var docs []types.Document
	for _, id := range ids {
		data := maps.Clone(m.collections[collection][id])
		ts := types.DocTimestamp(data)
		if since != "" && ts <= since {
			continue
		}
		docs = append(docs, types.Document{ID: id, Data: data, UpdatedAt: ts})
	}
	return docs
}

func (m *MemoryDB) ScanSince(ctx context.Context, collection, since string, fn func(types.Document) error) error {
	m.mu.RLock()
	if err := m.check(); err != nil {
		m.mu.RUnlock()
		return err
	}
	docs := m.snapshot(collection, since)
	m.mu.RUnlock()

	for _, doc := range docs {
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryDB) Sample(ctx context.Context, collection string, limit int) ([]types.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	docs := m.snapshot(collection, "")
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (m *MemoryDB) MultiGet(ctx context.Context, collection string, ids []string) (map[string]types.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	result := make(map[string]types.Document, len(ids))
	for _, id := range ids {
		if data, ok := m.collections[collection][id]; ok {
			cloned := maps.Clone(data)
			result[id] = types.Document{ID: id, Data: cloned, UpdatedAt: types.DocTimestamp(cloned)}
		}
	}
	return result, nil
}

func (m *MemoryDB) BatchWrite(ctx context.Context, collection string, docs []types.Document) error {
	if len(docs) > MaxBatchWrite {
		return fmt.Errorf("batch of %d exceeds limit of %d: %w", len(docs), MaxBatchWrite, ErrInvalid)
	}
	if len(docs) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	if m.failBatches > 0 {
		m.failBatches--
		return fmt.Errorf("memory db: batch failed: %w", ErrUnavailable)
	}

	if m.collections[collection] == nil {
		m.collections[collection] = make(map[string]map[string]interface{})
	}
	for _, doc := range docs {
		existing := m.collections[collection][doc.ID]
		if existing == nil {
			existing = make(map[string]interface{})
			m.collections[collection][doc.ID] = existing
		}
		// Merge semantics: present fields overwrite, absent fields stay.
		for k, v := range doc.Data {
			existing[k] = v
		}
	}
	m.BatchSizes = append(m.BatchSizes, len(docs))
	return nil
}

func (m *MemoryDB) ListIDs(ctx context.Context, collection string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(m.collections[collection]))
	for id := range m.collections[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryDB) Probe(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.check()
}

// MemoryDirectory is a deterministic in-memory auth directory. Listings
// are ordered by UID.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]types.User

	unavailable bool

	// PageSize overrides UserPageSize for pagination tests.
	PageSize int

	// ImportFailUIDs maps UIDs to a rejection reason for fault injection.
	ImportFailUIDs map[string]string

	// LastHash records the hash parameters of the most recent import.
	LastHash types.HashParams

	// ClaimsCalls counts SetCustomClaims invocations.
	ClaimsCalls int
}

// NewMemoryDirectory creates an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		users:    make(map[string]types.User),
		PageSize: UserPageSize,
	}
}

// SeedUser inserts or replaces a user directly.
func (m *MemoryDirectory) SeedUser(u types.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.UID] = u
}

// UserCount returns the number of users in the directory.
func (m *MemoryDirectory) UserCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}

// SetUnavailable makes every subsequent call fail with ErrUnavailable.
func (m *MemoryDirectory) SetUnavailable(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = down
}

func (m *MemoryDirectory) check() error {
	if m.unavailable {
		return fmt.Errorf("memory directory: %w", ErrUnavailable)
	}
	return nil
}

func (m *MemoryDirectory) ListUsers(ctx context.Context, pageToken string) ([]types.User, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, "", err
	}

	uids := make([]string, 0, len(m.users))
	for uid := range m.users {
		uids = append(uids, uid)
	}
	sort.Strings(uids)

	start := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil {
			return nil, "", fmt.Errorf("bad page token %q: %w", pageToken, ErrInvalid)
		}
		start = n
	}
	if start >= len(uids) {
		return nil, "", nil
	}

	end := start + m.PageSize
	next := ""
	if end < len(uids) {
		next = strconv.Itoa(end)
	} else {
		end = len(uids)
	}

	page := make([]types.User, 0, end-start)
	for _, uid := range uids[start:end] {
		page = append(page, m.users[uid])
	}
	return page, next, nil
}

func (m *MemoryDirectory) ImportUsers(ctx context.Context, users []types.User, params types.HashParams) (types.ImportResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return types.ImportResult{}, err
	}

	m.LastHash = params
	var result types.ImportResult
	for i, u := range users {
		if reason, bad := m.ImportFailUIDs[u.UID]; bad {
			result.FailureCount++
			result.Errors = append(result.Errors, types.ImportError{Index: i, Reason: reason})
			continue
		}
		m.users[u.UID] = u
		result.SuccessCount++
	}
	return result, nil
}

func (m *MemoryDirectory) SetCustomClaims(ctx context.Context, uid string, claims map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	u, ok := m.users[uid]
	if !ok {
		return fmt.Errorf("user %s: %w", uid, ErrNotFound)
	}
	u.CustomClaims = claims
	m.users[uid] = u
	m.ClaimsCalls++
	return nil
}

func (m *MemoryDirectory) GetUser(ctx context.Context, uid string) (*types.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	u, ok := m.users[uid]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", uid, ErrNotFound)
	}
	return &u, nil
}

func (m *MemoryDirectory) Probe(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.check()
}
