package remote

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/JohanCodinha/blsync/internal/blacklist"
	"github.com/JohanCodinha/blsync/internal/secret"
)

// mockList is a list as held by MockServer. Entries are kept as raw JSON so
// tests can seed the legacy bare-string form.
type mockList struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Subjects    json.RawMessage `json:"subjects"`
	Items       json.RawMessage `json:"items"`
	UpdatedAt   int64           `json:"updatedAt"`
	digest      string
}

// MockServer provides a fake list service for testing.
type MockServer struct {
	*httptest.Server
	mu          sync.RWMutex
	lists       map[string]*mockList
	updateCalls map[string]int
	fetchCalls  map[string]int
	failStatus  int
	nextID      int

	// Now returns the ms timestamp assigned on writes. Defaults to wall time.
	Now func() int64
}

// NewMockServer creates a mock list service.
func NewMockServer() *MockServer {
	m := &MockServer{
		lists:       make(map[string]*mockList),
		updateCalls: make(map[string]int),
		fetchCalls:  make(map[string]int),
		Now:         func() int64 { return time.Now().UnixMilli() },
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/api/lists", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		m.handleCreate(w, r)
	})

	// Single list: /api/lists/{id}
	mux.HandleFunc("/api/lists/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/api/lists/")
		if id == "" || strings.Contains(id, "/") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if status := m.takeFailure(); status != 0 {
			http.Error(w, "injected failure", status)
			return
		}
		switch r.Method {
		case http.MethodGet:
			m.handleFetch(w, id)
		case http.MethodPut:
			m.handleUpdate(w, r, id)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	m.Server = httptest.NewServer(mux)
	return m
}

// AddList seeds a list whose write secret is writeSecret.
func (m *MockServer) AddList(l List, writeSecret string) {
	subjects, _ := json.Marshal(nonNil(l.Subjects))
	items, _ := json.Marshal(nonNil(l.Items))
	m.put(l.ID, l.Name, l.Description, subjects, items, l.UpdatedAt, writeSecret)
}

// AddLegacyList seeds a list whose entries use the bare id string form.
func (m *MockServer) AddLegacyList(id, writeSecret string, subjects, items []string, updatedAt int64) {
	if subjects == nil {
		subjects = []string{}
	}
	if items == nil {
		items = []string{}
	}
	s, _ := json.Marshal(subjects)
	i, _ := json.Marshal(items)
	m.put(id, "", "", s, i, updatedAt, writeSecret)
}

func (m *MockServer) put(id, name, description string, subjects, items json.RawMessage, updatedAt int64, writeSecret string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[id] = &mockList{
		ID:          id,
		Name:        name,
		Description: description,
		Subjects:    subjects,
		Items:       items,
		UpdatedAt:   updatedAt,
		digest:      secret.Digest(id, writeSecret),
	}
}

// GetList retrieves a list (for test assertions). Returns nil if absent.
func (m *MockServer) GetList(id string) *List {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ml, ok := m.lists[id]
	if !ok {
		return nil
	}
	raw, _ := json.Marshal(ml)
	var l List
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil
	}
	return &l
}

// SetUpdatedAt overrides the server timestamp of a list.
func (m *MockServer) SetUpdatedAt(id string, updatedAt int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ml, ok := m.lists[id]; ok {
		ml.UpdatedAt = updatedAt
	}
}

// UpdateCalls returns the number of accepted writes to list id.
func (m *MockServer) UpdateCalls(id string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.updateCalls[id]
}

// FetchCalls returns the number of reads of list id.
func (m *MockServer) FetchCalls(id string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fetchCalls[id]
}

// FailNext makes the next request on a single list answer with status.
func (m *MockServer) FailNext(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failStatus = status
}

// Reset clears all lists and counters.
func (m *MockServer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists = make(map[string]*mockList)
	m.updateCalls = make(map[string]int)
	m.fetchCalls = make(map[string]int)
	m.failStatus = 0
}

func (m *MockServer) takeFailure() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := m.failStatus
	m.failStatus = 0
	return status
}

func (m *MockServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	writeSecret, err := secret.Generate()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	m.mu.Lock()
	m.nextID++
	id := fmt.Sprintf("list-%d", m.nextID)
	m.mu.Unlock()

	updatedAt := m.Now()
	m.AddList(List{ID: id, Name: req.Name, Description: req.Description, Subjects: req.Subjects, Items: req.Items, UpdatedAt: updatedAt}, writeSecret)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(Created{ID: id, WriteSecret: writeSecret, UpdatedAt: updatedAt})
}

func (m *MockServer) handleFetch(w http.ResponseWriter, id string) {
	m.mu.Lock()
	m.fetchCalls[id]++
	ml, ok := m.lists[id]
	m.mu.Unlock()

	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ml)
}

func (m *MockServer) handleUpdate(w http.ResponseWriter, r *http.Request, id string) {
	var update ListUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ml, ok := m.lists[id]
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if r.Header.Get(WriteSecretHeader) != ml.digest {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	if update.Name != nil {
		ml.Name = *update.Name
	}
	if update.Description != nil {
		ml.Description = *update.Description
	}
	ml.Subjects, _ = json.Marshal(nonNil(update.Subjects))
	ml.Items, _ = json.Marshal(nonNil(update.Items))
	ml.UpdatedAt = m.Now()
	m.updateCalls[id]++

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(UpdateResult{Success: true, UpdatedAt: ml.UpdatedAt})
}

func nonNil(entries []blacklist.Entry) []blacklist.Entry {
	if entries == nil {
		return []blacklist.Entry{}
	}
	return entries
}
