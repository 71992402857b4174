// Package requestlog keeps an in-memory journal of served requests so the
// admin API can answer "what traffic did this virtual service see, and how
// was each request answered".
package requestlog

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// Outcome says which pipeline stage produced the response.
type Outcome string

const (
	OutcomeScenario Outcome = "scenario"
	OutcomeRule     Outcome = "rule"
	OutcomeDefault  Outcome = "default"
	OutcomeFault    Outcome = "fault"
	OutcomeProxy    Outcome = "proxy"
	OutcomeNone     Outcome = "none"
)

// Entry is one served request. Status is 0 when the connection was aborted
// before a status line was written.
type Entry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Method      string    `json:"method"`
	Path        string    `json:"path"`
	QueryString string    `json:"queryString,omitempty"`
	RemoteAddr  string    `json:"remoteAddr,omitempty"`
	BodySize    int       `json:"bodySize"`
	EndpointID  string    `json:"endpointId,omitempty"`
	RuleID      string    `json:"ruleId,omitempty"`
	ScenarioID  string    `json:"scenarioId,omitempty"`
	Outcome     Outcome   `json:"outcome"`
	Status      int       `json:"status"`
	DurationMs  int64     `json:"durationMs"`
}

// Filter selects entries out of the journal. Zero values match everything.
type Filter struct {
	Method     string
	Path       string // prefix match
	EndpointID string
	Outcome    Outcome
	Limit      int
	Offset     int
}

// Journal is a fixed-capacity circular buffer of entries, oldest evicted
// first. Safe for concurrent use.
type Journal struct {
	mu       sync.RWMutex
	entries  []*Entry
	capacity int
	nextID   int64
}

// DefaultCapacity is the journal size used when none is given.
const DefaultCapacity = 1000

// NewJournal creates a journal holding up to capacity entries.
func NewJournal(capacity int) *Journal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Journal{
		entries:  make([]*Entry, 0, capacity),
		capacity: capacity,
	}
}

// Log appends an entry, evicting the oldest at capacity. A missing ID or
// timestamp is filled in.
func (j *Journal) Log(entry *Entry) {
	if entry == nil {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if entry.ID == "" {
		j.nextID++
		entry.ID = "req-" + strconv.FormatInt(j.nextID, 36)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.Outcome == "" {
		entry.Outcome = OutcomeNone
	}

	if len(j.entries) >= j.capacity {
		j.entries = j.entries[1:]
	}
	j.entries = append(j.entries, entry)
}

// Get retrieves an entry by ID, or nil.
func (j *Journal) Get(id string) *Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	for _, entry := range j.entries {
		if entry.ID == id {
			return entry
		}
	}
	return nil
}

// List returns entries newest first, optionally filtered.
func (j *Journal) List(filter *Filter) []*Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	result := make([]*Entry, 0, len(j.entries))
	for i := len(j.entries) - 1; i >= 0; i-- {
		entry := j.entries[i]
		if filter != nil && !matchesFilter(entry, filter) {
			continue
		}
		result = append(result, entry)
	}

	if filter != nil {
		if filter.Offset > 0 {
			if filter.Offset >= len(result) {
				return []*Entry{}
			}
			result = result[filter.Offset:]
		}
		if filter.Limit > 0 && filter.Limit < len(result) {
			result = result[:filter.Limit]
		}
	}
	return result
}

func matchesFilter(entry *Entry, filter *Filter) bool {
	if filter.Method != "" && !strings.EqualFold(entry.Method, filter.Method) {
		return false
	}
	if filter.Path != "" && !strings.HasPrefix(entry.Path, filter.Path) {
		return false
	}
	if filter.EndpointID != "" && entry.EndpointID != filter.EndpointID {
		return false
	}
	if filter.Outcome != "" && entry.Outcome != filter.Outcome {
		return false
	}
	return true
}

// Clear removes all entries.
func (j *Journal) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = make([]*Entry, 0, j.capacity)
}

// Count returns the number of entries held.
func (j *Journal) Count() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}
