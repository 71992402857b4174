package requestlog

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalLogAssignsDefaults(t *testing.T) {
	j := NewJournal(10)
	entry := &Entry{Method: "GET", Path: "/a"}
	j.Log(entry)

	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.Timestamp.IsZero())
	assert.Equal(t, OutcomeNone, entry.Outcome)
	assert.Equal(t, 1, j.Count())
}

func TestJournalEvictsOldest(t *testing.T) {
	j := NewJournal(3)
	for i := 0; i < 5; i++ {
		j.Log(&Entry{Method: "GET", Path: "/" + strconv.Itoa(i)})
	}

	assert.Equal(t, 3, j.Count())
	entries := j.List(nil)
	require.Len(t, entries, 3)
	assert.Equal(t, "/4", entries[0].Path)
	assert.Equal(t, "/2", entries[2].Path)
}

func TestJournalListNewestFirst(t *testing.T) {
	j := NewJournal(10)
	j.Log(&Entry{Method: "GET", Path: "/first"})
	j.Log(&Entry{Method: "GET", Path: "/second"})

	entries := j.List(nil)
	require.Len(t, entries, 2)
	assert.Equal(t, "/second", entries[0].Path)
}

func TestJournalFilter(t *testing.T) {
	j := NewJournal(10)
	j.Log(&Entry{Method: "GET", Path: "/orders/1", EndpointID: "ep-1", Outcome: OutcomeRule})
	j.Log(&Entry{Method: "POST", Path: "/orders", EndpointID: "ep-1", Outcome: OutcomeDefault})
	j.Log(&Entry{Method: "GET", Path: "/users/7", EndpointID: "ep-2", Outcome: OutcomeProxy})

	assert.Len(t, j.List(&Filter{Method: "get"}), 2)
	assert.Len(t, j.List(&Filter{Path: "/orders"}), 2)
	assert.Len(t, j.List(&Filter{EndpointID: "ep-2"}), 1)
	assert.Len(t, j.List(&Filter{Outcome: OutcomeDefault}), 1)
	assert.Len(t, j.List(&Filter{Method: "GET", Path: "/users"}), 1)
}

func TestJournalLimitOffset(t *testing.T) {
	j := NewJournal(10)
	for i := 0; i < 5; i++ {
		j.Log(&Entry{Method: "GET", Path: "/" + strconv.Itoa(i)})
	}

	page := j.List(&Filter{Limit: 2})
	require.Len(t, page, 2)
	assert.Equal(t, "/4", page[0].Path)

	page = j.List(&Filter{Limit: 2, Offset: 2})
	require.Len(t, page, 2)
	assert.Equal(t, "/2", page[0].Path)

	assert.Empty(t, j.List(&Filter{Offset: 10}))
}

func TestJournalGetAndClear(t *testing.T) {
	j := NewJournal(10)
	entry := &Entry{Method: "GET", Path: "/a"}
	j.Log(entry)

	assert.Equal(t, entry, j.Get(entry.ID))
	assert.Nil(t, j.Get("missing"))

	j.Clear()
	assert.Equal(t, 0, j.Count())
	assert.Nil(t, j.Get(entry.ID))
}
