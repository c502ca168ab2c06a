package id

import (
	"sort"
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunIDIsValidULID(t *testing.T) {
	t.Parallel()

	raw := NewRunID()
	parsed, err := ulid.ParseStrict(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, parsed.String())
}

func TestNewRunIDSortsBySubmissionOrder(t *testing.T) {
	t.Parallel()

	ids := make([]string, 100)
	for i := range ids {
		ids[i] = NewRunID()
	}

	assert.True(t, sort.StringsAreSorted(ids), "sequential IDs must be lexicographically increasing")
}

func TestNewRunIDUniqueUnderConcurrency(t *testing.T) {
	t.Parallel()

	const perWorker = 200
	var (
		mu  sync.Mutex
		all = make(map[string]struct{}, 4*perWorker)
		wg  sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := NewRunID()
				mu.Lock()
				all[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, all, 4*perWorker, "every minted ID must be distinct")
}
