package memory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/wikititles-crawler/internal/crawler"
)

func TestStackPopsLastInFirst(t *testing.T) {
	t.Parallel()

	s := NewStack([]crawler.Namespace{0, 1, 2})
	s.Push(10)

	var got []crawler.Namespace
	for {
		ns, ok := s.Pop()
		if !ok {
			break
		}
		got = append(got, ns)
	}
	require.Equal(t, []crawler.Namespace{10, 2, 1, 0}, got)
	require.Zero(t, s.Len())
}

func TestStackDoesNotAliasInput(t *testing.T) {
	t.Parallel()

	input := []crawler.Namespace{4, 5}
	s := NewStack(input)
	input[1] = 99

	ns, ok := s.Pop()
	require.True(t, ok)
	require.Equal(t, crawler.Namespace(5), ns)
}

func TestStackDrain(t *testing.T) {
	t.Parallel()

	s := NewStack([]crawler.Namespace{0, 1, 2})
	_, _ = s.Pop()

	require.Equal(t, []crawler.Namespace{1, 0}, s.Drain())
	require.Zero(t, s.Len())
	require.Empty(t, s.Drain())
}

func TestStackConcurrentPopsHandOutEachNamespaceOnce(t *testing.T) {
	t.Parallel()

	const n = 200
	input := make([]crawler.Namespace, n)
	for i := range input {
		input[i] = crawler.Namespace(i)
	}
	s := NewStack(input)

	var (
		mu   sync.Mutex
		seen = make(map[crawler.Namespace]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				ns, ok := s.Pop()
				if !ok {
					return
				}
				mu.Lock()
				seen[ns]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, n)
	for ns, count := range seen {
		require.Equal(t, 1, count, "namespace %d", ns)
	}
}
