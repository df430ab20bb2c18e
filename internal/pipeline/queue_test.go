package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obafela/doc-pipeline/constants"
)

func TestQueueProcessesEnqueuedDocuments(t *testing.T) {
	store := newFakeStore()
	var mu sync.Mutex
	seen := map[string]bool{}
	done := make(chan struct{}, 2)

	sum := &stubSummarizer{fn: func(string) (string, error) { return "s", nil }}
	ext := &stubExtractor{fn: func([]byte) (string, error) { return "t", nil }}
	pre := preFunc(func(_ context.Context, path string, _ constants.Format) (constants.Format, [][]byte, error) {
		mu.Lock()
		seen[path] = true
		mu.Unlock()
		done <- struct{}{}
		return constants.DOCX, [][]byte{[]byte("text")}, nil
	})

	p := NewProcessor(nil, pre, ext, sum, &stubReporter{}, store, testPolicy())
	q := NewQueue(p, nil, WithWorkers(2), WithQueueSize(4))
	defer q.Shutdown(context.Background())

	require.NoError(t, q.Enqueue(context.Background(), Document{ID: uuid.New(), Path: "/a.docx"}))
	require.NoError(t, q.Enqueue(context.Background(), Document{ID: uuid.New(), Path: "/b.docx"}))

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for processing")
		}
	}
	mu.Lock()
	defer mu.Unlock()
	assert.True(t, seen["/a.docx"])
	assert.True(t, seen["/b.docx"])
}

func TestQueueDeduplicatesInFlightDocuments(t *testing.T) {
	store := newFakeStore()
	var calls int
	var mu sync.Mutex
	entered := make(chan struct{}, 4)
	release := make(chan struct{})

	pre := preFunc(func(context.Context, string, constants.Format) (constants.Format, [][]byte, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		entered <- struct{}{}
		<-release
		return constants.DOCX, [][]byte{[]byte("text")}, nil
	})
	ext := &stubExtractor{fn: func([]byte) (string, error) { return "t", nil }}
	sum := &stubSummarizer{fn: func(string) (string, error) { return "s", nil }}

	p := NewProcessor(nil, pre, ext, sum, &stubReporter{}, store, testPolicy())
	q := NewQueue(p, nil, WithWorkers(2), WithQueueSize(4))

	id := uuid.New()
	doc := Document{ID: id, Path: "/same.docx"}
	require.NoError(t, q.Enqueue(context.Background(), doc))
	<-entered
	// second submission while the first is still processing is dropped
	require.NoError(t, q.Enqueue(context.Background(), doc))

	close(release)
	q.Shutdown(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestQueueShutdownDrains(t *testing.T) {
	store := newFakeStore()
	processed := 0
	var mu sync.Mutex
	pre := preFunc(func(context.Context, string, constants.Format) (constants.Format, [][]byte, error) {
		mu.Lock()
		processed++
		mu.Unlock()
		return constants.DOCX, [][]byte{[]byte("text")}, nil
	})
	ext := &stubExtractor{fn: func([]byte) (string, error) { return "t", nil }}
	sum := &stubSummarizer{fn: func(string) (string, error) { return "s", nil }}

	p := NewProcessor(nil, pre, ext, sum, &stubReporter{}, store, testPolicy())
	q := NewQueue(p, nil, WithWorkers(1), WithQueueSize(8))

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(context.Background(), Document{ID: uuid.New(), Path: "/x.docx"}))
	}
	q.Shutdown(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, processed)

	// enqueue after shutdown is a no-op
	require.NoError(t, q.Enqueue(context.Background(), Document{ID: uuid.New()}))
}

func TestQueueEnqueueRacingShutdownDoesNotPanic(t *testing.T) {
	store := newFakeStore()
	pre := preFunc(func(context.Context, string, constants.Format) (constants.Format, [][]byte, error) {
		return constants.DOCX, [][]byte{[]byte("text")}, nil
	})
	ext := &stubExtractor{fn: func([]byte) (string, error) { return "t", nil }}
	sum := &stubSummarizer{fn: func(string) (string, error) { return "s", nil }}

	p := NewProcessor(nil, pre, ext, sum, &stubReporter{}, store, testPolicy())
	q := NewQueue(p, nil, WithWorkers(2), WithQueueSize(1))

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 200; j++ {
				assert.NoError(t, q.Enqueue(context.Background(), Document{ID: uuid.New(), Path: "/x.docx"}))
			}
		}()
	}
	close(start)
	q.Shutdown(context.Background())
	wg.Wait()

	// intake is closed for good once shutdown has run
	require.NoError(t, q.Enqueue(context.Background(), Document{ID: uuid.New()}))
}

// preFunc adapts a function to the preprocess.Preprocessor interface.
type preFunc func(ctx context.Context, path string, declared constants.Format) (constants.Format, [][]byte, error)

func (f preFunc) Preprocess(ctx context.Context, path string, declared constants.Format) (constants.Format, [][]byte, error) {
	return f(ctx, path, declared)
}
