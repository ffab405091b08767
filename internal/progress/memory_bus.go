package progress

import (
	"context"
	"sync"
)

// memoryBus is a single-process Bus used in tests and local development.
type memoryBus struct {
	mu        sync.RWMutex
	jobSubs   map[string][]chan ProgressEvent
	notebSubs map[string][]chan LifecycleEvent
	closed    bool
}

func NewMemoryBus() Bus {
	return &memoryBus{
		jobSubs:   make(map[string][]chan ProgressEvent),
		notebSubs: make(map[string][]chan LifecycleEvent),
	}
}

func (b *memoryBus) PublishProgress(_ context.Context, ev ProgressEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.jobSubs[ev.JobID] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (b *memoryBus) PublishLifecycle(_ context.Context, ev LifecycleEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.notebSubs[ev.NotebookID] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (b *memoryBus) SubscribeJob(_ context.Context, jobID string) (<-chan ProgressEvent, func(), error) {
	ch := make(chan ProgressEvent, 64)
	b.mu.Lock()
	b.jobSubs[jobID] = append(b.jobSubs[jobID], ch)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.jobSubs[jobID]
		for i, c := range subs {
			if c == ch {
				b.jobSubs[jobID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	return ch, cancel, nil
}

func (b *memoryBus) SubscribeNotebook(_ context.Context, notebookID string) (<-chan LifecycleEvent, func(), error) {
	ch := make(chan LifecycleEvent, 64)
	b.mu.Lock()
	b.notebSubs[notebookID] = append(b.notebSubs[notebookID], ch)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.notebSubs[notebookID]
		for i, c := range subs {
			if c == ch {
				b.notebSubs[notebookID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	return ch, cancel, nil
}

func (b *memoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
