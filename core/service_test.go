package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingService records Start and Stop calls into a shared journal
type recordingService struct {
	id       string
	startErr error
	journal  *journal
}

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) Entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func (s *recordingService) Start(ctx context.Context) error {
	s.journal.add("start " + s.id)
	return s.startErr
}

func (s *recordingService) Stop() {
	s.journal.add("stop " + s.id)
}

func newRegistry(j *journal, services ...*recordingService) *Registry {
	registry := NewRegistry(nil)
	for _, s := range services {
		s.journal = j
		registry.Register(s)
	}
	return registry
}

func TestRegistry_StartAllThenStopAllInReverse(t *testing.T) {
	j := &journal{}
	registry := newRegistry(j,
		&recordingService{id: "session"},
		&recordingService{id: "realtime"},
		&recordingService{id: "api"},
	)

	require.NoError(t, registry.StartAll(context.Background()))
	registry.StopAll()

	assert.Equal(t, []string{
		"start session", "start realtime", "start api",
		"stop api", "stop realtime", "stop session",
	}, j.Entries())
}

func TestRegistry_StartFailureStopsStartedServices(t *testing.T) {
	j := &journal{}
	startErr := errors.New("dial failed")
	registry := newRegistry(j,
		&recordingService{id: "session"},
		&recordingService{id: "realtime", startErr: startErr},
		&recordingService{id: "api"},
	)

	err := registry.StartAll(context.Background())
	assert.ErrorIs(t, err, startErr)
	assert.Equal(t, []string{"start session", "start realtime", "stop session"}, j.Entries())

	// Nothing left to stop
	registry.StopAll()
	assert.Len(t, j.Entries(), 3)
}

func TestRegistry_StopAllTwice(t *testing.T) {
	j := &journal{}
	registry := newRegistry(j, &recordingService{id: "api"})

	require.NoError(t, registry.StartAll(context.Background()))
	registry.StopAll()
	registry.StopAll()

	assert.Equal(t, []string{"start api", "stop api"}, j.Entries())
}

func TestRegistry_StopAllBeforeStart(t *testing.T) {
	j := &journal{}
	registry := newRegistry(j, &recordingService{id: "api"})

	registry.StopAll()
	assert.Empty(t, j.Entries())
}
