package e2etest

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stephenolajire/stumart-query/core"
	"github.com/stephenolajire/stumart-query/session"
)

// TestEnv represents a test environment
type TestEnv struct {
	Registry      *core.Registry
	Session       *session.Session
	Backend       *MockBackend
	Context       context.Context
	CancelFunc    context.CancelFunc
	ConfigPath    string
	ServerBaseURL string
}

// SetupTest starts the mock backend and every service against it
func SetupTest(t *testing.T) *TestEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	backend := NewMockBackend()

	cfg, configPath, err := loadTestConfig(backend.APIURL(), backend.WSURL())
	if err != nil {
		backend.Close()
		cancel()
		t.Fatalf("Failed to load test config: %v", err)
	}

	registry, sess, err := core.Setup(cfg, nil)
	if err != nil {
		cleanupTestConfig(configPath)
		backend.Close()
		cancel()
		t.Fatalf("Failed to setup services: %v", err)
	}

	if err := registry.StartAll(ctx); err != nil {
		registry.StopAll()
		cleanupTestConfig(configPath)
		backend.Close()
		cancel()
		t.Fatalf("Failed to start services: %v", err)
	}

	env := &TestEnv{
		Registry:      registry,
		Session:       sess,
		Backend:       backend,
		Context:       ctx,
		CancelFunc:    cancel,
		ConfigPath:    configPath,
		ServerBaseURL: fmt.Sprintf("http://localhost:%s", testOpsPort),
	}
	t.Cleanup(env.TearDown)

	// Wait for the ops server to accept connections
	require.Eventually(t, func() bool {
		resp, err := http.Get(env.ServerBaseURL + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond, "ops server not responding")

	return env
}

// TearDown releases test environment resources
func (env *TestEnv) TearDown() {
	if env.Registry != nil {
		env.Registry.StopAll()
		env.Registry = nil
	}
	if env.Backend != nil {
		env.Backend.Close()
		env.Backend = nil
	}
	if env.CancelFunc != nil {
		env.CancelFunc()
	}
	cleanupTestConfig(env.ConfigPath)
}
