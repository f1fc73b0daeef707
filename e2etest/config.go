package e2etest

import (
	"fmt"
	"os"

	"github.com/stephenolajire/stumart-query/config"
)

// testOpsPort is where the ops server listens during the tests
const testOpsPort = "18081"

const testConfigTemplate = `
api:
  base_url: %q
  max_retries: 1
  base_backoff: 10ms
  request_timeout: 5s
coordinator:
  coalesce_window: 750ms
queries:
  orders_refetch_interval: 200ms
realtime:
  enabled: true
  url: %q
  reconnect_delay: 50ms
ops:
  port: %q
`

// loadTestConfig writes a config pointing at the mock backend and loads it
// the way the binary does
func loadTestConfig(apiURL, wsURL string) (*config.Config, string, error) {
	f, err := os.CreateTemp("", "stumart-e2e-*.yaml")
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, testConfigTemplate, apiURL, wsURL, testOpsPort); err != nil {
		os.Remove(f.Name())
		return nil, "", err
	}

	cfg, err := config.LoadConfig(f.Name())
	if err != nil {
		os.Remove(f.Name())
		return nil, "", err
	}
	return cfg, f.Name(), nil
}

func cleanupTestConfig(path string) {
	if path != "" {
		os.Remove(path)
	}
}
