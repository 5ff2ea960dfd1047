package application

import (
	"context"
	"testing"
	"time"

	"github.com/psds-microservice/agri-support-service/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig(t *testing.T) *config.Config {
	cfg := &config.Config{
		AppHost:        "127.0.0.1",
		HTTPPort:       "0",
		AppEnv:         "test",
		StoreDriver:    config.StoreDriverMemory,
		UploadDir:      t.TempDir(),
		MaxUploadBytes: 1 << 20,
	}
	cfg.Auth.TrustCallerHeader = true
	cfg.Classifier.Timeout = time.Second
	cfg.Advisory.Timeout = time.Second
	return cfg
}

func TestOpenMemoryStore(t *testing.T) {
	st, err := OpenStore(memoryConfig(t))
	require.NoError(t, err)
	assert.NoError(t, st.Ping(context.Background()))
	assert.NoError(t, st.Close())
}

func TestAPIRunStopsOnCancel(t *testing.T) {
	api, err := NewAPI(memoryConfig(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- api.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewAPIValidatesConfig(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Auth.TrustCallerHeader = false
	_, err := NewAPI(cfg)
	assert.Error(t, err)
}
