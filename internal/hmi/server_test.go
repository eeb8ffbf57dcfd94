package hmi

import (
	"context"
	"testing"
	"time"

	"plc-server/internal/config"
	"plc-server/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

type stubProvider struct{}

func (stubProvider) Latest() models.Snapshot                  { return models.Snapshot{} }
func (stubProvider) SafetyStatus() map[string]interface{}     { return nil }
func (stubProvider) ControllerStatus() map[string]interface{} { return nil }

func TestServer_StopShutsDownStart(t *testing.T) {
	cfg := &config.Config{HMI: config.HMIConfig{Host: "127.0.0.1", Port: 0}}
	server := NewServer(cfg, stubProvider{}, models.NewOperatorPanel(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- server.Start(ctx)
	}()

	// Let the listener come up before shutting it down.
	time.Sleep(100 * time.Millisecond)
	server.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err, "a stopped server is a clean exit")
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down after Stop")
	}
}

func TestServer_OfferNeverBlocks(t *testing.T) {
	cfg := &config.Config{HMI: config.HMIConfig{Host: "127.0.0.1", Port: 0}}
	server := NewServer(cfg, stubProvider{}, models.NewOperatorPanel(), testLogger())

	// Without a running broadcast loop the feed buffer fills up; further
	// offers must be rejected, not block.
	accepted := 0
	for i := 0; i < 100; i++ {
		if server.Offer(models.Snapshot{}) {
			accepted++
		}
	}
	assert.Equal(t, 16, accepted)
}
