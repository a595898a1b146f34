package notifiers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/fiffu/redditwatch/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testBase() base {
	cfg := &config.Config{}
	cfg.Discord.TimeoutSecs = 2
	cfg.Pushover.TimeoutSecs = 2
	cfg.Pushover.APIURL = "https://api.pushover.net"
	return base{
		log:        zap.NewNop(),
		cfg:        cfg,
		transport:  http.DefaultTransport,
		attempts:   3,
		retryDelay: time.Millisecond,
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name          string
		status        int
		err           error
		wantNil       bool
		wantPermanent bool
	}{
		{"2xx ok", 200, nil, true, false},
		{"204 ok", 204, nil, true, false},
		{"network error transient", 0, errors.New("connection refused"), false, false},
		{"500 transient", 500, nil, false, false},
		{"503 transient", 503, nil, false, false},
		{"429 transient", 429, nil, false, false},
		{"401 permanent", 401, nil, false, true},
		{"404 permanent", 404, nil, false, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classify("discord", tc.status, tc.err)
			if tc.wantNil {
				assert.NoError(t, err)
				return
			}
			var de *DeliveryError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tc.wantPermanent, de.Permanent)
		})
	}
}

func TestDeliverWithRetry_TransientRetriesUpToBudget(t *testing.T) {
	b := testBase()

	attempts := 0
	err := b.deliverWithRetry(context.Background(), func(ctx context.Context) error {
		attempts++
		return &DeliveryError{Kind: "discord", Permanent: false, Err: errors.New("boom")}
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDeliverWithRetry_PermanentFailsFast(t *testing.T) {
	b := testBase()

	attempts := 0
	err := b.deliverWithRetry(context.Background(), func(ctx context.Context) error {
		attempts++
		return &DeliveryError{Kind: "discord", Permanent: true, Err: errors.New("bad creds")}
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts, "permanent errors are a config problem, never retried")
}

func TestDeliverWithRetry_EventualSuccess(t *testing.T) {
	b := testBase()

	attempts := 0
	err := b.deliverWithRetry(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return &DeliveryError{Kind: "discord", Permanent: false, Err: errors.New("flaky")}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDeliverWithRetry_CancelledBetweenAttempts(t *testing.T) {
	b := testBase()
	b.retryDelay = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- b.deliverWithRetry(ctx, func(ctx context.Context) error {
			return &DeliveryError{Kind: "discord", Permanent: false, Err: errors.New("boom")}
		})
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("retry loop did not observe cancellation")
	}
}

func TestNewRegistry_CoversAllKinds(t *testing.T) {
	cfg := &config.Config{}
	registry := NewRegistry(nil, zap.NewNop(), cfg, http.DefaultTransport)

	require.Contains(t, registry, "discord")
	require.Contains(t, registry, "pushover")
	assert.Equal(t, "discord", registry["discord"].Kind())
	assert.Equal(t, "pushover", registry["pushover"].Kind())
}
