package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvertiserUpdateBeforeAdvertise(t *testing.T) {
	adv := NewAdvertiser(DefaultConfig())
	assert.ErrorIs(t, adv.Update(&ClientInfo{Endpoint: "dev"}), ErrNotAdvertising)
	assert.False(t, adv.Advertising())
	adv.Stop()
}

func TestAdvertiserLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("uses multicast interfaces")
	}

	adv := NewAdvertiser(DefaultConfig())
	defer adv.Stop()

	info := &ClientInfo{Endpoint: "test-client", Port: 56830, ObjectIDs: []uint16{3, 3303}}
	if err := adv.Advertise(context.Background(), info); err != nil {
		t.Skipf("mDNS not available: %v", err)
	}
	assert.True(t, adv.Advertising())

	info.Servers = 1
	require.NoError(t, adv.Update(info))

	adv.Stop()
	adv.Stop()
	assert.False(t, adv.Advertising())
}

func TestMergeAddresses(t *testing.T) {
	got := mergeAddresses([]string{"10.0.0.1"}, []string{"10.0.0.1", "fe80::1"})
	assert.Equal(t, []string{"10.0.0.1", "fe80::1"}, got)
}
