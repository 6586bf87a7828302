package cache

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func TestMemoryNonceStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryNonceStore(time.Minute)
	store.now = func() time.Time { return now }

	tests := []struct {
		name    string
		run     func() (bool, error)
		success bool
	}{
		{"live nonce", func() (bool, error) {
			n, _ := store.Issue(ctx, alice)
			return store.Consume(ctx, alice, n)
		}, true},
		{"single use", func() (bool, error) {
			n, _ := store.Issue(ctx, alice)
			_, _ = store.Consume(ctx, alice, n)
			return store.Consume(ctx, alice, n)
		}, false},
		{"other address", func() (bool, error) {
			n, _ := store.Issue(ctx, alice)
			return store.Consume(ctx, bob, n)
		}, false},
		{"replaced by newer nonce", func() (bool, error) {
			old, _ := store.Issue(ctx, alice)
			_, _ = store.Issue(ctx, alice)
			return store.Consume(ctx, alice, old)
		}, false},
		{"wrong guess burns the nonce", func() (bool, error) {
			n, _ := store.Issue(ctx, alice)
			_, _ = store.Consume(ctx, alice, "guess")
			return store.Consume(ctx, alice, n)
		}, false},
		{"expired", func() (bool, error) {
			n, _ := store.Issue(ctx, alice)
			now = now.Add(2 * time.Minute)
			return store.Consume(ctx, alice, n)
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := tt.run()
			require.NoError(t, err)
			assert.Equal(t, tt.success, ok)
		})
	}
}

func TestNonceKeyIgnoresCase(t *testing.T) {
	assert.Equal(t, nonceKey(common.HexToAddress("0xABCDEF00000000000000000000000000000000AB")),
		nonceKey(common.HexToAddress("0xabcdef00000000000000000000000000000000ab")))
}
