package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopherwallet.com/pkg/xerr"
)

func TestIsSuccessfulForBreaker(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"业务错误不计入", xerr.New(xerr.InsufficientFunds, "x"), true},
		{"结算失败计入", xerr.New(xerr.SettlementFailure, "x"), false},
		{"grpc NotFound 不计入", status.Error(codes.NotFound, "x"), true},
		{"grpc Unavailable 计入", status.Error(codes.Unavailable, "x"), false},
		{"普通错误计入", errors.New("dial tcp"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSuccessfulForBreaker(tt.err))
		})
	}
}

func TestManager_TripsAfterConsecutiveFailures(t *testing.T) {
	m := NewManager("test", Rule{TripConsecutiveFailures: 3, Timeout: time.Minute}, nil)
	boom := errors.New("executor down")
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, m.Execute("settle:bep20", func() error { return boom }), boom)
	}
	err := m.Execute("settle:bep20", func() error { return nil })
	assert.True(t, IsRejected(err))

	// 其他名字互不影响
	require.NoError(t, m.Execute("settle:stellar", func() error { return nil }))
	assert.Same(t, m.Get("settle:bep20"), m.Get("settle:bep20"))
}

func TestStore_AllowPerKey(t *testing.T) {
	s := NewStore(rate.Limit(1), 2, time.Minute)
	assert.True(t, s.Allow("1.1.1.1"))
	assert.True(t, s.Allow("1.1.1.1"))
	assert.False(t, s.Allow("1.1.1.1"))
	assert.True(t, s.Allow("2.2.2.2"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, s.Wait(ctx, "1.1.1.1"))
}

func TestStore_Cleanup(t *testing.T) {
	s := NewStore(rate.Limit(10), 10, time.Millisecond)
	s.Allow("k")
	time.Sleep(5 * time.Millisecond)
	s.cleanup()
	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Empty(t, s.entries)
}
