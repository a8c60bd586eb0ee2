package chatclient

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/khanhquoc4114/app-sub000/internal/clock"
)

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		retry int
		want  time.Duration
	}{
		{-1, time.Second},
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{40, 10 * time.Second},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, backoffDelay(tt.retry, time.Second, 10*time.Second), "retry %d", tt.retry)
	}
}

func newUnitConnection(t *testing.T, auth AuthSource) (*Connection, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(testEpoch)
	var wg sync.WaitGroup
	conn := newConnection(connectionConfig{
		endpoint: "ws://chat.test/ws",
		auth:     auth,
		dialer:   &fakeDialer{failAll: true},
		clock:    fake,
		logger:   zap.NewNop(),
		metrics:  NewMetrics(nil),
		ctx:      context.Background(),
		wg:       &wg,
		post:     func(fn func()) bool { fn(); return true },
		onFrame:  func([]byte) {},
	})
	return conn, fake
}

func TestHandleCloseSchedulesBackoffAndCleanCloseResets(t *testing.T) {
	conn, fake := newUnitConnection(t, NewStaticAuth("tok", User{ID: selfID}))

	conn.HandleClose(websocket.CloseAbnormalClosure)
	require.Equal(t, 1, conn.RetryCount())
	require.Equal(t, []time.Duration{time.Second}, fake.Pending())

	conn.HandleClose(websocket.CloseGoingAway)
	require.Equal(t, 2, conn.RetryCount())
	require.Equal(t, []time.Duration{2 * time.Second}, fake.Pending())

	conn.HandleClose(websocket.CloseNormalClosure)
	require.Zero(t, conn.RetryCount())

	conn.stopReconnect()
	conn.HandleClose(websocket.CloseAbnormalClosure)
	require.Equal(t, []time.Duration{time.Second}, fake.Pending())
}

func TestHandleCloseWithoutTokenDoesNotReschedule(t *testing.T) {
	auth := NewStaticAuth("tok", User{ID: selfID})
	auth.Clear()
	conn, fake := newUnitConnection(t, auth)

	conn.HandleClose(websocket.CloseAbnormalClosure)
	require.Zero(t, conn.RetryCount())
	require.Empty(t, fake.Pending())
}

func TestConnectWithoutTokenIsNoop(t *testing.T) {
	auth := NewStaticAuth("tok", User{ID: selfID})
	auth.Clear()
	conn, _ := newUnitConnection(t, auth)

	conn.Connect()
	require.Equal(t, StatusDisconnected, conn.State())
}

func TestWithTokenAddsQueryParameter(t *testing.T) {
	got, err := withToken("ws://chat.test/api/v1/ws?v=2", "a b")
	require.NoError(t, err)
	require.Equal(t, "ws://chat.test/api/v1/ws?token=a+b&v=2", got)
}

func TestClientReconnectBackoffSequence(t *testing.T) {
	s := newTestSession(t)
	s.dialer.SetFail(true)

	s.client.Connect()
	for _, delay := range []time.Duration{1, 2, 4, 8, 10, 10} {
		delay *= time.Second
		s.waitPending(t, delay)
		require.Equal(t, StatusDisconnected, s.client.Status())
		s.clock.Advance(delay)
	}

	s.waitPending(t, 10*time.Second)
	s.dialer.SetFail(false)
	s.clock.Advance(10 * time.Second)
	require.Eventually(t, func() bool { return s.client.Status() == StatusOpen }, time.Second, time.Millisecond)
	require.Equal(t, "ws://chat.test/api/v1/ws?token=token-alice", s.dialer.URL(0))

	// A successful open resets the counter: the next drop waits 1s again.
	s.dialer.Last().Drop(websocket.CloseAbnormalClosure)
	s.waitPending(t, time.Second)
}

func TestClientCleanCloseDoesNotReconnect(t *testing.T) {
	s := newTestSession(t)
	conn := s.open(t)

	conn.Drop(websocket.CloseNormalClosure)
	require.Eventually(t, func() bool { return s.client.Status() == StatusDisconnected }, time.Second, time.Millisecond)
	require.Empty(t, s.clock.Pending())
	require.Equal(t, 1, s.dialer.Dials())
}

func TestClientNetworkErrorCountsAsAbnormal(t *testing.T) {
	s := newTestSession(t)
	conn := s.open(t)

	conn.Fail()
	s.waitPending(t, time.Second)
	s.clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		return s.dialer.Conns() == 2 && s.client.Status() == StatusOpen
	}, time.Second, time.Millisecond)
}

func TestClientConnectIsIdempotent(t *testing.T) {
	s := newTestSession(t)
	hold := make(chan struct{})
	s.dialer.hold = hold

	s.client.Connect()
	s.client.Connect()
	s.client.Connect()
	require.Equal(t, StatusConnecting, s.client.Status())

	close(hold)
	require.Eventually(t, func() bool { return s.client.Status() == StatusOpen }, time.Second, time.Millisecond)

	s.client.Connect()
	require.Equal(t, 1, s.dialer.Dials())
}

func TestClientHeartbeat(t *testing.T) {
	s := newTestSession(t)
	conn := s.open(t)
	s.waitPending(t, 30*time.Second)

	for pings := 1; pings <= 2; pings++ {
		s.clock.Advance(30 * time.Second)
		require.Eventually(t, func() bool { return len(conn.Written()) == pings }, time.Second, time.Millisecond)
		s.waitPending(t, 30*time.Second)
	}
	for _, frame := range conn.Written() {
		require.JSONEq(t, `{"type":"ping"}`, frame)
	}
}

func TestClientTeardownClosesNormally(t *testing.T) {
	s := newTestSession(t)
	conn := s.open(t)

	require.NoError(t, s.client.Close())
	require.Equal(t, websocket.CloseNormalClosure, conn.CloseCode())
	require.Empty(t, s.clock.Pending())
	require.Equal(t, StatusDisconnected, s.client.Status())
	require.NoError(t, s.client.Close())
}

func TestClientTeardownCancelsPendingReconnect(t *testing.T) {
	s := newTestSession(t)
	s.dialer.SetFail(true)
	s.client.Connect()
	s.waitPending(t, time.Second)

	require.NoError(t, s.client.Close())
	require.Empty(t, s.clock.Pending())
	s.clock.Advance(time.Minute)
	require.Equal(t, 1, s.dialer.Dials())
}

func TestClientLogoutStopsReconnect(t *testing.T) {
	s := newTestSession(t)
	conn := s.open(t)

	s.auth.Clear()
	conn.Drop(websocket.CloseAbnormalClosure)
	require.Eventually(t, func() bool { return s.client.Status() == StatusDisconnected }, time.Second, time.Millisecond)
	require.Empty(t, s.clock.Pending())
}
