package chatws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/khanhquoc4114/app-sub000/internal/models"
)

func startHub(t *testing.T, cfg HubConfig) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.done
	})
	return hub, cancel
}

func registerClient(t *testing.T, hub *Hub, userID int64) *Client {
	t.Helper()
	client := NewClient(hub, nil, userID, models.RoleUser)
	if !hub.Register(client) {
		t.Fatalf("Register returned false for user %d", userID)
	}
	return client
}

func waitForValue(t *testing.T, collector prometheus.Collector, want float64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(collector) != want {
		if time.Now().After(deadline) {
			t.Fatalf("metric stuck at %v, want %v", testutil.ToFloat64(collector), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func receive(t *testing.T, client *Client) MessageFrame {
	t.Helper()
	select {
	case payload, ok := <-client.send:
		if !ok {
			t.Fatalf("send channel of user %d closed", client.userID)
		}
		var frame MessageFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			t.Fatalf("Unmarshal %s: %v", payload, err)
		}
		return frame
	case <-time.After(2 * time.Second):
		t.Fatalf("no frame for user %d", client.userID)
	}
	return MessageFrame{}
}

func TestHubPublishReachesBothParticipants(t *testing.T) {
	hub, _ := startHub(t, HubConfig{})
	sender := registerClient(t, hub, 1)
	senderTab := registerClient(t, hub, 1)
	receiver := registerClient(t, hub, 2)
	bystander := registerClient(t, hub, 3)

	hub.Publish(&models.ChatMessage{
		ID:         9,
		SenderID:   1,
		ReceiverID: 2,
		Content:    "court 4 is free",
		CreatedAt:  time.Date(2026, 5, 1, 12, 0, 0, 0, time.FixedZone("x", 3600)),
	})

	for _, client := range []*Client{sender, senderTab, receiver} {
		frame := receive(t, client)
		if frame.ID != 9 || frame.From != 1 || frame.To != 2 || frame.Message != "court 4 is free" {
			t.Fatalf("user %d got unexpected frame %+v", client.userID, frame)
		}
		if frame.CreatedAt.Location() != time.UTC {
			t.Fatalf("expected UTC timestamp, got %v", frame.CreatedAt)
		}
	}

	select {
	case payload := <-bystander.send:
		t.Fatalf("bystander received %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubDropsSlowConsumer(t *testing.T) {
	hub, _ := startHub(t, HubConfig{})
	slow := registerClient(t, hub, 2)

	for i := 0; i < sendBufferSize+1; i++ {
		hub.Publish(&models.ChatMessage{ID: int64(i + 1), SenderID: 1, ReceiverID: 2, Content: "spam"})
	}
	waitForValue(t, hub.metrics.SlowConsumers, 1)

	drained := 0
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-slow.send:
			if !ok {
				if drained != sendBufferSize {
					t.Fatalf("expected %d buffered frames before close, got %d", sendBufferSize, drained)
				}
				return
			}
			drained++
		case <-timeout:
			t.Fatalf("slow consumer was not dropped")
		}
	}
}

func TestHubStopClosesConnections(t *testing.T) {
	hub, cancel := startHub(t, HubConfig{})
	client := registerClient(t, hub, 1)

	cancel()
	select {
	case _, ok := <-client.send:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("send channel not closed on stop")
	}

	<-hub.done
	if hub.Register(NewClient(hub, nil, 2, models.RoleUser)) {
		t.Fatalf("Register must fail after stop")
	}
}

func TestHubMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	hub, _ := startHub(t, HubConfig{Registerer: reg})
	registerClient(t, hub, 1)

	waitForValue(t, hub.metrics.Connections, 1)

	count, err := testutil.GatherAndCount(reg, "chat_relay_connections")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if count != 1 {
		t.Fatalf("chat_relay_connections not gathered from registry")
	}
}

func TestLimiterPoolBurstAndPrune(t *testing.T) {
	pool := newLimiterPool(0.001, 2)

	if !pool.Allow(1) || !pool.Allow(1) {
		t.Fatalf("burst of 2 should be allowed")
	}
	if pool.Allow(1) {
		t.Fatalf("third message should be limited")
	}
	if !pool.Allow(2) {
		t.Fatalf("users must not share a bucket")
	}

	if removed := pool.prune(time.Now().Add(-time.Hour)); removed != 0 {
		t.Fatalf("recent entries pruned: %d", removed)
	}
	if removed := pool.prune(time.Now().Add(time.Second)); removed != 2 {
		t.Fatalf("expected both entries pruned, got %d", removed)
	}
	if !pool.Allow(1) {
		t.Fatalf("pruned user should start with a fresh bucket")
	}
}

func TestLimiterPoolDefaults(t *testing.T) {
	pool := newLimiterPool(0, 0)
	if pool.burst != defaultSendBurst || float64(pool.limit) != defaultSendRate {
		t.Fatalf("unexpected defaults: limit=%v burst=%d", pool.limit, pool.burst)
	}
}

func TestDecodeInbound(t *testing.T) {
	var frame inboundFrame
	if err := decodeInbound([]byte(`{"to":2,"message":"hi"}`), &frame); err != nil {
		t.Fatalf("decodeInbound: %v", err)
	}
	if frame.Type != "" || frame.To != 2 || frame.Message != "hi" {
		t.Fatalf("unexpected frame %+v", frame)
	}
	if err := decodeInbound([]byte(`{"to":"two"}`), &frame); err == nil {
		t.Fatalf("expected error for string receiver")
	}
}
