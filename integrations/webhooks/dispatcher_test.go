package webhooks

import (
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nftfarm/core/events"
)

type capture struct {
	mu     sync.Mutex
	bodies [][]byte
	topics []string
	sigs   []string
}

func (c *capture) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		c.mu.Lock()
		c.bodies = append(c.bodies, body)
		c.topics = append(c.topics, r.Header.Get("X-Farm-Event"))
		c.sigs = append(c.sigs, r.Header.Get("X-Farm-Signature"))
		c.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bodies)
}

func TestDispatcherSignsSnapshotPayload(t *testing.T) {
	c := &capture{}
	server := httptest.NewServer(c.handler(t))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	if err := dispatcher.EnqueueSnapshot(SnapshotReadyPayload{Phase: "accruing", Holders: 2, Checksum: "abc"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(func() bool { return c.count() == 1 }, time.Second)
	if c.count() != 1 {
		t.Fatalf("expected one delivery")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.topics[0] != string(TopicSnapshotReady) {
		t.Fatalf("unexpected topic %s", c.topics[0])
	}
	if c.sigs[0] != Sign([]byte("secret"), c.bodies[0]) {
		t.Fatalf("signature mismatch")
	}
	var payload SnapshotReadyPayload
	if err := json.Unmarshal(c.bodies[0], &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.DeliveryID == "" || payload.Holders != 2 {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestDispatcherClientWithoutTimeoutDelivers(t *testing.T) {
	c := &capture{}
	server := httptest.NewServer(c.handler(t))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"), WithHTTPClient(&http.Client{}), WithRetryPolicy(1, time.Millisecond, time.Millisecond))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	if got := dispatcher.deliveryTimeout(); got != defaultDeliveryTimeout {
		t.Fatalf("expected default timeout, got %s", got)
	}
	if err := dispatcher.EnqueueSnapshot(SnapshotReadyPayload{Phase: "released", Holders: 1}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(func() bool { return c.count() == 1 }, time.Second)
	if c.count() != 1 {
		t.Fatalf("expected one delivery with a zero-timeout client, got %d", c.count())
	}
}

func TestDispatcherForwardsSelectedEvents(t *testing.T) {
	c := &capture{}
	server := httptest.NewServer(c.handler(t))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"), WithTopics(events.TypeFarmRewardClaimed))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()

	dispatcher.Emit(events.FarmStake{ItemID: 1})
	dispatcher.Emit(events.FarmRewardClaimed{Amount: big.NewInt(25), Points: big.NewInt(50), Remaining: big.NewInt(75)})
	waitFor(func() bool { return c.count() >= 1 }, time.Second)
	time.Sleep(50 * time.Millisecond)
	if c.count() != 1 {
		t.Fatalf("expected only the claim to be forwarded, got %d", c.count())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var payload EventPayload
	if err := json.Unmarshal(c.bodies[0], &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Type != Topic(events.TypeFarmRewardClaimed) || payload.Attributes["amount"] != "25" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestDispatcherRetries(t *testing.T) {
	attempts := int32(0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"), WithRetryPolicy(5, time.Millisecond*10, time.Millisecond*20))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	if err := dispatcher.EnqueueSnapshot(SnapshotReadyPayload{Holders: 1}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(func() bool { return atomic.LoadInt32(&attempts) >= 3 }, time.Second)
	if atomic.LoadInt32(&attempts) < 3 {
		t.Fatalf("expected retries, got %d", attempts)
	}
}

func TestNewDispatcherValidates(t *testing.T) {
	if _, err := NewDispatcher(" ", []byte("s")); err == nil {
		t.Fatalf("expected endpoint error")
	}
	if _, err := NewDispatcher("http://localhost", nil); err == nil {
		t.Fatalf("expected secret error")
	}
	if got := nextBackoff(20*time.Second, 30*time.Second); got != 30*time.Second {
		t.Fatalf("expected backoff capped at limit, got %s", got)
	}
}

func waitFor(cond func() bool, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond * 10)
	}
}
