package hub

import (
	"context"
	"testing"
	"time"
)

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	h := New("test")

	// Nothing is draining: the queue fills and the rest is dropped
	done := make(chan struct{})
	go func() {
		for i := 0; i < 300; i++ {
			h.Broadcast(NewJSONMessage([]byte(`{}`)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked")
	}
	if got := h.Dropped(); got != 300-256 {
		t.Errorf("Dropped() = %d, want %d", got, 300-256)
	}
}

func TestHub_RunStopsWithContext(t *testing.T) {
	h := New("test")
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	deadline := time.Now().Add(time.Second)
	for !h.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !h.IsRunning() {
		t.Fatal("hub did not start")
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if h.IsRunning() {
		t.Error("IsRunning() = true after stop")
	}
}

func TestClient_Wants(t *testing.T) {
	text := &Client{}
	bin := &Client{binary: true}

	if !text.wants(NewJSONMessage(nil)) || text.wants(NewBinaryMessage(nil)) {
		t.Error("text client should only want JSON messages")
	}
	if !bin.wants(NewBinaryMessage(nil)) || bin.wants(NewJSONMessage(nil)) {
		t.Error("binary client should only want binary messages")
	}
}

func TestEncode(t *testing.T) {
	msg, err := EncodeJSON(map[string]int{"a": 1})
	if err != nil || msg.Type != JSONMessage || string(msg.Data) != `{"a":1}` {
		t.Errorf("EncodeJSON() = %+v, %v", msg, err)
	}

	msg, err = EncodeCBOR(map[string]int{"a": 1})
	if err != nil || msg.Type != BinaryMessage || len(msg.Data) == 0 {
		t.Errorf("EncodeCBOR() = %+v, %v", msg, err)
	}

	if _, err := EncodeJSON(make(chan int)); err == nil {
		t.Error("expected error encoding a channel")
	}
}
