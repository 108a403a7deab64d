package docker

import (
	"encoding/binary"
	"testing"
	"time"
)

func TestDecodeLogFrame(t *testing.T) {
	header := make([]byte, 8)
	header[0] = 2 // stderr
	binary.BigEndian.PutUint32(header[4:8], 17)

	source, size, err := decodeLogFrame(header)
	if err != nil {
		t.Fatalf("decodeLogFrame failed: %v", err)
	}
	if source != 2 {
		t.Errorf("expected stderr stream byte 2, got %d", source)
	}
	if size != 17 {
		t.Errorf("expected size 17, got %d", size)
	}
}

func TestDecodeLogFrameShortHeader(t *testing.T) {
	if _, _, err := decodeLogFrame([]byte{1, 0, 0}); err == nil {
		t.Fatal("expected error for short header")
	}
}

func TestLogHubPublishSubscribe(t *testing.T) {
	hub := NewLogHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	rec := LogRecord{ContainerID: "abc", Name: "frontier", Source: 1, Data: "hello\n"}
	hub.Publish(rec)

	select {
	case got := <-ch:
		if got.Name != "frontier" || got.Data != "hello\n" {
			t.Errorf("unexpected record %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for log record")
	}
}

func TestLogHubDropsWhenSubscriberFull(t *testing.T) {
	hub := NewLogHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	// Overflow the subscriber buffer; Publish must not block
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			hub.Publish(LogRecord{Data: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestLogHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewLogHub()
	ch := hub.Subscribe()
	hub.Unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Error("expected closed channel after Unsubscribe")
	}

	// Unsubscribing twice must not panic
	hub.Unsubscribe(ch)
}
