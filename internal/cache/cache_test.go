package cache

import (
	"errors"
	"testing"
	"time"
)

func TestGetSetExpiry(t *testing.T) {
	c := New(20 * time.Millisecond)

	c.Set("k", 42)
	if v, ok := c.Get("k"); !ok || v != 42 {
		t.Fatalf("expected cached 42, got %v (%v)", v, ok)
	}

	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("expected entry to expire")
	}
}

func TestDelete(t *testing.T) {
	c := New(time.Minute)
	c.Set("k", "v")
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("expected entry to be deleted")
	}
}

func TestGetOrCompute(t *testing.T) {
	c := New(time.Minute)

	calls := 0
	compute := func() (interface{}, error) {
		calls++
		return "value", nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrCompute("k", compute)
		if err != nil {
			t.Fatalf("GetOrCompute failed: %v", err)
		}
		if v != "value" {
			t.Fatalf("expected value, got %v", v)
		}
	}
	if calls != 1 {
		t.Errorf("expected one compute call, got %d", calls)
	}
}

func TestGetOrComputeErrorNotCached(t *testing.T) {
	c := New(time.Minute)

	boom := errors.New("boom")
	if _, err := c.GetOrCompute("k", func() (interface{}, error) { return nil, boom }); err != boom {
		t.Fatalf("expected compute error, got %v", err)
	}
	if _, ok := c.Get("k"); ok {
		t.Error("failed compute must not cache a value")
	}
}
