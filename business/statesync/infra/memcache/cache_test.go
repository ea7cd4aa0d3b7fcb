package memcache

import (
	"context"
	"testing"
	"time"
)

func TestCache_HashAndValues(t *testing.T) {
	ctx := context.Background()
	c := New(0)
	defer c.Close()

	if _, ok, _ := c.HashGet(ctx, "b", "k"); ok {
		t.Fatal("expected miss")
	}
	_ = c.HashSet(ctx, "b", "k", []byte("v"))
	if v, ok, _ := c.HashGet(ctx, "b", "k"); !ok || string(v) != "v" {
		t.Errorf("unexpected hget %q %v", v, ok)
	}

	_ = c.Set(ctx, "marker", "10")
	if v, ok, _ := c.Get(ctx, "marker"); !ok || v != "10" {
		t.Errorf("unexpected get %q %v", v, ok)
	}
}

func TestCache_StoredBytesAreCopied(t *testing.T) {
	ctx := context.Background()
	c := New(0)
	defer c.Close()

	buf := []byte("abc")
	_ = c.HashSet(ctx, "b", "k", buf)
	buf[0] = 'z'

	v, _, _ := c.HashGet(ctx, "b", "k")
	if string(v) != "abc" {
		t.Errorf("expected abc, got %q", v)
	}
}

func TestCache_DeferredGet(t *testing.T) {
	tests := []struct {
		name     string
		prewrite bool
	}{
		{name: "value arrives later", prewrite: false},
		{name: "value already present", prewrite: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			c := New(0)
			defer c.Close()

			if tt.prewrite {
				_ = c.HashSet(ctx, "b", "k", []byte("snap"))
			}

			got := make(chan []byte, 2)
			c.ScheduleDeferredGet(ctx, "b", "k", func(v []byte) { got <- v })

			if !tt.prewrite {
				_ = c.HashSet(ctx, "b", "k", []byte("snap"))
				_ = c.HashSet(ctx, "b", "k", []byte("again"))
			}

			select {
			case v := <-got:
				if string(v) != "snap" {
					t.Errorf("expected snap, got %q", v)
				}
			case <-time.After(time.Second):
				t.Fatal("callback never fired")
			}

			select {
			case v := <-got:
				t.Errorf("callback fired twice: %q", v)
			case <-time.After(20 * time.Millisecond):
			}
		})
	}
}

func TestCache_PublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := New(0)
	defer c.Close()

	msgs, _ := c.Subscribe(ctx, "ch")
	_ = c.Publish(ctx, "ch", []byte("m1"))
	_ = c.Publish(ctx, "other", []byte("x"))

	select {
	case m := <-msgs:
		if string(m) != "m1" {
			t.Errorf("expected m1, got %q", m)
		}
	case <-time.After(time.Second):
		t.Fatal("expected message")
	}

	cancel()
	select {
	case _, ok := <-msgs:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
