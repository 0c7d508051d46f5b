package audit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAsyncSink_DeliversInOrderAndDrainsOnClose(t *testing.T) {
	var mu sync.Mutex
	var got []string
	sink := SinkFunc(func(ctx context.Context, rec Record) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, rec.ItemID)
		return nil
	})

	s := NewAsync("nats", sink, AsyncOptions{Depth: 8})
	for _, id := range []string{"1", "2", "3"} {
		if err := s.Append(context.Background(), Record{Kind: KindBid, ItemID: id}); err != nil {
			t.Fatalf("Append(%s) = %v", id, err)
		}
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 || got[0] != "1" || got[2] != "3" {
		t.Errorf("delivered = %v, want [1 2 3]", got)
	}
	if err := s.Append(context.Background(), Record{Kind: KindBid}); err == nil {
		t.Error("expected error after Close")
	}
}

func TestAsyncSink_DropsWhenQueueFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	sink := SinkFunc(func(ctx context.Context, rec Record) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	})

	var drops atomic.Int32
	s := NewAsync("redis", sink, AsyncOptions{Depth: 1, OnDrop: func() { drops.Add(1) }})

	// 1件目は配送中で停止し、2件目がキューを埋める
	if err := s.Append(context.Background(), Record{Kind: KindBid, ItemID: "1"}); err != nil {
		t.Fatalf("Append = %v", err)
	}
	<-started
	if err := s.Append(context.Background(), Record{Kind: KindBid, ItemID: "2"}); err != nil {
		t.Fatalf("Append = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- s.Append(context.Background(), Record{Kind: KindBid, ItemID: "3"})
	}()
	select {
	case err := <-done:
		if !errors.Is(err, ErrQueueFull) {
			t.Errorf("Append = %v, want ErrQueueFull", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Append blocked on a full queue")
	}
	if drops.Load() != 1 {
		t.Errorf("drops = %d, want 1", drops.Load())
	}

	close(release)
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close() = %v", err)
	}
}

func TestAsyncSink_ReportsDeliveryFailure(t *testing.T) {
	sink := SinkFunc(func(ctx context.Context, rec Record) error {
		return errors.New("broker down")
	})
	var failures atomic.Int32
	s := NewAsync("nats", sink, AsyncOptions{OnFailure: func() { failures.Add(1) }})

	if err := s.Append(context.Background(), Record{Kind: KindClose, ItemID: "7"}); err != nil {
		t.Fatalf("Append = %v", err)
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if failures.Load() != 1 {
		t.Errorf("failures = %d, want 1", failures.Load())
	}
}

func TestAsyncSink_CloseHonoursContext(t *testing.T) {
	release := make(chan struct{})
	sink := SinkFunc(func(ctx context.Context, rec Record) error {
		<-release
		return nil
	})
	s := NewAsync("nats", sink, AsyncOptions{})
	defer close(release)

	if err := s.Append(context.Background(), Record{Kind: KindBid}); err != nil {
		t.Fatalf("Append = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close() = %v, want DeadlineExceeded", err)
	}
}

func TestFanout_CloseDrainsAsyncSinks(t *testing.T) {
	var delivered atomic.Int32
	remote := NewAsync("nats", SinkFunc(func(ctx context.Context, rec Record) error {
		delivered.Add(1)
		return nil
	}), AsyncOptions{})
	local := SinkFunc(func(ctx context.Context, rec Record) error { return nil })

	f := NewFanout().Add("file", local).Add("nats", remote)
	if err := f.Append(context.Background(), Record{Kind: KindBid}); err != nil {
		t.Fatalf("Append = %v", err)
	}
	if err := f.Close(context.Background()); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if delivered.Load() != 1 {
		t.Errorf("delivered = %d, want 1", delivered.Load())
	}
}
