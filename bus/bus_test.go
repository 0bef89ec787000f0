package bus

import (
	"sync"
	"testing"
	"time"
)

func TestPublishFanOut(t *testing.T) {
	b := New[int](4)
	a := b.Subscribe()
	c := b.Subscribe()
	b.Publish(7)
	if got := <-a; got != 7 {
		t.Fatalf("subscriber a got %d", got)
	}
	if got := <-c; got != 7 {
		t.Fatalf("subscriber c got %d", got)
	}
}

func TestBoundedQueueDropsWithoutBlocking(t *testing.T) {
	const capacity = 3
	b := New[int](capacity)
	var dropped int
	b.OnDrop(func() { dropped++ })
	ch := b.Subscribe()

	// Publish more than the queue holds before anything is read. The
	// publisher must never block; overflow is dropped for this subscriber.
	for i := 0; i < 10; i++ {
		b.Publish(i)
	}
	if dropped != 10-capacity {
		t.Fatalf("dropped %d messages, want %d", dropped, 10-capacity)
	}
	if len(ch) != capacity {
		t.Fatalf("queue holds %d, want %d", len(ch), capacity)
	}
	// The pending messages keep their original relative order.
	for i := 0; i < capacity; i++ {
		if got := <-ch; got != i {
			t.Fatalf("position %d: got %d", i, got)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New[string](2)
	ch := b.Subscribe()
	if b.Subscribers() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", b.Subscribers())
	}
	b.Unsubscribe(ch)
	b.Publish("late")
	if len(ch) != 0 {
		t.Fatalf("message delivered after unsubscribe")
	}
	if b.Subscribers() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", b.Subscribers())
	}
	// Unsubscribing twice is harmless.
	b.Unsubscribe(ch)
}

func TestCloseAfterUnsubscribeEndsRangingConsumer(t *testing.T) {
	b := New[int](4)
	ch := b.Subscribe()

	done := make(chan struct{})
	var received int
	go func() {
		defer close(done)
		for range ch {
			received++
		}
	}()

	b.Publish(1)
	b.Publish(2)

	// After Unsubscribe returns no publisher holds the queue, so the
	// owner can close it to terminate the consumer's range loop.
	b.Unsubscribe(ch)
	close(ch)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer still ranging after unsubscribe and close")
	}
	if received != 2 {
		t.Fatalf("consumer received %d messages, want 2", received)
	}
}

func TestConcurrentSubscribePublish(t *testing.T) {
	b := New[int](8)
	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				b.Publish(1)
			}
		}
	}()
	for i := 0; i < 100; i++ {
		ch := b.Subscribe()
		b.Unsubscribe(ch)
	}
	close(stop)
	wg.Wait()
}
