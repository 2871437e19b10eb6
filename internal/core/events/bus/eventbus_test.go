package bus

import (
	"errors"
	"testing"
)

func TestBasicPublishSubscribe(t *testing.T) {
	b := New()
	var got Event
	_, err := b.Subscribe("test.event", func(e Event) error {
		got = e
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err = b.Publish(NewEvent("test.event", "tester", 123)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got == nil {
		t.Fatal("handler not called")
	}
	if got.Source() != "tester" || got.Data().(int) != 123 {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestDeliveryOrderFollowsSubscription(t *testing.T) {
	b := New()
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		if _, err := b.Subscribe("ev", func(Event) error { order = append(order, i); return nil }); err != nil {
			t.Fatalf("sub: %v", err)
		}
	}
	_ = b.Publish(NewEvent("ev", "src", nil))
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v", order)
		}
	}
}

func TestDeliveryOrderAfterUnsubscribe(t *testing.T) {
	b := New()
	var order []int
	subs := make([]Subscription, 0, 32)
	for i := 0; i < 32; i++ {
		i := i
		sub, err := b.Subscribe("ev", func(Event) error { order = append(order, i); return nil })
		if err != nil {
			t.Fatalf("sub: %v", err)
		}
		subs = append(subs, sub)
	}
	for i := 0; i < 32; i += 3 {
		if err := b.Unsubscribe(subs[i]); err != nil {
			t.Fatalf("unsub: %v", err)
		}
	}
	if _, err := b.Subscribe("ev", func(Event) error { order = append(order, 100); return nil }); err != nil {
		t.Fatalf("sub: %v", err)
	}

	_ = b.Publish(NewEvent("ev", "src", nil))
	var want []int
	for i := 0; i < 32; i++ {
		if i%3 != 0 {
			want = append(want, i)
		}
	}
	want = append(want, 100)
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestHandlerErrorsAreJoined(t *testing.T) {
	b := New()
	e1 := errors.New("first")
	e2 := errors.New("second")
	_, _ = b.Subscribe("x", func(Event) error { return e1 })
	_, _ = b.Subscribe("x", func(Event) error { return nil })
	_, _ = b.Subscribe("x", func(Event) error { return e2 })

	err := b.Publish(NewEvent("x", "src", nil))
	if !errors.Is(err, e1) || !errors.Is(err, e2) {
		t.Fatalf("expected both errors, got %v", err)
	}
	m := b.GetMetrics()
	if m.Published != 1 || m.DeliveredHandlers != 3 || m.Errors != 1 {
		t.Fatalf("metrics: %+v", m)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	count := 0
	sub, err := b.Subscribe("ev", func(Event) error { count++; return nil })
	if err != nil {
		t.Fatalf("sub: %v", err)
	}
	_ = b.Publish(NewEvent("ev", "src", nil))
	if err = b.Unsubscribe(sub); err != nil {
		t.Fatalf("unsub: %v", err)
	}
	_ = sub.Cancel()
	_ = b.Publish(NewEvent("ev", "src", nil))

	if count != 1 {
		t.Fatalf("count = %d", count)
	}
	if sub.IsActive() {
		t.Fatal("subscription still active")
	}
	if n := b.Subscribers("ev"); n != 0 {
		t.Fatalf("subscribers = %d", n)
	}
	if m := b.GetMetrics(); m.SubscribersActive != 0 {
		t.Fatalf("active = %d", m.SubscribersActive)
	}
}

func TestCancelDuringDelivery(t *testing.T) {
	b := New()
	var second Subscription
	calls := 0
	_, _ = b.Subscribe("ev", func(Event) error {
		_ = second.Cancel()
		return nil
	})
	second, _ = b.Subscribe("ev", func(Event) error { calls++; return nil })

	_ = b.Publish(NewEvent("ev", "src", nil))
	if calls != 0 {
		t.Fatalf("cancelled handler ran %d times", calls)
	}
}

func TestPublishBatch(t *testing.T) {
	b := New()
	seen := map[string]int{}
	for _, typ := range []string{"a", "b"} {
		_, _ = b.Subscribe(typ, func(e Event) error { seen[e.Type()]++; return nil })
	}
	err := b.PublishBatch(NewEvent("a", "s", nil), NewEvent("b", "s", nil), NewEvent("a", "s", nil), nil)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if seen["a"] != 2 || seen["b"] != 1 {
		t.Fatalf("seen = %v", seen)
	}
}

func TestSubscribeNilHandler(t *testing.T) {
	if _, err := New().Subscribe("x", nil); !errors.Is(err, ErrNilHandler) {
		t.Fatalf("expected ErrNilHandler, got %v", err)
	}
}
