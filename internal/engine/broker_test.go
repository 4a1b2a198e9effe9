package engine_test

import (
	"testing"

	"github.com/seantiz/dss/internal/engine"
	"github.com/seantiz/dss/internal/model"
)

func status(id, s string) model.ExecutionStatus {
	return model.ExecutionStatus{ID: id, Status: s}
}

func drain(ch <-chan model.ExecutionStatus) []string {
	var got []string
	for s := range ch {
		got = append(got, s.Status)
	}
	return got
}

func TestStatusBrokerSingleSubscriber(t *testing.T) {
	b := engine.NewStatusBroker()
	b.Open("e1")
	ch, unsub := b.Subscribe("e1")
	defer unsub()

	want := []string{model.StatusRunning, model.StatusRunning, model.StatusCompleted}
	for _, s := range want {
		b.Publish("e1", status("e1", s))
	}
	b.Close("e1")

	got := drain(ch)
	if len(got) != len(want) {
		t.Fatalf("got %d statuses, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("status[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStatusBrokerMultipleSubscribers(t *testing.T) {
	b := engine.NewStatusBroker()
	b.Open("e1")
	ch1, unsub1 := b.Subscribe("e1")
	defer unsub1()
	ch2, unsub2 := b.Subscribe("e1")
	defer unsub2()

	b.Publish("e1", status("e1", model.StatusRunning))
	b.Close("e1")

	if got := drain(ch1); len(got) != 1 {
		t.Errorf("subscriber 1 got %v", got)
	}
	if got := drain(ch2); len(got) != 1 {
		t.Errorf("subscriber 2 got %v", got)
	}
}

func TestStatusBrokerLateSubscriberGetsLatest(t *testing.T) {
	b := engine.NewStatusBroker()
	b.Open("e1")
	b.Publish("e1", status("e1", "QUEUED"))
	b.Publish("e1", status("e1", model.StatusRunning))

	ch, unsub := b.Subscribe("e1")
	defer unsub()
	b.Publish("e1", status("e1", model.StatusCompleted))
	b.Close("e1")

	got := drain(ch)
	if len(got) != 2 || got[0] != model.StatusRunning || got[1] != model.StatusCompleted {
		t.Errorf("late subscriber got %v, want [RUNNING COMPLETED]", got)
	}
}

func TestStatusBrokerSubscribeAfterClose(t *testing.T) {
	b := engine.NewStatusBroker()
	b.Open("e1")
	b.Publish("e1", status("e1", model.StatusCompleted))
	b.Close("e1")

	ch, unsub := b.Subscribe("e1")
	defer unsub()

	got := drain(ch)
	if len(got) != 1 || got[0] != model.StatusCompleted {
		t.Errorf("subscriber after close got %v, want [COMPLETED]", got)
	}
}

func TestStatusBrokerCloseUnknownLeavesMarker(t *testing.T) {
	b := engine.NewStatusBroker()
	b.Close("ghost")

	ch, unsub := b.Subscribe("ghost")
	defer unsub()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}
}

func TestStatusBrokerOpenResetsClosedMarker(t *testing.T) {
	b := engine.NewStatusBroker()
	b.Open("e1")
	b.Publish("e1", status("e1", model.StatusCompleted))
	b.Close("e1")

	b.Open("e1")
	ch, unsub := b.Subscribe("e1")
	defer unsub()
	b.Publish("e1", status("e1", model.StatusRunning))

	select {
	case s, ok := <-ch:
		if !ok || s.Status != model.StatusRunning {
			t.Errorf("got %v ok=%v, want RUNNING from reopened topic", s.Status, ok)
		}
	default:
		t.Error("no status delivered after reopen")
	}
}

func TestStatusBrokerUnsubscribeStopsDelivery(t *testing.T) {
	b := engine.NewStatusBroker()
	b.Open("e1")
	ch, unsub := b.Subscribe("e1")
	unsub()

	b.Publish("e1", status("e1", model.StatusRunning))
	b.Close("e1")

	select {
	case s, ok := <-ch:
		if ok {
			t.Errorf("got unexpected status %q after unsubscribe", s.Status)
		}
	default:
	}
}

func TestStatusBrokerPublishToUnknownIsNoop(t *testing.T) {
	b := engine.NewStatusBroker()
	b.Publish("nonexistent", status("nonexistent", model.StatusRunning))
	b.Close("nonexistent")
}

func TestStatusBrokerDropsForSlowSubscriber(t *testing.T) {
	b := engine.NewStatusBroker()
	b.Open("e1")
	ch, unsub := b.Subscribe("e1")
	defer unsub()

	for i := 0; i < 200; i++ {
		b.Publish("e1", status("e1", model.StatusRunning))
	}
	b.Close("e1")

	if got := drain(ch); len(got) != 64 {
		t.Errorf("buffered %d statuses, want 64", len(got))
	}
}

func TestStatusBrokerRemoveDropsClosedTopic(t *testing.T) {
	b := engine.NewStatusBroker()
	b.Open("e1")
	b.Publish("e1", status("e1", model.StatusCompleted))
	b.Close("e1")
	b.Remove("e1")

	// A fresh topic carries no retained status.
	b.Open("e1")
	ch, unsub := b.Subscribe("e1")
	defer unsub()
	select {
	case s := <-ch:
		t.Errorf("received retained status %+v after Remove", s)
	default:
	}
}

func TestStatusBrokerRemoveKeepsOpenTopic(t *testing.T) {
	b := engine.NewStatusBroker()
	b.Open("e1")
	ch, unsub := b.Subscribe("e1")
	defer unsub()

	b.Remove("e1")
	b.Publish("e1", status("e1", model.StatusRunning))
	b.Close("e1")

	if got := drain(ch); len(got) != 1 || got[0] != model.StatusRunning {
		t.Errorf("got %v, want [RUNNING]", got)
	}
}
