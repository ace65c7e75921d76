package deletion

import (
	"reflect"
	"testing"
)

type recorder struct {
	calls []string
}

func TestDrainRunsNewestFirst(t *testing.T) {
	var q Queue[*recorder]
	for _, name := range []string{"a", "b", "c"} {
		name := name
		q.Push(func(r *recorder) { r.calls = append(r.calls, name) })
	}

	r := &recorder{}
	q.Drain(r)

	expected := []string{"c", "b", "a"}
	if !reflect.DeepEqual(r.calls, expected) {
		t.Errorf("Drain order: expected %v, got %v", expected, r.calls)
	}
	if q.Len() != 0 {
		t.Errorf("Len after Drain: expected 0, got %d", q.Len())
	}
}

func TestDrainRunsEachActionOnce(t *testing.T) {
	var q Queue[int]
	count := 0
	q.Push(func(int) { count++ })

	q.Drain(0)
	q.Drain(0)

	if count != 1 {
		t.Errorf("action ran %d times, expected 1", count)
	}
}

func TestDrainPassesArgument(t *testing.T) {
	var q Queue[int]
	got := 0
	q.Push(func(d int) { got = d })
	q.Drain(42)
	if got != 42 {
		t.Errorf("expected action to receive 42, got %d", got)
	}
}

func TestDrainEmptyQueue(t *testing.T) {
	var q Queue[string]
	q.Drain("unused")
	if q.Len() != 0 {
		t.Errorf("Len: expected 0, got %d", q.Len())
	}
}

func TestPushDuringDrain(t *testing.T) {
	var q Queue[*recorder]
	q.Push(func(r *recorder) { r.calls = append(r.calls, "first") })
	q.Push(func(r *recorder) {
		r.calls = append(r.calls, "second")
		q.Push(func(r *recorder) { r.calls = append(r.calls, "late") })
	})

	r := &recorder{}
	q.Drain(r)

	expected := []string{"second", "late", "first"}
	if !reflect.DeepEqual(r.calls, expected) {
		t.Errorf("Drain order: expected %v, got %v", expected, r.calls)
	}
	if q.Len() != 0 {
		t.Errorf("Len after Drain: expected 0, got %d", q.Len())
	}
}

func TestQueueReusableAfterDrain(t *testing.T) {
	var q Queue[*recorder]
	q.Push(func(r *recorder) { r.calls = append(r.calls, "x") })
	q.Drain(&recorder{})

	q.Push(func(r *recorder) { r.calls = append(r.calls, "y") })
	if q.Len() != 1 {
		t.Fatalf("Len: expected 1, got %d", q.Len())
	}
	r := &recorder{}
	q.Drain(r)
	if !reflect.DeepEqual(r.calls, []string{"y"}) {
		t.Errorf("expected [y], got %v", r.calls)
	}
}
