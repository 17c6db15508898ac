package signaling

import (
	"testing"
	"time"
)

func TestSendQueue_FIFOAndBudget(t *testing.T) {
	q := newSendQueue(10)

	if !q.Enqueue([]byte("abcd")) || !q.Enqueue([]byte("efgh")) {
		t.Fatalf("expected frames within budget to be accepted")
	}
	if q.Enqueue([]byte("ijk")) {
		t.Fatalf("expected frame over budget to be dropped")
	}

	f, ok := q.Dequeue()
	if !ok || string(f) != "abcd" {
		t.Fatalf("Dequeue=(%q,%v), want abcd", f, ok)
	}
	if !q.Enqueue([]byte("ijk")) {
		t.Fatalf("expected space to be reclaimed after dequeue")
	}
	f, _ = q.Dequeue()
	if string(f) != "efgh" {
		t.Fatalf("Dequeue=%q, want efgh", f)
	}
	f, _ = q.Dequeue()
	if string(f) != "ijk" {
		t.Fatalf("Dequeue=%q, want ijk", f)
	}
}

func TestSendQueue_CloseWakesDequeue(t *testing.T) {
	q := newSendQueue(10)

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Dequeue()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Fatalf("expected Dequeue to report closed")
		}
	case <-time.After(time.Second):
		t.Fatalf("Dequeue did not return after Close")
	}
	if q.Enqueue([]byte("x")) {
		t.Fatalf("expected Enqueue after Close to fail")
	}
}
