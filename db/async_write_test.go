package db

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAsyncWriter_ProcessesWrites(t *testing.T) {
	var mu sync.Mutex
	var got []int

	w := NewAsyncWriter(func(op WriteOperation) error {
		mu.Lock()
		got = append(got, op.Data.(int))
		mu.Unlock()
		return nil
	})
	w.Start()
	w.Start()

	for i := 0; i < 10; i++ {
		if !w.Write(i) {
			t.Fatalf("Write(%d) refused", i)
		}
	}
	if !w.StopWithTimeout(time.Second) {
		t.Fatal("StopWithTimeout() timed out")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 10 {
		t.Fatalf("processed %d writes, want 10", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Errorf("got[%d] = %d, want %d", i, v, i)
		}
	}
}

func TestAsyncWriter_FullBufferRefuses(t *testing.T) {
	w := NewAsyncWriterWithConfig(func(WriteOperation) error { return nil }, AsyncWriterConfig{ChannelCapacity: 2})

	// Not started: the buffer fills up
	if !w.Write(1) || !w.Write(2) {
		t.Fatal("writes within capacity should be queued")
	}
	if w.Write(3) {
		t.Error("write beyond capacity should be refused")
	}
	if w.Pending() != 2 {
		t.Errorf("Pending() = %d, want 2", w.Pending())
	}
	if w.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", w.Dropped())
	}
}

func TestAsyncWriter_WriteAfterClose(t *testing.T) {
	w := NewAsyncWriter(func(WriteOperation) error { return nil })
	w.Start()
	w.Close()

	if w.Write("late") {
		t.Error("Write after Close should be refused")
	}
	if w.IsStarted() {
		t.Error("IsStarted() should be false after Close")
	}
}

func TestAsyncWriter_CountsFailures(t *testing.T) {
	var calls atomic.Int32
	w := NewAsyncWriter(func(WriteOperation) error {
		calls.Add(1)
		return errors.New("disk full")
	})
	w.Start()
	w.Write(1)
	w.Write(2)
	w.StopWithTimeout(time.Second)

	if calls.Load() != 2 {
		t.Errorf("handler called %d times, want 2", calls.Load())
	}
	if w.Failed() != 2 {
		t.Errorf("Failed() = %d, want 2", w.Failed())
	}
}
