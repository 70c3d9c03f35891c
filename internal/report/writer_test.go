package report

import (
	"fmt"
	"testing"
	"time"
)

func TestWriter_FlushOnBatchSize(t *testing.T) {
	store := setupTestStore(t)

	w := NewWriter(store, WriterConfig{
		BatchSize:   10,
		FlushPeriod: time.Hour, // only the batch size should trigger
		ChannelSize: 100,
	}, testLogger())
	defer w.Stop()

	now := time.Now().UTC()
	for i := 0; i < 10; i++ {
		if !w.Write(testLine(1, fmt.Sprintf("line %d", i), now)) {
			t.Fatalf("Write %d dropped", i)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.Stats().TotalWritten == 10 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	stats := w.Stats()
	if stats.TotalWritten != 10 {
		t.Fatalf("TotalWritten = %d, want 10", stats.TotalWritten)
	}
	if stats.TotalBatches != 1 {
		t.Errorf("TotalBatches = %d, want 1", stats.TotalBatches)
	}
}

func TestWriter_FlushOnPeriod(t *testing.T) {
	store := setupTestStore(t)

	w := NewWriter(store, WriterConfig{
		BatchSize:   1000, // never reached
		FlushPeriod: 20 * time.Millisecond,
		ChannelSize: 100,
	}, testLogger())
	defer w.Stop()

	w.Write(testLine(2, "lonely line", time.Now().UTC()))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.Stats().TotalWritten == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("TotalWritten = %d after period flush, want 1", w.Stats().TotalWritten)
}

func TestWriter_StopFlushesRemaining(t *testing.T) {
	store := setupTestStore(t)

	w := NewWriter(store, WriterConfig{
		BatchSize:   1000,
		FlushPeriod: time.Hour,
		ChannelSize: 100,
	}, testLogger())

	now := time.Now().UTC()
	for i := 0; i < 7; i++ {
		w.Write(testLine(3, fmt.Sprintf("line %d", i), now))
	}

	w.Stop()

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalLines != 7 {
		t.Errorf("TotalLines = %d after Stop, want 7", stats.TotalLines)
	}
}

func TestWriter_StopIdempotent(t *testing.T) {
	store := setupTestStore(t)

	w := NewWriter(store, DefaultWriterConfig(), testLogger())
	w.Stop()
	w.Stop() // must not panic or hang
}

func TestWriter_DropsWhenChannelFull(t *testing.T) {
	store := setupTestStore(t)

	w := NewWriter(store, WriterConfig{
		BatchSize:   1000,
		FlushPeriod: time.Hour,
		ChannelSize: 1,
	}, testLogger())
	// With the loop stopped nothing drains the depth-1 channel, so the
	// second write must be refused rather than block.
	w.Stop()

	if !w.Write(testLine(1, "first", time.Now().UTC())) {
		t.Fatal("First write should fill the buffer")
	}
	if w.Write(testLine(1, "second", time.Now().UTC())) {
		t.Error("Second write should be dropped on a full channel")
	}
}
