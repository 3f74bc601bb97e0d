package sender

import "testing"

func TestHistoryPutGetPurge(t *testing.T) {
	h, err := NewHistory(4)
	if err != nil {
		t.Fatalf("NewHistory: %v", err)
	}
	h.Put(1, 10, []byte("a"))
	h.Put(1, 11, []byte("b"))
	h.Put(2, 10, []byte("c"))

	if v, ok := h.Get(1, 10); !ok || string(v) != "a" {
		t.Fatalf("Get(1,10) = %q, %v", v, ok)
	}
	h.PurgeDevice(1)
	if _, ok := h.Get(1, 10); ok {
		t.Fatal("expected device 1 history purged")
	}
	if _, ok := h.Get(1, 11); ok {
		t.Fatal("expected device 1 history purged")
	}
	if v, ok := h.Get(2, 10); !ok || string(v) != "c" {
		t.Fatalf("Get(2,10) after purge of device 1 = %q, %v", v, ok)
	}
}

func TestHistoryEvictsUnderCapacity(t *testing.T) {
	h, err := NewHistory(2)
	if err != nil {
		t.Fatalf("NewHistory: %v", err)
	}
	h.Put(1, 1, []byte("a"))
	h.Put(1, 2, []byte("b"))
	h.Put(1, 3, []byte("c"))
	if _, ok := h.Get(1, 1); ok {
		t.Fatal("expected oldest entry evicted")
	}
	if _, ok := h.Get(1, 3); !ok {
		t.Fatal("expected newest entry retained")
	}
}
