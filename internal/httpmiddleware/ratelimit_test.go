package httpmiddleware

import "testing"

func TestTokenBucketExhaustsAndIsolatesKeys(t *testing.T) {
	l := NewSimpleTokenBucket(3, 3)

	for i := 0; i < 3; i++ {
		if !l.allow("10.0.0.1") {
			t.Fatalf("request %d rejected before capacity reached", i+1)
		}
	}
	if l.allow("10.0.0.1") {
		t.Error("request over capacity was allowed")
	}
	if !l.allow("10.0.0.2") {
		t.Error("different client was throttled by another client's bucket")
	}
}

func TestTokenBucketDefaultsCapacity(t *testing.T) {
	l := NewSimpleTokenBucket(0, 5)
	if l.capacity != 5 {
		t.Fatalf("capacity = %d, want 5", l.capacity)
	}
}
