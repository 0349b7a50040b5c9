package registry

import "testing"

func TestAcquireSharesOneHandlePerPath(t *testing.T) {
	r := New()
	builds := 0

	e1, created1, err := r.Acquire("/tmp/a.skip", func() (any, error) {
		builds++
		return "handle-a", nil
	})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !created1 {
		t.Fatalf("expected first acquire to create")
	}

	e2, created2, err := r.Acquire("/tmp/a.skip", func() (any, error) {
		builds++
		return "should-not-run", nil
	})
	if err != nil {
		t.Fatalf("acquire again: %v", err)
	}
	if created2 {
		t.Fatalf("expected second acquire to reuse the existing entry")
	}
	if e1 != e2 {
		t.Fatalf("expected the same entry to be returned")
	}
	if builds != 1 {
		t.Fatalf("expected create to run exactly once, ran %d times", builds)
	}
	if r.RefCount("/tmp/a.skip") != 2 {
		t.Fatalf("expected refcount 2, got %d", r.RefCount("/tmp/a.skip"))
	}
}

func TestReleaseClosesOnlyAtZero(t *testing.T) {
	r := New()
	if _, _, err := r.Acquire("/tmp/b.skip", func() (any, error) { return 1, nil }); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, _, err := r.Acquire("/tmp/b.skip", func() (any, error) { return 1, nil }); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if r.Release("/tmp/b.skip") {
		t.Fatalf("expected refcount 1 after first release, not yet last")
	}
	if !r.Release("/tmp/b.skip") {
		t.Fatalf("expected the second release to report last")
	}
	if r.RefCount("/tmp/b.skip") != 0 {
		t.Fatalf("expected the entry to be gone, refcount %d", r.RefCount("/tmp/b.skip"))
	}
}

func TestDistinctPathsGetDistinctEntries(t *testing.T) {
	r := New()
	a, _, err := r.Acquire("/tmp/a.skip", func() (any, error) { return "a", nil })
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	b, _, err := r.Acquire("/tmp/c.skip", func() (any, error) { return "c", nil })
	if err != nil {
		t.Fatalf("acquire c: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct entries for distinct paths")
	}
	if a.Value().(string) != "a" || b.Value().(string) != "c" {
		t.Fatalf("unexpected stored values: %v %v", a.Value(), b.Value())
	}
}

func TestAcquireCreateErrorNotRegistered(t *testing.T) {
	r := New()
	wantErr := errSentinel("boom")
	if _, _, err := r.Acquire("/tmp/fails.skip", func() (any, error) { return nil, wantErr }); err != wantErr {
		t.Fatalf("expected create's error to propagate, got %v", err)
	}
	if r.RefCount("/tmp/fails.skip") != 0 {
		t.Fatalf("a failed create must not leave an entry behind")
	}
}

type errSentinel string

func (e errSentinel) Error() string { return string(e) }
