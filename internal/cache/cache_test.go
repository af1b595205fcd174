package cache

import (
	"errors"
	"testing"
)

func TestEnsureIsIdempotent(t *testing.T) {
	c := New[string, int]()
	calls := 0
	create := func() (int, error) {
		calls++
		return 42, nil
	}

	first, err := c.Ensure("a", create)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	second, err := c.Ensure("a", create)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	if first != second {
		t.Errorf("indices differ: %d vs %d", first, second)
	}
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
	if s := c.Stats(); s.Hits != 1 || s.Misses != 1 {
		t.Errorf("Stats() = %+v, want 1 hit and 1 miss", s)
	}
}

func TestEnsureErrorStoresNothing(t *testing.T) {
	c := New[string, int]()
	boom := errors.New("boom")

	if _, err := c.Ensure("a", func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("Ensure error = %v, want boom", err)
	}
	if _, ok := c.Index("a"); ok {
		t.Error("failed Ensure must not store the key")
	}

	idx, err := c.Ensure("a", func() (int, error) { return 1, nil })
	if err != nil || idx != 0 {
		t.Errorf("retry Ensure = %d, %v", idx, err)
	}
}

func TestIndicesAreStable(t *testing.T) {
	c := New[string, string]()
	for _, k := range []string{"a", "b", "c"} {
		if _, err := c.Ensure(k, func() (string, error) { return k + "!", nil }); err != nil {
			t.Fatal(err)
		}
	}

	if v, ok := c.Delete("b"); !ok || v != "b!" {
		t.Fatalf("Delete(b) = %q, %v", v, ok)
	}
	if _, ok := c.At(1); ok {
		t.Error("deleted index still resolves")
	}
	if v, ok := c.At(2); !ok || v != "c!" {
		t.Errorf("At(2) = %q, %v after deleting b", v, ok)
	}

	idx, _ := c.Ensure("b", func() (string, error) { return "again", nil })
	if idx != 3 {
		t.Errorf("re-inserted key got index %d, want 3", idx)
	}
}

func TestDeleteFunc(t *testing.T) {
	c := New[int, int]()
	for i := range 6 {
		_, _ = c.Ensure(i, func() (int, error) { return i * 10, nil })
	}

	removed := c.DeleteFunc(func(k, _ int) bool { return k%2 == 0 })
	if len(removed) != 3 {
		t.Fatalf("removed %d entries, want 3", len(removed))
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}

	var keys []int
	c.Range(func(k, _ int) bool {
		keys = append(keys, k)
		return true
	})
	if len(keys) != 3 || keys[0] != 1 || keys[1] != 3 || keys[2] != 5 {
		t.Errorf("Range keys = %v, want [1 3 5]", keys)
	}
}

func TestGetUnknown(t *testing.T) {
	c := New[string, int]()
	if _, ok := c.Get("missing"); ok {
		t.Error("Get on empty cache succeeded")
	}
	if _, ok := c.At(-1); ok {
		t.Error("At(-1) succeeded")
	}
	if _, ok := c.Delete("missing"); ok {
		t.Error("Delete on empty cache succeeded")
	}
}
