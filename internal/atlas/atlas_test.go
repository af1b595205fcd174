package atlas

import (
	"errors"
	"math/rand/v2"
	"testing"
)

func padded(r Rect, pad int) Rect {
	return Rect{X: r.X, Y: r.Y, Width: r.Width + pad, Height: r.Height + pad}
}

// checkPacking verifies that every allocation lies inside its layer and that
// no two padded allocations on the same layer share a pixel.
func checkPacking(t *testing.T, a *Allocator, allocs []Allocation) {
	t.Helper()
	bounds := Rect{Width: a.Size(), Height: a.Size()}
	for i, x := range allocs {
		if !bounds.ContainsRect(padded(x.Rect, a.Padding())) {
			t.Fatalf("allocation %d %s escapes layer bounds %s", i, x, bounds)
		}
		for j := i + 1; j < len(allocs); j++ {
			y := allocs[j]
			if x.Layer != y.Layer {
				continue
			}
			if padded(x.Rect, a.Padding()).Overlaps(padded(y.Rect, a.Padding())) {
				t.Fatalf("allocations %d %s and %d %s overlap", i, x, j, y)
			}
		}
	}
}

func TestAllocatorPackingInvariant(t *testing.T) {
	for _, strategy := range []Strategy{Guillotine, Shelf} {
		t.Run(strategy.String(), func(t *testing.T) {
			a := New(Config{Size: 512, MaxLayers: 3, Strategy: strategy})
			rng := rand.New(rand.NewPCG(1, 2))

			var allocs []Allocation
			for range 400 {
				w, h := 1+rng.IntN(96), 1+rng.IntN(96)
				alloc, err := a.Allocate(w, h)
				if errors.Is(err, ErrAtlasFull) {
					continue
				}
				if err != nil {
					t.Fatalf("Allocate(%d, %d): %v", w, h, err)
				}
				if alloc.Rect.Width != w || alloc.Rect.Height != h {
					t.Fatalf("Allocate(%d, %d) returned %s", w, h, alloc.Rect)
				}
				allocs = append(allocs, alloc)
			}
			if len(allocs) == 0 {
				t.Fatal("no allocation succeeded")
			}
			checkPacking(t, a, allocs)

			// Free every other allocation and pack again into the holes.
			kept := allocs[:0:0]
			for i, x := range allocs {
				if i%2 == 0 {
					if err := a.Free(x.Layer, x.Rect); err != nil {
						t.Fatalf("Free(%s): %v", x, err)
					}
					continue
				}
				kept = append(kept, x)
			}
			for range 200 {
				alloc, err := a.Allocate(1+rng.IntN(64), 1+rng.IntN(64))
				if err == nil {
					kept = append(kept, alloc)
				}
			}
			checkPacking(t, a, kept)
			if a.AllocCount() != len(kept) {
				t.Errorf("AllocCount() = %d, want %d", a.AllocCount(), len(kept))
			}
		})
	}
}

func TestAllocatorGrowsLayers(t *testing.T) {
	a := New(Config{Size: MinSize, MaxLayers: 2})

	first, err := a.Allocate(200, 200)
	if err != nil {
		t.Fatalf("first Allocate: %v", err)
	}
	second, err := a.Allocate(200, 200)
	if err != nil {
		t.Fatalf("second Allocate: %v", err)
	}
	if first.Layer != 0 || second.Layer != 1 {
		t.Errorf("layers = %d, %d; want 0, 1", first.Layer, second.Layer)
	}
	if a.Layers() != 2 {
		t.Errorf("Layers() = %d, want 2", a.Layers())
	}

	if _, err := a.Allocate(200, 200); !errors.Is(err, ErrAtlasFull) {
		t.Errorf("third Allocate error = %v, want ErrAtlasFull", err)
	}
}

func TestAllocatorRejects(t *testing.T) {
	a := New(Config{Size: MinSize})

	tests := []struct {
		name string
		w, h int
		want error
	}{
		{"zero width", 0, 10, ErrInvalidSize},
		{"negative height", 10, -1, ErrInvalidSize},
		{"larger than layer", MinSize + 1, 1, ErrAtlasFull},
		{"no room for padding", MinSize, MinSize, ErrAtlasFull},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.Allocate(tt.w, tt.h); !errors.Is(err, tt.want) {
				t.Errorf("Allocate(%d, %d) error = %v, want %v", tt.w, tt.h, err, tt.want)
			}
		})
	}
}

func TestAllocatorFreeMergesGuillotine(t *testing.T) {
	a := New(Config{Size: MinSize, MaxLayers: 1, Strategy: Guillotine})

	quarter := MinSize/2 - a.Padding()
	var quads []Allocation
	for range 4 {
		alloc, err := a.Allocate(quarter, quarter)
		if err != nil {
			t.Fatalf("Allocate quadrant: %v", err)
		}
		quads = append(quads, alloc)
	}
	if _, err := a.Allocate(1, 1); !errors.Is(err, ErrAtlasFull) {
		t.Fatalf("layer should be full, got %v", err)
	}

	for _, i := range []int{0, 3, 1, 2} {
		if err := a.Free(quads[i].Layer, quads[i].Rect); err != nil {
			t.Fatalf("Free(%s): %v", quads[i], err)
		}
	}

	whole, err := a.Allocate(MinSize-a.Padding(), MinSize-a.Padding())
	if err != nil {
		t.Fatalf("whole-layer Allocate after free: %v", err)
	}
	if whole.Rect.X != 0 || whole.Rect.Y != 0 {
		t.Errorf("whole-layer allocation at %s, want origin", whole.Rect)
	}
}

func TestAllocatorFreeReusesShelfHole(t *testing.T) {
	a := New(Config{Size: MinSize, Strategy: Shelf})

	var allocs []Allocation
	for range 3 {
		alloc, err := a.Allocate(30, 20)
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		allocs = append(allocs, alloc)
	}
	if err := a.Free(allocs[1].Layer, allocs[1].Rect); err != nil {
		t.Fatalf("Free: %v", err)
	}

	again, err := a.Allocate(30, 20)
	if err != nil {
		t.Fatalf("Allocate after free: %v", err)
	}
	if again != allocs[1] {
		t.Errorf("Allocate after free = %s, want reused %s", again, allocs[1])
	}
}

func TestAllocatorInvalidFree(t *testing.T) {
	a := New(Config{Size: MinSize})
	alloc, err := a.Allocate(10, 10)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if err := a.Free(alloc.Layer, alloc.Rect); err != nil {
		t.Fatalf("first Free: %v", err)
	}
	if err := a.Free(alloc.Layer, alloc.Rect); !errors.Is(err, ErrInvalidFree) {
		t.Errorf("double Free error = %v, want ErrInvalidFree", err)
	}
	if err := a.Free(5, alloc.Rect); !errors.Is(err, ErrInvalidFree) {
		t.Errorf("Free on unknown layer error = %v, want ErrInvalidFree", err)
	}
	if err := a.Free(0, Rect{X: MinSize - 1, Y: 0, Width: 10, Height: 10}); !errors.Is(err, ErrInvalidFree) {
		t.Errorf("out-of-bounds Free error = %v, want ErrInvalidFree", err)
	}
}

func TestAllocatorUtilizationAndReset(t *testing.T) {
	a := New(Config{Size: MinSize})
	if u := a.Utilization(); u != 0 {
		t.Errorf("empty Utilization() = %v, want 0", u)
	}

	if _, err := a.Allocate(127, 127); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if u := a.Utilization(); u != 0.25 {
		t.Errorf("Utilization() = %v, want 0.25", u)
	}

	a.Reset()
	if a.AllocCount() != 0 || a.Layers() != 1 || a.Utilization() != 0 {
		t.Errorf("after Reset: count=%d layers=%d util=%v", a.AllocCount(), a.Layers(), a.Utilization())
	}
}

func TestNewClampsConfig(t *testing.T) {
	a := New(Config{Size: 16, MaxLayers: -1, Padding: 0})
	if a.Size() != MinSize {
		t.Errorf("Size() = %d, want %d", a.Size(), MinSize)
	}
	if a.MaxLayers() != DefaultMaxLayers {
		t.Errorf("MaxLayers() = %d, want %d", a.MaxLayers(), DefaultMaxLayers)
	}
	if a.Padding() != DefaultPadding {
		t.Errorf("Padding() = %d, want %d", a.Padding(), DefaultPadding)
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"", Guillotine, false},
		{"guillotine", Guillotine, false},
		{"shelf", Shelf, false},
		{"skyline", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStrategy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseStrategy(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRect(t *testing.T) {
	r := Rect{X: 10, Y: 20, Width: 30, Height: 40}
	if !r.Contains(10, 20) || r.Contains(40, 20) {
		t.Error("Contains uses inclusive min and exclusive max")
	}
	if !r.Overlaps(Rect{X: 39, Y: 59, Width: 5, Height: 5}) {
		t.Error("corner pixel should overlap")
	}
	if r.Overlaps(Rect{X: 40, Y: 20, Width: 5, Height: 5}) {
		t.Error("touching edges must not overlap")
	}
	if got := r.String(); got != "Rect(10,20 30x40)" {
		t.Errorf("String() = %q", got)
	}
}
