package loop

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

// grid is a minimal strided cursor used to observe loop behaviour.
type grid struct {
	sizes   []int
	strides []int
	pos     []int
}

func newGrid(sizes []int, strides []int) *grid {
	if strides == nil {
		strides = make([]int, len(sizes))
		step := 1
		for i, s := range sizes {
			strides[i] = step
			step *= s
		}
	}
	return &grid{sizes: sizes, strides: strides, pos: make([]int, len(sizes))}
}

func (g *grid) NDim() int            { return len(g.sizes) }
func (g *grid) Size(axis int) int    { return g.sizes[axis] }
func (g *grid) Stride(axis int) int  { return g.strides[axis] }
func (g *grid) Index(axis int) int   { return g.pos[axis] }
func (g *grid) SetIndex(axis, v int) { g.pos[axis] = v }

func (g *grid) offset() int {
	off := 0
	for i, p := range g.pos {
		off += p * g.strides[i]
	}
	return off
}

func TestNaturalLoopVisitsEveryPositionOnce(t *testing.T) {
	g := newGrid([]int{4, 4, 4}, nil)
	seen := make(map[string]int)
	var offsets []int

	l := New(0, All)
	for l.Start(g); l.OK(); l.Next(g) {
		seen[fmt.Sprint(g.pos)]++
		offsets = append(offsets, g.offset())
	}

	if len(seen) != 64 {
		t.Fatalf("Expected 64 distinct positions, got %d", len(seen))
	}
	for pos, n := range seen {
		if n != 1 {
			t.Errorf("Position %s visited %d times", pos, n)
		}
	}
	for i, off := range offsets {
		if off != i {
			t.Fatalf("Expected sequential offsets for contiguous strides, got %d at step %d", off, i)
		}
	}
}

func TestByStrideFollowsMemoryOrder(t *testing.T) {
	// axis 2 is contiguous, then axis 0, then axis 1
	g := newGrid([]int{3, 2, 5}, []int{5, 15, 1})
	l := ByStride(g, 0, All)

	var offsets []int
	for l.Start(g); l.OK(); l.Next(g) {
		offsets = append(offsets, g.offset())
	}

	if !reflect.DeepEqual(l.Axes(), []int{2, 0, 1}) {
		t.Errorf("Expected axes [2 0 1], got %v", l.Axes())
	}
	if len(offsets) != 30 {
		t.Fatalf("Expected 30 positions, got %d", len(offsets))
	}
	for i, off := range offsets {
		if off != i {
			t.Fatalf("Expected offset %d at step %d, got %d", i, i, off)
		}
	}
}

func TestLoopCoverageIndependentOfOrder(t *testing.T) {
	sizes := []int{2, 3, 4, 2}
	orders := [][]int{{0, 1, 2, 3}, {3, 2, 1, 0}, {1, 3, 0, 2}}

	for _, order := range orders {
		t.Run(fmt.Sprint(order), func(t *testing.T) {
			g := newGrid(sizes, nil)
			seen := make(map[int]bool)
			l := InOrder(order)
			for l.Start(g); l.OK(); l.Next(g) {
				if seen[g.offset()] {
					t.Fatalf("Offset %d visited twice", g.offset())
				}
				seen[g.offset()] = true
			}
			if len(seen) != 48 {
				t.Errorf("Expected 48 positions, got %d", len(seen))
			}
		})
	}
}

func TestLoopLockstep(t *testing.T) {
	a := newGrid([]int{3, 3}, nil)
	b := newGrid([]int{3, 3}, []int{3, 1})
	l := ByStride(b, 0, All)
	steps := 0
	for l.Start(b, a); l.OK(); l.Next(b, a) {
		if !reflect.DeepEqual(a.pos, b.pos) {
			t.Fatalf("Cursors out of step: %v vs %v", a.pos, b.pos)
		}
		steps++
	}
	if steps != 9 {
		t.Errorf("Expected 9 steps, got %d", steps)
	}
}

func TestPartialRangeLeavesOtherAxes(t *testing.T) {
	g := newGrid([]int{2, 2, 3}, nil)
	g.SetIndex(2, 2)

	count := 0
	l := New(0, 2)
	for l.Start(g); l.OK(); l.Next(g) {
		if g.Index(2) != 2 {
			t.Fatalf("Axis outside the loop range was modified: %v", g.pos)
		}
		count++
	}
	if count != 4 {
		t.Errorf("Expected 4 iterations, got %d", count)
	}
}

func TestEmptyAndDegenerateLoops(t *testing.T) {
	empty := newGrid([]int{4, 0, 2}, nil)
	l := New(0, All)
	l.Start(empty)
	if l.OK() {
		t.Error("Expected no iterations over a zero-sized axis")
	}

	g := newGrid([]int{4}, nil)
	n := 0
	noAxes := New(1, 1)
	for noAxes.Start(g); noAxes.OK(); noAxes.Next(g) {
		n++
	}
	if n != 1 {
		t.Errorf("Expected a loop over no axes to run once, got %d", n)
	}
}

func TestNextAfterDonePanics(t *testing.T) {
	g := newGrid([]int{1}, nil)
	l := New(0, All)
	l.Start(g)
	l.Next(g)
	defer func() {
		if recover() == nil {
			t.Error("Expected panic when calling Next on a finished loop")
		}
	}()
	l.Next(g)
}

func TestForEachStopsOnError(t *testing.T) {
	g := newGrid([]int{5, 5}, nil)
	calls := 0
	err := New(0, All).ForEach(func() error {
		calls++
		if calls == 7 {
			return fmt.Errorf("stop")
		}
		return nil
	}, g)
	if err == nil || calls != 7 {
		t.Errorf("Expected error after 7 calls, got %v after %d", err, calls)
	}
}

func TestProgressDoesNotChangeIteration(t *testing.T) {
	var buf bytes.Buffer
	g := newGrid([]int{10, 10}, nil)
	n := 0
	l := New(0, All, WithProgress("scanning"), WithProgressWriter(&buf))
	for l.Start(g); l.OK(); l.Next(g) {
		n++
	}
	if n != 100 {
		t.Errorf("Expected 100 iterations, got %d", n)
	}
	if !strings.Contains(buf.String(), "scanning: 100%") {
		t.Errorf("Expected completion line in progress output, got %q", buf.String())
	}
}
