package transform

import (
	"errors"
	"math"
	"testing"

	"mrvoxel/pkg/header"
)

func near(a, b [3]float64, tol float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

func TestComposeOrder(t *testing.T) {
	s := Scale(2, 3, 4)
	tr := Translation(1, 1, 1)
	p := [3]float64{1, 2, 3}

	got := Compose(tr, s).Apply(p)
	want := tr.Apply(s.Apply(p))
	if !near(got, want, 1e-12) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if want != [3]float64{3, 7, 13} {
		t.Errorf("Unexpected composed point %v", want)
	}
}

func TestInverse(t *testing.T) {
	a := Affine{{0, -1, 0, 10}, {1, 0, 0, -5}, {0, 0, 2, 3}}
	inv, err := a.Inverse()
	if err != nil {
		t.Fatalf("Inverse failed: %v", err)
	}
	if !Compose(a, inv).IsIdentity(1e-12) {
		t.Errorf("Expected a * a^-1 to be identity, got %v", Compose(a, inv))
	}

	if _, err := (Affine{}).Inverse(); !errors.Is(err, ErrSingular) {
		t.Errorf("Expected ErrSingular, got %v", err)
	}
}

func TestHeaderTransform(t *testing.T) {
	h := header.New([]int{10, 10, 10}, 2, 2, 3)
	h.Affine = header.Transform{{1, 0, 0, -10}, {0, 1, 0, -20}, {0, 0, 1, 5}}

	tr, err := New(h)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	scanner := tr.Voxel2Scanner.Apply([3]float64{1, 2, 3})
	if !near(scanner, [3]float64{-8, -16, 14}, 1e-12) {
		t.Errorf("Unexpected scanner position %v", scanner)
	}
	back := tr.Scanner2Voxel.Apply(scanner)
	if !near(back, [3]float64{1, 2, 3}, 1e-9) {
		t.Errorf("Round trip failed: %v", back)
	}
	if img := tr.Voxel2Image.Apply([3]float64{1, 1, 1}); img != [3]float64{2, 2, 3} {
		t.Errorf("Unexpected image position %v", img)
	}
}
