package tensor

import "testing"

func TestStack(t *testing.T) {
	a := New([]int{1, 2, 2, 1}, []float32{1, 2, 3, 4})
	b := New([]int{1, 2, 2, 1}, []float32{5, 6, 7, 8})
	s, err := Stack([]*Tensor{a, b})
	if err != nil {
		t.Fatal(err)
	}
	if !SameShape(s.Shape, []int{2, 2, 2, 1}) {
		t.Fatalf("shape = %v", s.Shape)
	}
	row := s.Row(1)
	if row[0] != 5 || row[3] != 8 {
		t.Fatalf("row 1 = %v", row)
	}
}

func TestStackShapeMismatch(t *testing.T) {
	a := Zeros(1, 2, 2, 1)
	b := Zeros(1, 3, 2, 1)
	if _, err := Stack([]*Tensor{a, b}); err == nil {
		t.Fatal("expected shape mismatch error")
	}
}

func TestCloneIsDeep(t *testing.T) {
	a := Zeros(2, 2)
	b := a.Clone()
	b.Data[0] = 1
	if a.Data[0] != 0 {
		t.Fatal("Clone shares data")
	}
}

func TestArgMaxPrefersLowestIndex(t *testing.T) {
	if got := ArgMax([]float32{0.2, 0.4, 0.4}); got != 1 {
		t.Fatalf("ArgMax = %d, want 1", got)
	}
}
