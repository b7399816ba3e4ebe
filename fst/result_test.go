package fst

import "testing"

func TestComparePriorities(t *testing.T) {
	tests := []struct {
		a, b []int
		want int
	}{
		{[]int{0, 1}, []int{0, 1}, 0},
		{[]int{0, 0, 5}, []int{0, 1}, -1},
		{[]int{1}, []int{0, 3, 3}, 1},
		{[]int{0, 1, 0}, []int{0, 1}, -1},
		{nil, []int{0}, 1},
	}
	for _, tt := range tests {
		if got := comparePriorities(tt.a, tt.b); got != tt.want {
			t.Errorf("comparePriorities(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCombineOutputs(t *testing.T) {
	first := Insert(nil)
	if _, keep := combineOutputs(first, Remove()); keep {
		t.Errorf("removing an insertion should leave nothing")
	}
	if got, _ := combineOutputs(Identity(), Remove()); got.Kind != RemoveOutput {
		t.Errorf("got %s, want removal", got)
	}
	if got, _ := combineOutputs(Remove(), Identity()); got.Kind != RemoveOutput {
		t.Errorf("got %s, want removal", got)
	}
}
