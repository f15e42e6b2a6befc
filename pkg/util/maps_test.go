package util

import (
	"slices"
	"testing"
)

func TestSortedKeys(t *testing.T) {
	got := SortedKeys(map[string]int{"js/b.js": 1, "css/a.css": 2, "img/c.png": 3})
	want := []string{"css/a.css", "img/c.png", "js/b.js"}
	if !slices.Equal(got, want) {
		t.Errorf("SortedKeys() = %v, want %v", got, want)
	}
	if got := SortedKeys(map[string]int(nil)); len(got) != 0 {
		t.Errorf("SortedKeys(nil) = %v", got)
	}
}

func TestSortedUnique(t *testing.T) {
	in := []string{"b", "a", "b", "c", "a"}
	got := SortedUnique(in)
	if want := []string{"a", "b", "c"}; !slices.Equal(got, want) {
		t.Errorf("SortedUnique() = %v, want %v", got, want)
	}
	if in[0] != "b" {
		t.Error("SortedUnique modified its input")
	}
}
