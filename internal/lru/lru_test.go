package lru

import "testing"

func keys(l *List[int]) []int {
	var out []int
	for n := l.Oldest(); n != nil; n = n.Newer() {
		out = append(out, n.Key())
	}
	return out
}

func equal(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestList_PushFrontOrder(t *testing.T) {
	l := New[int]()
	for i := 1; i <= 3; i++ {
		l.PushFront(i)
	}
	if l.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", l.Len())
	}
	if got := keys(l); !equal(got, []int{1, 2, 3}) {
		t.Errorf("walk from oldest = %v, want [1 2 3]", got)
	}
}

func TestList_RemoveOldest(t *testing.T) {
	l := New[int]()
	l.PushFront(1)
	l.PushFront(2)
	l.PushFront(3)

	for _, want := range []int{1, 2, 3} {
		k, ok := l.RemoveOldest()
		if !ok || k != want {
			t.Errorf("RemoveOldest() = (%d, %v), want (%d, true)", k, ok, want)
		}
	}
	if _, ok := l.RemoveOldest(); ok {
		t.Error("RemoveOldest() on empty list should return false")
	}
}

func TestList_MoveToFront(t *testing.T) {
	l := New[int]()
	n1 := l.PushFront(1)
	l.PushFront(2)
	l.PushFront(3)

	l.MoveToFront(n1)
	k, _ := l.RemoveOldest()
	if k != 2 {
		t.Errorf("oldest after MoveToFront(1) = %d, want 2", k)
	}
	if l.Len() != 2 {
		t.Errorf("Len() = %d, want 2", l.Len())
	}
}

func TestList_RemoveTwiceIsNoop(t *testing.T) {
	l := New[int]()
	n1 := l.PushFront(1)
	l.PushFront(2)

	l.Remove(n1)
	l.Remove(n1)
	if l.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", l.Len())
	}
	if o := l.Oldest(); o == nil || o.Key() != 2 {
		t.Errorf("Oldest() = %v, want key 2", o)
	}
}

func TestList_Clear(t *testing.T) {
	l := New[int]()
	n := l.PushFront(1)
	l.PushFront(2)
	l.Clear()
	if l.Len() != 0 || l.Oldest() != nil {
		t.Error("Clear() should empty the list")
	}
	l.Remove(n)
	if l.Len() != 0 {
		t.Error("Remove after Clear should be a no-op")
	}
}
