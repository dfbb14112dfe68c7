package diff

import (
	"reflect"
	"testing"
)

type friend struct {
	id   int64
	name string
}

func friendKey(f friend) int64 { return f.id }

func TestDiff_AddedFriend(t *testing.T) {
	prev := []friend{{1, "amy"}}
	curr := []friend{{1, "amy"}, {2, "bob"}}

	res := Diff(prev, curr, friendKey)
	if !reflect.DeepEqual(res.Added, []friend{{2, "bob"}}) {
		t.Fatalf("Added = %#v, want [{2 bob}]", res.Added)
	}
	if len(res.Removed) != 0 {
		t.Fatalf("Removed = %#v, want empty", res.Removed)
	}
	if res.Empty() {
		t.Fatal("Empty() = true, want false")
	}
}

func TestDiff_PreservesInputOrder(t *testing.T) {
	prev := []friend{{5, "e"}, {1, "a"}, {3, "c"}}
	curr := []friend{{9, "z"}, {3, "c"}, {7, "x"}}

	res := Diff(prev, curr, friendKey)
	if !reflect.DeepEqual(res.Added, []friend{{9, "z"}, {7, "x"}}) {
		t.Fatalf("Added = %#v, want current order", res.Added)
	}
	if !reflect.DeepEqual(res.Removed, []friend{{5, "e"}, {1, "a"}}) {
		t.Fatalf("Removed = %#v, want previous order", res.Removed)
	}
}

func TestDiff_EmptyIffSameKeys(t *testing.T) {
	cases := []struct {
		name      string
		prev      []friend
		curr      []friend
		wantEmpty bool
	}{
		{"both nil", nil, nil, true},
		{"same keys reordered", []friend{{1, "a"}, {2, "b"}}, []friend{{2, "b"}, {1, "a"}}, true},
		{"renamed keeps key", []friend{{1, "a"}}, []friend{{1, "alice"}}, true},
		{"all removed", []friend{{1, "a"}}, nil, false},
		{"from empty", nil, []friend{{1, "a"}}, false},
		{"swap", []friend{{1, "a"}}, []friend{{2, "b"}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Diff(tc.prev, tc.curr, friendKey)
			if res.Empty() != tc.wantEmpty {
				t.Fatalf("Empty() = %v, want %v (res=%#v)", res.Empty(), tc.wantEmpty, res)
			}
		})
	}
}

func TestDiff_OneEntryPerExclusiveKey(t *testing.T) {
	prev := []friend{{1, "a"}, {2, "b"}, {3, "c"}, {4, "d"}}
	curr := []friend{{3, "c"}, {4, "d"}, {5, "e"}, {6, "f"}, {7, "g"}}

	res := Diff(prev, curr, friendKey)
	if len(res.Added) != 3 {
		t.Fatalf("len(Added) = %d, want 3", len(res.Added))
	}
	if len(res.Removed) != 2 {
		t.Fatalf("len(Removed) = %d, want 2", len(res.Removed))
	}
	for _, f := range res.Added {
		if f.id < 5 {
			t.Fatalf("unexpected added %v", f)
		}
	}
	for _, f := range res.Removed {
		if f.id > 2 {
			t.Fatalf("unexpected removed %v", f)
		}
	}
}
