package live

import "testing"

func TestObservableSetNotifiesSnapshot(t *testing.T) {
	o := NewObservable(1)
	var got []int
	o.Subscribe(func(v int) { got = append(got, v) })
	// A listener added while Set runs sees only its replay, not the ongoing Set.
	var late []int
	o.Subscribe(func(v int) {
		if v == 2 && o.Len() == 2 {
			o.Subscribe(func(v int) { late = append(late, v) })
		}
	})
	o.Set(2)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("expected replay then update [1 2], got %v", got)
	}
	if len(late) != 1 || late[0] != 2 {
		t.Fatalf("expected late listener to get one replay, got %v", late)
	}
	if o.Len() != 3 || o.Get() != 2 {
		t.Fatalf("expected 3 listeners holding 2, got %d holding %d", o.Len(), o.Get())
	}
}
