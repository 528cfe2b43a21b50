package ecs

import "testing"

func TestEntityPoolGenerations(t *testing.T) {
	p := NewEntityPool()
	a := p.Create()
	if a.IsZero() {
		t.Fatalf("first id must not be the zero id")
	}
	if !p.Alive(a) {
		t.Fatalf("fresh id not alive")
	}
	p.Destroy(a)
	if p.Alive(a) {
		t.Fatalf("destroyed id still alive")
	}

	b := p.Create()
	if b.Index() != a.Index() {
		t.Fatalf("expected slot reuse: a=%s b=%s", a, b)
	}
	if b.Generation() != a.Generation()+1 {
		t.Fatalf("generation = %d, want %d", b.Generation(), a.Generation()+1)
	}
	if p.Alive(a) {
		t.Fatalf("stale id resolved to recycled slot")
	}
	p.Destroy(a) // stale, ignored
	if !p.Alive(b) || p.Live() != 1 {
		t.Fatalf("stale destroy affected live id: alive=%v live=%d", p.Alive(b), p.Live())
	}
	if p.Alive(None) {
		t.Fatalf("None must never be alive")
	}
}

func TestOrderedStoreKeepsOrder(t *testing.T) {
	s := NewOrderedStore[int]()
	ids := []EntityID{NewEntityID(1, 0), NewEntityID(2, 0), NewEntityID(3, 0), NewEntityID(4, 0)}
	for i, id := range ids {
		v := i * 10
		s.Set(id, &v)
	}
	s.Remove(ids[1])

	var got []int
	s.Each(func(_ EntityID, v *int) { got = append(got, *v) })
	want := []int{0, 20, 30}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if v, ok := s.Get(ids[3]); !ok || *v != 30 {
		t.Fatalf("index not rebuilt after remove")
	}
	if s.Has(ids[1]) || s.Len() != 3 {
		t.Fatalf("removed id still present")
	}
}

func TestWorldFlushDestroyQueue(t *testing.T) {
	w := NewWorld()
	store := NewOrderedStore[string]()
	w.Register(store)

	a, b := w.CreateEntity(), w.CreateEntity()
	va, vb := "a", "b"
	store.Set(a, &va)
	store.Set(b, &vb)

	w.MarkForDestruction(b)
	w.MarkForDestruction(b)
	w.MarkForDestruction(a)
	if !w.isQueued(a) {
		t.Fatalf("a should be queued")
	}

	var seen []string
	w.FlushDestroyQueue(func(id EntityID) {
		v, ok := store.Get(id)
		if !ok {
			t.Fatalf("component gone before callback")
		}
		seen = append(seen, *v)
	})
	if len(seen) != 2 || seen[0] != "b" || seen[1] != "a" {
		t.Fatalf("flush order = %v, want [b a]", seen)
	}
	if store.Len() != 0 || w.Alive(a) || w.Alive(b) || w.isQueued(a) {
		t.Fatalf("entities not fully destroyed")
	}
}
