package poolindex

import (
	"reflect"
	"testing"
)

func TestAddRemove(t *testing.T) {
	x := New()
	x.Add("0xPoolA", "uniswap-v3:1")

	if !x.IsTracked("uniswap-v3:1") {
		t.Fatalf("id should be tracked after add")
	}
	if got := x.PositionsFor("0xpoola"); !reflect.DeepEqual(got, []string{"uniswap-v3:1"}) {
		t.Fatalf("positions = %v", got)
	}

	x.Remove("0xPOOLA", "uniswap-v3:1")
	if x.IsTracked("uniswap-v3:1") {
		t.Fatalf("id should not be tracked after remove")
	}
	if got := x.PositionsFor("0xpoola"); got != nil {
		t.Fatalf("positions after remove = %v, want nil", got)
	}
}

func TestAddIdempotent(t *testing.T) {
	x := New()
	x.Add("0xpool", "id-1")
	x.Add("0xpool", "id-1")

	if got := x.PositionsFor("0xpool"); len(got) != 1 {
		t.Fatalf("duplicate add produced %v", got)
	}
}

func TestAddMovesBetweenPools(t *testing.T) {
	x := New()
	x.Add("0xpool1", "id-1")
	x.Add("0xpool2", "id-1")

	if got := x.PositionsFor("0xpool1"); got != nil {
		t.Fatalf("id still under old pool: %v", got)
	}
	pool, ok := x.PoolFor("id-1")
	if !ok || pool != "0xpool2" {
		t.Fatalf("reverse mapping = %q, %v", pool, ok)
	}
}

func TestRemoveWrongPoolIsNoop(t *testing.T) {
	x := New()
	x.Add("0xpool1", "id-1")
	x.Remove("0xpool2", "id-1")

	if !x.IsTracked("id-1") {
		t.Fatalf("remove under wrong pool must not drop the id")
	}
}

func TestBothDirectionsAgree(t *testing.T) {
	x := New()
	x.Add("0xpool1", "a")
	x.Add("0xpool1", "b")
	x.Add("0xpool2", "c")
	x.Add("0xpool2", "a")
	x.Remove("0xpool1", "b")

	for _, pool := range x.Pools() {
		for _, id := range x.PositionsFor(pool) {
			got, ok := x.PoolFor(id)
			if !ok || got != pool {
				t.Fatalf("forward/reverse disagree for %s: %q, %v", id, got, ok)
			}
		}
	}

	if x.IsTracked("b") {
		t.Fatalf("removed id still tracked")
	}
	if got := x.PositionsFor("0xpool2"); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Fatalf("pool2 positions = %v", got)
	}
}
