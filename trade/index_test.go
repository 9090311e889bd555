package trade

import (
	"reflect"
	"testing"
)

func TestIndexAddRemove(t *testing.T) {
	ix := NewIndex()
	ix.Add("BTC", 3)
	ix.Add("BTC", 1)
	ix.Add("ETH", 1)

	if got := ix.Get("BTC"); !reflect.DeepEqual(got, []int{1, 3}) {
		t.Fatalf("BTC ids = %v", got)
	}
	if ix.Strategies() != 2 || ix.Positions() != 3 || ix.Symbols() != 2 {
		t.Fatalf("strategies=%d positions=%d symbols=%d", ix.Strategies(), ix.Positions(), ix.Symbols())
	}

	ix.Remove("ETH", 1)
	if ix.Symbols() != 1 {
		t.Fatal("empty symbol entry should be removed")
	}
	if ix.Get("ETH") != nil {
		t.Fatal("ETH should have no ids")
	}
	ix.Remove("DOGE", 9)
	if !ix.Contains("BTC", 3) || ix.Contains("BTC", 2) {
		t.Fatal("contains mismatch")
	}
	if snap := ix.Snapshot(); len(snap) != 1 || len(snap["BTC"]) != 2 {
		t.Fatalf("snapshot = %v", snap)
	}
}
