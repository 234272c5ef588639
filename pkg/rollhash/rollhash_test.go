package rollhash

import "testing"

func TestRollSumStepMatchesReinit(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog, twice over")
	window := 8

	r := NewRollSum(window)
	r.Init(data[:window])

	for i := window; i < len(data); i++ {
		got := r.Step(data[i-window], data[i])

		fresh := NewRollSum(window)
		fresh.Init(data[i-window+1 : i+1])
		want := fresh.Sum()

		if got != want {
			t.Fatalf("at i=%d: stepped sum %d != freshly initialized sum %d", i, got, want)
		}
	}
}

func TestBuzHashStepMatchesReinit(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog, twice over")
	window := 8

	b := NewBuzHash(window)
	b.Init(data[:window])

	for i := window; i < len(data); i++ {
		got := b.Step(data[i-window], data[i])

		fresh := NewBuzHash(window)
		fresh.Init(data[i-window+1 : i+1])
		want := fresh.Sum()

		if got != want {
			t.Fatalf("at i=%d: stepped sum %d != freshly initialized sum %d", i, got, want)
		}
	}
}

func TestBuzHashTableHasNoDuplicateEntries(t *testing.T) {
	seen := make(map[uint32]int, len(buzHashTable))
	for i, v := range buzHashTable {
		if prev, ok := seen[v]; ok {
			t.Fatalf("buzHashTable[%d] duplicates buzHashTable[%d] = 0x%08x", i, prev, v)
		}
		seen[v] = i
	}
}
