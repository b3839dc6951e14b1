package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/efreitasn/clob/internal/domain"
)

func newTestFill(id string, executedAt time.Time) domain.Fill {
	return domain.Fill{
		FillID:       id,
		MarketID:     1,
		TakerOrderID: 2,
		MakerOrderID: 1,
		Price:        100,
		Quantity:     10,
		QuoteAmount:  1000,
		ExecutedAt:   executedAt,
	}
}

func TestFillStore_Append_and_ListByMarket(t *testing.T) {
	s := NewFillStore()
	now := time.Now()

	s.Append(1, newTestFill("fill-1", now), newTestFill("fill-2", now.Add(time.Second)))
	s.Append(1, newTestFill("fill-3", now.Add(2*time.Second)))

	fills := s.ListByMarket(1, 0)
	if len(fills) != 3 {
		t.Fatalf("expected 3 fills, got %d", len(fills))
	}
	for i, want := range []string{"fill-3", "fill-2", "fill-1"} {
		if fills[i].FillID != want {
			t.Fatalf("expected %s at index %d, got %s", want, i, fills[i].FillID)
		}
	}
}

func TestFillStore_ListByMarket_Limit(t *testing.T) {
	s := NewFillStore()
	now := time.Now()
	for i := 0; i < 5; i++ {
		s.Append(1, newTestFill(fmt.Sprintf("fill-%d", i), now))
	}

	fills := s.ListByMarket(1, 2)
	if len(fills) != 2 {
		t.Fatalf("expected 2 fills, got %d", len(fills))
	}
	if fills[0].FillID != "fill-4" || fills[1].FillID != "fill-3" {
		t.Fatalf("expected the two most recent fills, got %s, %s", fills[0].FillID, fills[1].FillID)
	}
}

func TestFillStore_ListByMarket_Empty(t *testing.T) {
	s := NewFillStore()

	fills := s.ListByMarket(9, 10)
	if fills == nil {
		t.Fatal("expected non-nil empty slice, got nil")
	}
	if len(fills) != 0 {
		t.Fatalf("expected 0 fills, got %d", len(fills))
	}
}

func TestFillStore_ListByMarket_ReturnsCopy(t *testing.T) {
	s := NewFillStore()
	s.Append(1, newTestFill("fill-1", time.Now()))

	fills := s.ListByMarket(1, 0)
	fills[0].FillID = "mutated"

	// Internal state should be unaffected.
	if s.ListByMarket(1, 0)[0].FillID != "fill-1" {
		t.Fatal("ListByMarket should return a copy; internal state was mutated")
	}
}

func TestFillStore_Last(t *testing.T) {
	s := NewFillStore()
	if _, ok := s.Last(1); ok {
		t.Fatal("expected no last fill for an empty market")
	}

	now := time.Now()
	s.Append(1, newTestFill("fill-1", now), newTestFill("fill-2", now))
	s.Append(2, newTestFill("fill-3", now))

	last, ok := s.Last(1)
	if !ok || last.FillID != "fill-2" {
		t.Fatalf("expected fill-2, got %v %v", last.FillID, ok)
	}
}

func TestFillStore_ConcurrentAppend(t *testing.T) {
	s := NewFillStore()
	var wg sync.WaitGroup
	now := time.Now()

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Append(domain.MarketID(i%2+1), newTestFill(fmt.Sprintf("fill-%d", i), now))
		}(i)
	}
	wg.Wait()

	if n := len(s.ListByMarket(1, 0)); n != 50 {
		t.Fatalf("expected 50 fills in market 1, got %d", n)
	}
	if n := len(s.ListByMarket(2, 0)); n != 50 {
		t.Fatalf("expected 50 fills in market 2, got %d", n)
	}
}
