package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/efreitasn/clob/internal/domain"
)

func newTestOrder(market domain.MarketID, id domain.OrderID, owner string, createdAt time.Time) *domain.Order {
	return &domain.Order{
		OrderID:     id,
		MarketID:    market,
		Owner:       owner,
		Side:        domain.SideBuy,
		Price:       100,
		Quantity:    10,
		Status:      domain.OrderStatusActive,
		TimeInForce: domain.TimeInForceGTC,
		CreatedAt:   createdAt,
	}
}

func TestOrderStore_Create_and_Get(t *testing.T) {
	s := NewOrderStore()
	o := newTestOrder(1, 1, "alice", time.Now())

	if err := s.Create(o); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	got, err := s.Get(1, 1)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != o {
		t.Fatal("expected Get to return the stored order")
	}
}

func TestOrderStore_IDsScopedPerMarket(t *testing.T) {
	s := NewOrderStore()
	now := time.Now()

	if err := s.Create(newTestOrder(1, 1, "alice", now)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := s.Create(newTestOrder(2, 1, "bob", now)); err != nil {
		t.Fatalf("same id in another market should be accepted, got %v", err)
	}
	if err := s.Create(newTestOrder(1, 1, "carol", now)); err != domain.ErrDuplicateOrder {
		t.Fatalf("expected ErrDuplicateOrder, got %v", err)
	}

	got, _ := s.Get(2, 1)
	if got.Owner != "bob" {
		t.Fatalf("expected bob's order in market 2, got %s", got.Owner)
	}
}

func TestOrderStore_Get_NotFound(t *testing.T) {
	s := NewOrderStore()

	_, err := s.Get(1, 99)
	if err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOrderStore_ListByOwner_ReverseChronological(t *testing.T) {
	s := NewOrderStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 1; i <= 5; i++ {
		s.Create(newTestOrder(1, domain.OrderID(i), "alice", base.Add(time.Duration(i)*time.Minute)))
	}
	s.Create(newTestOrder(1, 6, "bob", base))

	orders := s.ListByOwner("alice")
	if len(orders) != 5 {
		t.Fatalf("expected 5 orders, got %d", len(orders))
	}

	// Should be newest first.
	for i := 0; i < len(orders)-1; i++ {
		if !orders[i].CreatedAt.After(orders[i+1].CreatedAt) {
			t.Fatalf("orders not in reverse chronological order at index %d", i)
		}
	}
}

func TestOrderStore_ListByOwner_Empty(t *testing.T) {
	s := NewOrderStore()

	if orders := s.ListByOwner("nobody"); len(orders) != 0 {
		t.Fatalf("expected 0 orders, got %d", len(orders))
	}
}

func TestPage(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	tests := []struct {
		name        string
		page, limit int
		wantLen     int
		wantFirst   int
	}{
		{"first page", 1, 3, 3, 0},
		{"last partial page", 4, 3, 1, 9},
		{"beyond range", 5, 3, 0, -1},
		{"whole list", 1, 100, 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total := Page(items, tt.page, tt.limit)
			if total != 10 {
				t.Fatalf("expected total 10, got %d", total)
			}
			if len(got) != tt.wantLen {
				t.Fatalf("expected %d items, got %d", tt.wantLen, len(got))
			}
			if tt.wantLen > 0 && got[0] != tt.wantFirst {
				t.Fatalf("expected first item %d, got %d", tt.wantFirst, got[0])
			}
		})
	}
}

func TestOrderStore_ConcurrentAccess(t *testing.T) {
	s := NewOrderStore()
	var wg sync.WaitGroup
	base := time.Now()

	// Concurrently create orders.
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o := newTestOrder(1, domain.OrderID(i), fmt.Sprintf("owner-%d", i%5), base.Add(time.Duration(i)*time.Millisecond))
			s.Create(o)
		}(i)
	}
	wg.Wait()

	// All 100 should be retrievable.
	for i := 1; i <= 100; i++ {
		if _, err := s.Get(1, domain.OrderID(i)); err != nil {
			t.Fatalf("order %d should exist, got %v", i, err)
		}
	}

	// Each of 5 owners should have 20 orders.
	for b := 0; b < 5; b++ {
		if n := len(s.ListByOwner(fmt.Sprintf("owner-%d", b))); n != 20 {
			t.Fatalf("owner-%d expected 20 orders, got %d", b, n)
		}
	}

	// Concurrent reads while creating more.
	for i := 101; i <= 200; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s.Create(newTestOrder(2, domain.OrderID(i), "owner-0", base))
		}(i)
		go func() {
			defer wg.Done()
			s.ListByOwner("owner-0")
		}()
	}
	wg.Wait()
}
