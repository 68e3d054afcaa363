package trade

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ulmis/ulmanbot-go/internal/items"
)

func newTestDiscountStore(t *testing.T) *DiscountStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewDiscountStore(rdb)
}

func TestTodayIsStableWithinDay(t *testing.T) {
	s := newTestDiscountStore(t)
	ctx := context.Background()

	first, err := s.Today(ctx)
	if err != nil {
		t.Fatalf("Today: %v", err)
	}
	if len(first) != discountedItems {
		t.Fatalf("expected %d discounted items, got %d", discountedItems, len(first))
	}
	for key, frac := range first {
		if _, ok := items.Get(key); !ok {
			t.Fatalf("discounted unknown item %q", key)
		}
		valid := false
		for _, step := range discountSteps {
			if frac == step {
				valid = true
			}
		}
		if !valid {
			t.Fatalf("discount %v for %q not a known step", frac, key)
		}
	}

	second, err := s.Today(ctx)
	if err != nil {
		t.Fatalf("Today again: %v", err)
	}
	if len(second) != len(first) {
		t.Fatalf("roll must be stable: %v vs %v", first, second)
	}
	for k, v := range first {
		if second[k] != v {
			t.Fatalf("roll must be stable for %q: %v vs %v", k, v, second[k])
		}
	}
}
