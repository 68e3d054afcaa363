package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewWithClient(rdb, 10)
}

var testKey = AccountKey{GuildID: "g1", UserID: "u1"}

func TestFindOrCreateDefaults(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	acc, err := l.FindOrCreate(ctx, testKey)
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	if acc.Balance != 0 {
		t.Fatalf("expected zero balance, got %d", acc.Balance)
	}
	if acc.Capacity != 10 {
		t.Fatalf("expected default capacity 10, got %d", acc.Capacity)
	}
	if acc.TotalItemCount() != 0 {
		t.Fatalf("expected empty inventory, got %d items", acc.TotalItemCount())
	}
}

func TestCreditDebit(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	if err := l.Credit(ctx, testKey, 100); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if err := l.Debit(ctx, testKey, 40); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	acc, err := l.FindOrCreate(ctx, testKey)
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	if acc.Balance != 60 {
		t.Fatalf("expected balance 60, got %d", acc.Balance)
	}

	if err := l.Debit(ctx, testKey, 61); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	acc, _ = l.FindOrCreate(ctx, testKey)
	if acc.Balance != 60 {
		t.Fatalf("failed debit must not change balance, got %d", acc.Balance)
	}
}

func TestCreditRejectsNegative(t *testing.T) {
	l := newTestLedger(t)
	if err := l.Credit(context.Background(), testKey, -1); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestConcurrentCreditsSum(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Credit(ctx, testKey, 5); err != nil {
				t.Errorf("Credit: %v", err)
			}
		}()
	}
	wg.Wait()

	acc, err := l.FindOrCreate(ctx, testKey)
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	if acc.Balance != 100 {
		t.Fatalf("expected 100 after 20 concurrent credits of 5, got %d", acc.Balance)
	}
}

func TestAddUniqueItemCapacity(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	var last *UniqueItem
	for i := 0; i < 10; i++ {
		u, err := l.AddUniqueItem(ctx, testKey, "kakis", nil)
		if err != nil {
			t.Fatalf("AddUniqueItem #%d: %v", i, err)
		}
		last = u
	}
	if last.ID == "" {
		t.Fatalf("expected minted id")
	}
	if _, err := l.AddUniqueItem(ctx, testKey, "kakis", nil); !errors.Is(err, ErrInsufficientCapacity) {
		t.Fatalf("expected ErrInsufficientCapacity, got %v", err)
	}
	if err := l.AddStackable(ctx, testKey, "zivs", 1); !errors.Is(err, ErrInsufficientCapacity) {
		t.Fatalf("expected ErrInsufficientCapacity for stackable, got %v", err)
	}
}

func TestRemoveUniqueItemsAllOrNothing(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	a, _ := l.AddUniqueItem(ctx, testKey, "kakis", nil)
	b, _ := l.AddUniqueItem(ctx, testKey, "kakis", nil)

	_, err := l.RemoveUniqueItemsByID(ctx, testKey, []string{a.ID, "no-such-id"})
	if !errors.Is(err, ErrStaleSelection) {
		t.Fatalf("expected ErrStaleSelection, got %v", err)
	}
	acc, _ := l.FindOrCreate(ctx, testKey)
	if len(acc.Unique) != 2 {
		t.Fatalf("stale batch must remove nothing, have %d items", len(acc.Unique))
	}

	acc, err = l.RemoveUniqueItemsByID(ctx, testKey, []string{a.ID, b.ID})
	if err != nil {
		t.Fatalf("RemoveUniqueItemsByID: %v", err)
	}
	if len(acc.Unique) != 0 {
		t.Fatalf("expected empty inventory, have %d", len(acc.Unique))
	}
}

func TestRemoveUniqueItemsTwiceIsStale(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	u, _ := l.AddUniqueItem(ctx, testKey, "kakis", nil)
	if _, err := l.RemoveUniqueItemsByID(ctx, testKey, []string{u.ID}); err != nil {
		t.Fatalf("first removal: %v", err)
	}
	if _, err := l.RemoveUniqueItemsByID(ctx, testKey, []string{u.ID}); !errors.Is(err, ErrStaleSelection) {
		t.Fatalf("expected ErrStaleSelection on replay, got %v", err)
	}
}

func TestRemoveBatchAllOrNothing(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	u, _ := l.AddUniqueItem(ctx, testKey, "kakis", nil)
	if err := l.AddStackable(ctx, testKey, "zivs", 3); err != nil {
		t.Fatalf("AddStackable: %v", err)
	}

	// A shortfall on the stackable side must leave the unique item too.
	_, err := l.RemoveBatch(ctx, testKey, []string{u.ID}, map[string]int{"zivs": 4})
	if !errors.Is(err, ErrStaleSelection) {
		t.Fatalf("expected ErrStaleSelection, got %v", err)
	}
	acc, _ := l.FindOrCreate(ctx, testKey)
	if len(acc.Unique) != 1 || len(acc.Stackable) != 1 || acc.Stackable[0].Count != 3 {
		t.Fatalf("stale batch must remove nothing: %+v", acc)
	}

	// An absent id must leave the stackables too.
	_, err = l.RemoveBatch(ctx, testKey, []string{"no-such-id"}, map[string]int{"zivs": 3})
	if !errors.Is(err, ErrStaleSelection) {
		t.Fatalf("expected ErrStaleSelection, got %v", err)
	}
	acc, _ = l.FindOrCreate(ctx, testKey)
	if len(acc.Unique) != 1 || len(acc.Stackable) != 1 {
		t.Fatalf("stale batch must remove nothing: %+v", acc)
	}

	acc, err = l.RemoveBatch(ctx, testKey, []string{u.ID}, map[string]int{"zivs": 3})
	if err != nil {
		t.Fatalf("RemoveBatch: %v", err)
	}
	if acc.TotalItemCount() != 0 {
		t.Fatalf("expected empty inventory, got %+v", acc)
	}
}

func TestAddUniqueItemsAllOrNothing(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	// Fill to one free slot against the default capacity of 10.
	if err := l.AddStackable(ctx, testKey, "zivs", 9); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := l.AddUniqueItems(ctx, testKey, "kakis", nil, 2); !errors.Is(err, ErrInsufficientCapacity) {
		t.Fatalf("expected ErrInsufficientCapacity, got %v", err)
	}
	acc, _ := l.FindOrCreate(ctx, testKey)
	if len(acc.Unique) != 0 {
		t.Fatalf("failed batch must grant nothing, got %v", acc.Unique)
	}

	minted, err := l.AddUniqueItems(ctx, testKey, "kakis", nil, 1)
	if err != nil {
		t.Fatalf("AddUniqueItems: %v", err)
	}
	if len(minted) != 1 || minted[0].ID == "" {
		t.Fatalf("expected one minted item, got %v", minted)
	}
}

func TestRemoveStackablesShortfall(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	if err := l.AddStackable(ctx, testKey, "zivs", 3); err != nil {
		t.Fatalf("AddStackable: %v", err)
	}
	if _, err := l.RemoveStackables(ctx, testKey, map[string]int{"zivs": 4}); !errors.Is(err, ErrStaleSelection) {
		t.Fatalf("expected ErrStaleSelection, got %v", err)
	}
	acc, err := l.RemoveStackables(ctx, testKey, map[string]int{"zivs": 3})
	if err != nil {
		t.Fatalf("RemoveStackables: %v", err)
	}
	if len(acc.Stackable) != 0 {
		t.Fatalf("expected empty stackables, got %v", acc.Stackable)
	}
}

func TestStatsRoundTrip(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	l.RecordStat(ctx, testKey, StatSoldShop, 120)
	l.RecordStat(ctx, testKey, StatSoldShop, 30)
	l.RecordStat(ctx, testKey, StatTaxPaid, 15)

	stats, err := l.Stats(ctx, testKey)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[StatSoldShop] != 150 {
		t.Fatalf("soldShop: expected 150, got %d", stats[StatSoldShop])
	}
	if stats[StatTaxPaid] != 15 {
		t.Fatalf("taxPaid: expected 15, got %d", stats[StatTaxPaid])
	}
}

func TestAccountsAreGuildScoped(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	other := AccountKey{GuildID: "g2", UserID: "u1"}
	if err := l.Credit(ctx, testKey, 50); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	acc, err := l.FindOrCreate(ctx, other)
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	if acc.Balance != 0 {
		t.Fatalf("guilds must not share balances, got %d", acc.Balance)
	}
}
