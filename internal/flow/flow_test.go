package flow

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ulmis/ulmanbot-go/internal/ledger"
	"github.com/ulmis/ulmanbot-go/internal/msgcat"
	"github.com/ulmis/ulmanbot-go/internal/session"
	"github.com/ulmis/ulmanbot-go/internal/trade"
	"github.com/ulmis/ulmanbot-go/pkg/renderdto"
)

const (
	testHouseID = "house"
	testTaxRate = 0.10
)

var testOrigin = session.Origin{ID: "o1", GuildID: "g1", ChannelID: "c1", ActorID: "u1"}

func sellerKey() ledger.AccountKey { return ledger.AccountKey{GuildID: "g1", UserID: "u1"} }
func houseKey() ledger.AccountKey  { return ledger.AccountKey{GuildID: "g1", UserID: testHouseID} }

type sentCall struct {
	kind string // reply | update | ephemeral
	r    renderdto.Render
	text string
}

type recorder struct {
	mu         sync.Mutex
	calls      []sentCall
	updateHook func()
}

// setUpdateHook installs a function invoked at the start of every Update,
// letting a test hold a handler invocation in flight.
func (s *recorder) setUpdateHook(h func()) {
	s.mu.Lock()
	s.updateHook = h
	s.mu.Unlock()
}

func (s *recorder) Reply(ctx context.Context, o session.Origin, r renderdto.Render) error {
	s.record(sentCall{kind: "reply", r: r})
	return nil
}

func (s *recorder) Update(ctx context.Context, o session.Origin, r renderdto.Render) error {
	s.mu.Lock()
	h := s.updateHook
	s.mu.Unlock()
	if h != nil {
		h()
	}
	s.record(sentCall{kind: "update", r: r})
	return nil
}

func (s *recorder) Ephemeral(ctx context.Context, o session.Origin, text string) error {
	s.record(sentCall{kind: "ephemeral", text: text})
	return nil
}

func (s *recorder) record(c sentCall) {
	s.mu.Lock()
	s.calls = append(s.calls, c)
	s.mu.Unlock()
}

func (s *recorder) snapshot() []sentCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentCall, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *recorder) last(t *testing.T) sentCall {
	t.Helper()
	calls := s.snapshot()
	if len(calls) == 0 {
		t.Fatalf("nothing sent")
	}
	return calls[len(calls)-1]
}

// waitForCalls polls until the recorder has seen at least n sends.
func (s *recorder) waitForCalls(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if len(s.snapshot()) >= n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d sends, have %v", n, s.snapshot())
		}
		time.Sleep(time.Millisecond)
	}
}

func newTestFlows(t *testing.T, timeout time.Duration) (*Flows, *ledger.Ledger, *recorder) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	led := ledger.NewWithClient(rdb, 50)
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	rec := &recorder{}
	engine := session.NewEngine(rec, cat.MustRender("common.error", nil))
	discounts := trade.NewDiscountStore(rdb)
	f := New(engine, led, cat, discounts, rec, testHouseID, testTaxRate, timeout)
	return f, led, rec
}

func balance(t *testing.T, led *ledger.Ledger, k ledger.AccountKey) int64 {
	t.Helper()
	acc, err := led.FindOrCreate(context.Background(), k)
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	return acc.Balance
}

func buttonEvent(id string) session.UIEvent {
	return session.UIEvent{OriginID: testOrigin.ID, Kind: session.KindButton, CustomID: id, ActorID: testOrigin.ActorID}
}

func selectEvent(id string, values ...string) session.UIEvent {
	return session.UIEvent{OriginID: testOrigin.ID, Kind: session.KindSelect, CustomID: id, Values: values, ActorID: testOrigin.ActorID}
}
