package flow

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ulmis/ulmanbot-go/internal/items"
	"github.com/ulmis/ulmanbot-go/internal/ledger"
	"github.com/ulmis/ulmanbot-go/internal/obslog"
	"github.com/ulmis/ulmanbot-go/internal/session"
	"github.com/ulmis/ulmanbot-go/internal/trade"
	"github.com/ulmis/ulmanbot-go/pkg/renderdto"
)

const (
	sellSelectID  = "pardot_select"
	sellConfirmID = "pardot_confirm"
)

// RunSale sells items of one kind from the actor's inventory. Items carried
// as unique entries go through the selection session; plain stackables sell
// immediately.
func (f *Flows) RunSale(ctx context.Context, origin session.Origin, itemKey string, count int) error {
	it, ok := items.Get(itemKey)
	if !ok {
		return f.sender.Ephemeral(ctx, origin, f.cat.MustRender("sell.unknown", nil))
	}
	if it.Attributed {
		return f.runUniqueSale(ctx, origin, it)
	}
	return f.runStackableSale(ctx, origin, it, count)
}

func (f *Flows) runStackableSale(ctx context.Context, origin session.Origin, it items.Item, count int) error {
	seller := actorKey(origin)
	acc, err := f.ledger.FindOrCreate(ctx, seller)
	if err != nil {
		return err
	}
	have := 0
	for _, s := range acc.Stackable {
		if s.Kind == it.Key {
			have = s.Count
		}
	}
	if have == 0 {
		return f.sender.Ephemeral(ctx, origin, f.cat.MustRender("sell.nothing", nil))
	}
	if count <= 0 || count > have {
		count = have
	}
	if _, err := f.ledger.RemoveStackables(ctx, seller, map[string]int{it.Key: count}); err != nil {
		if errors.Is(err, ledger.ErrStaleSelection) {
			return f.sender.Ephemeral(ctx, origin, f.cat.MustRender("sell.stale", nil))
		}
		return err
	}
	q := trade.QuoteValue(it.Value*int64(count), f.taxRate)
	if err := f.settleSale(ctx, origin, it, nil, q); err != nil {
		return err
	}
	lines := []string{itoa(count) + "x " + it.Emoji + " " + it.Name}
	r := f.saleResultRender(ctx, origin, lines, q)
	return f.sender.Reply(ctx, origin, r)
}

func (f *Flows) runUniqueSale(ctx context.Context, origin session.Origin, it items.Item) error {
	seller := actorKey(origin)
	acc, err := f.ledger.FindOrCreate(ctx, seller)
	if err != nil {
		return err
	}
	owned := acc.UniqueOfKind(it.Key)
	if len(owned) == 0 {
		return f.sender.Ephemeral(ctx, origin, f.cat.MustRender("sell.nothing", nil))
	}

	// A single eligible item needs no selection step.
	if len(owned) == 1 {
		q := trade.QuoteSale(it, owned, f.taxRate)
		if _, err := f.ledger.RemoveUniqueItemsByID(ctx, seller, []string{owned[0].ID}); err != nil {
			if errors.Is(err, ledger.ErrStaleSelection) {
				return f.sender.Ephemeral(ctx, origin, f.cat.MustRender("sell.stale", nil))
			}
			return err
		}
		if err := f.settleSale(ctx, origin, it, []string{owned[0].ID}, q); err != nil {
			return err
		}
		lines := []string{"1x " + it.Emoji + " " + it.DisplayName(owned[0].Attributes)}
		r := f.saleResultRender(ctx, origin, lines, q)
		return f.sender.Reply(ctx, origin, r)
	}

	sort.Slice(owned, func(i, j int) bool {
		vi, vj := it.ValueOf(owned[i].Attributes), it.ValueOf(owned[j].Attributes)
		if vi != vj {
			return vi > vj
		}
		return owned[i].ID < owned[j].ID
	})
	truncated := false
	if len(owned) > items.SelectPageSize {
		owned = owned[:items.SelectPageSize]
		truncated = true
	}

	s := &saleSession{
		f:         f,
		origin:    origin,
		seller:    seller,
		item:      it,
		owned:     owned,
		truncated: truncated,
	}
	initial := s.render()
	return f.engine.Open(ctx, origin, initial, s.handle, f.timeout)
}

// saleSession holds the multi-item sale state. The session owns it
// exclusively; the engine serializes every access.
type saleSession struct {
	f         *Flows
	origin    session.Origin
	seller    ledger.AccountKey
	item      items.Item
	owned     []ledger.UniqueItem
	truncated bool
	selected  []string
}

func (s *saleSession) handle(ctx context.Context, ev session.UIEvent) (session.Effect, error) {
	switch ev.CustomID {
	case sellSelectID:
		s.selected = ev.Values
		r := s.render()
		return session.Effect{Render: &r}, nil
	case sellConfirmID:
		return s.confirm(ctx)
	}
	return session.Effect{}, nil
}

func (s *saleSession) confirm(ctx context.Context) (session.Effect, error) {
	if len(s.selected) == 0 {
		return session.Effect{}, nil
	}
	byID := make(map[string]ledger.UniqueItem, len(s.owned))
	for _, u := range s.owned {
		byID[u.ID] = u
	}
	sold := make([]ledger.UniqueItem, 0, len(s.selected))
	for _, id := range s.selected {
		u, ok := byID[id]
		if !ok {
			return session.Effect{Notice: s.f.cat.MustRender("sell.stale", nil), End: true}, nil
		}
		sold = append(sold, u)
	}

	// The removal is the consistency gate: nothing is minted unless every
	// selected item is still present.
	if _, err := s.f.ledger.RemoveUniqueItemsByID(ctx, s.seller, s.selected); err != nil {
		if errors.Is(err, ledger.ErrStaleSelection) {
			return session.Effect{Notice: s.f.cat.MustRender("sell.stale", nil), End: true}, nil
		}
		return session.Effect{}, err
	}
	q := trade.QuoteSale(s.item, sold, s.f.taxRate)
	if err := s.f.settleSale(ctx, s.origin, s.item, s.selected, q); err != nil {
		return session.Effect{}, err
	}

	lines := make([]string, 0, len(sold))
	for _, u := range sold {
		lines = append(lines, "1x "+s.item.Emoji+" "+s.item.DisplayName(u.Attributes))
	}
	r := s.f.saleResultRender(ctx, s.origin, lines, q)
	return session.Effect{Render: &r, End: true}, nil
}

func (s *saleSession) render() renderdto.Render {
	chosen := make(map[string]bool, len(s.selected))
	for _, id := range s.selected {
		chosen[id] = true
	}
	opts := make([]renderdto.SelectOption, 0, len(s.owned))
	for _, u := range s.owned {
		opts = append(opts, renderdto.SelectOption{
			Label:       s.item.DisplayName(u.Attributes),
			Description: s.f.lati(s.item.ValueOf(u.Attributes)),
			Value:       u.ID,
			Emoji:       s.item.Emoji,
			Default:     chosen[u.ID],
		})
	}
	desc := s.f.cat.MustRender("sell.inInventory", map[string]any{
		"Count": len(s.owned),
		"Item":  s.item.Name,
	})
	footer := ""
	if s.truncated {
		footer = s.f.cat.MustRender("sell.truncated", map[string]any{"Limit": items.SelectPageSize})
	}
	return renderdto.Render{
		Visual: renderdto.Visual{
			Title:       s.item.Emoji + " " + s.item.Name,
			Description: desc,
			Color:       colorNeutral,
			Footer:      footer,
		},
		Rows: []renderdto.Row{
			{Select: &renderdto.Select{
				CustomID:    sellSelectID,
				Placeholder: s.f.cat.MustRender("sell.selectPlaceholder", nil),
				MinValues:   1,
				MaxValues:   len(opts),
				Options:     opts,
			}},
			{Buttons: []renderdto.Button{{
				CustomID: sellConfirmID,
				Label:    s.f.cat.MustRender("sell.confirm", nil),
				Style:    renderdto.StyleSuccess,
				Disabled: len(s.selected) == 0,
			}}},
		},
	}
}

// settleSale credits the seller and mints the tax to the house account
// concurrently, then records stats and the best-effort audit row. Callers
// run it only after the removal gate succeeded.
func (f *Flows) settleSale(ctx context.Context, origin session.Origin, it items.Item, soldIDs []string, q trade.Quote) error {
	seller := actorKey(origin)
	house := f.house(origin.GuildID)

	var wg sync.WaitGroup
	var sellerErr, houseErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		sellerErr = f.ledger.Credit(ctx, seller, q.SoldValue)
	}()
	go func() {
		defer wg.Done()
		houseErr = f.ledger.Credit(ctx, house, q.TaxPaid)
	}()
	wg.Wait()
	if sellerErr != nil {
		return sellerErr
	}
	if houseErr != nil {
		// The seller leg has settled and the items are gone; the minted
		// tax is best-effort from here, like stats.
		obslog.L().Error("tax_credit_error",
			zap.String("guild_id", origin.GuildID),
			zap.String("house_id", f.houseUserID),
			zap.Int64("tax_paid", q.TaxPaid),
			zap.Error(houseErr),
		)
	}

	f.ledger.RecordStat(ctx, seller, ledger.StatSoldShop, q.SoldValue)
	f.ledger.RecordStat(ctx, seller, ledger.StatTaxPaid, q.TaxPaid)
	f.ledger.PersistSale(ctx, &ledger.SaleRecord{
		ID:        uuid.NewString(),
		GuildID:   origin.GuildID,
		SellerID:  origin.ActorID,
		HouseID:   f.houseUserID,
		ItemKind:  it.Key,
		ItemIDs:   soldIDs,
		SoldValue: q.SoldValue,
		TaxPaid:   q.TaxPaid,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (f *Flows) saleResultRender(ctx context.Context, origin session.Origin, lines []string, q trade.Quote) renderdto.Render {
	balance := ""
	if acc, err := f.ledger.FindOrCreate(ctx, actorKey(origin)); err == nil {
		balance = f.cat.MustRender("sell.nowHave", nil) + ": " + f.lati(acc.Balance)
	}
	return renderdto.Render{
		Visual: renderdto.Visual{
			Title:       f.cat.MustRender("sell.soldTitle", nil),
			Description: strings.Join(lines, "\n"),
			Color:       colorSuccess,
			Fields: []renderdto.Field{{
				Name:   f.cat.MustRender("sell.gained", nil),
				Value:  f.lati(q.SoldValue),
				Inline: true,
			}},
			Footer: balance,
		},
	}
}
