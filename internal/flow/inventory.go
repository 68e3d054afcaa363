package flow

import (
	"context"
	"errors"
	"sort"

	"github.com/ulmis/ulmanbot-go/internal/items"
	"github.com/ulmis/ulmanbot-go/internal/ledger"
	"github.com/ulmis/ulmanbot-go/internal/session"
	"github.com/ulmis/ulmanbot-go/internal/trade"
	"github.com/ulmis/ulmanbot-go/pkg/renderdto"
)

const (
	invPrevID         = "inv_prev"
	invPageID         = "inv_page"
	invNextID         = "inv_next"
	invSellAllID      = "inv_sell_all"
	invSellUnusableID = "inv_sell_unusable"
)

// invEntry is one display line of the inventory listing.
type invEntry struct {
	label string
	value int64
}

// RunInventory shows the target user's inventory. The actor gets bulk-sell
// buttons only on their own inventory.
func (f *Flows) RunInventory(ctx context.Context, origin session.Origin, targetID, targetName string) error {
	if targetID == "" {
		targetID = origin.ActorID
	}
	owner := ledger.AccountKey{GuildID: origin.GuildID, UserID: targetID}
	acc, err := f.ledger.FindOrCreate(ctx, owner)
	if err != nil {
		return err
	}

	s := &invSession{
		f:         f,
		origin:    origin,
		owner:     owner,
		ownerName: targetName,
		own:       targetID == origin.ActorID,
		acc:       acc,
	}
	if len(s.entries()) == 0 {
		return f.sender.Reply(ctx, origin, renderdto.Render{
			Visual: renderdto.Visual{
				Title:       s.title(),
				Description: f.cat.MustRender("inventory.empty", nil),
				Color:       colorNeutral,
			},
		})
	}

	initial := s.render()
	if len(initial.Rows) == 0 {
		// Single page of a foreign inventory, nothing interactive.
		return f.sender.Reply(ctx, origin, initial)
	}
	return f.engine.Open(ctx, origin, initial, s.handle, f.timeout)
}

type invSession struct {
	f         *Flows
	origin    session.Origin
	owner     ledger.AccountKey
	ownerName string
	own       bool
	acc       *ledger.UserAccount
	page      int
}

func (s *invSession) handle(ctx context.Context, ev session.UIEvent) (session.Effect, error) {
	switch ev.CustomID {
	case invPrevID:
		if s.page > 0 {
			s.page--
		}
		r := s.render()
		return session.Effect{Render: &r}, nil
	case invNextID:
		if s.page < s.pageCount()-1 {
			s.page++
		}
		r := s.render()
		return session.Effect{Render: &r}, nil
	case invSellAllID:
		return s.bulkSell(ctx, false)
	case invSellUnusableID:
		return s.bulkSell(ctx, true)
	}
	return session.Effect{}, nil
}

// bulkSell sells the account's items in one batch. With keepUsable set,
// usable tools and consumables stay.
func (s *invSession) bulkSell(ctx context.Context, keepUsable bool) (session.Effect, error) {
	var (
		ids   []string
		take  = make(map[string]int)
		total int64
	)
	for _, u := range s.acc.Unique {
		it, ok := items.Get(u.Kind)
		if !ok || (keepUsable && it.Usable) {
			continue
		}
		ids = append(ids, u.ID)
		total += it.ValueOf(u.Attributes)
	}
	for _, st := range s.acc.Stackable {
		it, ok := items.Get(st.Kind)
		if !ok || (keepUsable && it.Usable) {
			continue
		}
		take[st.Kind] = st.Count
		total += it.Value * int64(st.Count)
	}
	if len(ids) == 0 && len(take) == 0 {
		return session.Effect{Notice: s.f.cat.MustRender("sell.nothing", nil)}, nil
	}

	// One atomic gate over the whole batch before any credit; a stale
	// batch aborts the sale with nothing removed and nothing minted.
	if _, err := s.f.ledger.RemoveBatch(ctx, s.owner, ids, take); err != nil {
		if errors.Is(err, ledger.ErrStaleSelection) {
			return session.Effect{Notice: s.f.cat.MustRender("sell.stale", nil), End: true}, nil
		}
		return session.Effect{}, err
	}

	q := trade.QuoteValue(total, s.f.taxRate)
	if err := s.f.settleSale(ctx, s.origin, items.Item{Key: "inventars"}, ids, q); err != nil {
		return session.Effect{}, err
	}

	acc, err := s.f.ledger.FindOrCreate(ctx, s.owner)
	if err != nil {
		return session.Effect{}, err
	}
	s.acc = acc
	s.page = 0
	notice := s.f.cat.MustRender("inventory.soldNotice", map[string]any{"Value": q.SoldValue})
	if len(s.entries()) == 0 {
		return session.Effect{
			Render: &renderdto.Render{Visual: renderdto.Visual{
				Title:       s.title(),
				Description: s.f.cat.MustRender("inventory.empty", nil),
				Color:       colorSuccess,
			}},
			Notice: notice,
			End:    true,
		}, nil
	}
	r := s.render()
	return session.Effect{Render: &r, Notice: notice}, nil
}

func (s *invSession) title() string {
	if s.own {
		return s.f.cat.MustRender("inventory.titleOwn", nil)
	}
	return s.f.cat.MustRender("inventory.titleOther", map[string]any{"Name": s.ownerName})
}

func (s *invSession) entries() []invEntry {
	var out []invEntry
	for _, u := range s.acc.Unique {
		it, ok := items.Get(u.Kind)
		if !ok {
			continue
		}
		out = append(out, invEntry{
			label: it.Emoji + " " + it.DisplayName(u.Attributes),
			value: it.ValueOf(u.Attributes),
		})
	}
	for _, st := range s.acc.Stackable {
		it, ok := items.Get(st.Kind)
		if !ok {
			continue
		}
		out = append(out, invEntry{
			label: itoa(st.Count) + "x " + it.Emoji + " " + it.Name,
			value: it.Value * int64(st.Count),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].value != out[j].value {
			return out[i].value > out[j].value
		}
		return out[i].label < out[j].label
	})
	return out
}

func (s *invSession) pageCount() int {
	n := len(s.entries())
	if n == 0 {
		return 1
	}
	return (n + items.InventoryPageSize - 1) / items.InventoryPageSize
}

func (s *invSession) render() renderdto.Render {
	entries := s.entries()
	pages := s.pageCount()
	if s.page >= pages {
		s.page = pages - 1
	}
	start := s.page * items.InventoryPageSize
	end := start + items.InventoryPageSize
	if end > len(entries) {
		end = len(entries)
	}

	var total int64
	for _, e := range entries {
		total += e.value
	}
	fields := make([]renderdto.Field, 0, end-start)
	for _, e := range entries[start:end] {
		fields = append(fields, renderdto.Field{
			Name:   e.label,
			Value:  s.f.lati(e.value),
			Inline: true,
		})
	}

	var rows []renderdto.Row
	if pages > 1 {
		rows = append(rows, renderdto.Row{Buttons: []renderdto.Button{
			{
				CustomID: invPrevID,
				Label:    s.f.cat.MustRender("inventory.prevPage", nil),
				Style:    renderdto.StyleSecondary,
				Disabled: s.page == 0,
			},
			{
				CustomID: invPageID,
				Label:    itoa(s.page+1) + "/" + itoa(pages),
				Style:    renderdto.StyleSecondary,
				Disabled: true,
			},
			{
				CustomID: invNextID,
				Label:    s.f.cat.MustRender("inventory.nextPage", nil),
				Style:    renderdto.StyleSecondary,
				Disabled: s.page == pages-1,
			},
		}})
	}
	if s.own {
		rows = append(rows, renderdto.Row{Buttons: []renderdto.Button{
			{
				CustomID: invSellAllID,
				Label:    s.f.cat.MustRender("inventory.sellAll", nil),
				Style:    renderdto.StyleDanger,
			},
			{
				CustomID: invSellUnusableID,
				Label:    s.f.cat.MustRender("inventory.sellUnusable", nil),
				Style:    renderdto.StyleDanger,
			},
		}})
	}

	return renderdto.Render{
		Visual: renderdto.Visual{
			Title: s.title(),
			Description: s.f.cat.MustRender("inventory.summary", map[string]any{
				"Count":    s.acc.TotalItemCount(),
				"Capacity": s.acc.Capacity,
				"Value":    total,
			}),
			Color:  colorNeutral,
			Fields: fields,
		},
		Rows: rows,
	}
}
