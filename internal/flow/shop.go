package flow

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ulmis/ulmanbot-go/internal/items"
	"github.com/ulmis/ulmanbot-go/internal/ledger"
	"github.com/ulmis/ulmanbot-go/internal/obslog"
	"github.com/ulmis/ulmanbot-go/internal/session"
	"github.com/ulmis/ulmanbot-go/internal/trade"
	"github.com/ulmis/ulmanbot-go/pkg/renderdto"
)

const (
	shopItemID   = "shop_item"
	shopAmountID = "shop_amount"
	shopBuyID    = "shop_buy"

	shopMaxAmount = 9
)

// RunShop opens the shop browsing session for the actor.
func (f *Flows) RunShop(ctx context.Context, origin session.Origin) error {
	discounts, err := f.discounts.Today(ctx)
	if err != nil {
		obslog.L().Warn("shop_discounts_error", zap.Error(err))
		discounts = trade.Discounts{}
	}
	s := &shopSession{
		f:         f,
		origin:    origin,
		buyer:     actorKey(origin),
		stock:     items.ShopItems(),
		discounts: discounts,
		amount:    1,
	}
	initial := s.render(renderdto.StylePrimary)
	return f.engine.Open(ctx, origin, initial, s.handle, f.timeout)
}

type shopSession struct {
	f         *Flows
	origin    session.Origin
	buyer     ledger.AccountKey
	stock     []items.Item
	discounts trade.Discounts
	selected  items.Key
	amount    int
}

func (s *shopSession) handle(ctx context.Context, ev session.UIEvent) (session.Effect, error) {
	switch ev.CustomID {
	case shopItemID:
		if len(ev.Values) == 1 {
			s.selected = ev.Values[0]
		}
		r := s.render(renderdto.StylePrimary)
		return session.Effect{Render: &r}, nil
	case shopAmountID:
		if len(ev.Values) == 1 {
			if n, err := strconv.Atoi(ev.Values[0]); err == nil && n >= 1 && n <= shopMaxAmount {
				s.amount = n
			}
		}
		r := s.render(renderdto.StylePrimary)
		return session.Effect{Render: &r}, nil
	case shopBuyID:
		return s.buy(ctx)
	}
	return session.Effect{}, nil
}

// buy re-checks funds and free slots at click time. A failed precondition
// keeps the session alive with the buy button styled as a warning.
func (s *shopSession) buy(ctx context.Context) (session.Effect, error) {
	it, ok := items.Get(s.selected)
	if !ok {
		return session.Effect{}, nil
	}
	price := trade.ShopPrice(it, s.discounts[it.Key]) * int64(s.amount)

	acc, err := s.f.ledger.FindOrCreate(ctx, s.buyer)
	if err != nil {
		return session.Effect{}, err
	}
	if trade.FreeSlots(acc) < s.amount {
		r := s.render(renderdto.StyleDanger)
		return session.Effect{
			Render: &r,
			Notice: s.f.cat.MustRender("shop.insufficientCapacity", nil),
		}, nil
	}

	if err := s.f.ledger.Debit(ctx, s.buyer, price); err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			r := s.render(renderdto.StyleDanger)
			return session.Effect{
				Render: &r,
				Notice: s.f.cat.MustRender("shop.insufficientFunds", nil),
			}, nil
		}
		return session.Effect{}, err
	}

	if err := s.grant(ctx, it); err != nil {
		// The payment went through but the grant lost a capacity race
		// against another flow. The grant is all-or-nothing, so the full
		// price comes back and the session stays open.
		if errors.Is(err, ledger.ErrInsufficientCapacity) {
			if rerr := s.f.ledger.Credit(ctx, s.buyer, price); rerr != nil {
				obslog.L().Error("shop_refund_error",
					zap.String("user_id", s.buyer.UserID),
					zap.Int64("price", price),
					zap.Error(rerr),
				)
			}
			r := s.render(renderdto.StyleDanger)
			return session.Effect{
				Render: &r,
				Notice: s.f.cat.MustRender("shop.insufficientCapacity", nil),
			}, nil
		}
		return session.Effect{}, err
	}

	r := s.resultRender(it, price)
	return session.Effect{
		Render: &r,
		End:    true,
		FollowUp: func(ctx context.Context) error {
			s.f.ledger.RecordStat(ctx, s.buyer, ledger.StatSpentShop, price)
			return nil
		},
	}, nil
}

func (s *shopSession) grant(ctx context.Context, it items.Item) error {
	if !it.Attributed {
		return s.f.ledger.AddStackable(ctx, s.buyer, it.Key, s.amount)
	}
	_, err := s.f.ledger.AddUniqueItems(ctx, s.buyer, it.Key, nil, s.amount)
	return err
}

// priceLabel formats a shop price, striking through the base price when
// the day's discount lowers it.
func (f *Flows) priceLabel(it items.Item, discount float64) string {
	base := it.Value * 2
	price := trade.ShopPrice(it, discount)
	if price < base {
		return "~~" + f.lati(base) + "~~ " + f.lati(price)
	}
	return f.lati(price)
}

func (s *shopSession) render(buyStyle renderdto.ButtonStyle) renderdto.Render {
	fields := make([]renderdto.Field, 0, len(s.stock))
	itemOpts := make([]renderdto.SelectOption, 0, len(s.stock))
	for _, it := range s.stock {
		fields = append(fields, renderdto.Field{
			Name:   it.Emoji + " " + it.Name,
			Value:  s.f.cat.MustRender("shop.price", nil) + ": " + s.f.priceLabel(it, s.discounts[it.Key]),
			Inline: true,
		})
		itemOpts = append(itemOpts, renderdto.SelectOption{
			Label:       it.Name,
			Description: stripMarkdown(s.f.priceLabel(it, s.discounts[it.Key])),
			Value:       it.Key,
			Emoji:       it.Emoji,
			Default:     it.Key == s.selected,
		})
	}
	amountOpts := make([]renderdto.SelectOption, 0, shopMaxAmount)
	for n := 1; n <= shopMaxAmount; n++ {
		amountOpts = append(amountOpts, renderdto.SelectOption{
			Label:   itoa(n) + "x",
			Value:   itoa(n),
			Default: n == s.amount,
		})
	}
	return renderdto.Render{
		Visual: renderdto.Visual{
			Title:       s.f.cat.MustRender("shop.title", nil),
			Description: s.f.cat.MustRender("shop.description", nil),
			Color:       colorNeutral,
			Fields:      fields,
		},
		Rows: []renderdto.Row{
			{Select: &renderdto.Select{
				CustomID:    shopItemID,
				Placeholder: s.f.cat.MustRender("shop.itemPlaceholder", nil),
				MinValues:   1,
				MaxValues:   1,
				Options:     itemOpts,
			}},
			{Select: &renderdto.Select{
				CustomID:    shopAmountID,
				Placeholder: s.f.cat.MustRender("shop.amountPlaceholder", nil),
				MinValues:   1,
				MaxValues:   1,
				Options:     amountOpts,
			}},
			{Buttons: []renderdto.Button{{
				CustomID: shopBuyID,
				Label:    s.f.cat.MustRender("shop.buy", nil),
				Style:    buyStyle,
				Disabled: s.selected == "",
			}}},
		},
	}
}

func (s *shopSession) resultRender(it items.Item, price int64) renderdto.Render {
	return renderdto.Render{
		Visual: renderdto.Visual{
			Title:       s.f.cat.MustRender("shop.boughtTitle", nil),
			Description: itoa(s.amount) + "x " + it.Emoji + " " + it.Name,
			Color:       colorSuccess,
			Fields: []renderdto.Field{{
				Name:   s.f.cat.MustRender("shop.paid", nil),
				Value:  s.f.lati(price),
				Inline: true,
			}},
		},
	}
}

func stripMarkdown(s string) string {
	return strings.NewReplacer("~~", "", "**", "").Replace(s)
}
