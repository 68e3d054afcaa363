package flow

import (
	"context"

	"go.uber.org/zap"

	"github.com/ulmis/ulmanbot-go/internal/items"
	"github.com/ulmis/ulmanbot-go/internal/obslog"
	"github.com/ulmis/ulmanbot-go/internal/session"
	"github.com/ulmis/ulmanbot-go/pkg/renderdto"
)

// RunItemInfo replies with the catalog entry for one item: base value, its
// type, and the day's shop price when the item is purchasable. No session
// needed.
func (f *Flows) RunItemInfo(ctx context.Context, origin session.Origin, itemKey string) error {
	it, ok := items.Get(itemKey)
	if !ok {
		return f.sender.Ephemeral(ctx, origin, f.cat.MustRender("sell.unknown", nil))
	}

	priceVal := f.cat.MustRender("info.notInShop", nil)
	if it.InCategory(items.CategoryShop) {
		discounts, err := f.discounts.Today(ctx)
		if err != nil {
			obslog.L().Warn("info_discounts_error", zap.Error(err))
			discounts = nil
		}
		priceVal = f.priceLabel(it, discounts[it.Key])
	}

	footer := ""
	if it.CustomValue != nil {
		footer = f.cat.MustRender("info.customValue", nil)
	}

	return f.sender.Reply(ctx, origin, renderdto.Render{
		Visual: renderdto.Visual{
			Title: it.Emoji + " " + it.Name,
			Color: colorNeutral,
			Fields: []renderdto.Field{
				{Name: f.cat.MustRender("info.value", nil), Value: f.lati(it.Value), Inline: true},
				{Name: f.cat.MustRender("info.type", nil), Value: f.typeLabel(it), Inline: true},
				{Name: f.cat.MustRender("info.shopPrice", nil), Value: priceVal, Inline: true},
			},
			Footer: footer,
		},
	})
}

func (f *Flows) typeLabel(it items.Item) string {
	key := "info.stackable"
	if it.Attributed {
		key = "info.unique"
	}
	label := f.cat.MustRender(key, nil)
	if it.Usable {
		label += ", " + f.cat.MustRender("info.usable", nil)
	}
	return label
}
