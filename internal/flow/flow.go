package flow

import (
	"context"
	"strconv"
	"time"

	"github.com/ulmis/ulmanbot-go/internal/ledger"
	"github.com/ulmis/ulmanbot-go/internal/msgcat"
	"github.com/ulmis/ulmanbot-go/internal/session"
	"github.com/ulmis/ulmanbot-go/internal/trade"
	"github.com/ulmis/ulmanbot-go/pkg/renderdto"
)

// Render accent colors.
const (
	colorNeutral = 0x9d2235
	colorSuccess = 0x25871c
	colorError   = 0xc42525
)

// Flows wires the session engine, the ledger and the message catalog into
// the bot's interactive command implementations.
type Flows struct {
	engine    *session.Engine
	ledger    *ledger.Ledger
	cat       *msgcat.Catalog
	discounts *trade.DiscountStore
	sender    session.Sender

	houseUserID string
	taxRate     float64
	timeout     time.Duration
}

func New(engine *session.Engine, l *ledger.Ledger, cat *msgcat.Catalog, discounts *trade.DiscountStore, sender session.Sender, houseUserID string, taxRate float64, timeout time.Duration) *Flows {
	return &Flows{
		engine:      engine,
		ledger:      l,
		cat:         cat,
		discounts:   discounts,
		sender:      sender,
		houseUserID: houseUserID,
		taxRate:     taxRate,
		timeout:     timeout,
	}
}

// house is the guild-scoped account that collects minted tax.
func (f *Flows) house(guildID string) ledger.AccountKey {
	return ledger.AccountKey{GuildID: guildID, UserID: f.houseUserID}
}

func actorKey(o session.Origin) ledger.AccountKey {
	return ledger.AccountKey{GuildID: o.GuildID, UserID: o.ActorID}
}

func (f *Flows) lati(amount int64) string {
	return f.cat.MustRender("common.lati", map[string]any{"Amount": amount})
}

// RunStats replies with the actor's lifetime counters. No session needed.
func (f *Flows) RunStats(ctx context.Context, origin session.Origin) error {
	stats, err := f.ledger.Stats(ctx, actorKey(origin))
	if err != nil {
		return err
	}
	fields := []renderdto.Field{
		{Name: f.cat.MustRender("stats.soldShop", nil), Value: f.lati(stats[ledger.StatSoldShop]), Inline: true},
		{Name: f.cat.MustRender("stats.taxPaid", nil), Value: f.lati(stats[ledger.StatTaxPaid]), Inline: true},
		{Name: f.cat.MustRender("stats.spentShop", nil), Value: f.lati(stats[ledger.StatSpentShop]), Inline: true},
	}
	return f.sender.Reply(ctx, origin, renderdto.Render{
		Visual: renderdto.Visual{
			Title:  f.cat.MustRender("stats.title", nil),
			Color:  colorNeutral,
			Fields: fields,
		},
	})
}

func itoa(n int) string { return strconv.Itoa(n) }
