package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	appcfg "github.com/ulmis/ulmanbot-go/internal/config"
	"github.com/ulmis/ulmanbot-go/internal/flow"
	"github.com/ulmis/ulmanbot-go/internal/gateway"
	"github.com/ulmis/ulmanbot-go/internal/ledger"
	"github.com/ulmis/ulmanbot-go/internal/msgcat"
	"github.com/ulmis/ulmanbot-go/internal/obslog"
	"github.com/ulmis/ulmanbot-go/internal/session"
	"github.com/ulmis/ulmanbot-go/internal/trade"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Printf("logger init: %v", err)
	}

	cat, err := msgcat.New(cfg.MsgOverrideDir)
	if err != nil {
		log.Fatalf("message catalog error: %v", err)
	}

	client := gateway.NewClient(cfg.GatewayBaseURL)

	led, err := ledger.NewLedger(cfg.RedisURL, cfg.InventoryCap)
	if err != nil {
		log.Fatalf("ledger init error: %v", err)
	}
	var repo *ledger.Repository
	if cfg.DatabaseURL != "" {
		repo, err = ledger.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("sale repo init error: %v", err)
		}
		led.AttachRepository(repo)
	}

	discounts := trade.NewDiscountStore(led.Redis())
	engine := session.NewEngine(client, cat.MustRender("common.error", nil))
	flows := flow.New(engine, led, cat, discounts, client,
		cfg.HouseUserID, cfg.TaxRate, cfg.SessionTimeout)

	ws := gateway.NewWebSocket(cfg.GatewayWSURL, 5, time.Second)
	ws.OnStateChange(func(state gateway.WebSocketState) {
		obslog.L().Info("ws_state", zap.String("state", string(state)))
	})
	ws.OnEvent(func(ev *gateway.Event) {
		if ev == nil {
			return
		}
		if len(cfg.AllowedGuilds) > 0 && !guildAllowed(cfg.AllowedGuilds, ev.GuildID) {
			return
		}
		switch ev.Type {
		case gateway.EventInteraction:
			if ev.Component == nil {
				return
			}
			// Dispatch never blocks on handler work for long; a goroutine
			// keeps the read loop free regardless.
			go engine.Dispatch(context.Background(), session.UIEvent{
				OriginID: ev.OriginID,
				Kind:     session.EventKind(ev.Component.Kind),
				CustomID: ev.Component.CustomID,
				Values:   ev.Component.Values,
				ActorID:  ev.UserID,
			})
		case gateway.EventCommand:
			if !strings.HasPrefix(strings.TrimSpace(ev.Command), cfg.BotPrefix) {
				return
			}
			go handleCommand(flows, cfg, ev)
		}
	})

	cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ws.Connect(cctx); err != nil {
		cancel()
		log.Fatalf("ws connect error: %v", err)
	}
	cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	_ = ws.Close(context.Background())
	_ = led.Close()
	if repo != nil {
		_ = repo.Close()
	}
}

func handleCommand(flows *flow.Flows, cfg *appcfg.AppConfig, ev *gateway.Event) {
	name := strings.TrimPrefix(strings.TrimSpace(ev.Command), cfg.BotPrefix)
	origin := session.Origin{
		ID:        ev.OriginID,
		GuildID:   ev.GuildID,
		ChannelID: ev.ChannelID,
		ActorID:   ev.UserID,
	}
	ctx := context.Background()

	var err error
	switch name {
	case "pardot":
		if len(ev.Args) == 0 {
			return
		}
		count := 0
		if len(ev.Args) > 1 {
			count, _ = strconv.Atoi(ev.Args[1])
		}
		err = flows.RunSale(ctx, origin, ev.Args[0], count)
	case "inv", "inventars":
		targetID, targetName := ev.UserID, ev.UserName
		if len(ev.Args) > 0 {
			targetID = strings.Trim(ev.Args[0], "<@!>")
			targetName = targetID
		}
		err = flows.RunInventory(ctx, origin, targetID, targetName)
	case "veikals":
		err = flows.RunShop(ctx, origin)
	case "info":
		if len(ev.Args) == 0 {
			return
		}
		err = flows.RunItemInfo(ctx, origin, ev.Args[0])
	case "stats":
		err = flows.RunStats(ctx, origin)
	default:
		return
	}
	if err != nil {
		obslog.L().Error("command_error",
			zap.String("command", name),
			zap.String("origin_id", ev.OriginID),
			zap.String("user_id", ev.UserID),
			zap.Error(err),
		)
	}
}

func guildAllowed(allowed []string, guildID string) bool {
	for _, g := range allowed {
		if g == guildID {
			return true
		}
	}
	return false
}
