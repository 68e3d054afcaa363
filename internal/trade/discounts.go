package trade

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ulmis/ulmanbot-go/internal/items"
	"github.com/ulmis/ulmanbot-go/internal/obslog"
)

// Discounts maps item kind to the day's discount fraction.
type Discounts map[items.Key]float64

var discountSteps = []float64{0.10, 0.20, 0.30, 0.40}

const discountedItems = 2

// DiscountStore rolls and serves the daily shop discounts. The roll is
// written with SetNX so concurrent processes agree on one result per day.
type DiscountStore struct {
	rdb *redis.Client
}

func NewDiscountStore(rdb *redis.Client) *DiscountStore {
	return &DiscountStore{rdb: rdb}
}

func dayKey(t time.Time) string {
	return "econ:discounts:" + t.Format("2006-01-02")
}

func (s *DiscountStore) Today(ctx context.Context) (Discounts, error) {
	key := dayKey(time.Now())
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var d Discounts
		if jerr := json.Unmarshal(raw, &d); jerr == nil {
			return d, nil
		}
	} else if err != redis.Nil {
		return nil, err
	}

	rolled := rollDiscounts()
	out, err := json.Marshal(rolled)
	if err != nil {
		return nil, err
	}
	ok, err := s.rdb.SetNX(ctx, key, out, 48*time.Hour).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		// another process won the roll
		raw, err := s.rdb.Get(ctx, key).Bytes()
		if err != nil {
			return nil, err
		}
		var d Discounts
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	}
	obslog.L().Info("discounts_rolled", zap.String("day", key), zap.Int("count", len(rolled)))
	return rolled, nil
}

func rollDiscounts() Discounts {
	shop := items.ShopItems()
	d := make(Discounts)
	for _, it := range pickRandom(shop, discountedItems) {
		d[it.Key] = discountSteps[randIndex(len(discountSteps))]
	}
	return d
}

func pickRandom(list []items.Item, n int) []items.Item {
	if n >= len(list) {
		return list
	}
	picked := make([]items.Item, 0, n)
	rest := append([]items.Item(nil), list...)
	for len(picked) < n {
		i := randIndex(len(rest))
		picked = append(picked, rest[i])
		rest = append(rest[:i], rest[i+1:]...)
	}
	return picked
}

func randIndex(n int) int {
	if n <= 1 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}
