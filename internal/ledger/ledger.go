package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ulmis/ulmanbot-go/internal/obslog"
)

// Ledger exposes the atomic balance and inventory operations shared by all
// flows. Balances live at their own integer keys so credits are a single
// INCRBY; the inventory document is mutated only under WATCH so
// check-then-remove is atomic as one store operation.
type Ledger struct {
	rdb        *redis.Client
	defaultCap int
	repo       *Repository
}

const watchRetries = 3

func NewLedger(redisURL string, defaultCap int) (*Ledger, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for ledger")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(rdb, defaultCap), nil
}

func NewWithClient(rdb *redis.Client, defaultCap int) *Ledger {
	if defaultCap <= 0 {
		defaultCap = 50
	}
	return &Ledger{rdb: rdb, defaultCap: defaultCap}
}

// Redis exposes the underlying client for components sharing the store,
// such as the discount roller.
func (l *Ledger) Redis() *redis.Client {
	return l.rdb
}

func (l *Ledger) Close() error {
	if l == nil || l.rdb == nil {
		return nil
	}
	return l.rdb.Close()
}

// AttachRepository wires a database repository for persisting sale audits.
func (l *Ledger) AttachRepository(r *Repository) {
	if l != nil {
		l.repo = r
	}
}

func keyBalance(k AccountKey) string { return "econ:bal:" + k.GuildID + ":" + k.UserID }
func keyInv(k AccountKey) string     { return "econ:inv:" + k.GuildID + ":" + k.UserID }
func keyStats(k AccountKey) string   { return "econ:stats:" + k.GuildID + ":" + k.UserID }

// inventoryDoc is the JSON stored under econ:inv:<guild>:<user>.
type inventoryDoc struct {
	Stackable []StackableItem `json:"stackable"`
	Unique    []UniqueItem    `json:"unique"`
	Capacity  int             `json:"capacity"`
}

func (d *inventoryDoc) totalCount() int {
	n := len(d.Unique)
	for _, s := range d.Stackable {
		n += s.Count
	}
	return n
}

// FindOrCreate returns a point-in-time snapshot of the account, materializing
// a default one when nothing is stored yet. No isolation is guaranteed
// against concurrent mutation by other flows; callers re-check preconditions
// through the mutating operations.
func (l *Ledger) FindOrCreate(ctx context.Context, k AccountKey) (*UserAccount, error) {
	bal, err := l.rdb.Get(ctx, keyBalance(k)).Int64()
	if err == redis.Nil {
		bal = 0
	} else if err != nil {
		return nil, unavailable(err)
	}
	doc, err := l.loadInventory(ctx, k)
	if err != nil {
		return nil, err
	}
	return &UserAccount{
		UserID:    k.UserID,
		GuildID:   k.GuildID,
		Balance:   bal,
		Stackable: doc.Stackable,
		Unique:    doc.Unique,
		Capacity:  doc.Capacity,
	}, nil
}

func (l *Ledger) loadInventory(ctx context.Context, k AccountKey) (*inventoryDoc, error) {
	raw, err := l.rdb.Get(ctx, keyInv(k)).Bytes()
	if err == redis.Nil {
		return &inventoryDoc{Capacity: l.defaultCap}, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	doc, err := decodeInventory(raw, l.defaultCap)
	if err != nil {
		return nil, unavailable(err)
	}
	return doc, nil
}

func decodeInventory(raw []byte, defaultCap int) (*inventoryDoc, error) {
	var doc inventoryDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if doc.Capacity <= 0 {
		doc.Capacity = defaultCap
	}
	return &doc, nil
}

// Credit adds amount to the account balance. A plain INCRBY: individually
// atomic at the store level, safe to issue concurrently with any other flow.
func (l *Ledger) Credit(ctx context.Context, k AccountKey, amount int64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	if amount == 0 {
		return nil
	}
	if err := l.rdb.IncrBy(ctx, keyBalance(k), amount).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Debit subtracts amount, failing with ErrInsufficientFunds when it would
// drive the balance negative. The check-then-set runs under WATCH so a
// concurrent writer forces a bounded retry instead of a lost update.
func (l *Ledger) Debit(ctx context.Context, k AccountKey, amount int64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	if amount == 0 {
		return nil
	}
	balK := keyBalance(k)
	for attempt := 0; attempt < watchRetries; attempt++ {
		err := l.rdb.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := tx.Get(ctx, balK).Int64()
			if err == redis.Nil {
				cur = 0
			} else if err != nil {
				return err
			}
			if cur < amount {
				return ErrInsufficientFunds
			}
			pipe := tx.TxPipeline()
			pipe.Set(ctx, balK, cur-amount, 0)
			_, err = pipe.Exec(ctx)
			return err
		}, balK)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, ErrInsufficientFunds) {
			return unavailable(err)
		}
		return err
	}
	return ErrConflict
}

// RemoveUniqueItemsByID removes exactly the given ids from the account.
// If any id is not currently present the whole batch fails with
// ErrStaleSelection and nothing is removed: this is the optimistic
// consistency gate for flows whose selection and confirmation steps are
// separated by user think-time.
func (l *Ledger) RemoveUniqueItemsByID(ctx context.Context, k AccountKey, ids []string) (*UserAccount, error) {
	return l.RemoveBatch(ctx, k, ids, nil)
}

// RemoveStackables takes counts per kind, failing with ErrStaleSelection on
// any shortfall. All-or-nothing, same gate as RemoveUniqueItemsByID.
func (l *Ledger) RemoveStackables(ctx context.Context, k AccountKey, take map[string]int) (*UserAccount, error) {
	return l.RemoveBatch(ctx, k, nil, take)
}

// RemoveBatch removes unique ids and stackable counts together as one
// store operation. An absent id or a count shortfall anywhere in the batch
// fails the whole batch with ErrStaleSelection and nothing is removed.
func (l *Ledger) RemoveBatch(ctx context.Context, k AccountKey, ids []string, take map[string]int) (*UserAccount, error) {
	if len(ids) == 0 && len(take) == 0 {
		return l.FindOrCreate(ctx, k)
	}
	err := l.mutateInventory(ctx, k, func(doc *inventoryDoc) error {
		if err := removeUniqueIDs(doc, ids); err != nil {
			return err
		}
		return removeStacks(doc, take)
	})
	if err != nil {
		return nil, err
	}
	return l.FindOrCreate(ctx, k)
}

func removeUniqueIDs(doc *inventoryDoc, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	present := make(map[string]struct{}, len(doc.Unique))
	for _, u := range doc.Unique {
		present[u.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			return ErrStaleSelection
		}
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := doc.Unique[:0]
	for _, u := range doc.Unique {
		if _, ok := drop[u.ID]; !ok {
			kept = append(kept, u)
		}
	}
	doc.Unique = kept
	return nil
}

func removeStacks(doc *inventoryDoc, take map[string]int) error {
	if len(take) == 0 {
		return nil
	}
	have := make(map[string]int, len(doc.Stackable))
	for _, s := range doc.Stackable {
		have[s.Kind] = s.Count
	}
	for kind, n := range take {
		if n <= 0 {
			return ErrInvalidAmount
		}
		if have[kind] < n {
			return ErrStaleSelection
		}
	}
	kept := doc.Stackable[:0]
	for _, s := range doc.Stackable {
		s.Count -= take[s.Kind]
		if s.Count > 0 {
			kept = append(kept, s)
		}
	}
	doc.Stackable = kept
	return nil
}

// AddUniqueItem mints a new unique item on the account. The capacity
// invariant is enforced here: acquisition fails rather than oversubscribing.
func (l *Ledger) AddUniqueItem(ctx context.Context, k AccountKey, kind string, attrs Attributes) (*UniqueItem, error) {
	minted, err := l.AddUniqueItems(ctx, k, kind, attrs, 1)
	if err != nil {
		return nil, err
	}
	return &minted[0], nil
}

// AddUniqueItems mints n items of one kind in a single store operation.
// The capacity check covers the whole batch, so a shortfall grants nothing.
func (l *Ledger) AddUniqueItems(ctx context.Context, k AccountKey, kind string, attrs Attributes, n int) ([]UniqueItem, error) {
	if n <= 0 {
		return nil, ErrInvalidAmount
	}
	minted := make([]UniqueItem, n)
	for i := range minted {
		minted[i] = UniqueItem{ID: uuid.NewString(), Kind: kind, Attributes: attrs}
	}
	err := l.mutateInventory(ctx, k, func(doc *inventoryDoc) error {
		if doc.totalCount()+n > doc.Capacity {
			return ErrInsufficientCapacity
		}
		doc.Unique = append(doc.Unique, minted...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return minted, nil
}

// AddStackable adds n of a kind, merging with an existing stack.
func (l *Ledger) AddStackable(ctx context.Context, k AccountKey, kind string, n int) error {
	if n <= 0 {
		return ErrInvalidAmount
	}
	return l.mutateInventory(ctx, k, func(doc *inventoryDoc) error {
		if doc.totalCount()+n > doc.Capacity {
			return ErrInsufficientCapacity
		}
		for i := range doc.Stackable {
			if doc.Stackable[i].Kind == kind {
				doc.Stackable[i].Count += n
				return nil
			}
		}
		doc.Stackable = append(doc.Stackable, StackableItem{Kind: kind, Count: n})
		return nil
	})
}

// mutateInventory runs fn against the current inventory document under WATCH
// and persists the result, retrying a bounded number of times when a
// concurrent writer invalidates the transaction.
func (l *Ledger) mutateInventory(ctx context.Context, k AccountKey, fn func(*inventoryDoc) error) error {
	invK := keyInv(k)
	for attempt := 0; attempt < watchRetries; attempt++ {
		err := l.rdb.Watch(ctx, func(tx *redis.Tx) error {
			doc := &inventoryDoc{Capacity: l.defaultCap}
			raw, err := tx.Get(ctx, invK).Bytes()
			if err != nil && err != redis.Nil {
				return err
			}
			if err == nil {
				if doc, err = decodeInventory(raw, l.defaultCap); err != nil {
					return err
				}
			}
			if err := fn(doc); err != nil {
				return err
			}
			out, err := json.Marshal(doc)
			if err != nil {
				return err
			}
			pipe := tx.TxPipeline()
			pipe.Set(ctx, invK, out, 0)
			_, err = pipe.Exec(ctx)
			return err
		}, invK)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !isSentinel(err) {
			return unavailable(err)
		}
		return err
	}
	return ErrConflict
}

// RecordStat bumps a monotonic counter for reporting. Best-effort: failures
// are logged, never surfaced, and never block a transaction.
func (l *Ledger) RecordStat(ctx context.Context, k AccountKey, field string, delta int64) {
	if delta == 0 {
		return
	}
	if err := l.rdb.HIncrBy(ctx, keyStats(k), field, delta).Err(); err != nil {
		obslog.L().Warn("stat_record_error",
			zap.String("guild_id", k.GuildID),
			zap.String("user_id", k.UserID),
			zap.String("field", field),
			zap.Int64("delta", delta),
			zap.Error(err),
		)
	}
}

// Stats reads back the account's counters.
func (l *Ledger) Stats(ctx context.Context, k AccountKey) (map[string]int64, error) {
	raw, err := l.rdb.HGetAll(ctx, keyStats(k)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	out := make(map[string]int64, len(raw))
	for f, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[f] = n
	}
	return out, nil
}

// PersistSale saves a completed sale to the audit repository if attached.
func (l *Ledger) PersistSale(ctx context.Context, s *SaleRecord) {
	if l == nil || l.repo == nil || s == nil {
		return
	}
	if err := l.repo.SaveSale(ctx, s); err != nil {
		obslog.L().Error("sale_persist_error",
			zap.String("sale_id", s.ID),
			zap.String("guild_id", s.GuildID),
			zap.String("seller_id", s.SellerID),
			zap.Error(err),
		)
		return
	}
	obslog.L().Info("sale_persist",
		zap.String("sale_id", s.ID),
		zap.Int64("sold_value", s.SoldValue),
		zap.Int64("tax_paid", s.TaxPaid),
	)
}

func isSentinel(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInsufficientCapacity) ||
		errors.Is(err, ErrStaleSelection)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
