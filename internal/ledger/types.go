package ledger

import "errors"

// AccountKey scopes every ledger operation: accounts exist per user per guild.
type AccountKey struct {
	GuildID string
	UserID  string
}

// Attributes are the mutable per-item properties of a unique item
// (custom name, durability, caught size and so on).
type Attributes map[string]string

// StackableItem is counted by quantity only, unique by kind within an account.
type StackableItem struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

// UniqueItem has its own identity, minted at acquisition.
type UniqueItem struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Attributes Attributes `json:"attributes,omitempty"`
}

type UserAccount struct {
	UserID    string
	GuildID   string
	Balance   int64
	Stackable []StackableItem
	Unique    []UniqueItem
	Capacity  int
}

// TotalItemCount is the slot usage: stackable counts plus unique entries.
func (a *UserAccount) TotalItemCount() int {
	n := len(a.Unique)
	for _, s := range a.Stackable {
		n += s.Count
	}
	return n
}

// UniqueOfKind returns the account's unique items of one kind, in stored order.
func (a *UserAccount) UniqueOfKind(kind string) []UniqueItem {
	var out []UniqueItem
	for _, u := range a.Unique {
		if u.Kind == kind {
			out = append(out, u)
		}
	}
	return out
}

// Stat counter fields.
const (
	StatSoldShop  = "soldShop"
	StatTaxPaid   = "taxPaid"
	StatSpentShop = "spentShop"
)

var (
	ErrInvalidAmount        = errors.New("amount must be non-negative")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientCapacity = errors.New("insufficient inventory capacity")
	// ErrStaleSelection means a requested item id (or stack count) is no
	// longer present on the account: the inventory changed between the
	// selection step and the confirmation step.
	ErrStaleSelection = errors.New("selection no longer matches inventory")
	ErrConflict       = errors.New("too many concurrent updates")
	ErrUnavailable    = errors.New("ledger store unavailable")
)
