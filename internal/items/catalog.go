package items

import (
	"sort"
	"strconv"

	"github.com/ulmis/ulmanbot-go/internal/ledger"
)

type Key = string

type Category string

const (
	CategoryShop    Category = "veikals"
	CategoryFishing Category = "makskeresana"
)

// Page caps shared by the flows.
const (
	SelectPageSize    = 25
	InventoryPageSize = 12
)

// Item is a catalog entry. Items with Attributed set are carried as unique
// inventory entries; CustomValue, when present, resolves an attribute-aware
// valuation instead of the base value.
type Item struct {
	Key         Key
	Name        string
	Emoji       string
	Value       int64
	CustomValue func(attrs ledger.Attributes) int64
	Usable      bool
	Attributed  bool
	Categories  []Category
}

// ValueOf resolves the sellable value of one instance.
func (it Item) ValueOf(attrs ledger.Attributes) int64 {
	if it.CustomValue != nil && attrs != nil {
		return it.CustomValue(attrs)
	}
	return it.Value
}

// DisplayName honors a custom name attribute when the item carries one.
func (it Item) DisplayName(attrs ledger.Attributes) string {
	if attrs != nil {
		if custom, ok := attrs["customName"]; ok && custom != "" {
			return custom + " (" + it.Name + ")"
		}
	}
	return it.Name
}

func (it Item) InCategory(c Category) bool {
	for _, cat := range it.Categories {
		if cat == c {
			return true
		}
	}
	return false
}

func attrInt(attrs ledger.Attributes, key string, def int64) int64 {
	if attrs == nil {
		return def
	}
	if v, ok := attrs[key]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

// durabilityValue scales the base value by remaining durability.
func durabilityValue(base, maxDurability int64) func(ledger.Attributes) int64 {
	return func(attrs ledger.Attributes) int64 {
		d := attrInt(attrs, "durability", maxDurability)
		if d < 0 {
			d = 0
		}
		if d > maxDurability {
			d = maxDurability
		}
		return base * d / maxDurability
	}
}

var catalog = map[Key]Item{
	"koka_makskere": {
		Key: "koka_makskere", Name: "Koka makšķere", Emoji: "🎣",
		Value: 50, CustomValue: durabilityValue(50, 15),
		Usable: true, Attributed: true,
		Categories: []Category{CategoryShop, CategoryFishing},
	},
	"divaina_makskere": {
		Key: "divaina_makskere", Name: "Dīvaina makšķere", Emoji: "🎣",
		Value: 400, CustomValue: durabilityValue(400, 35),
		Usable: true, Attributed: true,
		Categories: []Category{CategoryShop, CategoryFishing},
	},
	"lielais_loms": {
		Key: "lielais_loms", Name: "Lielais loms", Emoji: "🐟",
		Value: 70,
		CustomValue: func(attrs ledger.Attributes) int64 {
			return attrInt(attrs, "kg", 2) * 35
		},
		Attributed: true,
		Categories: []Category{CategoryFishing},
	},
	"kakis": {
		Key: "kakis", Name: "Kaķis", Emoji: "🐈",
		Value: 500, Attributed: true,
	},
	"zivs": {
		Key: "zivs", Name: "Zivs", Emoji: "🐠",
		Value: 20,
		Categories: []Category{CategoryFishing},
	},
	"loto_bilete": {
		Key: "loto_bilete", Name: "Loto biļete", Emoji: "🎟️",
		Value: 60, Usable: true,
		Categories: []Category{CategoryShop},
	},
	"velosipeds": {
		Key: "velosipeds", Name: "Velosipēds", Emoji: "🚲",
		Value: 300,
		Categories: []Category{CategoryShop},
	},
}

func Get(k Key) (Item, bool) {
	it, ok := catalog[k]
	return it, ok
}

// ShopItems returns the purchasable items, most valuable first.
func ShopItems() []Item {
	var out []Item
	for _, it := range catalog {
		if it.InCategory(CategoryShop) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Key < out[j].Key
	})
	return out
}
