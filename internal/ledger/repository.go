package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// SaleRecord is the audit row written after a completed sale.
type SaleRecord struct {
	ID        string
	GuildID   string
	SellerID  string
	HouseID   string
	ItemKind  string
	ItemIDs   []string
	SoldValue int64
	TaxPaid   int64
	CreatedAt time.Time
}

type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveSale upserts a completed sale into the audit table.
func (r *Repository) SaveSale(ctx context.Context, s *SaleRecord) error {
	if r == nil || r.db == nil || s == nil {
		return nil
	}

	idsRaw, _ := json.Marshal(s.ItemIDs)
	created := s.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	q := `INSERT INTO sales (
	    sale_id, guild_id, seller_id, house_id,
	    item_kind, item_ids, sold_value, tax_paid, created_at
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9
	  ) ON CONFLICT (sale_id) DO UPDATE SET
	    guild_id=EXCLUDED.guild_id,
	    seller_id=EXCLUDED.seller_id,
	    house_id=EXCLUDED.house_id,
	    item_kind=EXCLUDED.item_kind,
	    item_ids=EXCLUDED.item_ids,
	    sold_value=EXCLUDED.sold_value,
	    tax_paid=EXCLUDED.tax_paid,
	    created_at=EXCLUDED.created_at`

	_, err := r.db.ExecContext(ctx, q,
		s.ID, s.GuildID, s.SellerID, s.HouseID,
		s.ItemKind, string(idsRaw), s.SoldValue, s.TaxPaid, created,
	)
	return err
}
