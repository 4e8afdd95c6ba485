package sink

import (
	"context"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/WessleyAI/autocrawl/engine/record"
	"github.com/WessleyAI/autocrawl/pkg/fn"
)

// DefaultTable is the Postgres table used when none is configured.
const DefaultTable = "listings"

var tableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

// pgConn is the part of *pgxpool.Pool the sink uses.
type pgConn interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres inserts records into a table keyed by id; rows already present
// are left untouched.
type Postgres struct {
	db        pgConn
	table     string
	batchSize int
	close     func()
}

// OpenPostgres connects to dsn and creates the table if needed.
func OpenPostgres(ctx context.Context, dsn, table string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres sink: connect: %w", err)
	}
	p, err := NewPostgres(pool, table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	p.close = pool.Close
	if err := p.EnsureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgres wraps an existing connection.
func NewPostgres(db pgConn, table string) (*Postgres, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("postgres sink: bad table name %q", table)
	}
	return &Postgres{db: db, table: table, batchSize: 200}, nil
}

// EnsureTable creates the listings table when it does not exist.
func (p *Postgres) EnsureTable(ctx context.Context) error {
	_, err := p.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+p.table+` (
		id          text PRIMARY KEY,
		source      text NOT NULL,
		make        text NOT NULL,
		model       text,
		title       text,
		currency    text NOT NULL,
		price       bigint NOT NULL,
		mileage     bigint NOT NULL,
		year        smallint NOT NULL,
		month       smallint,
		engine      text NOT NULL,
		gearbox     text NOT NULL,
		power       integer,
		cc          integer,
		phone       text,
		location    text,
		seller_name text,
		view_count  bigint,
		equipment   numeric(20,0) NOT NULL DEFAULT 0,
		top         boolean NOT NULL DEFAULT false,
		vip         boolean NOT NULL DEFAULT false,
		sold        boolean NOT NULL DEFAULT false,
		dealer      boolean NOT NULL DEFAULT false,
		created_on  date,
		updated_on  date,
		url         text,
		inserted_at timestamptz NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("postgres sink: create table: %w", err)
	}
	return nil
}

// Write batch-inserts recs and returns the number of rows actually inserted.
func (p *Postgres) Write(ctx context.Context, recs []record.Record) (int, error) {
	total := 0
	for _, chunk := range fn.Chunk(recs, p.batchSize) {
		b := &pgx.Batch{}
		for _, r := range chunk {
			b.Queue(`INSERT INTO `+p.table+`
				(id, source, make, model, title, currency, price, mileage, year, month,
				 engine, gearbox, power, cc, phone, location, seller_name, view_count,
				 equipment, top, vip, sold, dealer, created_on, updated_on, url)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,
				        $19,$20,$21,$22,$23,$24,$25,$26)
				ON CONFLICT (id) DO NOTHING`,
				r.ID, r.Source, r.Make, r.Model, r.Title, r.Currency.String(),
				int64(r.Price), int64(r.Mileage), int16(r.Year), nullInt(uint64(r.Month)),
				string(r.Engine), string(r.Gearbox), nullInt(uint64(r.Power)), nullInt(uint64(r.CC)),
				r.Phone, r.Location, r.SellerName, nullInt(r.ViewCount),
				bitmask(r.Equipment), r.Top, r.VIP, r.Sold, r.Dealer,
				nullDate(r.CreatedOn), nullDate(r.UpdatedOn), r.URL,
			)
		}
		br := p.db.SendBatch(ctx, b)
		for range chunk {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return total, fmt.Errorf("postgres sink: insert: %w", err)
			}
			total += int(tag.RowsAffected())
		}
		if err := br.Close(); err != nil {
			return total, fmt.Errorf("postgres sink: %w", err)
		}
	}
	return total, nil
}

func nullInt(v uint64) *int64 {
	if v == 0 {
		return nil
	}
	i := int64(v)
	return &i
}

// bitmask keeps all 64 bits; bigint would turn bit 63 negative.
func bitmask(v uint64) pgtype.Numeric {
	return pgtype.Numeric{Int: new(big.Int).SetUint64(v), Valid: true}
}

func nullDate(s string) *time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil
	}
	return &t
}

// Close releases the pool when the sink opened it.
func (p *Postgres) Close() error {
	if p.close != nil {
		p.close()
	}
	return nil
}
