package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-fulfillment/internal/domain/catalog"
	"github.com/xenking/kart-fulfillment/internal/domain/inventory"
	"github.com/xenking/kart-fulfillment/internal/domain/user"
	"github.com/xenking/kart-fulfillment/internal/storage/postgres"
)

const seedConcurrency = 8

var defaultUsers = []user.User{
	{Username: "john_doe", Email: "john@example.com"},
	{Username: "jane_smith", Email: "jane@example.com"},
}

var defaultItems = []catalog.Item{
	{Name: "Laptop", Description: "Gaming Laptop", Price: decimal.NewFromInt(50000), Stock: 10},
	{Name: "Mouse", Description: "Wireless Mouse", Price: decimal.NewFromInt(1000), Stock: 50},
	{Name: "Keyboard", Description: "Mechanical Keyboard", Price: decimal.NewFromInt(3000), Stock: 30},
	{Name: "Monitor", Description: "27-inch 4K Monitor", Price: decimal.NewFromInt(25000), Stock: 15},
	{Name: "Headphones", Description: "Noise-Cancelling Headphones", Price: decimal.NewFromInt(5000), Stock: 40},
}

func main() {
	var (
		databaseURL string
		itemsFile   string
		force       bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&itemsFile, "items-file", "", "optional gzip-compressed JSON array of items to load instead of the defaults")
	flag.BoolVar(&force, "force", false, "seed even when the catalog already has items")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, itemsFile, force); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, itemsFile string, force bool) error {
	slog.Info("running migrations")

	if err := postgres.RunMigrations(databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	items := postgres.NewItemRepository(pool)
	n, err := items.Count(ctx)
	if err != nil {
		return errors.Wrap(err, "count items")
	}
	if n > 0 && !force {
		slog.Info("catalog already populated, skipping", slog.Int("items", n))
		return nil
	}

	seed := defaultItems
	if itemsFile != "" {
		if seed, err = readItems(itemsFile); err != nil {
			return errors.Wrap(err, "read items file")
		}
	}

	catalogSvc := catalog.NewService(items, inventory.NewLedger(items))
	if err := seedItems(ctx, catalogSvc, seed); err != nil {
		return errors.Wrap(err, "seed items")
	}

	return seedUsers(ctx, user.NewService(postgres.NewUserRepository(pool)))
}

func seedItems(ctx context.Context, svc *catalog.Service, items []catalog.Item) error {
	slog.Info("creating items", slog.Int("count", len(items)))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(seedConcurrency)
	for _, it := range items {
		g.Go(func() error {
			created, err := svc.Create(ctx, it)
			if err != nil {
				return errors.Wrapf(err, "create item %q", it.Name)
			}
			slog.Info("created item", slog.String("id", created.ID), slog.String("name", created.Name))
			return nil
		})
	}
	return g.Wait()
}

func seedUsers(ctx context.Context, svc *user.Service) error {
	for _, u := range defaultUsers {
		created, err := svc.Create(ctx, u)
		if errors.Is(err, user.ErrDuplicate) {
			slog.Info("user exists, skipping", slog.String("username", u.Username))
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "create user %s", u.Username)
		}
		slog.Info("created user", slog.String("id", created.ID), slog.String("username", created.Username))
	}
	return nil
}

// readItems decodes a gzip-compressed JSON array of
// {"name","description","price","stock"} objects.
func readItems(path string) ([]catalog.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	data, err := io.ReadAll(gz)
	if err != nil {
		return nil, errors.Wrapf(err, "decompress %s", path)
	}
	return decodeItems(jx.DecodeBytes(data))
}

func decodeItems(d *jx.Decoder) ([]catalog.Item, error) {
	var items []catalog.Item
	err := d.Arr(func(d *jx.Decoder) error {
		var it catalog.Item
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "id":
				s, err := d.Str()
				it.ID = s
				return err
			case "name":
				s, err := d.Str()
				it.Name = s
				return err
			case "description":
				s, err := d.Str()
				it.Description = s
				return err
			case "price":
				num, err := d.Num()
				if err != nil {
					return err
				}
				price, err := decimal.NewFromString(num.String())
				if err != nil {
					return errors.Wrap(err, "parse price")
				}
				it.Price = price
				return nil
			case "stock":
				v, err := d.Int()
				it.Stock = v
				return err
			default:
				return d.Skip()
			}
		}); err != nil {
			return err
		}
		items = append(items, it)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode items")
	}
	return items, nil
}
