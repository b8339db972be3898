// Command docseed connects to a document store, binds a sample collection
// and writes a batch of records into it.
//
// Its own flags come first; connection flags follow "--" and must name
// the database:
//
//	docseed -count 1000 -store mongo -- -host db.local -db seed
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"iter"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/and161185/docrepo/internal/config"
	"github.com/and161185/docrepo/internal/docdb"
	"github.com/and161185/docrepo/internal/filter"
	"github.com/and161185/docrepo/internal/metrics"
	"github.com/and161185/docrepo/internal/model"
	"github.com/and161185/docrepo/internal/store"
	"github.com/and161185/docrepo/internal/store/memstore"
	"github.com/and161185/docrepo/internal/store/mongostore"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

type seedRecord struct {
	model.Object `bson:",inline"`
	Run          string `bson:"run"`
	Seq          int    `bson:"seq"`
	Label        string `bson:"label"`
}

func (seedRecord) CollectionMetadata() model.Metadata {
	return model.Metadata{
		Name: "seedRecords",
		Indexes: []model.Index{
			{Name: "run_seq", Keys: []model.IndexKey{{Field: "run"}, {Field: "seq"}}, Unique: true},
		},
	}
}

func records(run string, n int) iter.Seq[*seedRecord] {
	return func(yield func(*seedRecord) bool) {
		for i := 0; i < n; i++ {
			r := &seedRecord{Run: run, Seq: i, Label: fmt.Sprintf("Sample value %d", i)}
			if !yield(r) {
				return
			}
		}
	}
}

func main() {
	fs := flag.NewFlagSet("docseed", flag.ExitOnError)
	backend := fs.String("store", "memory", "store backend (memory, mongo)")
	count := fs.Int("count", 1000, "records to create")
	purge := fs.Bool("purge", false, "soft delete and purge the records afterwards")
	metricsAddr := fs.String("metrics", "", "serve Prometheus metrics on this address")
	strict := fs.Bool("strict-indexes", false, "fail when an index cannot be built")
	_ = fs.Parse(os.Args[1:])

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("store", *backend),
	)

	opts, err := config.Load("docseed", fs.Args())
	if err != nil {
		logger.Fatal("load configuration", zap.Error(err))
	}

	var connector store.Connector
	switch *backend {
	case "memory":
		connector = memstore.New()
	case "mongo":
		connector = mongostore.Connector{}
	default:
		logger.Fatal("unknown store", zap.String("store", *backend))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	if *metricsAddr != "" {
		srv := &http.Server{
			Addr:              *metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
		defer func() { _ = srv.Shutdown(context.Background()) }()
	}

	if err := run(ctx, logger, opts, connector, reg, *count, *purge, *strict); err != nil {
		logger.Error("seed failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("done")
}

func run(
	ctx context.Context, logger *zap.Logger, opts config.Options, connector store.Connector,
	reg prometheus.Registerer, count int, purge, strict bool,
) (err error) {
	dc, err := docdb.New(opts, connector,
		docdb.WithLogger(logger),
		docdb.WithMetrics(metrics.New(reg)),
		docdb.WithStrictIndexes(strict),
	)
	if err != nil {
		return err
	}
	db, err := dc.Open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = cerr
		}
	}()

	repo, err := docdb.BindRepository[*seedRecord](ctx, db)
	if err != nil {
		return err
	}

	runID, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("run id: %w", err)
	}
	tag := runID.String()

	start := time.Now()
	if err := repo.CreateSeq(ctx, records(tag, count)); err != nil {
		return err
	}
	n, err := repo.CountWhere(ctx, filter.Eq("run", tag))
	if err != nil {
		return err
	}
	logger.Info("seeded",
		zap.String("run", tag),
		zap.Int64("count", n),
		zap.Duration("took", time.Since(start)),
	)

	if !purge {
		return nil
	}
	deleted, err := repo.DeleteWhere(ctx, filter.Eq("run", tag))
	if err != nil {
		return err
	}
	purged, err := repo.PurgeWhere(ctx, filter.Eq("run", tag))
	if err != nil {
		return err
	}
	logger.Info("purged", zap.Int64("deleted", deleted), zap.Int64("purged", purged))
	return nil
}
