package cli

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/openclear/auctiond/internal/config"
	"github.com/openclear/auctiond/internal/core/auction"
	"github.com/openclear/auctiond/internal/core/auction/instant"
	"github.com/openclear/auctiond/internal/core/auction/uniformprice"
	"github.com/openclear/auctiond/internal/core/fees"
	"github.com/openclear/auctiond/internal/core/house"
	"github.com/openclear/auctiond/internal/core/token"
	"github.com/openclear/auctiond/internal/logging"
	"github.com/openclear/auctiond/internal/server"
	"github.com/openclear/auctiond/internal/storage/database"
	"github.com/openclear/auctiond/internal/storage/database/leveldb"
	"github.com/openclear/auctiond/internal/storage/database/memory"
	"github.com/openclear/auctiond/internal/storage/database/pebble"
	"github.com/openclear/auctiond/internal/storage/lotstore"
	"github.com/openclear/auctiond/internal/storage/relationaldb"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the auction house daemon",
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runServer(cmd, args)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	log := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	log.WithFields(logrus.Fields{
		"node":    cfg.NodeName,
		"backend": cfg.Storage.Backend,
	}).Info("starting auctiond")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, closeKV, err := openKV(cfg.Storage)
	if err != nil {
		return err
	}
	defer closeKV()

	store := lotstore.New(kv)

	registry := auction.NewRegistry()
	if err := registry.Install(uniformprice.New()); err != nil {
		return err
	}
	if err := registry.Install(instant.New()); err != nil {
		return err
	}

	governance := token.Address(cfg.House.Governance)
	feeLedger := fees.NewLedger(governance)
	for _, kc := range registry.Keycodes() {
		if err := seedFees(feeLedger, governance, kc, cfg.Fees); err != nil {
			return err
		}
	}

	opts := []house.Option{
		house.WithLogger(logging.Component(log, "house")),
		house.WithStore(store),
	}

	if cfg.Storage.HistoryPath != "" {
		history := relationaldb.New(cfg.Storage.HistoryPath)
		if err := history.Open(ctx); err != nil {
			return err
		}
		defer history.Close()
		opts = append(opts, house.WithHistory(history))
	}

	engine := house.New(house.Config{
		HouseAddress: token.Address(cfg.House.Address),
		Governance:   governance,
	}, registry, feeLedger, token.NewBank(), opts...)

	lots, err := store.Lots()
	if err != nil {
		return err
	}
	rewards, err := store.Rewards()
	if err != nil {
		return err
	}
	if err := engine.Restore(lots, rewards); err != nil {
		return err
	}

	if !cfg.Server.Enabled {
		log.Info("server disabled, waiting for shutdown signal")
		<-ctx.Done()
		return nil
	}

	srv, err := server.New(cfg.Server, engine, logging.Component(log, "server"))
	if err != nil {
		return err
	}
	// The engine needs the sink before serving, which is why the server is
	// built before Run and wired here rather than through house.New.
	engine.SetEvents(srv.Sink())

	err = srv.Run(ctx)
	log.Info("auctiond stopped")
	return err
}

func openKV(cfg config.StorageConfig) (database.DB, func() error, error) {
	switch cfg.Backend {
	case "pebble":
		mgr := pebble.NewManager(cfg.Path)
		db, err := mgr.Get("lots")
		if err != nil {
			return nil, nil, err
		}
		return db, mgr.Close, nil
	case "leveldb":
		db, err := leveldb.Open(filepath.Join(cfg.Path, "lots.db"))
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	case "memory":
		db := memory.New()
		return db, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func seedFees(l *fees.Ledger, governance token.Address, kc auction.Keycode, cfg config.FeesConfig) error {
	if err := l.SetFee(governance, kc, fees.Protocol, cfg.Protocol); err != nil {
		return err
	}
	if err := l.SetFee(governance, kc, fees.Referrer, cfg.Referrer); err != nil {
		return err
	}
	return l.SetFee(governance, kc, fees.MaxCurator, cfg.MaxCurator)
}
