package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vendor-desk/api"
	"vendor-desk/config"
	"vendor-desk/gateway"
	"vendor-desk/lead"
	"vendor-desk/metrics"
	"vendor-desk/poller"
	"vendor-desk/services"
	"vendor-desk/storage"
	"vendor-desk/utils"
)

func main() {
	exportStatus := flag.String("export", "", "export grouped orders with this status (or \"all\") to CSV and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := utils.NewLogger(utils.LoggerOptions{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.Info("=== Vendor desk starting ===")
	logger.Info("Config | vendor: %s | lead deadline: %ds | poll: %s | keys: %s",
		cfg.VendorPhone, cfg.LeadDeadlineSeconds, cfg.PollInterval, cfg.PollKeyPolicy)

	reg := metrics.NewRegistry()
	gw := gateway.New(gateway.Options{
		BaseURL:        cfg.GatewayBaseURL,
		Token:          cfg.GatewayToken,
		Timeout:        cfg.GatewayTimeout,
		MaxRetries:     cfg.MaxRetries,
		RetryBaseDelay: cfg.RetryBaseDelay,
	}, logger)

	normalizer := services.NewNormalizer(cfg.ImageBaseURL)
	aggregator := services.NewAggregator(normalizer, logger)
	orders := services.NewOrderService(gw, aggregator, cfg.VendorPhone, logger).WithObserver(reg)
	hubs := services.NewHubService(gw, normalizer, cfg.VendorPhone, logger).WithObserver(reg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *exportStatus != "" {
		if err := exportOrders(ctx, cfg, orders, aggregator, *exportStatus); err != nil {
			logger.Error("Export failed: %v", err)
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, cfg, logger, reg, gw, normalizer, orders, hubs); err != nil {
		logger.Error("Server stopped: %v", err)
		os.Exit(1)
	}
	logger.Info("=== Vendor desk stopped ===")
}

func exportOrders(ctx context.Context, cfg *config.Config, orders *services.OrderService, aggregator *services.Aggregator, status string) error {
	if status == poller.AllStatuses {
		status = ""
	}
	groups := orders.FetchGroupedOrders(ctx, services.OrderFilter{Status: status})

	w, err := storage.NewCSVWriter(cfg.CSVOutputPath)
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Export(groups); err != nil {
		return err
	}

	aggregator.Print(os.Stdout, fmt.Sprintf("ORDERS (%s)", orDefault(status, "all")), groups)
	fmt.Printf("  Done. %d orders exported to %s\n\n", len(groups), cfg.CSVOutputPath)
	return nil
}

func serve(
	ctx context.Context,
	cfg *config.Config,
	logger *utils.Logger,
	reg *metrics.Registry,
	gw *gateway.Client,
	normalizer *services.Normalizer,
	orders *services.OrderService,
	hubs *services.HubService,
) error {
	deskOpts := []lead.DeskOption{lead.WithObserver(reg)}
	var history api.History
	if cfg.JournalEnabled() {
		journal, err := storage.NewPostgresJournal(ctx, cfg.DSN())
		if err != nil {
			return fmt.Errorf("lead journal: %w", err)
		}
		defer journal.Close()
		deskOpts = append(deskOpts, lead.WithJournal(journal))
		history = journal
		logger.Info("Lead decisions journaled to PostgreSQL (table: lead_decisions)")
	}

	desk := lead.NewDesk(gw, lead.Config{
		VendorPhone:     cfg.VendorPhone,
		DeadlineSeconds: cfg.LeadDeadlineSeconds,
		Tick:            cfg.LeadTick,
		Normalizer:      normalizer,
		Logger:          logger,
	}, deskOpts...)
	defer desk.CloseAll()

	policy, err := poller.ParseKeyPolicy(cfg.PollKeyPolicy)
	if err != nil {
		return err
	}
	watch := poller.Start(ctx, poller.OrderSource(orders), poller.OrderKeys, poller.Options{
		Name: "orders", Interval: cfg.PollInterval, Policy: policy, Logger: logger, Observer: reg,
	})
	defer watch.Close()
	nearby := poller.Start(ctx, poller.HubSource(hubs), poller.HubKeys, poller.Options{
		Name: "nearby", Interval: cfg.PollInterval, Policy: policy, Logger: logger, Observer: reg,
	})
	defer nearby.Close()

	router := api.NewRouter(api.Deps{
		Orders:      orders,
		Leads:       desk,
		Hubs:        hubs,
		History:     history,
		OrderWatch:  watch,
		Nearby:      nearby,
		Metrics:     reg.Handler(),
		Logger:      logger,
		DefaultSpot: poller.Location{Lat: cfg.DefaultLat, Lon: cfg.DefaultLon},
		LeadContext: ctx,
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()
	logger.Info("Listening on %s", cfg.ListenAddr)

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
