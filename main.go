package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	appconfig "accountflow/config"
	"accountflow/internal/bingx"
	"accountflow/internal/bitget"
	"accountflow/internal/bitkua"
	"accountflow/internal/exchange"
	"accountflow/internal/hub"
	"accountflow/internal/kucoin"
	"accountflow/logger"
	"accountflow/models"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := appconfig.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Accountflow.Name,
		"version": cfg.Accountflow.Version,
	}).Info("starting accountflow")

	if cfg.Metrics.Enabled {
		logger.InitCloudWatch(cfg.Metrics.Region, cfg.Metrics.Namespace)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := hub.New(cfg.Hub.Buffer)
	defer h.Close()

	server := hub.NewServer(h, cfg.Hub.Addr)

	var services []exchange.Service
	if cfg.Exchanges.Bingx.Enabled {
		services = append(services, bingx.NewService(cfg.Exchanges.Bingx, h, cfg.Cache.Dir))
	}
	if cfg.Exchanges.Bitget.Enabled {
		services = append(services, bitget.NewService(cfg.Exchanges.Bitget, h, cfg.Cache.Dir))
	}
	if cfg.Exchanges.Kucoin.Enabled {
		services = append(services, kucoin.NewService(cfg.Exchanges.Kucoin, h, cfg.Cache.Dir))
	}

	for _, svc := range services {
		if err := svc.Start(ctx); err != nil {
			log.WithError(err).WithField("exchange", svc.Name()).Error("failed to start exchange service")
			os.Exit(1)
		}
		log.WithField("exchange", svc.Name()).Info("exchange service started")
	}

	var bots *bitkua.Service
	if cfg.Bitkua.Enabled {
		bots = bitkua.NewService(cfg.Bitkua, h)
		if err := bots.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start bitkua service")
			os.Exit(1)
		}
		log.Info("bitkua service started")
	}

	byName := make(map[string]exchange.Service, len(services))
	for _, svc := range services {
		byName[svc.Name()] = svc
	}
	server.SetCommandHandler(func(cmdCtx context.Context, cmd hub.Command) {
		switch cmd.Type {
		case hub.CommandLoadKLines:
			svc, ok := byName[cmd.Exchange]
			if !ok {
				log.WithField("exchange", cmd.Exchange).Warn("kline command for unknown exchange")
				return
			}
			if err := svc.LoadSymbolKLines(cmdCtx, cmd.Symbol, models.Period(cmd.Period)); err != nil {
				log.WithError(err).WithFields(logger.Fields{
					"exchange": cmd.Exchange,
					"symbol":   cmd.Symbol,
					"period":   cmd.Period,
				}).Warn("failed to load klines")
			}
		case hub.CommandRemoveKLines:
			svc, ok := byName[cmd.Exchange]
			if !ok {
				log.WithField("exchange", cmd.Exchange).Warn("kline command for unknown exchange")
				return
			}
			svc.RemoveSymbolKLines(cmd.Symbol, models.Period(cmd.Period))
		case hub.CommandBotAction:
			if bots == nil {
				log.Warn("bot action received but bitkua is disabled")
				return
			}
			var action bitkua.Action
			if err := json.Unmarshal(cmd.Action, &action); err != nil {
				log.WithError(err).Warn("malformed bot action")
				return
			}
			bots.ProcessAction(cmdCtx, action)
		default:
			log.WithField("type", cmd.Type).Warn("unknown command type")
		}
	})

	if err := server.Start(); err != nil {
		log.WithError(err).Error("failed to start hub server")
		os.Exit(1)
	}
	defer server.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.WithField("signal", sig.String()).Info("shutting down")

	cancel()
	if bots != nil {
		bots.Stop()
	}
	for _, svc := range services {
		svc.Stop()
	}

	log.Info("accountflow stopped")
}
