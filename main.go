package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gtoxlili/pumpRadar/collector"
	"github.com/gtoxlili/pumpRadar/config"
	"github.com/gtoxlili/pumpRadar/detector"
	"github.com/gtoxlili/pumpRadar/entity"
	"github.com/gtoxlili/pumpRadar/metrics"
	"github.com/gtoxlili/pumpRadar/ranking"
	"github.com/gtoxlili/pumpRadar/strategy"
	"github.com/gtoxlili/pumpRadar/trade"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var log = logrus.WithField("component", "main")

func main() {
	configPath := flag.String("config", os.Getenv("PUMPRADAR_CONFIG"), "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	setupLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.WithError(err).Fatal("pumpRadar stopped with error")
	}
	log.Info("pumpRadar stopped")
}

func setupLogger(c config.LogConfig) {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if c.JSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	strategies, err := strategy.Generate(cfg.Population, strategy.WithHistoryCap(cfg.Dispatcher.TradeHistoryCap))
	if err != nil {
		return err
	}
	dispatcher := trade.NewDispatcher(cfg.Dispatcher, strategies)

	det := detector.New(cfg.Detector)
	det.OnPumpDetected(func(sig entity.PumpSignal) {
		for _, variant := range trade.TimeframeVariants(sig) {
			dispatcher.OnPumpSignal(variant)
		}
	})

	src, err := collector.ResolveCollector(cfg)
	if err != nil {
		return err
	}
	symbols, err := collector.ResolveSymbols(ctx, src, cfg.Symbols)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"venue":      src.Name(),
		"symbols":    len(symbols),
		"strategies": len(strategies),
	}).Info("pumpRadar starting")

	engine := ranking.NewEngine(cfg.Report.TopN, dispatcher)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})
	g.Go(func() error {
		return src.Run(gctx, symbols, func(symbol, interval string, raw entity.RawCandle) {
			det.OnCandleUpdate(symbol, interval, raw)
			dispatcher.OnCandleUpdate(symbol, interval, raw)
		})
	})
	g.Go(func() error {
		report(gctx, cfg.Report.Interval, engine, det, dispatcher)
		return nil
	})
	g.Go(func() error {
		return serveMetrics(gctx, cfg.Metrics.Addr)
	})

	runErr := g.Wait()

	// 退出时队列已排空，输出最终结果
	final := engine.Calculate(dispatcher.Strategies())
	final.Log()
	if err := export(cfg.Export, dispatcher.Strategies()); err != nil {
		log.WithError(err).Error("export results failed")
	}
	return runErr
}

func serveMetrics(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", addr).Info("metrics endpoint listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
