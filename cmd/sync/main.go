// Package main back-fills the local store: it refreshes the contract
// catalogs and then pulls each requested market's history through the range
// cache.
//
// Usage:
//
//	sync --markets legacy:001602,disaggregated:067651 --start 2015-01-01
//	sync --report-type legacy --all
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang-sql/civil"
	"github.com/sirupsen/logrus"

	"cot-lab/internal/app"
	"cot-lab/internal/config"
	"cot-lab/internal/domain"
	"cot-lab/internal/logging"
)

type options struct {
	configPath     string
	markets        string
	reportType     string
	all            bool
	start          string
	end            string
	refreshCatalog bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to YAML config file (default: $COT_CONFIG_FILE)")
	flag.StringVar(&opts.markets, "markets", "", "Comma-separated report_type:market_code pairs")
	flag.StringVar(&opts.reportType, "report-type", "", "Report type for --all")
	flag.BoolVar(&opts.all, "all", false, "Sync every market in the report type's catalog")
	flag.StringVar(&opts.start, "start", "", "First report date YYYY-MM-DD (default: three years before --end)")
	flag.StringVar(&opts.end, "end", "", "Last report date YYYY-MM-DD (default: today)")
	flag.BoolVar(&opts.refreshCatalog, "refresh-catalog", false, "Re-fetch catalogs before syncing")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "sync: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	start, end, err := parseBounds(opts.start, opts.end, civil.DateOf(time.Now().UTC()))
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LoggingOptions())
	if err != nil {
		return err
	}
	log := logging.Component(logger, "sync")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer core.Close()

	if opts.refreshCatalog {
		for _, rt := range domain.AllReportTypes {
			contracts, err := core.Catalog.Refresh(ctx, rt)
			if err != nil {
				return fmt.Errorf("refresh %s catalog: %w", rt, err)
			}
			log.WithFields(logrus.Fields{"report_type": rt, "contracts": len(contracts)}).Info("catalog refreshed")
		}
	}

	requests, err := parseMarkets(opts.markets)
	if err != nil {
		return err
	}
	if opts.all {
		rt, err := domain.ParseReportType(opts.reportType)
		if err != nil {
			return err
		}
		contracts, err := core.Catalog.GetContracts(ctx, rt)
		if err != nil {
			return err
		}
		for _, c := range contracts {
			requests = append(requests, domain.RangeRequest{MarketCode: c.MarketCode, ReportType: rt})
		}
	}
	if len(requests) == 0 {
		return fmt.Errorf("nothing to sync: pass --markets or --report-type with --all")
	}

	var failed int
	for _, req := range requests {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		req.Start, req.End = start, end
		entry := log.WithFields(logrus.Fields{"report_type": req.ReportType, "market_code": req.MarketCode})

		observations, err := core.Ranges.GetRange(ctx, req)
		if err != nil {
			failed++
			entry.WithError(err).Error("sync failed")
			continue
		}
		entry.WithField("observations", len(observations)).Info("synced")
	}

	log.WithFields(logrus.Fields{"markets": len(requests), "failed": failed}).Info("sync complete")
	if failed > 0 {
		return fmt.Errorf("%d of %d markets failed", failed, len(requests))
	}
	return nil
}

// parseMarkets parses "legacy:001602,disaggregated:067651".
func parseMarkets(s string) ([]domain.RangeRequest, error) {
	var out []domain.RangeRequest
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		rtName, code, ok := strings.Cut(part, ":")
		if !ok || strings.TrimSpace(code) == "" {
			return nil, fmt.Errorf("market %q: want report_type:market_code", part)
		}
		rt, err := domain.ParseReportType(strings.TrimSpace(rtName))
		if err != nil {
			return nil, fmt.Errorf("market %q: %w", part, err)
		}
		out = append(out, domain.RangeRequest{MarketCode: strings.TrimSpace(code), ReportType: rt})
	}
	return out, nil
}

// parseBounds resolves --start and --end against today.
func parseBounds(start, end string, today civil.Date) (civil.Date, civil.Date, error) {
	e := today
	if end != "" {
		d, err := civil.ParseDate(end)
		if err != nil {
			return civil.Date{}, civil.Date{}, fmt.Errorf("--end: %w", err)
		}
		e = d
	}
	s := e.AddDays(-3 * 365)
	if start != "" {
		d, err := civil.ParseDate(start)
		if err != nil {
			return civil.Date{}, civil.Date{}, fmt.Errorf("--start: %w", err)
		}
		s = d
	}
	if e.Before(s) {
		return civil.Date{}, civil.Date{}, fmt.Errorf("--end %s before --start %s", e, s)
	}
	return s, e, nil
}
