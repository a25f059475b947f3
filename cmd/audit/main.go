// cmd/audit/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"librecords/internal/audit"
	"librecords/internal/circulation"
	"librecords/internal/config"
	"librecords/internal/store"
	"librecords/internal/telemetry"
)

var errUnhealthy = errors.New("audit found violated invariants")

type output struct {
	Burst  *audit.BurstResult `json:"burst,omitempty"`
	Report audit.Report       `json:"report"`
}

func main() {
	burstCopy := flag.Int64("burst-copy", 0, "copy id every burst reader tries to borrow at once (0 disables the burst)")
	burstReaders := flag.String("burst-readers", "", "comma separated reader ids for the burst")
	flag.Parse()

	if err := run(*burstCopy, *burstReaders); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(burstCopy int64, burstReaders string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := telemetry.NewLogger(cfg.Debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.Options{Driver: cfg.DBDriver, DSN: cfg.DatabaseURL}, logger.Named("store"))
	if err != nil {
		return err
	}
	defer st.Close()

	auditor := audit.NewAuditor(logger)
	auditor.Register(audit.LibraryChecks(st.DB(), cfg.MaxBooksPerReader)...)

	var out output
	if burstCopy > 0 {
		readers, err := parseIDs(burstReaders)
		if err != nil {
			return err
		}
		loans := circulation.NewService(st, circulation.Policy{
			MaxLoansPerReader: cfg.MaxBooksPerReader,
			LoanDays:          cfg.LoanPeriodDays,
		}, logger, nil)

		burst := auditor.ConcurrentBorrow(ctx, loans, burstCopy, readers)
		out.Burst = &burst
		// check while the burst's loans are still open
		out.Report = auditor.Run(ctx)
		if err := auditor.Rollback(ctx, loans, burst); err != nil {
			logger.Error("return burst loans", zap.Error(err))
		}
		if !burst.Consistent() {
			logger.Error("burst let more than one borrow through", zap.Int("succeeded", burst.Succeeded))
		}
	} else {
		out.Report = auditor.Run(ctx)
	}

	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if !out.Report.Healthy() || (out.Burst != nil && !out.Burst.Consistent()) {
		return errUnhealthy
	}
	return nil
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id < 1 {
			return nil, fmt.Errorf("invalid reader id %q", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, errors.New("-burst-readers needs at least one reader id")
	}
	return ids, nil
}
