package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"shelfsync/internal/adapters/atproto"
	"shelfsync/internal/adapters/catalog"
	"shelfsync/internal/adapters/report"
	"shelfsync/internal/adapters/tracker"
	"shelfsync/internal/adapters/util"
	"shelfsync/internal/config"
	"shelfsync/internal/core/domain/ports"
	"shelfsync/internal/core/service"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newImportCmd(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a reading history export",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *configFile)
			if err != nil {
				return err
			}
			if err := promptMissing(cfg, cmd.InOrStdin(), cmd.ErrOrStderr()); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return runImport(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("source", "", "Row source: csv or rss")
	cmd.Flags().String("input", "", "Goodreads library export (CSV)")
	cmd.Flags().String("feed", "", "Goodreads shelf RSS feed URL")
	cmd.Flags().String("report", "", "Report file (.csv or .xlsx)")
	cmd.Flags().Bool("dry-run", false, "Resolve and decide without creating records")
	cmd.Flags().String("handle", "", "Handle or DID of the account to import into")
	cmd.Flags().String("password", "", "App password")
	cmd.Flags().String("ledger", "", "Run ledger database (empty disables it)")

	return cmd
}

// readSecret reads a line without echo when in is a terminal and reports
// whether it did. Tests replace it.
var readSecret = func(in io.Reader) (string, bool, error) {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "", false, nil
	}
	b, err := term.ReadPassword(int(f.Fd()))
	return string(b), true, err
}

// promptMissing asks on in for anything the import needs that no flag,
// environment variable or config file supplied. The app password is not
// echoed on a terminal.
func promptMissing(cfg *config.Config, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	ask := func(label string, dst *string, secret bool) error {
		if *dst != "" {
			return nil
		}
		fmt.Fprintf(out, "%s: ", label)

		var line string
		var err error
		hidden := false
		if secret {
			line, hidden, err = readSecret(in)
			if hidden {
				fmt.Fprintln(out)
			}
		}
		if !hidden && err == nil {
			line, err = reader.ReadString('\n')
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
		}
		*dst = strings.TrimSpace(line)
		if *dst == "" {
			return fmt.Errorf("%s is required", strings.ToLower(label))
		}
		return nil
	}

	if cfg.SourceType != "rss" {
		if err := ask("Goodreads export file", &cfg.InputPath, false); err != nil {
			return err
		}
	}
	if err := ask("Handle", &cfg.Handle, false); err != nil {
		return err
	}
	return ask("App password", &cfg.Password, true)
}

func runImport(ctx context.Context, cfg *config.Config) error {
	client := util.NewHTTPClient(cfg.HTTPTimeout, cfg.MaxRetries)
	pds := atproto.NewClient(client, cfg.IdentityURL, cfg.PLCURL)
	catalogClient := util.WithBreaker(client, cfg.CatalogFailThreshold, cfg.CatalogCooldown)

	deps := service.Deps{
		Identity: pds,
		Sessions: pds,
		Records:  pds,
		Resolver: service.NewResolver(catalog.NewOpenLibraryClient(catalogClient, cfg.CatalogBaseURL, cfg.UserAgent, cfg.CatalogRPS)),
	}

	if cfg.LedgerPath != "" {
		ledger, err := tracker.NewLedger(cfg.LedgerPath)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.LedgerPath).Msg("Run ledger unavailable, continuing without it")
		} else {
			defer ledger.Close()
			deps.Ledger = ledger
		}
	}

	return Run(ctx, cfg, service.CreateRowSource(cfg, client), deps, report.New(cfg.ReportPath))
}

// Run loads the rows, connects to the actor's repo and imports the batch.
// The report is written whenever the batch was started, including after an
// interruption. Exposed for testing.
func Run(ctx context.Context, cfg *config.Config, src ports.RowSource, deps service.Deps, writer ports.ReportWriter) error {
	batch, err := src.LoadRows(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rows: %w", err)
	}
	log.Info().Int("rows", len(batch.Rows)).Str("source", cfg.SourceType).Msg("Loaded reading history")

	pipeline, err := service.Connect(ctx, cfg, deps, cfg.Handle, cfg.Password)
	if err != nil {
		return err
	}

	rep, runErr := pipeline.Run(ctx, batch)
	if err := writer.Write(rep.Columns(), rep.Rows()); err != nil {
		return errors.Join(runErr, fmt.Errorf("failed to write report: %w", err))
	}
	return runErr
}
