package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rolecheck/api/schemas"
	"github.com/xkilldash9x/rolecheck/internal/adspower"
	"github.com/xkilldash9x/rolecheck/internal/config"
	"github.com/xkilldash9x/rolecheck/internal/observability"
	"github.com/xkilldash9x/rolecheck/internal/orchestrator"
	"github.com/xkilldash9x/rolecheck/internal/results"
	"github.com/xkilldash9x/rolecheck/internal/sheets"
	"github.com/xkilldash9x/rolecheck/internal/store"
)

// newCheckCmd creates and configures the `check` command.
func newCheckCmd() *cobra.Command {
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Checks the roles of every listed username on every listed server",
		Long: `Reads server links and usernames from the spreadsheet, opens Discord in
an AdsPower browser profile and appends one result row per (server, username).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			var flags checkFlags
			flags.local, _ = cmd.Flags().GetBool("local")
			flags.echo, _ = cmd.Flags().GetBool("echo")
			return runCheck(ctx, cmd.OutOrStdout(), cfg, flags, observability.GetLogger())
		},
	}

	checkCmd.Flags().Bool("parallel", false, "Spread servers across all valid profiles")
	checkCmd.Flags().Int("workers", 2, "Maximum number of concurrent browsers in parallel mode")
	checkCmd.Flags().Int("tasks-per-profile", 1, "Maximum concurrent tasks sharing one profile")
	checkCmd.Flags().Bool("local", false, "Launch a local Chrome instead of AdsPower profiles")
	checkCmd.Flags().Bool("headless", false, "Run the local Chrome headless")
	checkCmd.Flags().Bool("echo", false, "Print every result row as it is saved")
	checkCmd.Flags().String("database-url", "", "PostgreSQL URL for archiving results")
	checkCmd.Flags().String("spreadsheet", "", "Google spreadsheet ID")
	return checkCmd
}

// checkFlags holds the check options that are not part of the config.
type checkFlags struct {
	local bool
	echo  bool
}

// archiveSink is a store that can take records one at a time or in a batch.
type archiveSink interface {
	results.Sink
	orchestrator.Archive
}

// runCheck wires the spreadsheet, browser factory and optional archive into an
// orchestrator and runs it once.
func runCheck(ctx context.Context, out io.Writer, cfg *config.Config, flags checkFlags, logger *zap.Logger) error {
	client, err := sheets.NewClient(ctx, cfg.Sheets, logger)
	if err != nil {
		return err
	}
	workbook := sheets.NewWorkbook(client, cfg.Sheets, logger)

	var provisioner orchestrator.Provisioner
	if flags.local {
		logger.Info("Using a local Chrome instead of AdsPower.")
	} else {
		provisioner = adspower.New(cfg.AdsPower, logger)
	}
	factory := orchestrator.NewBrowserFactory(cfg, provisioner, logger)

	var archive archiveSink
	if cfg.Database.URL != "" {
		st, err := store.Connect(ctx, cfg.Database.URL, logger)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}
		archive = st
	}

	var echo io.Writer
	if flags.echo {
		echo = out
	}
	sink, opts := recordSinks(workbook, archive, cfg.Database.Stream, echo)
	orch, err := orchestrator.New(cfg, logger, workbook, factory, sink, opts...)
	if err != nil {
		return err
	}

	summary, runErr := orch.Run(ctx)
	printSummary(out, summary)
	if runErr != nil {
		return runErr
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("check aborted by user signal")
	}
	return nil
}

// recordSinks builds the sink every record is saved through. A streaming archive
// joins it; otherwise the archive gets the whole run in one batch. A non-nil echo
// receives one line per saved record.
func recordSinks(primary results.Sink, archive archiveSink, stream bool, echo io.Writer) (results.Sink, []orchestrator.Option) {
	sinks := results.MultiSink{primary}
	var opts []orchestrator.Option
	if archive != nil {
		if stream {
			sinks = append(sinks, archive)
		} else {
			opts = append(opts, orchestrator.WithArchive(archive))
		}
	}
	if echo != nil {
		sinks = append(sinks, echoSink(echo))
	}
	if len(sinks) == 1 {
		return primary, opts
	}
	return sinks, opts
}

// echoSink prints records to w. Parallel workers save concurrently, so writes are serialized.
func echoSink(w io.Writer) results.Sink {
	var mu sync.Mutex
	return results.SinkFunc(func(_ context.Context, rec schemas.Record) error {
		mu.Lock()
		defer mu.Unlock()
		status := "found"
		switch {
		case rec.Error != "":
			status = "error: " + rec.Error
		case !rec.Found:
			status = "not found"
		}
		_, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", rec.ServerURL, rec.Username, rec.Roles, status)
		return err
	})
}

func printSummary(w io.Writer, s orchestrator.Summary) {
	fmt.Fprintf(w, "Run %s (%s) finished in %s\n", s.RunID, s.Mode, s.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  servers:   %d\n", s.Servers)
	fmt.Fprintf(w, "  usernames: %d\n", s.Usernames)
	fmt.Fprintf(w, "  checked:   %d (found %d, failed %d)\n", s.Checked, s.Found, s.Failed)
	fmt.Fprintf(w, "  saved:     %d (failed %d)\n", s.Saved, s.SaveFailed)
	for _, oc := range s.Outcomes {
		if !oc.Success {
			fmt.Fprintf(w, "  task %s on %s [%s]: %s\n", oc.Serial, oc.ServerURL, oc.ErrorKind, oc.Error)
		}
	}
}
