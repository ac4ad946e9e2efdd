package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/rolecheck/internal/observability"
	"github.com/xkilldash9x/rolecheck/internal/runlog"
)

func newLogsCmd() *cobra.Command {
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Prints entries of the JSON run log",
		Example: `  rolecheck logs --level warn
  rolecheck logs --follow --logger orchestrator
  rolecheck logs --field run_id=2f1c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}

			filter, err := logFilterFromFlags(cmd)
			if err != nil {
				return err
			}
			path, _ := cmd.Flags().GetString("file")
			if path == "" {
				path = cfg.Logger.LogFile
			}
			reader, err := runlog.NewReader(path, filter, observability.GetLogger())
			if err != nil {
				return err
			}

			follow, _ := cmd.Flags().GetBool("follow")
			fromEnd, _ := cmd.Flags().GetBool("from-end")
			n, err := reader.Run(ctx, cmd.OutOrStdout(), runlog.Options{Follow: follow, FromEnd: fromEnd})
			if err != nil {
				return err
			}
			if !follow && n == 0 {
				cmd.PrintErrln("No matching entries.")
			}
			return nil
		},
	}

	logsCmd.Flags().BoolP("follow", "f", false, "Keep printing entries as they are written")
	logsCmd.Flags().Bool("from-end", false, "With --follow, skip entries already in the file")
	logsCmd.Flags().String("level", "debug", "Minimum level to print")
	logsCmd.Flags().String("logger", "", "Only print entries whose logger name contains this text")
	logsCmd.Flags().String("field", "", "Only print entries with this key=value field")
	logsCmd.Flags().String("file", "", "Log file to read (default is logger.log_file)")
	return logsCmd
}

func logFilterFromFlags(cmd *cobra.Command) (runlog.Filter, error) {
	var filter runlog.Filter

	level, _ := cmd.Flags().GetString("level")
	if err := filter.MinLevel.UnmarshalText([]byte(level)); err != nil {
		return filter, fmt.Errorf("invalid --level %q: %w", level, err)
	}
	if filter.MinLevel < zapcore.DebugLevel {
		filter.MinLevel = zapcore.DebugLevel
	}
	filter.Logger, _ = cmd.Flags().GetString("logger")

	field, _ := cmd.Flags().GetString("field")
	if field != "" {
		k, v, ok := strings.Cut(field, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return filter, fmt.Errorf("invalid --field %q: expected key=value", field)
		}
		filter.Field, filter.Value = strings.TrimSpace(k), v
	}
	return filter, nil
}
