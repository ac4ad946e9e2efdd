package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/rolecheck/internal/adspower"
	"github.com/xkilldash9x/rolecheck/internal/observability"
)

func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "Lists the browser profiles known to AdsPower",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			client := adspower.New(cfg.AdsPower, observability.GetLogger())
			profiles, err := client.ListProfiles(ctx)
			if err != nil {
				return err
			}
			return printProfiles(cmd.OutOrStdout(), profiles)
		},
	}
}

func printProfiles(w io.Writer, profiles []adspower.ProfileInfo) error {
	if len(profiles) == 0 {
		_, err := fmt.Fprintln(w, "No profiles found.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SERIAL\tUSER ID\tNAME\tGROUP\tREMARK")
	for _, p := range profiles {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.SerialNumber, p.UserID, p.Name, p.GroupName, p.Remark)
	}
	return tw.Flush()
}
