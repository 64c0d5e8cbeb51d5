package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func newNamespacesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "namespaces",
		Short: "Lists the namespaces a crawl would visit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			plan := cfg.Resolve(runtime.NumCPU())
			client, err := newClient(cfg, plan, appInstance.Logger())
			if err != nil {
				return err
			}
			all, err := client.Namespaces(cmd.Context())
			if err != nil {
				return fmt.Errorf("discover namespaces: %w", err)
			}
			selected := len(plan.Truncate(all))
			out := cmd.OutOrStdout()
			for i, ns := range all {
				marker := ""
				if i >= selected {
					marker = "\t(skipped in " + plan.Env + ")"
				}
				if _, err := fmt.Fprintf(out, "%d%s\n", ns, marker); err != nil {
					return fmt.Errorf("write namespaces: %w", err)
				}
			}
			return nil
		},
	}
}
