package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GandemaAR/pideploy/internal/nginx"
	"github.com/GandemaAR/pideploy/internal/provision"
	"github.com/GandemaAR/pideploy/internal/run"
	"github.com/GandemaAR/pideploy/internal/sysd"
)

func newStatusCmd(root *rootOptions) *cobra.Command {
	var journalLines int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show service and proxy status for the selected site",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := root.resolveSite(); err != nil {
				return err
			}
			ctx := cmd.Context()
			host := run.NewHost(root.log)

			prov := provision.NewProvisioner(root.siteName, root.site, root.log, os.Stdout, provision.Options{})
			unitName := prov.AppUnit().UnitName()

			units := sysd.NewManager(host, root.log)
			state, err := units.ActiveState(ctx, unitName)
			if err != nil {
				fmt.Fprintf(os.Stdout, "unit_%s=unknown (%v)\n", unitName, err)
			} else {
				fmt.Fprintf(os.Stdout, "unit_%s=%s\n", unitName, state)
			}

			web := nginx.NewDeployer(host, root.log)
			if err := web.Test(ctx); err != nil {
				fmt.Fprintf(os.Stdout, "nginx_config=invalid\n%v\n", err)
			} else {
				fmt.Fprintln(os.Stdout, "nginx_config=ok")
			}
			nginxState, err := units.ActiveState(ctx, "nginx.service")
			if err == nil {
				fmt.Fprintf(os.Stdout, "unit_nginx.service=%s\n", nginxState)
			}

			if state != "active" || journalLines > 0 {
				diag := units.Diagnose(ctx, unitName, journalLines)
				if strings.TrimSpace(diag) != "" {
					fmt.Fprintln(os.Stdout, strings.TrimRight(diag, "\n"))
				}
			}
			return nil
		},
	}
	cmd.SilenceUsage = true
	cmd.Flags().IntVar(&journalLines, "journal-lines", 0, "always dump this many journal lines (0 dumps only when inactive)")
	return cmd
}
