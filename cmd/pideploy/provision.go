package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/GandemaAR/pideploy/internal/provision"
)

type provisionFlags struct {
	dryRun       bool
	upgrade      bool
	skipPackages bool
	skipBackup   bool
	settle       time.Duration
	journalLines int
	requirements string
}

func newProvisionCmd(root *rootOptions) *cobra.Command {
	var f provisionFlags

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Run the full provisioning pipeline for the selected site",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := root.resolveSite(); err != nil {
				return err
			}
			if f.requirements != "" {
				root.site.Requirements = f.requirements
			}

			prov := provision.NewProvisioner(root.siteName, root.site, root.log, os.Stdout, provision.Options{
				Upgrade:      f.upgrade,
				SkipPackages: f.skipPackages,
				SkipBackup:   f.skipBackup,
				SettleDelay:  f.settle,
				JournalLines: f.journalLines,
			})
			pipe := prov.Pipeline()

			if f.dryRun {
				fmt.Fprintf(os.Stdout, "provision plan for site %q (dry-run):\n", root.siteName)
				for _, name := range pipe.Names() {
					fmt.Fprintf(os.Stdout, "- %s\n", name)
				}
				fmt.Fprintf(os.Stdout, "- proxy: :%d -> %s:%d\n", root.site.ListenPort, root.site.BackendHost, root.site.BackendPort)
				fmt.Fprintf(os.Stdout, "- app dir: %s (user %s)\n", root.site.AppDir, root.site.User)
				fmt.Fprintln(os.Stdout, "pass --dry-run=false to execute")
				return nil
			}

			if os.Geteuid() != 0 {
				fmt.Fprintln(os.Stderr, "[pideploy] WARNING: not running as root; package and service steps will likely fail")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			results, err := pipe.Execute(ctx)
			provision.Summarize(os.Stdout, pipe.RunID, results)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "[pideploy] done: http://%s:%d proxies to %s:%d\n",
				root.site.Domain, root.site.ListenPort, root.site.BackendHost, root.site.BackendPort)
			return nil
		},
	}
	cmd.SilenceUsage = true

	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "print the plan without executing")
	cmd.Flags().BoolVar(&f.upgrade, "upgrade", false, "run apt-get upgrade during preflight")
	cmd.Flags().BoolVar(&f.skipPackages, "skip-packages", false, "skip OS package installation")
	cmd.Flags().BoolVar(&f.skipBackup, "skip-backup", false, "skip the pre-run config snapshot")
	cmd.Flags().DurationVar(&f.settle, "settle", 3*time.Second, "delay before polling the unit state after restart")
	cmd.Flags().IntVar(&f.journalLines, "journal-lines", 50, "journal lines dumped when activation fails")
	cmd.Flags().StringVar(&f.requirements, "requirements", "", "override the requirements manifest path")
	return cmd
}
