package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GandemaAR/pideploy/internal/provision"
)

func newRenderCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "render <nginx|unit|gunicorn>",
		Short:     "Print a generated configuration file to stdout",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"nginx", "unit", "gunicorn"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.resolveSite(); err != nil {
				return err
			}
			prov := provision.NewProvisioner(root.siteName, root.site, root.log, nil, provision.Options{})

			switch args[0] {
			case "nginx":
				data, err := prov.NginxSite().Render()
				if err != nil {
					return err
				}
				_, err = os.Stdout.Write(data)
				return err
			case "unit":
				data, err := prov.AppUnit().Render()
				if err != nil {
					return err
				}
				_, err = os.Stdout.Write(data)
				return err
			case "gunicorn":
				_, err := os.Stdout.Write(prov.App().GunicornConfig())
				return err
			default:
				return fmt.Errorf("unknown target %q (expected nginx, unit or gunicorn)", args[0])
			}
		},
	}
	cmd.SilenceUsage = true
	return cmd
}
