package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	cliconfig "github.com/GandemaAR/pideploy/internal/cli/config"
	"github.com/GandemaAR/pideploy/internal/provision"
	"github.com/GandemaAR/pideploy/internal/run"
)

func newDoctorCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Print local diagnostic information for troubleshooting",
		RunE: func(cmd *cobra.Command, _ []string) error {
			exe, _ := os.Executable()
			fmt.Fprintf(os.Stdout, "pideploy_executable=%s\n", strings.TrimSpace(exe))
			fmt.Fprintf(os.Stdout, "euid=%d\n", os.Geteuid())

			host := run.NewHost(root.log)
			if info, err := provision.DetectHost(cmd.Context(), host); err == nil {
				fmt.Fprintf(os.Stdout, "os=%s\n", info.PrettyName)
				fmt.Fprintf(os.Stdout, "arch=%s\n", info.Arch)
				fmt.Fprintf(os.Stdout, "apt_supported=%t\n", info.IsDebianLike())
			} else {
				fmt.Fprintf(os.Stdout, "os_error=%s\n", err.Error())
			}

			for _, tool := range []string{"apt-get", "nginx", "systemctl", "journalctl", "python3", "pkg-config"} {
				path, err := host.LookPath(tool)
				if err != nil {
					fmt.Fprintf(os.Stdout, "tool_%s=missing\n", tool)
					continue
				}
				fmt.Fprintf(os.Stdout, "tool_%s=%s\n", tool, path)
			}

			fmt.Fprintf(os.Stdout, "config_path=%s\n", root.configPath)
			cfg, err := cliconfig.Load(root.configPath)
			if err != nil {
				fmt.Fprintf(os.Stdout, "config_error=%s\n", err.Error())
				return nil
			}
			if cfg == nil {
				fmt.Fprintln(os.Stdout, "config_present=false (defaults apply)")
				return nil
			}
			fmt.Fprintln(os.Stdout, "config_present=true")
			fmt.Fprintf(os.Stdout, "current_site=%s\n", strings.TrimSpace(cfg.CurrentSite))
			names := make([]string, 0, len(cfg.Sites))
			for name := range cfg.Sites {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				site := cfg.Sites[name]
				if site == nil {
					continue
				}
				s := cliconfig.ApplyDefaults(name, site)
				fmt.Fprintf(os.Stdout, "site=%s listen=%d backend=%s:%d app=%s\n",
					name, s.ListenPort, s.BackendHost, s.BackendPort, s.AppDir)
			}
			return nil
		},
	}
	return cmd
}
