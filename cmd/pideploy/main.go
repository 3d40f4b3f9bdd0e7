package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cliconfig "github.com/GandemaAR/pideploy/internal/cli/config"
	"github.com/GandemaAR/pideploy/internal/logging"
)

type rootOptions struct {
	configPath string
	siteName   string
	debug      bool
	jsonLogs   bool

	log  *zap.Logger
	site *cliconfig.Site
}

// resolveSite loads the config file and picks the target site. A missing
// config file resolves to the stock defaults.
func (r *rootOptions) resolveSite() error {
	cfg, err := cliconfig.Load(r.configPath)
	if err != nil {
		return err
	}
	site, name, err := cfg.Resolve(r.siteName)
	if err != nil {
		return err
	}
	r.site = site
	r.siteName = name
	return nil
}

func main() {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "pideploy",
		Short: "Provision a Debian-family host to serve a Flask application",
	}
	defaultConfig := os.Getenv("PIDEPLOY_CONFIG")
	if defaultConfig == "" {
		defaultConfig = cliconfig.DefaultConfigPath()
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfig, "path to pideploy config file (default $HOME/.pideploy/config)")
	rootCmd.PersistentFlags().StringVar(&opts.siteName, "site", "", "site name within the config (overrides currentSite)")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&opts.jsonLogs, "log-json", false, "emit JSON logs instead of console output")
	rootCmd.PersistentPreRun = func(_ *cobra.Command, _ []string) {
		opts.log = logging.New(logging.Options{Debug: opts.debug, JSON: opts.jsonLogs})
	}

	rootCmd.AddCommand(newProvisionCmd(opts))
	rootCmd.AddCommand(newStatusCmd(opts))
	rootCmd.AddCommand(newRenderCmd(opts))
	rootCmd.AddCommand(newDoctorCmd(opts))

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
