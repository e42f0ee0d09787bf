// Package main provides contentadmin, the maintenance CLI for contentdb.
package main

import (
	"fmt"
	"os"

	"github.com/localnerve/contentdb/internal/app"
	"github.com/localnerve/contentdb/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type cli struct {
	v          *viper.Viper
	envFile    string
	configFile string
	app        *app.App
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "contentdb-admin",
		Short: "Maintenance commands for the contentdb page content store",
		Long: `contentdb-admin runs maintenance against the same database and Redis the
service uses. Settings come from the environment (optionally a .env file),
a YAML config file, or flags, in increasing priority.`,
		SilenceUsage:       true,
		PersistentPreRunE:  c.open,
		PersistentPostRunE: c.close,
	}
	root.PersistentFlags().StringVar(&c.envFile, "env", os.Getenv("ENV_FILE"), ".env file to load")
	root.PersistentFlags().StringVar(&c.configFile, "config", "", "YAML config file with lowercase env keys (db_type, db_database, ...)")
	if err := bindSettings(c.v, root.PersistentFlags()); err != nil {
		panic(err)
	}

	root.AddCommand(
		c.migrateCmd(),
		c.sweepCmd(),
		c.reapLocksCmd(),
		c.schemaCmd(),
		c.historyCmd(),
		c.lockCmd(),
	)
	return root
}

func (c *cli) open(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(c.v, c.envFile, c.configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())

	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	c.app = a
	return nil
}

func (c *cli) close(*cobra.Command, []string) error {
	if c.app != nil {
		c.app.Close()
		c.app = nil
	}
	return nil
}
