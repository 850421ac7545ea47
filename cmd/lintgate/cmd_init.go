package main

import (
	"fmt"
	"os"
	"path/filepath"

	"lintgate/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var initForce bool

// initCmd writes a starter config file
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default " + config.DefaultFileName + " to the root",
	Long: `Writes the default configuration to the source root. The built-in
invocation table stays enabled; add entries under 'invocations' to replace
or extend it, and list names under 'disable' to drop some.`,
	Args: cobra.NoArgs,
	RunE: writeConfig,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing config file")
}

func writeConfig(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = filepath.Join(root, config.DefaultFileName)
	}
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}
	logger.Info("Config written", zap.String("path", path))
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
