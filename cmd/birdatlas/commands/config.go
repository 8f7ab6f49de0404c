package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration (secrets masked)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		masked := *cfg
		masked.Store.S3.AccessKey = cli.MaskSecret(cfg.Store.S3.AccessKey)
		masked.Store.S3.SecretKey = cli.MaskSecret(cfg.Store.S3.SecretKey)
		format := cli.FormatYAML
		if outputFormat == string(cli.FormatJSON) {
			format = cli.FormatJSON
		}
		return cli.Output(&masked, cli.OutputOptions{Format: format, File: outputFile})
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		fmt.Println(cfg.Path())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configPathCmd)
}
