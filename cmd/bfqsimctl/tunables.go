package main

import (
	"fmt"

	"github.com/cuemby/bfqsched/pkg/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var tunablesCmd = &cobra.Command{
	Use:   "tunables",
	Short: "Print the effective scheduler tunables",
	Long: `Print the scheduler's default tunables, or a file's tunables after
merging over those defaults, as YAML.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")

		cfg := config.Default()
		if file != "" {
			var err error
			cfg, err = config.LoadFile(file)
			if err != nil {
				return err
			}
		}

		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal tunables: %w", err)
		}
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	tunablesCmd.Flags().StringP("file", "f", "", "tunables YAML file to merge over the defaults (optional)")
	rootCmd.AddCommand(tunablesCmd)
}
