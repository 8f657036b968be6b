package cmd

import (
	"strings"

	"example.com/backstage/allegro/internal/repositories"
	"example.com/backstage/allegro/internal/scheduler"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <processor>",
	Short: "Run one processor tick and exit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		harness := scheduler.NewHarness(nil, repositories.NewJobRepository(a.db), a.tracer, a.prom, a.stats, cfg.InstanceID)

		var names []string
		for _, p := range a.processors() {
			if p.Name == args[0] {
				return harness.Run(cmd.Context(), p)
			}
			names = append(names, p.Name)
		}
		return errors.Errorf("unknown processor %q, expected one of: %s", args[0], strings.Join(names, ", "))
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
