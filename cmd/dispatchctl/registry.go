package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"service-dispatch/pkg/registry"
)

func newRegistryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect the activity registry",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate [path]",
		Short: "Validate an activity registry file, or the embedded one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				reg *registry.ActivityRegistry
				err error
			)
			source := "embedded registry"
			if len(args) == 1 {
				source = args[0]
				reg, err = registry.LoadRegistry(args[0])
			} else {
				reg = registry.Default()
			}
			if err != nil {
				return fmt.Errorf("%s: %w", source, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d activities ok\n", source, len(reg.Activities))
			for _, a := range reg.Activities {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s -> %s\n", a.ID, a.TaskType)
			}
			return nil
		},
	})
	return cmd
}
