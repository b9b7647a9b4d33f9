package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"service-dispatch/internal/models"
)

func newProviderCmd(opts *rootOptions, with sessionRunner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Manage the provider directory",
	}

	get := &cobra.Command{
		Use:   "get <provider-id>",
		Short: "Show a provider",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(cmd *cobra.Command, s *session, args []string) error {
			p, err := s.providers.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		}),
	}

	var file string
	register := &cobra.Command{
		Use:   "register -f provider.json",
		Short: "Register or update a provider from a JSON document",
		Args:  cobra.NoArgs,
		RunE: with(func(cmd *cobra.Command, s *session, _ []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var p models.Provider
			if err := json.Unmarshal(data, &p); err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}
			if err := s.providers.Register(cmd.Context(), &p); err != nil {
				return err
			}
			if opts.jsonOutput() {
				return printJSON(cmd.OutOrStdout(), p)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", p.ID)
			return nil
		}),
	}
	register.Flags().StringVarP(&file, "file", "f", "", "provider JSON file")
	_ = register.MarkFlagRequired("file")

	var available bool
	availability := &cobra.Command{
		Use:   "availability <provider-id>",
		Short: "Mark a provider available or unavailable",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(cmd *cobra.Command, s *session, args []string) error {
			if err := s.providers.SetAvailability(cmd.Context(), args[0], available); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s available=%t\n", args[0], available)
			return nil
		}),
	}
	availability.Flags().BoolVar(&available, "available", true, "new availability")

	deactivate := &cobra.Command{
		Use:   "deactivate <provider-id>",
		Short: "Remove a provider from matching",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(cmd *cobra.Command, s *session, args []string) error {
			if err := s.providers.Deactivate(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s deactivated\n", args[0])
			return nil
		}),
	}

	cmd.AddCommand(get, register, availability, deactivate)
	return cmd
}
