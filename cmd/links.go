package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newLinksCmd prints the application URLs discovered on the listing page.
func newLinksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "links",
		Short: "Print the application URLs found on the listing page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			links, err := appInstance.Links(cmd.Context())
			if err != nil {
				return fmt.Errorf("discover links: %w", err)
			}
			for _, link := range links {
				fmt.Fprintln(cmd.OutOrStdout(), link)
			}
			return nil
		},
	}
}
