package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evcraddock/property-sync/internal/apperr"
	"github.com/evcraddock/property-sync/internal/client"
	"github.com/evcraddock/property-sync/internal/property"
	"github.com/evcraddock/property-sync/internal/syncer"
)

func newSyncCmd() *cobra.Command {
	var q property.LookupQuery
	var mode string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Look up a property and sync it into the store",
		Long: "Look up a property by address and postal code, or by external id, and write it " +
			"to the store. insert-only leaves an existing record untouched; upsert overwrites it.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, q, mode)
		},
	}

	cmd.Flags().StringVar(&q.Address, "address", "", "street address")
	cmd.Flags().StringVar(&q.PostalCode, "zip", "", "postal code")
	cmd.Flags().StringVar(&q.ExternalID, "id", "", "external property id")
	cmd.Flags().StringVar(&mode, "mode", "insert-only", "sync mode (insert-only|upsert)")
	cmd.MarkFlagsRequiredTogether("address", "zip")
	cmd.MarkFlagsMutuallyExclusive("address", "id")
	cmd.MarkFlagsOneRequired("address", "id")

	return cmd
}

func runSync(cmd *cobra.Command, q property.LookupQuery, modeName string) error {
	mode, err := syncer.ParseMode(modeName)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if api := newAPIClient(); api != nil {
		return runRemoteSync(cmd, api, q, mode)
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(ctx, st)

	svc, err := newService(st)
	if err != nil {
		return err
	}

	res, err := svc.FetchAndSync(ctx, q, mode)
	if errors.Is(err, apperr.ErrNoMatch) {
		return printNoMatch(cmd, err)
	}
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(cmd.OutOrStdout(), res)
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", res.ExternalID, res.Outcome, mode)
	return err
}

func runRemoteSync(cmd *cobra.Command, api *client.Client, q property.LookupQuery, mode syncer.Mode) error {
	res, err := api.Sync(cmd.Context(), q, mode)
	if errors.Is(err, apperr.ErrNoMatch) {
		return printNoMatch(cmd, err)
	}
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(cmd.OutOrStdout(), res)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", res.ExternalID, res.Outcome, mode)
	return err
}

// printNoMatch reports a lookup that matched nothing. It is not a failure.
func printNoMatch(cmd *cobra.Command, cause error) error {
	if isJSON() {
		return printJSON(cmd.OutOrStdout(), map[string]string{
			"outcome": "no_match",
			"message": cause.Error(),
		})
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "no match: %v\n", cause)
	return err
}
