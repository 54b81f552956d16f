package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evcraddock/property-sync/internal/apperr"
)

func newEstimateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "estimate <external-id>",
		Short: "Show the current estimated price",
		Long:  "Fetch the current valuation for a property from the valuation service without storing it.",
		Args:  cobra.ExactArgs(1),
		RunE:  runEstimate,
	}
}

func runEstimate(cmd *cobra.Command, args []string) error {
	svc, err := newService(nil)
	if err != nil {
		return err
	}

	est, err := svc.Estimate(cmd.Context(), strings.TrimSpace(args[0]))
	if errors.Is(err, apperr.ErrNoMatch) {
		return printNoMatch(cmd, err)
	}
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(cmd.OutOrStdout(), est)
	}

	out := cmd.OutOrStdout()
	if _, err := fmt.Fprintf(out, "Property %s\n", est.ExternalID); err != nil {
		return err
	}
	if est.Address != "" {
		if _, err := fmt.Fprintf(out, "  Address:  %s %s\n", est.Address, est.PostalCode); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(out, "  Estimate: $%s\n", formatAmount(est.Amount))
	return err
}
