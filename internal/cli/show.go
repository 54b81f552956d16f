package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evcraddock/property-sync/internal/apperr"
	"github.com/evcraddock/property-sync/internal/property"
	"github.com/evcraddock/property-sync/internal/store"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <external-id>",
		Short: "Show a stored property",
		Long:  "Show the stored record for a property, including all attributes.",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
}

func runShow(cmd *cobra.Command, args []string) error {
	id := strings.TrimSpace(args[0])
	if id == "" {
		return fmt.Errorf("invalid property ID: %q", args[0])
	}

	rec, err := findRecord(cmd.Context(), id)
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(cmd.OutOrStdout(), rec)
	}
	return printRecordSummary(cmd.OutOrStdout(), rec)
}

// findRecord reads a record through the API server when one is
// configured, otherwise from the local store.
func findRecord(ctx context.Context, id string) (*property.Record, error) {
	if api := newAPIClient(); api != nil {
		rec, err := api.GetProperty(ctx, id)
		if errors.Is(err, apperr.ErrNoMatch) {
			return nil, fmt.Errorf("property %s not found", id)
		}
		return rec, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer closeStore(ctx, st)

	rec, err := st.FindOne(ctx, store.Filter{ExternalID: id})
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("property %s not found", id)
	}
	return rec, err
}
