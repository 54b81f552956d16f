package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/evcraddock/property-sync/internal/property"
)

// printJSON marshals v as indented JSON and writes it to w.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printRecordSummary prints a stored record followed by its attributes.
func printRecordSummary(out io.Writer, rec *property.Record) error {
	if _, err := fmt.Fprintf(out, "Property %s\n  Address:  %s\n  Zip:      %s\n",
		rec.ExternalID, rec.Address, rec.PostalCode); err != nil {
		return err
	}
	if amount, ok := rec.Attributes["zestimate.amount"].(string); ok {
		if _, err := fmt.Fprintf(out, "  Estimate: $%s\n", formatAmount(amount)); err != nil {
			return err
		}
	}
	if !rec.UpdatedAt.IsZero() {
		if _, err := fmt.Fprintf(out, "  Updated:  %s\n", rec.UpdatedAt.Format("2006-01-02 15:04")); err != nil {
			return err
		}
	}

	if len(rec.Attributes) == 0 {
		_, err := fmt.Fprintln(out, "\nNo attributes.")
		return err
	}
	if _, err := fmt.Fprintln(out); err != nil {
		return err
	}

	keys := make([]string, 0, len(rec.Attributes))
	for k := range rec.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(w, "ATTRIBUTE\tVALUE"); err != nil {
		return fmt.Errorf("writing table header: %w", err)
	}
	if _, err := fmt.Fprintln(w, "---------\t-----"); err != nil {
		return fmt.Errorf("writing table separator: %w", err)
	}
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", k, truncate(fmt.Sprint(rec.Attributes[k]), 60)); err != nil {
			return fmt.Errorf("writing table row: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing table: %w", err)
	}
	return nil
}

// formatAmount formats a whole-dollar string with commas. Anything that
// is not a whole number is returned unchanged.
func formatAmount(s string) string {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return s
	}
	return formatPrice(n)
}

// formatPrice formats a dollar amount as a string with commas.
func formatPrice(dollars int64) string {
	s := strconv.FormatInt(dollars, 10)
	sign := ""
	if dollars < 0 {
		// Negating math.MinInt64 overflows, so strip the sign from the digits.
		sign, s = "-", s[1:]
	}

	// Add commas
	if len(s) <= 3 {
		return sign + s
	}

	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)

	return sign + strings.Join(parts, ",")
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
