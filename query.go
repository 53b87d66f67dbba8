package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/elevateanalytics/star-go/internal/cache"
	"github.com/elevateanalytics/star-go/internal/rest"
)

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <table>",
		Short: "Query rows from a table",
		Long: `Query rows from a table.

Filters repeat and combine, e.g.:
  star get moods --eq user_id=u1 --gte logged_at=2026-03-01 --order logged_at:desc --limit 20`,
		Args: cobra.ExactArgs(1),
		RunE: runGet,
	}

	addFilterFlags(cmd)
	cmd.Flags().String("select", "", "columns to return (default all)")
	cmd.Flags().StringArray("order", nil, "ordering, col or col:desc (repeatable, call order wins)")
	cmd.Flags().Int("limit", 0, "maximum number of rows")
	cmd.Flags().Bool("one", false, "require exactly one row")
	cmd.Flags().Bool("optional", false, "return at most one row, empty output when absent")
	cmd.Flags().Bool("offline", false, "read the last pulled snapshot instead of the backend")

	return cmd
}

// addFilterFlags registers the filter flags shared by get/update/delete.
func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringArray("eq", nil, "equality filter col=value (value 'null' matches NULL)")
	cmd.Flags().StringArray("gte", nil, "range filter col=value (column >= value)")
	cmd.Flags().StringArray("lte", nil, "range filter col=value (column <= value)")
	cmd.Flags().StringArray("in", nil, "membership filter col=v1,v2,...")
	cmd.Flags().StringArray("is", nil, "identity filter col=null|true|false")
}

// splitFilterArg parses a col=value flag argument.
func splitFilterArg(arg string) (string, string, error) {
	col, val, ok := strings.Cut(arg, "=")
	if !ok || col == "" {
		return "", "", fmt.Errorf("filter %q must be col=value", arg)
	}

	return col, val, nil
}

// filterValue maps the literal "null" onto a nil filter value so
// equality-against-null is expressible from the command line.
func filterValue(val string) any {
	if val == "null" {
		return nil
	}

	return val
}

// applyFilters accumulates the filter flags onto the query.
func applyFilters(cmd *cobra.Command, q *rest.Query) error {
	kinds := []struct {
		flag  string
		apply func(col string, val string)
	}{
		{"eq", func(col, val string) { q.Eq(col, filterValue(val)) }},
		{"gte", func(col, val string) { q.Gte(col, filterValue(val)) }},
		{"lte", func(col, val string) { q.Lte(col, filterValue(val)) }},
		{"is", func(col, val string) { q.Is(col, filterValue(val)) }},
		{"in", func(col, val string) {
			parts := strings.Split(val, ",")
			values := make([]any, len(parts))
			for i, p := range parts {
				values[i] = filterValue(p)
			}
			q.In(col, values...)
		}},
	}

	for _, k := range kinds {
		args, err := cmd.Flags().GetStringArray(k.flag)
		if err != nil {
			return err
		}

		for _, arg := range args {
			col, val, err := splitFilterArg(arg)
			if err != nil {
				return err
			}

			k.apply(col, val)
		}
	}

	return nil
}

// applyOrders parses --order values (col or col:desc) in call order.
func applyOrders(cmd *cobra.Command, q *rest.Query) error {
	orders, err := cmd.Flags().GetStringArray("order")
	if err != nil {
		return err
	}

	for _, o := range orders {
		col, dir, hasDir := strings.Cut(o, ":")
		if col == "" {
			return fmt.Errorf("order %q must be col or col:desc", o)
		}

		switch {
		case !hasDir, dir == "asc":
			q.Order(col, true)
		case dir == "desc":
			q.Order(col, false)
		default:
			return fmt.Errorf("order direction %q must be asc or desc", dir)
		}
	}

	return nil
}

// buildGetQuery assembles the read query from the command's flags.
func buildGetQuery(cmd *cobra.Command, a *app, table string) (*rest.Query, error) {
	q := a.gateway.From(table)

	if cols, err := cmd.Flags().GetString("select"); err != nil {
		return nil, err
	} else if cols != "" {
		q.Select(cols)
	}

	if err := applyFilters(cmd, q); err != nil {
		return nil, err
	}

	if err := applyOrders(cmd, q); err != nil {
		return nil, err
	}

	if limit, err := cmd.Flags().GetInt("limit"); err != nil {
		return nil, err
	} else if limit > 0 {
		q.Limit(limit)
	}

	return q, nil
}

func runGet(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	table := args[0]

	q, err := buildGetQuery(cmd, a, table)
	if err != nil {
		return err
	}

	offline, err := cmd.Flags().GetBool("offline")
	if err != nil {
		return err
	}

	if offline {
		return runGetOffline(cmd, a, table, q.QueryString())
	}

	one, _ := cmd.Flags().GetBool("one")
	optional, _ := cmd.Flags().GetBool("optional")

	switch {
	case one:
		var row map[string]any
		if err := q.One(cmd.Context(), &row); err != nil {
			return err
		}

		return printJSON(cmd.OutOrStdout(), row)
	case optional:
		var row map[string]any

		found, err := q.Optional(cmd.Context(), &row)
		if err != nil {
			return err
		}

		if !found {
			statusf("no matching row\n")
			return nil
		}

		return printJSON(cmd.OutOrStdout(), row)
	default:
		var rows json.RawMessage
		if err := q.Rows(cmd.Context(), &rows); err != nil {
			return err
		}

		return printRawJSON(cmd.OutOrStdout(), rows)
	}
}

// runGetOffline serves the read from the last pulled snapshot.
func runGetOffline(cmd *cobra.Command, a *app, table, queryString string) error {
	if one, _ := cmd.Flags().GetBool("one"); one {
		return fmt.Errorf("--offline returns row sets only")
	}

	if optional, _ := cmd.Flags().GetBool("optional"); optional {
		return fmt.Errorf("--offline returns row sets only")
	}

	store, err := cache.Open(a.cfg.CachePath, a.logger)
	if err != nil {
		return err
	}
	defer store.Close()

	snap, found, err := store.LoadTable(cmd.Context(), table, queryString)
	if err != nil {
		return err
	}

	if !found {
		return fmt.Errorf("no snapshot for %s with these filters (run 'star pull')", table)
	}

	statusf("snapshot from %s\n", snap.FetchedAt.Format("2006-01-02 15:04:05"))

	return printRawJSON(cmd.OutOrStdout(), snap.Payload)
}
