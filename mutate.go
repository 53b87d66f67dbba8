package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/elevateanalytics/star-go/internal/rest"
)

func newInsertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insert <table>",
		Short: "Insert one or more rows",
		Long: `Insert one or more rows.

The payload is a JSON object or array of objects, given with --data
or piped on stdin with --data -:
  star insert moods --data '{"user_id":"u1","kind":"behavior"}'`,
		Args: cobra.ExactArgs(1),
		RunE: runInsert,
	}

	cmd.Flags().String("data", "", "row payload as JSON, or - to read stdin")
	cmd.Flags().Bool("minimal", false, "do not return the written rows")

	return cmd
}

func newUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <table>",
		Short: "Update rows matching the given filters",
		Args:  cobra.ExactArgs(1),
		RunE:  runUpdate,
	}

	addFilterFlags(cmd)
	cmd.Flags().String("data", "", "column changes as a JSON object, or - to read stdin")
	cmd.Flags().Bool("minimal", false, "do not return the written rows")

	return cmd
}

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <table>",
		Short: "Delete rows matching the given filters",
		Args:  cobra.ExactArgs(1),
		RunE:  runDelete,
	}

	addFilterFlags(cmd)
	cmd.Flags().Bool("minimal", false, "do not return the deleted rows")

	return cmd
}

func newUpsertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upsert <table>",
		Short: "Insert rows, merging duplicates on conflict",
		Args:  cobra.ExactArgs(1),
		RunE:  runUpsert,
	}

	cmd.Flags().String("data", "", "row payload as JSON, or - to read stdin")
	cmd.Flags().String("on-conflict", "", "comma separated conflict target columns")
	cmd.Flags().Bool("minimal", false, "do not return the written rows")

	return cmd
}

// readPayload decodes the --data flag, reading stdin when its value is "-".
func readPayload(cmd *cobra.Command) (json.RawMessage, error) {
	data, err := cmd.Flags().GetString("data")
	if err != nil {
		return nil, err
	}

	if data == "" {
		return nil, fmt.Errorf("--data is required")
	}

	raw := []byte(data)
	if data == "-" {
		raw, err = io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
	}

	if !json.Valid(raw) {
		return nil, fmt.Errorf("--data is not valid JSON")
	}

	return json.RawMessage(raw), nil
}

// mutationDest returns the decode target, or nil when --minimal asked
// for a return=minimal write.
func mutationDest(cmd *cobra.Command) (*json.RawMessage, error) {
	minimal, err := cmd.Flags().GetBool("minimal")
	if err != nil {
		return nil, err
	}

	if minimal {
		return nil, nil //nolint:nilnil // nil dest selects return=minimal
	}

	return new(json.RawMessage), nil
}

func printMutationResult(cmd *cobra.Command, dest *json.RawMessage) error {
	if dest == nil {
		statusf("done\n")
		return nil
	}

	return printRawJSON(cmd.OutOrStdout(), *dest)
}

func runInsert(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	payload, err := readPayload(cmd)
	if err != nil {
		return err
	}

	dest, err := mutationDest(cmd)
	if err != nil {
		return err
	}

	q := a.gateway.From(args[0])
	if dest == nil {
		err = q.Insert(cmd.Context(), payload, nil)
	} else {
		err = q.Insert(cmd.Context(), payload, dest)
	}
	if err != nil {
		return err
	}

	return printMutationResult(cmd, dest)
}

// requireFilters rejects a mutation that would touch the whole table.
func requireFilters(q *rest.Query) error {
	if !q.HasFilters() {
		return fmt.Errorf("refusing to run without filters, pass --eq/--gte/--lte/--in/--is")
	}

	return nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	payload, err := readPayload(cmd)
	if err != nil {
		return err
	}

	q := a.gateway.From(args[0])
	if err := applyFilters(cmd, q); err != nil {
		return err
	}

	if err := requireFilters(q); err != nil {
		return err
	}

	dest, err := mutationDest(cmd)
	if err != nil {
		return err
	}

	if dest == nil {
		err = q.Update(cmd.Context(), payload, nil)
	} else {
		err = q.Update(cmd.Context(), payload, dest)
	}
	if err != nil {
		return err
	}

	return printMutationResult(cmd, dest)
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	q := a.gateway.From(args[0])
	if err := applyFilters(cmd, q); err != nil {
		return err
	}

	if err := requireFilters(q); err != nil {
		return err
	}

	dest, err := mutationDest(cmd)
	if err != nil {
		return err
	}

	if dest == nil {
		err = q.Delete(cmd.Context(), nil)
	} else {
		err = q.Delete(cmd.Context(), dest)
	}
	if err != nil {
		return err
	}

	return printMutationResult(cmd, dest)
}

func runUpsert(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	payload, err := readPayload(cmd)
	if err != nil {
		return err
	}

	onConflict, err := cmd.Flags().GetString("on-conflict")
	if err != nil {
		return err
	}

	dest, err := mutationDest(cmd)
	if err != nil {
		return err
	}

	q := a.gateway.From(args[0])
	if dest == nil {
		err = q.Upsert(cmd.Context(), payload, onConflict, nil)
	} else {
		err = q.Upsert(cmd.Context(), payload, onConflict, dest)
	}
	if err != nil {
		return err
	}

	return printMutationResult(cmd, dest)
}
