package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/guestlist/internal/core"
)

// serviceFactory builds the Service a command runs against. Commands call it
// lazily so that --help works without any configuration.
type serviceFactory func() (*core.Service, error)

type rootOptions struct {
	eventID string
}

func newRootCmd(newService serviceFactory) *cobra.Command {
	var opts rootOptions

	cmd := &cobra.Command{
		Use:           "guestctl",
		Short:         "Import and export event guest lists",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.eventID, "event", "e", "", "Event ID (required)")
	_ = cmd.MarkPersistentFlagRequired("event")

	cmd.AddCommand(
		newImportCmd(&opts, newService),
		newExportCmd(&opts, newService),
		newListCmd(&opts, newService),
	)
	return cmd
}

func newImportCmd(root *rootOptions, newService serviceFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Create every guest in a CSV file, stopping at the first rejected row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			res, err := svc.Import(cmd.Context(), root.eventID, filepath.Base(args[0]), f)
			var importErr *core.ImportError
			if errors.As(err, &importErr) {
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d rows before the failure\n", res.Submitted, res.TotalRows)
				return err
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d rows", res.Submitted, res.TotalRows)
			if res.Dropped > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), " (%d without a name skipped)", res.Dropped)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "; %d guests on the list\n", res.Snapshot.Len())
			return nil
		},
	}
}

func newExportCmd(root *rootOptions, newService serviceFactory) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the guest list as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}

			file, err := svc.Export(cmd.Context(), root.eventID)
			if err != nil {
				return err
			}

			if output == "" {
				_, err = cmd.OutOrStdout().Write(file.Data)
				return err
			}
			if output == "." {
				output = file.Name
			}
			if err := os.WriteFile(output, file.Data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", `Output file ("." for guest-list-{event}.csv, default stdout)`)
	return cmd
}

func newListCmd(root *rootOptions, newService serviceFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the guest list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}

			snap, err := svc.Refresh(cmd.Context(), root.eventID)
			if err != nil {
				return err
			}
			return printGuests(cmd.OutOrStdout(), snap)
		},
	}
}

func printGuests(w io.Writer, snap core.Snapshot) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tPHONE\tSTATUS")
	for _, g := range snap.Guests {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", g.ID, g.Name, g.Email, g.Phone, g.Status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d guests\n", snap.Len())
	return err
}
