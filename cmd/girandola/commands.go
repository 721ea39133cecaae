package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmynk/girandola/internal/capture"
	"github.com/mmynk/girandola/internal/client"
	"github.com/mmynk/girandola/internal/export"
	"github.com/mmynk/girandola/internal/geo"
	"github.com/mmynk/girandola/internal/models"
)

func newListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every marker, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			markers, err := c.ListMarkers(ctx)
			if err != nil {
				return err
			}
			printMarkers(cmd.OutOrStdout(), markers)
			return nil
		},
	}
}

func newDropCmd(opts *globalOptions) *cobra.Command {
	var (
		lat, lng, accuracy float64
		pick               bool
		threshold          float64
	)

	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Drop a marker from a GPS reading or a picked point",
		Long: `Drop a marker.

Without --pick the coordinates are treated as a GPS reading and must come
with an accuracy within the threshold. With --pick they are a point chosen
on the map and no accuracy is needed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if math.IsNaN(threshold) || threshold <= 0 {
				return fmt.Errorf("--threshold must be a positive number of metres, got %v", threshold)
			}
			if !pick && !cmd.Flags().Changed("accuracy") {
				return errors.New("--accuracy is required for a GPS reading; use --pick for a map point")
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			provider := geo.Select(geo.Environment{Locator: geo.NewStaticLocator(lat, lng, accuracy)})
			flow := capture.NewFlow(capture.Deps{
				Provider: provider,
				Gateway:  c,
				Fetcher:  c,
				Gate:     &capture.AccuracyGate{Threshold: threshold},
			})

			if pick {
				flow.StartPicking()
				if err := flow.MapClick(lat, lng); err != nil {
					return err
				}
			} else {
				cand, err := flow.UseGPS(ctx)
				if errors.Is(err, capture.ErrAccuracyTooLow) {
					return fmt.Errorf("accuracy %.1f m is above %.1f m; move to open sky or use --pick", *cand.Accuracy, threshold)
				}
				if err != nil {
					return err
				}
			}

			marker, err := flow.Confirm(ctx)
			if errors.Is(err, client.ErrUnauthorized) {
				return fmt.Errorf("sign in first (girandola login): %w", err)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Marker %s saved at %.6f, %.6f\n", marker.ID, marker.Lat, marker.Lng)
			return nil
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude in decimal degrees")
	cmd.Flags().Float64Var(&lng, "lng", 0, "longitude in decimal degrees")
	cmd.Flags().Float64Var(&accuracy, "accuracy", 0, "GPS accuracy radius in metres")
	cmd.Flags().BoolVar(&pick, "pick", false, "treat the coordinates as a map pick")
	cmd.Flags().Float64Var(&threshold, "threshold", capture.DefaultAccuracyThreshold, "largest accepted accuracy in metres")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lng")
	cmd.MarkFlagsMutuallyExclusive("pick", "accuracy")
	return cmd
}

func newExportCmd(opts *globalOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export your own markers to CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			markers, err := c.ExportMine(ctx)
			if err != nil {
				return err
			}
			if len(markers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No data to export.")
				return nil
			}

			if out == "-" {
				return export.WriteCSV(cmd.OutOrStdout(), markers)
			}
			if err := writeCSVFile(out, markers); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d markers to %s\n", len(markers), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", export.DefaultFilename, "output file, - for stdout")
	return cmd
}

func newTopCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "top",
		Short: "Show the contributor leaderboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			contributors, err := c.Contributors(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RANK\tNAME\tMARKERS")
			for _, contributor := range contributors {
				fmt.Fprintf(tw, "%d\t%s\t%d\n", contributor.Rank, contributor.Name, contributor.Count)
			}
			return tw.Flush()
		},
	}
}

func newLoginCmd(opts *globalOptions) *cobra.Command {
	var idToken string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange a Google ID token for a session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			result, err := c.NativeSignIn(ctx, idToken)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Signed in as %s\n", result.User.Email)
			fmt.Fprintln(cmd.OutOrStdout(), result.Token)
			return nil
		},
	}
	cmd.Flags().StringVar(&idToken, "id-token", "", "Google ID token")
	_ = cmd.MarkFlagRequired("id-token")
	return cmd
}

func newWhoamiCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			session, err := c.Session(ctx)
			if err != nil {
				return err
			}
			if !session.Authenticated {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s>\n", session.User.Name, session.User.Email)
			return nil
		},
	}
}

// writeCSVFile writes markers to path, removing the file if any step fails.
func writeCSVFile(path string, markers []models.Marker) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()
	return export.WriteCSV(f, markers)
}

func printMarkers(w io.Writer, markers []models.Marker) {
	if len(markers) == 0 {
		fmt.Fprintln(w, "No markers yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tLAT\tLNG\tOWNER")
	for _, m := range markers {
		fmt.Fprintf(tw, "%s\t%.6f\t%.6f\t%s\n", m.CreatedAt.Local().Format(time.DateTime), m.Lat, m.Lng, m.OwnerEmail)
	}
	_ = tw.Flush()
}
