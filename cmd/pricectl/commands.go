package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kjannette/stationprice/internal/app"
	"github.com/kjannette/stationprice/internal/config"
	"github.com/kjannette/stationprice/internal/db"
	"github.com/kjannette/stationprice/internal/models"
	"github.com/kjannette/stationprice/internal/service"
	"github.com/kjannette/stationprice/internal/view"
)

func newMigrateCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the annotations schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if g.cfg.StoreBackend != config.StorePostgres {
				return errors.New("migrate needs STORE_BACKEND=postgres")
			}
			pool, err := db.Connect(cmd.Context(), g.cfg.DSN(), g.cfg.Pool())
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func newViewportCommand(g *globals) *cobra.Command {
	var bbox string

	cmd := &cobra.Command{
		Use:   "viewport",
		Short: "Reconcile one viewport and print the merged view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vp, err := models.ParseBBox(bbox)
			if err != nil {
				return fmt.Errorf("--bbox: %w", err)
			}

			a, err := app.New(cmd.Context(), g.cfg, g.log)
			if err != nil {
				return err
			}
			defer a.Close()

			v, err := a.Reconciler.Reconcile(cmd.Context(), vp)
			if err != nil {
				return err
			}
			return printView(cmd.OutOrStdout(), g.format, v)
		},
	}

	cmd.Flags().StringVar(&bbox, "bbox", "", "south,west,north,east")
	_ = cmd.MarkFlagRequired("bbox")
	return cmd
}

func newSubmitCommand(g *globals) *cobra.Command {
	var (
		lat, lon float64
		price    string
		id       string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Store a price for a station",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := service.ParsePrice(price)
			if err != nil {
				return err
			}
			sub := service.Submission{
				Coordinate: models.Coordinate{Lat: lat, Lon: lon},
				Price:      p,
			}
			if id != "" {
				parsed, err := models.ParseIdentity(id)
				if err != nil {
					return err
				}
				sub.ID = &parsed
			}

			a, err := app.New(cmd.Context(), g.cfg, g.log)
			if err != nil {
				return err
			}
			defer a.Close()

			ann, err := a.Writer.SubmitPrice(cmd.Context(), sub)
			if err != nil {
				return err
			}
			return printAnnotation(cmd.OutOrStdout(), g.format, ann)
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude")
	cmd.Flags().StringVar(&price, "price", "", "price, e.g. 3.79")
	cmd.Flags().StringVar(&id, "id", "", "station id (node/<id> or geo/<lat>,<lon>)")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func newExploreCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "explore",
		Short: "Pan and price interactively, one command per line on stdin",
		Long: `Reads commands from stdin:

  bbox <south>,<west>,<north>,<east>   show a viewport
  price <lat> <lon> <price> [id]       submit a price into the current view
  show                                 print the current view
  quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), g.cfg, g.log)
			if err != nil {
				return err
			}
			defer a.Close()

			sess := view.NewSession(a.Reconciler, a.Writer)
			return runExplore(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), g.format, sess)
		},
	}
}
