package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/placeset/pkg/model"
	"github.com/urfave/cli/v3"
)

// requestFlags returns flags describing one acquisition request
func requestFlags(req *model.FetchRequest) []cli.Flag {
	return []cli.Flag{
		&cli.FloatFlag{
			Name:        "lat",
			Usage:       "Latitude of the search circle",
			Destination: &req.Lat,
			Required:    true,
		},
		&cli.FloatFlag{
			Name:        "lng",
			Usage:       "Longitude of the search circle",
			Destination: &req.Lng,
			Required:    true,
		},
		&cli.FloatFlag{
			Name:        "radius",
			Aliases:     []string{"r"},
			Usage:       "Radius of the search circle in meters",
			Value:       1500,
			Destination: &req.Radius,
		},
		&cli.StringFlag{
			Name:        "query",
			Aliases:     []string{"q"},
			Usage:       "Boolean query, e.g. '(cafe OR bakery) AND NOT @drive-thru@'",
			Destination: &req.BooleanQuery,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "search-type",
			Usage:       "category_search, keyword_search or default",
			Value:       string(model.SearchTypeDefault),
			Destination: (*string)(&req.SearchType),
		},
		&cli.StringFlag{
			Name:        "country",
			Usage:       "Country name used in plan names",
			Destination: &req.CountryName,
		},
		&cli.StringFlag{
			Name:        "city",
			Usage:       "City name used in plan names",
			Destination: &req.CityName,
		},
		&cli.BoolFlag{
			Name:        "ids-only",
			Usage:       "Return identifiers and locations only",
			Destination: &req.IDsAndLocationOnly,
		},
		&cli.BoolFlag{
			Name:        "rating-info",
			Usage:       "Request rating and contact information",
			Destination: &req.IncludeRatingInfo,
		},
		&cli.BoolFlag{
			Name:        "sub-properties",
			Usage:       "Keep only the reduced property set",
			Destination: &req.IncludeOnlySubProperties,
		},
	}
}

func fetchCommand() *cli.Command {
	var (
		cfg    config
		req    model.FetchRequest
		full   bool
		output string
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "full",
			Usage:       "Run one coverage plan step instead of a single sample",
			Destination: &full,
		},
		&cli.StringFlag{
			Name:        "page-token",
			Usage:       "Continuation token of a coverage plan",
			Destination: &req.PageToken,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "Output file, stdout when empty",
			Destination: &output,
		},
	}
	flags = append(flags, requestFlags(&req)...)
	flags = append(flags, repositoryFlags(&cfg)...)
	flags = append(flags, providerFlags(&cfg)...)
	flags = append(flags, acquisitionFlags(&cfg)...)

	return &cli.Command{
		Name:  "fetch",
		Usage: "Acquire places for a boolean query around a point",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closer, err := cfg.newDataset(ctx)
			if err != nil {
				return err
			}
			defer closer()

			req.Action = model.ActionSample
			if full || req.PageToken != "" {
				req.Action = model.ActionFullData
			}

			result, err := uc.Fetch(ctx, &req)
			if err != nil {
				return err
			}

			w := c.Root().Writer
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return goerr.Wrap(err, "failed to create output file", goerr.V("path", output))
				}
				defer f.Close()
				w = f
			}
			return writeJSON(w, result)
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return goerr.Wrap(err, "failed to write output")
	}
	return nil
}
