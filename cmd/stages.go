package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dvf-flood/internal/dvf"
	"github.com/sells-group/dvf-flood/internal/model"
	"github.com/sells-group/dvf-flood/internal/pipeline"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Download, clean and store DVF sales",
	Long:  "Downloads the configured DVF years and reference files, aggregates lots into sales, filters and deduplicates them, keeps coastal communes and joins commune population.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, envOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Pipeline.Ingest(ctx)
		if err != nil {
			return eris.Wrap(err, "ingest")
		}
		formatFilterStats(os.Stdout, res.Filter, len(res.Transactions))
		return nil
	},
}

var zonesCmd = &cobra.Command{
	Use:   "zones",
	Short: "Download TRI flood zones and merge them into one layer",
	Long:  "Downloads the TRI archive of each department and writes the zones of the configured layer into one shapefile, used when georisques.mode is local.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, envOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		depts, _ := cmd.Flags().GetStringSlice("dept")
		if len(depts) == 0 {
			txs, err := env.Pipeline.LatestTransactions(ctx, pipeline.StageIngest)
			if err != nil {
				return eris.Wrap(err, "zones: no --dept given and no ingested sales")
			}
			depts = pipeline.Departments(txs)
		}

		zones, err := env.Pipeline.Zones(ctx, depts)
		if err != nil {
			return eris.Wrap(err, "zones")
		}
		_, _ = fmt.Fprintf(os.Stdout, "%d zones from %d departments written to %s\n",
			len(zones), len(depts), env.Pipeline.ZoneLayerPath())
		return nil
	},
}

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Geocode sales, add distances and tag flood zones",
	Long:  "Loads the last ingested sales, resolves missing coordinates, adds town-centre, beach and station distances, classifies flood-zone membership and writes the enriched CSV.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, envOptions{geocoder: true, classifier: true, pois: true})
		if err != nil {
			return err
		}
		defer env.Close()

		txs, err := env.Pipeline.LatestTransactions(ctx, pipeline.StageIngest)
		if err != nil {
			return eris.Wrap(err, "enrich")
		}
		stats, err := env.Pipeline.Enrich(ctx, txs)
		if err != nil {
			return eris.Wrap(err, "enrich")
		}
		formatEnrichStats(os.Stdout, stats)
		return nil
	},
}

var regressCmd = &cobra.Command{
	Use:   "regress",
	Short: "Fit the hedonic models per property type",
	Long:  "Fits every model variant on the apartment and house sales and writes one result table per property type.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, envOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		spec, err := loadSpec()
		if err != nil {
			return err
		}
		txs, err := enrichedSales(cmd, env)
		if err != nil {
			return err
		}

		reports, err := env.Pipeline.Regress(ctx, txs, spec)
		if err != nil {
			return eris.Wrap(err, "regress")
		}
		for _, r := range reports {
			formatReport(os.Stdout, r)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Compare flood-zone and other prices per commune",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, envOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		txs, err := enrichedSales(cmd, env)
		if err != nil {
			return err
		}
		stats, err := env.Pipeline.Stats(ctx, txs)
		if err != nil {
			return eris.Wrap(err, "stats")
		}
		formatCommuneStats(os.Stdout, stats)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every stage in order",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		// In local mode the layer is rebuilt by the run itself.
		env, err := initPipeline(ctx, envOptions{
			geocoder:   true,
			classifier: cfg.Georisques.Mode != "local",
			pois:       true,
		})
		if err != nil {
			return err
		}
		defer env.Close()

		spec, err := loadSpec()
		if err != nil {
			return err
		}

		res, err := env.Pipeline.Run(ctx, spec)
		if err != nil {
			return eris.Wrap(err, "run")
		}
		formatFilterStats(os.Stdout, res.Ingest.Filter, len(res.Ingest.Transactions))
		formatEnrichStats(os.Stdout, res.Enrich)
		for _, r := range res.Reports {
			formatReport(os.Stdout, r)
		}
		formatCommuneStats(os.Stdout, res.Stats)
		return nil
	},
}

// enrichedSales reads the sales of the last enrich run, or the CSV named
// by --from.
func enrichedSales(cmd *cobra.Command, env *pipelineEnv) ([]model.Transaction, error) {
	from, _ := cmd.Flags().GetString("from")
	if from == "" {
		return env.Pipeline.LatestTransactions(cmd.Context(), pipeline.StageEnrich)
	}

	f, err := os.Open(from)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", from)
	}
	defer f.Close() //nolint:errcheck

	txs, err := dvf.ReadEnriched(cmd.Context(), f)
	if err != nil {
		return nil, err
	}
	zap.L().Info("enriched sales loaded", zap.String("path", from), zap.Int("sales", len(txs)))
	return txs, nil
}

func init() {
	zonesCmd.Flags().StringSlice("dept", nil, "department codes to download (default: departments of the last ingest)")
	regressCmd.Flags().String("from", "", "read sales from an enriched CSV instead of the last enrich run")
	statsCmd.Flags().String("from", "", "read sales from an enriched CSV instead of the last enrich run")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(zonesCmd)
	rootCmd.AddCommand(enrichCmd)
	rootCmd.AddCommand(regressCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(runCmd)
}
