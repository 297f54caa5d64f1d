package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mdsync/mdsync/internal/config"
	"github.com/mdsync/mdsync/internal/utils"
	"github.com/mdsync/mdsync/pkg/export"
	"github.com/mdsync/mdsync/pkg/manga"
	"github.com/mdsync/mdsync/pkg/platforms"
	"github.com/mdsync/mdsync/pkg/platforms/mangadex"
	"github.com/mdsync/mdsync/pkg/platforms/mangaupdates"
	"github.com/mdsync/mdsync/pkg/storage"
	"github.com/spf13/cobra"
)

// Exporter names, in the order they are offered and run.
const (
	exporterCSV          = "CSV"
	exporterExcel        = "Excel"
	exporterSQLite       = "SQLite"
	exporterMangaUpdates = "MangaUpdates"
)

var exporterFlags = []struct{ flag, name string }{
	{"csv", exporterCSV},
	{"excel", exporterExcel},
	{"db", exporterSQLite},
	{"mangaupdates", exporterMangaUpdates},
}

// exportCmd implements: mdsync export
//
//	--csv, --excel, --db, --mangaupdates   Pick exporters, skipping the prompts
//	--yes                                  Enable every exporter
//	--ratings                              Fetch community and personal ratings
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Fetch your MangaDex follows and export them",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return fmt.Errorf("unknown command: '%s'. See 'mdsync export --help'", args[0])
		}

		picked := map[string]bool{}
		for _, f := range exporterFlags {
			if on, _ := cmd.Flags().GetBool(f.flag); on {
				picked[f.name] = true
			}
		}
		yes, _ := cmd.Flags().GetBool("yes")
		enabled, err := chooseExporters(picked, yes, cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if len(enabled) == 0 {
			utils.Log.Info("No exporter enabled, nothing to do.")
			return nil
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.MangaDex.Validate(); err != nil {
			return err
		}
		if enabled[exporterMangaUpdates] {
			if err := cfg.MangaUpdates.Validate(); err != nil {
				return err
			}
		}
		if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
			return fmt.Errorf("could not create output directory: %w", err)
		}

		proxy, _ := cmd.Flags().GetString("proxy")
		withRatings, _ := cmd.Flags().GetBool("ratings")
		startedAt := time.Now()

		utils.Log.Info("Fetching data from MangaDex.")
		md := newMangaDexClient(cfg, proxy)
		defer md.Close()
		mangas, err := md.Follows(cmd.Context(), mangadex.FollowOptions{
			WithRatings: withRatings,
			Progress: func(n, total int, m manga.Manga) {
				utils.Log.Infof("[MangaDex] Fetched %d of %d: %s", n, total, m)
			},
		})
		if err != nil {
			return err
		}

		var mu *export.MangaUpdates
		for _, e := range buildExporters(enabled, cfg, proxy, startedAt) {
			utils.Log.Infof("Exporting to %s.", e.Name())
			if m, ok := e.(*export.MangaUpdates); ok {
				mu = m
			}
			if err := e.Export(cmd.Context(), mangas); err != nil {
				return err
			}
		}

		if mu != nil && mu.Result != nil {
			r := mu.Result
			fmt.Printf("MangaUpdates: %d added, %d already tracked, %d not added (see %s).\n", r.Added, r.Skipped, r.Failed(), mu.ReportPath)
		}
		fmt.Println("Process completed.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	for _, f := range exporterFlags {
		exportCmd.Flags().Bool(f.flag, false, fmt.Sprintf("Export to %s without asking", f.name))
	}
	exportCmd.Flags().BoolP("yes", "y", false, "Enable every exporter without asking")
	exportCmd.Flags().Bool("ratings", false, "Include community and personal ratings (extra MangaDex requests)")
}

// chooseExporters returns the exporters to run. Explicit picks win, --yes
// enables everything, otherwise the user is asked about each one.
func chooseExporters(picked map[string]bool, yes bool, in io.Reader, out io.Writer) (map[string]bool, error) {
	if len(picked) > 0 {
		return picked, nil
	}
	enabled := map[string]bool{}
	reader := bufio.NewReader(in)
	for _, f := range exporterFlags {
		if yes {
			enabled[f.name] = true
			continue
		}
		ok, err := utils.Confirm(reader, out, fmt.Sprintf("Do you want to export to %s?", f.name))
		if err != nil {
			return nil, fmt.Errorf("no answer for %s: %w", f.name, err)
		}
		if ok {
			enabled[f.name] = true
		}
	}
	return enabled, nil
}

func buildExporters(enabled map[string]bool, cfg *config.Config, proxy string, at time.Time) []export.Exporter {
	var exporters []export.Exporter
	if enabled[exporterCSV] {
		exporters = append(exporters, export.CSV{Path: export.Path(cfg.Output.Dir, "follows", at, "csv")})
	}
	if enabled[exporterExcel] {
		exporters = append(exporters, export.Excel{Path: export.Path(cfg.Output.Dir, "follows", at, "xlsx")})
	}
	if enabled[exporterSQLite] {
		exporters = append(exporters, export.SQLite{
			Path:    cfg.DB.Path,
			Changes: printChanges,
			Log:     utils.Log,
		})
	}
	if enabled[exporterMangaUpdates] {
		exporters = append(exporters, &export.MangaUpdates{
			Client:       newMangaUpdatesClient(cfg, proxy),
			MappingsPath: cfg.MangaUpdates.Mappings,
			ReportPath:   export.Path(cfg.Output.Dir, "mangaupdates-errors", at, "txt"),
			Log:          utils.Log,
		})
	}
	return exporters
}

func newMangaDexClient(cfg *config.Config, proxy string) *mangadex.Client {
	return mangadex.NewClient(mangadex.Credentials{
		Username:     cfg.MangaDex.Username,
		Password:     cfg.MangaDex.Password,
		ClientID:     cfg.MangaDex.ClientID,
		ClientSecret: cfg.MangaDex.ClientSecret,
	}, platforms.WithProxy(proxy), platforms.WithThreshold(cfg.MangaDex.Throttle))
}

func newMangaUpdatesClient(cfg *config.Config, proxy string) *mangaupdates.Client {
	return mangaupdates.NewClient(mangaupdates.Credentials{
		Username: cfg.MangaUpdates.Username,
		Password: cfg.MangaUpdates.Password,
	}, platforms.WithProxy(proxy), platforms.WithThreshold(cfg.MangaUpdates.Throttle))
}

func printChanges(changes []storage.Change) {
	for _, c := range changes {
		var mark string
		switch c.ChangeType {
		case "added":
			mark = "+"
		case "removed":
			mark = "-"
		case "updated":
			mark = "~"
		}
		fmt.Printf("%s  %-12s  %s (%s)\n", mark, c.Status, c.Title, c.MangaID)
	}
}
