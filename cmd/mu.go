package cmd

import (
	"fmt"

	"github.com/mdsync/mdsync/pkg/manga"
	"github.com/mdsync/mdsync/pkg/platforms/mangaupdates"
	"github.com/spf13/cobra"
)

var muCmd = &cobra.Command{
	Use:   "mu",
	Short: "Inspect the MangaUpdates side of the sync",
}

var muTrackedCmd = &cobra.Command{
	Use:   "tracked",
	Short: "Print the series IDs on your MangaUpdates reading list",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.MangaUpdates.Validate(); err != nil {
			return err
		}
		proxy, _ := cmd.Flags().GetString("proxy")
		client := newMangaUpdatesClient(cfg, proxy)
		defer client.Close()

		for id, err := range client.TrackedIDs(cmd.Context()) {
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

var muResolveCmd = &cobra.Command{
	Use:   "resolve <mangadex-id>...",
	Short: "Show the MangaUpdates series a MangaDex title maps to",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.MangaDex.Validate(); err != nil {
			return err
		}
		mappings, err := mangaupdates.LoadMappings(cfg.MangaUpdates.Mappings)
		if err != nil {
			return err
		}
		proxy, _ := cmd.Flags().GetString("proxy")
		md := newMangaDexClient(cfg, proxy)
		defer md.Close()

		for _, id := range args {
			m, err := md.Manga(cmd.Context(), manga.Status{ID: id})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), describeResolution(m, mappings))
		}
		return nil
	},
}

func describeResolution(m manga.Manga, mappings mangaupdates.Mappings) string {
	muID, ok, err := mangaupdates.ResolveID(m, mappings)
	switch {
	case err != nil:
		return fmt.Sprintf("%s\tinvalid: %v", m, err)
	case !ok:
		return fmt.Sprintf("%s\tno MangaUpdates link", m)
	}
	return fmt.Sprintf("%s\t%d", m, muID)
}

func init() {
	rootCmd.AddCommand(muCmd)
	muCmd.AddCommand(muTrackedCmd)
	muCmd.AddCommand(muResolveCmd)
}
