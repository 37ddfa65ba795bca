package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"humidstat.api/v0/internal/config"
	"humidstat.api/v0/storage"
)

func handleExportCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.PersistentFlags()
	dataDir := flags.Lookup("data-dir").Value.String()
	format := flags.Lookup("format").Value.String()
	start := flags.Lookup("start").Value.String()
	end := flags.Lookup("end").Value.String()
	output := flags.Lookup("output").Value.String()

	cfg := config.Load(dataDir)
	if format == "" {
		format = cfg.Data().ExportFormat
	}

	readingStore := storage.NewReadingStore(dataDir, cfg.Data().MaxRecords)
	content, err := readingStore.Export(format, start, end)
	if err != nil {
		return fmt.Errorf("failed export command: %v", err)
	}

	if output == "" {
		fmt.Println(content)
		return nil
	}
	if err := os.WriteFile(output, []byte(content+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write export to '%s': %v", output, err)
	}
	return nil
}

func NewExportCommand() *cobra.Command {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Exports stored readings as csv or json.",
		RunE:  handleExportCmd,
	}

	exportCmd.PersistentFlags().String("data-dir", "data", "Directory holding the config and data files.")
	exportCmd.PersistentFlags().String("format", "", "Export format: csv or json. Defaults to the configured one.")
	exportCmd.PersistentFlags().String("start", "", "Start date (YYYY-MM-DD) of the exported range.")
	exportCmd.PersistentFlags().String("end", "", "End date (YYYY-MM-DD) of the exported range, inclusive.")
	exportCmd.PersistentFlags().String("output", "", "File to write to instead of stdout.")

	return exportCmd
}
