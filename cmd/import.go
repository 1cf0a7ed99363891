package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/datastark/crime-analysis-toolbox/internal/importer"
	"github.com/datastark/crime-analysis-toolbox/internal/model"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load incident records into the store",
}

var importCSVCmd = &cobra.Command{
	Use:   "csv <file-or-ftp-url>",
	Short: "Import incidents from a CSV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		path, cleanup, err := localizeSource(ctx, args[0])
		if err != nil {
			return err
		}
		defer cleanup()

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		incidents, err := importer.ReadCSV(f, importOptions(cmd))
		if err != nil {
			return err
		}
		return saveIncidents(ctx, incidents)
	},
}

var importSHPCmd = &cobra.Command{
	Use:   "shp <file>",
	Short: "Import incidents from a point shapefile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		incidents, err := importer.ReadShapefile(args[0], importOptions(cmd))
		if err != nil {
			return err
		}
		return saveIncidents(ctx, incidents)
	},
}

var importXLSXCmd = &cobra.Command{
	Use:   "xlsx <file-or-ftp-url>",
	Short: "Import incidents from a spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		path, cleanup, err := localizeSource(ctx, args[0])
		if err != nil {
			return err
		}
		defer cleanup()

		sheet, _ := cmd.Flags().GetString("sheet")
		incidents, err := importer.ReadXLSX(path, importOptions(cmd), importer.XLSXOptions{SheetName: sheet})
		if err != nil {
			return err
		}
		return saveIncidents(ctx, incidents)
	},
}

// importOptions collects the shared column-mapping flags.
func importOptions(cmd *cobra.Command) importer.Options {
	idField, _ := cmd.Flags().GetString("id-field")
	xField, _ := cmd.Flags().GetString("x-field")
	yField, _ := cmd.Flags().GetString("y-field")
	dateField, _ := cmd.Flags().GetString("date-field")
	layout, _ := cmd.Flags().GetString("date-layout")

	opts := importer.Options{
		IDField:   idField,
		XField:    xField,
		YField:    yField,
		DateField: dateField,
		Charset:   cfg.Import.Charset,
	}
	if layout != "" {
		opts.DateLayout = layout
	} else {
		opts.DateLayout = cfg.Import.DateLayout
	}
	return opts
}

// localizeSource downloads ftp:// sources to a temp file and passes
// local paths through.
func localizeSource(ctx context.Context, src string) (string, func(), error) {
	if len(src) < 6 || src[:6] != "ftp://" {
		return src, func() {}, nil
	}

	dir, err := os.MkdirTemp("", "incident-import")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	fetcher := importer.NewFTPFetcher(importer.FTPOptions{
		User:     cfg.Import.FTPUser,
		Password: cfg.Import.FTPPass,
	})
	path := filepath.Join(dir, filepath.Base(src))
	n, err := fetcher.DownloadToFile(ctx, src, path)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	zap.L().Info("downloaded incident extract", zap.String("url", src), zap.Int64("bytes", n))
	return path, cleanup, nil
}

func saveIncidents(ctx context.Context, incidents []model.Incident) error {
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if err := st.Migrate(ctx); err != nil {
		return err
	}
	n, err := st.InsertIncidents(ctx, incidents)
	if err != nil {
		return err
	}

	fmt.Printf("imported %d incidents\n", n)
	return nil
}

func init() {
	for _, c := range []*cobra.Command{importCSVCmd, importSHPCmd, importXLSXCmd} {
		c.Flags().String("id-field", "", "incident ID column (sequential when empty)")
		c.Flags().String("x-field", "x", "x coordinate column")
		c.Flags().String("y-field", "y", "y coordinate column")
		c.Flags().String("date-field", "occurred_at", "occurrence timestamp column")
		c.Flags().String("date-layout", "", "Go time layout of the date column")
		importCmd.AddCommand(c)
	}
	importXLSXCmd.Flags().String("sheet", "", "worksheet name (first sheet when empty)")
	rootCmd.AddCommand(importCmd)
}
