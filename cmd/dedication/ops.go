package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/dedication/internal/config"
	"github.com/verte-zerg/dedication/internal/httpapi"
	"github.com/verte-zerg/dedication/internal/importer"
	"github.com/verte-zerg/dedication/internal/logging"
)

var (
	importBatch int
	serveAddr   string
)

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import KIND FILE",
		Short: "Load CSV data into the local SQLite store",
		Long: `Load a CSV file into the local SQLite store.

KIND is one of courses, users, groups, enrolments or logs. FILE may be "-"
for stdin. With KIND "all", FILE is a directory holding <kind>.csv files,
which are loaded in dependency order; missing files are skipped.`,
		Args: cobra.ExactArgs(2),
		RunE: runImportCmd,
	}
	cmd.Flags().IntVar(&importBatch, "batch", importer.DefaultBatchSize, "rows per insert transaction")
	return cmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve dedication reports over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServeCmd,
	}
	cmd.Flags().StringVar(&serveAddr, "addr", defaultServeAddr, "listen address")
	addPeriodFlags(cmd)
	return cmd
}

func runImportCmd(cmd *cobra.Command, args []string) error {
	if !strings.EqualFold(storeDriver, config.DriverSQLite) && storeDriver != "" {
		return fmt.Errorf("import writes to the sqlite store; got driver %q", storeDriver)
	}
	if importBatch <= 0 {
		return fmt.Errorf("--batch must be > 0")
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			_ = cerr
		}
	}()

	ctx := cmd.Context()
	im := importer.New(st, importBatch)
	if strings.EqualFold(args[0], "all") {
		if err := importDir(ctx, im, args[1]); err != nil {
			return err
		}
	} else {
		kind, err := importer.ParseKind(args[0])
		if err != nil {
			return err
		}
		res, err := importPath(ctx, im, kind, args[1])
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "imported %d %s rows\n", res.Rows, res.Kind); err != nil {
			return err
		}
	}
	stored, err := st.CountLogs(ctx)
	if err != nil {
		return fmt.Errorf("failed to count log rows: %w", err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "store holds %d log rows\n", stored)
	return err
}

func importDir(ctx context.Context, im *importer.Importer, dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("failed to stat import directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	var total int64
	for _, kind := range importer.Kinds {
		path := filepath.Join(dir, string(kind)+".csv")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			logging.Debug().Str("path", path).Msg("skipping missing import file")
			continue
		}
		res, err := importPath(ctx, im, kind, path)
		if err != nil {
			return err
		}
		total += res.Rows
	}
	logging.Info().Int64("rows", total).Str("dir", dir).Msg("import finished")
	return nil
}

func importPath(ctx context.Context, im *importer.Importer, kind importer.Kind, path string) (importer.Result, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return importer.Result{}, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer func() {
			if cerr := file.Close(); cerr != nil {
				_ = cerr
			}
		}()
		r = file
	}
	res, err := im.Import(ctx, kind, r)
	if err != nil {
		return res, fmt.Errorf("failed to import %s: %w", path, err)
	}
	return res, nil
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	applyStringConfig(cmd, "addr", &serveAddr, fileCfg.Serve.Addr)
	defaults, err := reportConfig(0)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := openSource(ctx)
	if err != nil {
		return err
	}
	defer closeSource(src)

	return httpapi.NewServer(src, defaults).ListenAndServe(ctx, serveAddr)
}
