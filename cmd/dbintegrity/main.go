package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tordrt/dbintegrity"
	"github.com/tordrt/dbintegrity/internal/config"
	"github.com/tordrt/dbintegrity/internal/logger"
)

const (
	exitOK           = 0
	exitFailure      = 1
	exitLockFailure  = 2
	needsUpdateText  = `Foreign key constraints need to be updated. Please omit the "--check" option to run the update.`
	noUpdateText     = "No foreign key constraints update needed."
	executedTextTmpl = "Executed %d action(s)\n"
)

var (
	cfgFile       string
	check         bool
	sourceKey     string
	format        string
	inputFile     string
	table         string
	disableChecks bool
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "dbintegrity",
		Short:         "Check and update foreign key constraints",
		Long:          `dbintegrity compares the foreign key constraints declared in definition files with those present in a MySQL, PostgreSQL or SQLite database and creates, alters or drops constraints until both match.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runUpdate,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file")
	cmd.PersistentFlags().String("db-url", "", "database URL (postgres://, mysql:// or sqlite://)")
	cmd.PersistentFlags().String("schema", "", "database schema (default: public for PostgreSQL, DSN database for MySQL)")
	cmd.PersistentFlags().String("lock-file", "", "run lock file")
	cmd.PersistentFlags().String("log-format", logger.LogFormatTextValue, "logging format [text|json]")
	cmd.PersistentFlags().String("log-level", zerolog.LevelInfoValue,
		fmt.Sprintf(
			"logging level %s|%s|%s|%s",
			zerolog.LevelDebugValue,
			zerolog.LevelInfoValue,
			zerolog.LevelWarnValue,
			zerolog.LevelErrorValue,
		),
	)

	cmd.Flags().BoolVar(&check, "check", false, "Test whether any update is needed, but take no action")
	cmd.Flags().StringVar(&sourceKey, "source", "", "Process only the definition source with this key")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Plan format in check mode: text or markdown")

	cmd.AddCommand(newBootstrapCmd(), newExecCmd())
	return cmd
}

func newBootstrapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Print table statements with synthetic foreign key tables prepended",
		Args:  cobra.NoArgs,
		RunE:  runBootstrap,
	}
	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "SQL file with table statements (default: stdin)")
	return cmd
}

func newExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Execute SQL statements against the connection serving a table",
		Args:  cobra.NoArgs,
		RunE:  runExec,
	}
	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "SQL file with statements (default: stdin)")
	cmd.Flags().StringVarP(&table, "table", "t", "", "table the statements write to")
	cmd.Flags().BoolVar(&disableChecks, "disable-checks", false, "disable foreign key checks while executing")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

// bindFlags wires the persistent flags into v
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	for key, flag := range map[string]string{
		"database.url":    "db-url",
		"database.schema": "schema",
		"lock.path":       "lock-file",
		"log.format":      "log-format",
		"log.level":       "log-level",
	} {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}
	return nil
}

// openEngine loads the configuration, sets up logging and opens an engine
func openEngine(cmd *cobra.Command) (context.Context, *dbintegrity.Engine, error) {
	v := viper.New()
	if err := bindFlags(cmd, v); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if err := logger.SetLogLevel(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, nil, err
	}
	ctx := log.Logger.WithContext(cmd.Context())

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	sources := make([]dbintegrity.Source, len(cfg.Sources))
	for i, src := range cfg.Sources {
		sources[i] = dbintegrity.Source{Key: src.Key, Path: src.Path}
	}
	engine, err := dbintegrity.Open(ctx, cfg.Database.URL, &dbintegrity.Options{
		Sources:      sources,
		SourceKey:    sourceKey,
		SchemaName:   cfg.Database.Schema,
		Connections:  cfg.Database.Connections,
		TableMapping: cfg.Database.TableMapping,
		LockPath:     cfg.Lock.Path,
	})
	if err != nil {
		return nil, nil, err
	}
	return ctx, engine, nil
}

func runUpdate(cmd *cobra.Command, _ []string) (err error) {
	ctx, engine, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, engine.Close(ctx))
	}()
	out := cmd.OutOrStdout()

	if check {
		needed, err := engine.Plan(ctx, out, format)
		if err != nil {
			return err
		}
		if needed {
			_, _ = fmt.Fprintln(out, needsUpdateText)
		} else {
			_, _ = fmt.Fprintln(out, noUpdateText)
		}
		return nil
	}

	needed, err := engine.NeedsUpdate(ctx)
	if err != nil {
		return err
	}
	if !needed {
		_, _ = fmt.Fprintln(out, noUpdateText)
		return nil
	}

	_, _ = fmt.Fprint(out, "Running foreign key constraints update... ")
	actions, err := engine.Update(ctx)
	if err != nil {
		_, _ = fmt.Fprintln(out, "failed.")
		_, _ = fmt.Fprintf(out, executedTextTmpl, actions)
		return err
	}
	_, _ = fmt.Fprintln(out, "done.")
	_, _ = fmt.Fprintf(out, executedTextTmpl, actions)
	return nil
}

func runBootstrap(cmd *cobra.Command, _ []string) (err error) {
	statements, err := readStatements(cmd.InOrStdin(), inputFile)
	if err != nil {
		return err
	}

	ctx, engine, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, engine.Close(ctx))
	}()

	statements, err = engine.Bootstrap(ctx, statements)
	if err != nil {
		return err
	}
	for _, statement := range statements {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSuffix(statement, ";")+";")
	}
	return nil
}

func runExec(cmd *cobra.Command, _ []string) (err error) {
	statements, err := readStatements(cmd.InOrStdin(), inputFile)
	if err != nil {
		return err
	}

	ctx, engine, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, engine.Close(ctx))
	}()

	req := dbintegrity.WriteRequest{Table: table, DisableChecks: disableChecks}
	return engine.Write(ctx, req, func(ctx context.Context, exec func(context.Context, string) error) error {
		for _, statement := range statements {
			if err := exec(ctx, statement); err != nil {
				return err
			}
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Executed %d statement(s)\n", len(statements))
		return nil
	})
}

// readStatements reads SQL statements terminated by ";" at the end of a line
func readStatements(stdin io.Reader, path string) ([]string, error) {
	r := stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open input file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var statements []string
	var current strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if current.Len() == 0 && (strings.TrimSpace(line) == "" || strings.HasPrefix(strings.TrimSpace(line), "--")) {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
		if strings.HasSuffix(strings.TrimSpace(line), ";") {
			statements = append(statements, strings.TrimSuffix(strings.TrimSpace(current.String()), ";"))
			current.Reset()
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read statements: %w", err)
	}
	if rest := strings.TrimSpace(current.String()); rest != "" {
		statements = append(statements, rest)
	}
	return statements, nil
}

// exitCode maps an error to the process exit status
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, dbintegrity.ErrLocked):
		return exitLockFailure
	default:
		return exitFailure
	}
}

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("")
	}
	os.Exit(exitCode(err))
}
