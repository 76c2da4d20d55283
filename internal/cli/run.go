package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jedib0t/go-pretty/v6/table"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/roach88/inlinesql/internal/config"
	"github.com/roach88/inlinesql/internal/engine"
	"github.com/roach88/inlinesql/internal/ir"
	"github.com/roach88/inlinesql/internal/plan"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Args []string // key=value call arguments

	// IDs overrides the call ID generator (for testing).
	// If nil, the engine defaults to UUIDv7 call IDs.
	IDs engine.IDGenerator
}

// CallOutput is the result of one function call.
type CallOutput struct {
	Function     string           `json:"function"`
	Returns      ir.ReturnKind    `json:"returns"`
	RowsAffected *uint64          `json:"rows_affected,omitempty"`
	Rows         []map[string]any `json:"rows,omitempty"`

	columns []string
	values  [][]any
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <specs-dir> <function>...",
		Short: "Call compiled functions against a database",
		Long: `Compile the named functions and call them in order against one database
connection, passing the same --arg values to each call.

The sqlite3 driver opens the --dsn file (an in-memory database when no DSN
is given). The pgx driver connects to PostgreSQL through a pgxpool.

Examples:
  inlinesql run ./specs create_pets add_pet all_pets --arg name=Rex --arg species=dog
  inlinesql run ./specs pet_by_name --dsn pets.db --arg name=Rex --format json
  inlinesql run ./specs pets_by_species --driver pgx --dsn postgres://localhost/pets --arg species=cat`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFunctions(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Args, "arg", nil, "call argument as key=value (repeatable)")
	cmd.Flags().String("driver", config.DefaultDriver, "database driver (sqlite3|pgx)")
	cmd.Flags().String("dsn", "", "data source name")
	cmd.Flags().Int("cache-size", config.DefaultCacheSize, "plan cache size")

	return cmd
}

func runFunctions(opts *RunOptions, specsDir string, names []string, cmd *cobra.Command) error {
	cfg, err := opts.load(cmd)
	if err != nil {
		return err
	}
	formatter := opts.formatter(cmd)
	logger := formatter.Logger()

	callArgs, err := parseCallArgs(opts.Args)
	if err != nil {
		return outputCommandError(formatter, ErrCodeBadArgument, err.Error())
	}

	loadResult, loadErrors := LoadSpecs(specsDir, LoadModeFailFast, cfg.Config)
	if len(loadErrors) > 0 {
		return outputLoadErrors(formatter, loadErrors)
	}

	cache, err := plan.NewCache(cfg.CacheSize, cfg.CompileOptions()...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create plan cache", err)
	}

	plans := make([]*ir.ExecutionPlan, len(names))
	for i, name := range names {
		fn, ok := loadResult.Lookup(name)
		if !ok {
			return outputCommandError(formatter, ErrCodeUnknownFunction, fmt.Sprintf("no function named %q in %s", name, specsDir))
		}
		p, diags, hit := cache.Get(fn.Spec)
		logger.Debug("plan ready", "function", name, "cache_hit", hit, "fingerprint", p.Fingerprint)

		all := append(ir.Diagnostics{}, fn.Diagnostics...)
		all.Append(diags...)
		if len(all) > 0 {
			return outputDiagnostics(formatter, []FunctionDiagnostics{{Function: name, Diagnostics: all}})
		}
		plans[i] = p
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, closeClient, err := connect(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return outputCommandError(formatter, ErrCodeConnectFailed, err.Error())
	}
	defer closeClient()
	logger.Debug("connected", "driver", cfg.Driver)

	engOpts := []engine.Option{engine.WithClient(client), engine.WithLogger(logger)}
	if opts.IDs != nil {
		engOpts = append(engOpts, engine.WithIDGenerator(opts.IDs))
	}
	eng := engine.New(engOpts...)

	outputs := make([]CallOutput, 0, len(plans))
	for _, p := range plans {
		v, err := eng.Call(ctx, p, callArgs)
		if err == nil {
			var out CallOutput
			out, err = collectOutput(ctx, p, v)
			outputs = append(outputs, out)
		}
		if err != nil {
			if printErr := printCallOutputs(formatter, outputs); printErr != nil {
				return printErr
			}
			_ = formatter.Error(ErrCodeCallFailed, err.Error(), nil)
			return WrapExitError(ExitFailure, "call failed", err)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(outputs)
	}
	return printCallOutputs(formatter, outputs)
}

// connect opens a client for driver. The returned func releases it.
func connect(ctx context.Context, driver, dsn string) (engine.Client, func(), error) {
	switch driver {
	case "sqlite3":
		if dsn == "" {
			dsn = ":memory:"
		}
		db, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", dsn, err)
		}
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("open %s: %w", dsn, err)
		}
		return engine.NewSQLClient(db), func() { db.Close() }, nil

	case "pgx":
		if dsn == "" {
			return nil, nil, fmt.Errorf("the pgx driver needs a --dsn")
		}
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("connect: %w", err)
		}
		return engine.NewPgxClient(pool), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown driver %q: must be sqlite3 or pgx", driver)
	}
}

// parseCallArgs turns key=value pairs into call arguments. Integers and
// booleans are converted; everything else stays a string.
func parseCallArgs(pairs []string) (map[string]any, error) {
	args := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q must be key=value", pair)
		}
		if _, dup := args[key]; dup {
			return nil, fmt.Errorf("argument %q given twice", key)
		}
		args[key] = parseValue(value)
	}
	return args, nil
}

func parseValue(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		return b
	}
	return s
}

// collectOutput converts a call result, draining streams.
func collectOutput(ctx context.Context, p *ir.ExecutionPlan, v any) (CallOutput, error) {
	out := CallOutput{Function: p.Function, Returns: p.Returns}

	switch val := v.(type) {
	case nil:
	case uint64:
		out.RowsAffected = &val
	case engine.Row:
		out.addRow(val)
	case []any:
		for _, item := range val {
			row, ok := item.(engine.Row)
			if !ok {
				return out, fmt.Errorf("%s: unexpected row type %T", p.Function, item)
			}
			out.addRow(row)
		}
	case engine.RowStream:
		defer val.Close()
		for {
			row, ok, err := val.Next(ctx)
			if err != nil {
				return out, fmt.Errorf("%s: read stream: %w", p.Function, err)
			}
			if !ok {
				break
			}
			out.addRow(row)
		}
	default:
		return out, fmt.Errorf("%s: unexpected result type %T", p.Function, v)
	}
	return out, nil
}

func (o *CallOutput) addRow(row engine.Row) {
	if o.columns == nil {
		o.columns = row.Columns
	}
	m := make(map[string]any, len(row.Columns))
	values := make([]any, len(row.Values))
	for i, c := range row.Columns {
		v := row.Values[i]
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		m[c] = v
		values[i] = v
	}
	o.Rows = append(o.Rows, m)
	o.values = append(o.values, values)
}

// printCallOutputs prints one block per call in text format.
func printCallOutputs(formatter *OutputFormatter, outputs []CallOutput) error {
	if formatter.Format == "json" {
		return nil
	}
	w := formatter.Writer

	for _, out := range outputs {
		switch out.Returns {
		case ir.ReturnUnit:
			fmt.Fprintf(w, "✓ %s\n", out.Function)
		case ir.ReturnRowCount:
			fmt.Fprintf(w, "✓ %s: %d row(s) affected\n", out.Function, *out.RowsAffected)
		default:
			fmt.Fprintf(w, "✓ %s\n", out.Function)
			if len(out.Rows) == 0 {
				fmt.Fprintln(w, "(0 rows)")
				continue
			}
			header := make(table.Row, len(out.columns))
			for i, c := range out.columns {
				header[i] = c
			}
			rows := make([]table.Row, len(out.values))
			for i, vals := range out.values {
				row := make(table.Row, len(vals))
				for j, v := range vals {
					row[j] = formatValue(v)
				}
				rows[i] = row
			}
			formatter.Table(header, rows)
			fmt.Fprintf(w, "(%d rows)\n", len(out.Rows))
		}
	}
	return nil
}
