// Command sqldb is a minimal interactive driver over the storage core:
// it opens a DiskEngine (or MemoryEngine with --memory), wraps it in an
// MVCC transaction manager and a SQL-facing table/row adapter, and
// reads commands from stdin until EOF or a shutdown signal.
//
// There is no SQL parser here: each REPL command maps directly onto one
// adapter or transaction operation, a thin driver over the storage
// core's own internal API rather than a query language front end.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dreamware/tinysql/internal/config"
	"github.com/dreamware/tinysql/internal/logging"
	"github.com/dreamware/tinysql/internal/mvcc"
	"github.com/dreamware/tinysql/internal/sqladapter"
	"github.com/dreamware/tinysql/internal/storage"
)

var (
	flagPath    string
	flagMemory  bool
	flagCompact bool
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sqldb",
		Short: "Interactive driver for the tinysql storage core",
		RunE:  runREPL,
	}
	cmd.Flags().StringVar(&flagPath, "path", "", "DiskEngine log file path (overrides SQLDB_PATH)")
	cmd.Flags().BoolVar(&flagMemory, "memory", false, "use an ephemeral MemoryEngine instead of a DiskEngine")
	cmd.Flags().BoolVar(&flagCompact, "compact", false, "compact the DiskEngine log on startup")
	return cmd
}

func runREPL(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if flagPath != "" {
		cfg.Path = flagPath
	}
	if flagMemory {
		cfg.Engine = config.EngineMemory
	}
	if flagCompact {
		cfg.CompactOnStart = true
	}

	log := logging.NewDevelopment()
	defer log.Sync()

	var engine storage.Engine
	var disk *storage.DiskEngine
	switch cfg.Engine {
	case config.EngineMemory:
		engine = storage.NewMemoryEngine()
	case config.EngineDisk:
		disk, err = storage.NewDiskEngine(cfg.Path, storage.WithLogger(log))
		if err != nil {
			return err
		}
		engine = disk
	}
	defer engine.Close()

	if cfg.CompactOnStart {
		if disk == nil {
			log.Warn("--compact has no effect with --memory")
		} else if err := disk.Compact(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := mvcc.New(engine, mvcc.WithLogger(log))
	adapter := sqladapter.NewEngine(m)

	r := &repl{
		adapter: adapter,
		disk:    disk,
		log:     log,
		out:     cmd.OutOrStdout(),
	}
	return r.run(ctx, bufio.NewScanner(os.Stdin))
}

// repl drives commands against a single active sqladapter.Transaction,
// lazily begun on first use and rolled back if the process is
// interrupted mid-transaction, so a dropped connection never leaves a
// transaction dangling open against the engine.
type repl struct {
	adapter *sqladapter.Engine
	disk    *storage.DiskEngine
	txn     *sqladapter.Transaction
	log     *zap.Logger
	out     io.Writer
}

func (r *repl) run(ctx context.Context, scanner *bufio.Scanner) error {
	defer r.closeTxn()

	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out, "shutting down")
			return nil
		case line, ok := <-lines:
			if !ok {
				return scanner.Err()
			}
			if err := r.dispatch(line); err != nil {
				fmt.Fprintf(r.out, "error: %v\n", err)
			}
		}
	}
}

func (r *repl) closeTxn() {
	if r.txn == nil {
		return
	}
	if err := r.txn.Rollback(); err != nil {
		r.log.Warn("rollback on shutdown failed", zap.Error(err))
	}
	r.txn = nil
}

func (r *repl) ensureTxn() (*sqladapter.Transaction, error) {
	if r.txn != nil {
		return r.txn, nil
	}
	txn, err := r.adapter.Begin()
	if err != nil {
		return nil, err
	}
	r.txn = txn
	return txn, nil
}

func (r *repl) dispatch(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch strings.ToLower(fields[0]) {
	case "create":
		if len(fields) < 2 || strings.ToLower(fields[1]) != "table" {
			return fmt.Errorf("usage: create table <name> <col:type[:pk][:null]>...")
		}
		return r.createTable(fields[2:])
	case "insert":
		return r.insert(fields[1:])
	case "scan":
		return r.scan(fields[1:])
	case "get":
		return r.get(fields[1:])
	case "set":
		return r.set(fields[1:])
	case "delete":
		return r.delete(fields[1:])
	case "commit":
		return r.commit()
	case "rollback":
		return r.rollback()
	case "compact":
		return r.compact()
	case "exit", "quit":
		os.Exit(0)
		return nil
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

func (r *repl) createTable(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: create table <name> <col:type[:pk][:null]>...")
	}
	schema := sqladapter.Schema{Name: args[0]}
	for _, spec := range args[1:] {
		col, err := parseColumnSpec(spec)
		if err != nil {
			return err
		}
		schema.Columns = append(schema.Columns, col)
	}
	txn, err := r.ensureTxn()
	if err != nil {
		return err
	}
	if err := txn.CreateTable(schema); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "table %q created\n", schema.Name)
	return nil
}

func parseColumnSpec(spec string) (sqladapter.Column, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 {
		return sqladapter.Column{}, fmt.Errorf("malformed column spec %q (want name:type[:pk][:null])", spec)
	}
	col := sqladapter.Column{Name: parts[0]}
	switch strings.ToLower(parts[1]) {
	case "integer", "int":
		col.Type = sqladapter.TypeInteger
	case "float":
		col.Type = sqladapter.TypeFloat
	case "boolean", "bool":
		col.Type = sqladapter.TypeBoolean
	case "string", "text":
		col.Type = sqladapter.TypeString
	default:
		return sqladapter.Column{}, fmt.Errorf("unknown column type %q", parts[1])
	}
	for _, flag := range parts[2:] {
		switch strings.ToLower(flag) {
		case "pk", "primary":
			col.Primary = true
		case "null", "nullable":
			col.Nullable = true
		default:
			return sqladapter.Column{}, fmt.Errorf("unknown column flag %q", flag)
		}
	}
	return col, nil
}

func (r *repl) insert(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: insert <table> <value>...")
	}
	txn, err := r.ensureTxn()
	if err != nil {
		return err
	}
	schema, err := txn.GetTable(args[0])
	if err != nil {
		return err
	}
	if schema == nil {
		return fmt.Errorf("table %q does not exist", args[0])
	}
	values := args[1:]
	if len(values) != len(schema.Columns) {
		return fmt.Errorf("table %q expects %d values, got %d", args[0], len(schema.Columns), len(values))
	}
	row := make(sqladapter.Row, len(values))
	for i, col := range schema.Columns {
		v, err := parseValue(values[i], col.Type)
		if err != nil {
			return err
		}
		row[i] = v
	}
	if err := txn.CreateRow(args[0], row); err != nil {
		return err
	}
	fmt.Fprintln(r.out, "ok")
	return nil
}

func parseValue(raw string, kind sqladapter.DataType) (sqladapter.Value, error) {
	if raw == "null" {
		return sqladapter.NullValue(), nil
	}
	switch kind {
	case sqladapter.TypeInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return sqladapter.Value{}, fmt.Errorf("parse integer %q: %w", raw, err)
		}
		return sqladapter.Value{Kind: kind, Integer: n}, nil
	case sqladapter.TypeFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return sqladapter.Value{}, fmt.Errorf("parse float %q: %w", raw, err)
		}
		return sqladapter.Value{Kind: kind, Float: f}, nil
	case sqladapter.TypeBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return sqladapter.Value{}, fmt.Errorf("parse boolean %q: %w", raw, err)
		}
		return sqladapter.Value{Kind: kind, Boolean: b}, nil
	case sqladapter.TypeString:
		return sqladapter.Value{Kind: kind, String: raw}, nil
	default:
		return sqladapter.Value{}, fmt.Errorf("unknown column type %d", kind)
	}
}

func (r *repl) scan(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: scan <table>")
	}
	txn, err := r.ensureTxn()
	if err != nil {
		return err
	}
	rows, err := txn.ScanTable(args[0])
	if err != nil {
		return err
	}
	for _, row := range rows {
		fmt.Fprintln(r.out, formatRow(row))
	}
	return nil
}

func formatRow(row sqladapter.Row) string {
	parts := make([]string, len(row))
	for i, v := range row {
		parts[i] = formatValue(v)
	}
	return strings.Join(parts, "\t")
}

func formatValue(v sqladapter.Value) string {
	if v.Null {
		return "null"
	}
	switch v.Kind {
	case sqladapter.TypeInteger:
		return strconv.FormatInt(v.Integer, 10)
	case sqladapter.TypeFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case sqladapter.TypeBoolean:
		return strconv.FormatBool(v.Boolean)
	case sqladapter.TypeString:
		return v.String
	default:
		return "?"
	}
}

func (r *repl) get(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: get <key>")
	}
	txn, err := r.ensureTxn()
	if err != nil {
		return err
	}
	value, err := txn.RawGet([]byte(args[0]))
	if err != nil {
		return err
	}
	if value == nil {
		fmt.Fprintln(r.out, "(nil)")
		return nil
	}
	fmt.Fprintln(r.out, string(value))
	return nil
}

func (r *repl) set(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: set <key> <value>")
	}
	txn, err := r.ensureTxn()
	if err != nil {
		return err
	}
	if err := txn.RawSet([]byte(args[0]), []byte(args[1])); err != nil {
		return err
	}
	fmt.Fprintln(r.out, "ok")
	return nil
}

func (r *repl) delete(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: delete <key>")
	}
	txn, err := r.ensureTxn()
	if err != nil {
		return err
	}
	if err := txn.RawDelete([]byte(args[0])); err != nil {
		return err
	}
	fmt.Fprintln(r.out, "ok")
	return nil
}

func (r *repl) commit() error {
	if r.txn == nil {
		return fmt.Errorf("no active transaction")
	}
	err := r.txn.Commit()
	r.txn = nil
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, "committed")
	return nil
}

func (r *repl) rollback() error {
	if r.txn == nil {
		return fmt.Errorf("no active transaction")
	}
	err := r.txn.Rollback()
	r.txn = nil
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, "rolled back")
	return nil
}

func (r *repl) compact() error {
	if r.disk == nil {
		return fmt.Errorf("compact has no effect on a MemoryEngine")
	}
	if r.txn != nil {
		return fmt.Errorf("finish the active transaction (commit or rollback) before compacting")
	}
	if err := r.disk.Compact(); err != nil {
		return err
	}
	fmt.Fprintln(r.out, "compacted")
	return nil
}
