package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strings"
	"time"

	"github.com/SpeedReach/surrealdb/dbs"
	"github.com/SpeedReach/surrealdb/kvs"
	"github.com/SpeedReach/surrealdb/sql"
	"github.com/SpeedReach/surrealdb/storage/snapshot"
	"github.com/SpeedReach/surrealdb/utils/uuid"
	"github.com/alecthomas/kong"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version is the version of the command
var Version = "0.1.0"

type cmdSQL struct {
	Query  string `arg:"" optional:"" help:"Query to run. It is read from stdin if omitted."`
	NS     string `name:"ns" help:"Namespace to use."`
	DB     string `name:"db" help:"Database to use."`
	Auth   string `help:"Authentication level of the session (no, viewer, editor, owner)."`
	Pretty bool   `short:"p" help:"Indent the JSON output."`
}

type cmdNodes struct {
	Expire time.Duration `help:"Remove other nodes whose last heartbeat is older than this."`
}

type cmdExport struct {
	File string `arg:"" optional:"" help:"File to write the export to. Stdout is used if omitted."`
}

type cmdImport struct {
	File string `arg:"" optional:"" help:"File to import. Stdin is used if omitted."`
}

type cmdVersion struct{}

type cli struct {
	Config   string     `short:"c" help:"JSON configuration file."`
	Endpoint string     `short:"e" help:"Datastore endpoint, e.g. mem://, file://data.db, mvcc://name or etcd://host:2379/prefix."`
	Node     string     `help:"Node ID of this process. A random one is generated if omitted."`
	LogLevel string     `name:"log-level" help:"Log level (debug, info, warn, error)."`
	SQL      cmdSQL     `cmd:"" name:"sql" help:"Run a query."`
	Nodes    cmdNodes   `cmd:"" help:"Register this node and list the nodes of the cluster."`
	Export   cmdExport  `cmd:"" help:"Export the whole datastore."`
	Import   cmdImport  `cmd:"" help:"Replace the whole datastore with an export."`
	Version  cmdVersion `cmd:"" help:"Show the version."`
}

// CliConfig contains the configuration of the command line interface
type CliConfig struct {
	Name        string
	Description string
	// Exit is called by the parser after printing help
	Exit   func(int)
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewCliConfig returns a CliConfig for a process
func NewCliConfig() *CliConfig {
	return &CliConfig{
		Name:        "surreal",
		Description: "A transactional database over pluggable key-value stores.",
		Exit:        os.Exit,
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
	}
}

// Cli parses args and runs the selected command. It returns the
// exit code of the process and the error that caused a non-zero
// exit code.
func Cli(args []string, config *CliConfig) (int, error) {
	var flags cli

	parser, err := kong.New(&flags,
		kong.Name(config.Name),
		kong.Description(config.Description),
		kong.Exit(config.Exit),
		kong.Writers(config.Stdout, config.Stderr),
		kong.Vars{"version": Version},
	)

	if err != nil {
		return 1, err
	}

	kctx, err := parser.Parse(args)

	if err != nil {
		return 2, err
	}

	cmd := kctx.Command()

	if cmd == "version" {
		fmt.Fprintf(config.Stdout, "%s version %s\n", config.Name, Version)

		return 0, nil
	}

	settings := DefaultConfig()

	if flags.Config != "" {
		fileConfig, err := LoadConfig(flags.Config)

		if err != nil {
			return 1, err
		}

		settings = settings.Merge(fileConfig)
	}

	settings = settings.Merge(Config{
		Endpoint:  flags.Endpoint,
		NodeID:    flags.Node,
		Namespace: flags.SQL.NS,
		Database:  flags.SQL.DB,
		Auth:      flags.SQL.Auth,
		LogLevel:  flags.LogLevel,
	})

	logger, err := newLogger(settings.LogLevel, config.Stderr)

	if err != nil {
		return 1, err
	}

	defer logger.Sync()

	ctx := context.Background()
	ds, err := open(ctx, settings, logger)

	if err != nil {
		return 1, err
	}

	defer ds.Close()

	switch cmd {
	case "sql", "sql <query>":
		err = runSQL(ctx, ds, settings, &flags.SQL, config, logger)
	case "nodes":
		err = runNodes(ctx, ds, &flags.Nodes, config)
	case "export", "export <file>":
		err = runExport(ctx, ds, flags.Export.File, config)
	case "import", "import <file>":
		err = runImport(ctx, ds, flags.Import.File, config)
	default:
		err = fmt.Errorf("unrecognized command: %s", cmd)
	}

	if err != nil {
		return 1, err
	}

	return 0, nil
}

func newLogger(level string, w io.Writer) (*zap.Logger, error) {
	var l zapcore.Level

	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(w),
		l,
	)

	return zap.New(core), nil
}

func open(ctx context.Context, settings Config, logger *zap.Logger) (*kvs.Datastore, error) {
	opts := []kvs.Option{kvs.WithLogger(logger)}

	if settings.NodeID != "" {
		id, err := uuid.Parse(settings.NodeID)

		if err != nil {
			return nil, fmt.Errorf("invalid node ID %q: %w", settings.NodeID, err)
		}

		opts = append(opts, kvs.WithNodeID(id))
	}

	return kvs.Open(ctx, settings.Endpoint, opts...)
}

type response struct {
	Status string      `json:"status"`
	Time   string      `json:"time"`
	Result interface{} `json:"result"`
}

func runSQL(ctx context.Context, ds *kvs.Datastore, settings Config, cmd *cmdSQL, config *CliConfig, logger *zap.Logger) error {
	level, ok := sql.ParseLevel(settings.Auth)

	if !ok {
		return fmt.Errorf("invalid auth level %q", settings.Auth)
	}

	query := cmd.Query

	if query == "" {
		raw, err := ioutil.ReadAll(config.Stdin)

		if err != nil {
			return err
		}

		query = string(raw)
	}

	opt := &sql.Options{Namespace: settings.Namespace, Database: settings.Database, Auth: level}
	responses, err := dbs.New(ds, logger).Query(ctx, opt, strings.TrimSpace(query))

	if err != nil {
		return err
	}

	output := make([]response, len(responses))

	for i, r := range responses {
		output[i] = response{Status: "OK", Time: r.Time.String(), Result: r.Result}
	}

	encoder := json.NewEncoder(config.Stdout)

	if cmd.Pretty {
		encoder.SetIndent("", "  ")
	}

	return encoder.Encode(output)
}

func runNodes(ctx context.Context, ds *kvs.Datastore, cmd *cmdNodes, config *CliConfig) error {
	if err := ds.Heartbeat(ctx); err != nil {
		return err
	}

	if cmd.Expire > 0 {
		expired, err := ds.ExpireNodes(ctx, cmd.Expire)

		if err != nil {
			return err
		}

		for _, id := range expired {
			fmt.Fprintf(config.Stderr, "expired node %s\n", id)
		}
	}

	nodes, err := ds.Nodes(ctx)

	if err != nil {
		return err
	}

	for _, node := range nodes {
		self := ""

		if node.ID == ds.NodeID() {
			self = " (this node)"
		}

		fmt.Fprintf(config.Stdout, "%s %s%s\n", node.ID, node.Heartbeat.UTC().Format(time.RFC3339), self)
	}

	return nil
}

func runExport(ctx context.Context, ds *kvs.Datastore, file string, config *CliConfig) error {
	return snapshot.Copy(ctx, &snapshotFile{path: file, w: config.Stdout}, ds)
}

func runImport(ctx context.Context, ds *kvs.Datastore, file string, config *CliConfig) error {
	return snapshot.Copy(ctx, ds, &snapshotFile{path: file, r: config.Stdin})
}

// snapshotFile holds a snapshot in a file, or in the standard
// streams when path is empty
type snapshotFile struct {
	path string
	r    io.Reader
	w    io.Writer
}

// Snapshot implements snapshot.Source
func (f *snapshotFile) Snapshot(ctx context.Context) (io.ReadCloser, error) {
	if f.path == "" {
		return ioutil.NopCloser(f.r), nil
	}

	file, err := os.Open(f.path)

	if err != nil {
		return nil, err
	}

	return file, nil
}

// ApplySnapshot implements snapshot.Acceptor
func (f *snapshotFile) ApplySnapshot(ctx context.Context, snap io.Reader) error {
	if f.path == "" {
		if _, err := io.Copy(f.w, snap); err != nil {
			return fmt.Errorf("could not export: %w", err)
		}

		return nil
	}

	file, err := os.Create(f.path)

	if err != nil {
		return err
	}

	if _, err := io.Copy(file, snap); err != nil {
		file.Close()

		return fmt.Errorf("could not export: %w", err)
	}

	return file.Close()
}
