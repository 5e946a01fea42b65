package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/ezachrisen/derive"
	"github.com/ezachrisen/derive/cel"
	"github.com/ezachrisen/derive/config"
	"github.com/ezachrisen/derive/memrepo"
	"github.com/ezachrisen/derive/sqlrepo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	errItemsRequired  = errors.New("--items is required")
	errConfigRequired = errors.New("--config is required")
)

// rootOptions holds the flags shared by all commands.
type rootOptions struct {
	Config  string
	Items   string
	DB      string
	Modules []string
	Verbose bool

	logger *zap.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Keep derived columns consistent with their expressions",
		Long: `derive evaluates the column expressions of a behavior against work items
and writes the values that changed.

Items are read from a YAML fixture; the behavior from its XML element.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.logger = newLogger(cmd.ErrOrStderr(), opts.Verbose)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "behavior XML file")
	cmd.PersistentFlags().StringVar(&opts.Items, "items", "", "YAML item fixture")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "SQLite item database")
	cmd.PersistentFlags().StringSliceVarP(&opts.Modules, "module", "m", nil, "capability module expressions may use (repeatable)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newValidateCommand(opts))
	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newReplayCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newImportCommand(opts))

	return cmd
}

// newLogger writes human readable logs to w.
func newLogger(w io.Writer, verbose bool) *zap.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), level)
	return zap.New(core)
}

// loadRepository returns a repository holding the items fixture, or an empty
// one when no fixture is given.
func (o *rootOptions) loadRepository(opts ...memrepo.Option) (*memrepo.Repository, error) {
	opts = append([]memrepo.Option{memrepo.WithLogger(o.logger.Named("repo"))}, opts...)
	r, err := memrepo.New(opts...)
	if err != nil {
		return nil, err
	}
	if o.Items != "" {
		if err := r.LoadFile(o.Items); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// openStore opens the SQLite item database.
func (o *rootOptions) openStore() (*sqlrepo.Store, error) {
	return sqlrepo.Open(o.DB, sqlrepo.WithLogger(o.logger.Named("db")))
}

// newBehavior reads the behavior file and creates a behavior over repo.
func (o *rootOptions) newBehavior(repo derive.Repository, opts ...derive.Option) (*derive.Behavior, error) {
	if o.Config == "" {
		return nil, errConfigRequired
	}
	cfg, err := config.ParseFile(o.Config)
	if err != nil {
		return nil, err
	}

	c, err := cel.NewCompiler()
	if err != nil {
		return nil, err
	}

	opts = append([]derive.Option{
		derive.WithLogger(o.logger),
		derive.WithCapabilities(o.Modules...),
	}, opts...)

	b, err := derive.New(cfg, repo, c, opts...)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// printInitError prints the boxed report of a compilation error.
func printInitError(w io.Writer, err error) {
	var ce *derive.CompilationError
	if errors.As(err, &ce) {
		fmt.Fprintln(w, ce.Report())
	}
}
