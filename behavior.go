package derive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"go.uber.org/zap"
)

// Behavior keeps the configured columns of the items in a set of views
// consistent with their expressions.
//
// A Behavior is driven by its host: Initialize once (and again whenever the
// host re-initializes it), then HandleEvent for every change notification.
// A Behavior is not safe for concurrent use; the host must deliver callbacks
// one at a time, which is how tracking platforms dispatch them.
type Behavior struct {
	cfg      Config
	repo     Repository
	compiler Compiler
	opts     Options
	title    string
	logger   *zap.Logger

	// programs holds the compiled expression of each column spec, in the
	// order of cfg.Columns. Built on the first successful Initialize and
	// never rebuilt.
	programs []Program

	// views resolved from the project pattern at initialization
	views []View

	state behaviorState
}

// behaviorState is reset only by Initialize.
type behaviorState struct {
	initialized         bool
	changeImpactPending bool
	bufferedMode        bool
	batchOpen           bool
}

// State is a snapshot of a behavior's event-processing state.
type State struct {
	Initialized         bool
	ChangeImpactPending bool
	Buffered            bool
	BatchOpen           bool
}

// Options used by the behavior. See the functional definitions below for
// the meaning of each.
type Options struct {
	Logger          *zap.Logger
	ErrorHandler    func(error)
	Buffered        bool
	Capabilities    []string
	RequireProjects bool
	Metrics         bool
}

type Option func(o *Options)

// Given an array of Option functions, apply their effect on the Options struct.
func applyOptions(o *Options, opts ...Option) {
	for _, opt := range opts {
		opt(o)
	}
}

// WithLogger sets the structured logger.
// Default: zap.NewNop()
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithErrorHandler sets the channel per-item evaluation errors are reported
// to. Evaluation errors never stop a pass.
// Default: log the error at error level.
func WithErrorHandler(f func(error)) Option {
	return func(o *Options) {
		o.ErrorHandler = f
	}
}

// Buffered declares that the host delivers change notifications in batches,
// bracketed by BatchBegin and BatchEnd events. Changes inside a batch are
// coalesced into one recompute at the end of the batch.
// Default: off
func Buffered(b bool) Option {
	return func(o *Options) {
		o.Buffered = b
	}
}

// WithCapabilities names extension modules that expressions may use. The
// names are resolved by the Compiler.
func WithCapabilities(names ...string) Option {
	return func(o *Options) {
		o.Capabilities = append(o.Capabilities, names...)
	}
}

// RequireProjects makes Initialize fail with a ProjectResolutionError when
// no project matches. Without it, the behavior logs a warning and stays inert.
// Default: off
func RequireProjects(b bool) Option {
	return func(o *Options) {
		o.RequireProjects = b
	}
}

// WithMetrics controls whether Prometheus metrics are recorded.
// Default: on
func WithMetrics(b bool) Option {
	return func(o *Options) {
		o.Metrics = b
	}
}

// New validates the configuration and returns a behavior ready to be
// initialized. No expression is compiled until Initialize.
func New(cfg Config, repo Repository, c Compiler, opts ...Option) (*Behavior, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if repo == nil {
		return nil, configErrorf("%w: repository", ErrMissingField)
	}
	if c == nil {
		return nil, configErrorf("%w: compiler", ErrMissingField)
	}

	b := Behavior{
		cfg:      cfg,
		repo:     repo,
		compiler: c,
		opts:     Options{Metrics: true},
		title:    cfg.title(),
	}
	b.cfg.Columns = append([]ColumnSpec(nil), cfg.Columns...)
	applyOptions(&b.opts, opts...)

	if b.opts.Logger == nil {
		b.opts.Logger = zap.NewNop()
	}
	b.logger = b.opts.Logger.With(zap.String("behavior", b.title))
	if b.opts.ErrorHandler == nil {
		b.opts.ErrorHandler = func(err error) {
			b.logger.Error("Derived column evaluation failed", zap.Error(err))
		}
	}
	b.state.bufferedMode = b.opts.Buffered
	return &b, nil
}

// Title identifies the behavior in logs and reports.
func (b *Behavior) Title() string {
	return b.title
}

// Columns returns the column specs in evaluation order.
func (b *Behavior) Columns() []ColumnSpec {
	return append([]ColumnSpec(nil), b.cfg.Columns...)
}

// Views returns the views resolved by the last Initialize.
func (b *Behavior) Views() []View {
	return append([]View(nil), b.views...)
}

// State returns a snapshot of the behavior's state.
func (b *Behavior) State() State {
	return State{
		Initialized:         b.state.initialized,
		ChangeImpactPending: b.state.changeImpactPending,
		Buffered:            b.state.bufferedMode,
		BatchOpen:           b.state.batchOpen,
	}
}

// Initialize compiles the column expressions if they have not been compiled
// yet, resolves the configured projects and views, and runs a full recompute.
// Compilation errors are reported even when no project can be resolved.
//
// Initialize resets the behavior's state; it may be called again when the
// host re-initializes the behavior. Compiled expressions are kept across
// calls.
func (b *Behavior) Initialize(ctx context.Context) (*PassReport, error) {
	b.state = behaviorState{bufferedMode: b.opts.Buffered}

	if err := b.compile(); err != nil {
		return nil, err
	}

	if err := b.resolveViews(ctx); err != nil {
		return nil, err
	}

	b.state.initialized = true
	return b.recompute(ctx), nil
}

func (b *Behavior) resolveViews(ctx context.Context) error {
	b.views = nil
	projects, err := b.repo.FindProjects(ctx, b.cfg.Project, b.cfg.InvertedMatch)
	if err != nil {
		return fmt.Errorf("finding projects %q: %w", b.cfg.Project, err)
	}

	if len(projects) == 0 {
		if b.opts.RequireProjects {
			return &ProjectResolutionError{Pattern: b.cfg.Project, Inverted: b.cfg.InvertedMatch}
		}
		b.logger.Warn("No project matches; behavior is inert",
			zap.String("pattern", b.cfg.Project),
			zap.Bool("inverted", b.cfg.InvertedMatch))
		return nil
	}

	for _, p := range projects {
		v := b.cfg.View.view(p)
		if v == nil {
			b.logger.Warn("Project has no view of the configured kind",
				zap.String("project", p.Name()),
				zap.Stringer("view", b.cfg.View))
			continue
		}
		b.views = append(b.views, v)
	}
	return nil
}

// compile builds the program for every column spec. All failures are
// collected into a single CompilationError.
func (b *Behavior) compile() error {
	if b.programs != nil {
		return nil
	}

	start := time.Now()
	programs := make([]Program, len(b.cfg.Columns))
	var diags []Diagnostic
	for i, s := range b.cfg.Columns {
		p, err := b.compiler.Compile(s.expression, b.opts.Capabilities)
		if err != nil {
			diags = append(diags, Diagnostic{Spec: s, Message: err.Error()})
			continue
		}
		if p == nil {
			diags = append(diags, Diagnostic{Spec: s, Message: "compiler returned no program"})
			continue
		}
		programs[i] = p
	}

	if len(diags) > 0 {
		return &CompilationError{Diagnostics: diags}
	}

	b.programs = programs
	b.logger.Info("Compiled derived column expressions",
		zap.Int("columns", len(programs)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Recompute runs a full recompute pass. It does nothing, and returns nil,
// before the behavior is initialized.
func (b *Behavior) Recompute(ctx context.Context) *PassReport {
	return b.recompute(ctx)
}

// recompute evaluates every column spec for every item in every view.
func (b *Behavior) recompute(ctx context.Context) *PassReport {
	if !b.state.initialized {
		b.logger.Debug("Recompute skipped; behavior not initialized")
		return nil
	}

	report := &PassReport{
		Behavior: b.title,
		Started:  time.Now(),
	}

	for _, v := range b.views {
		items, err := v.Find(ctx, b.cfg.Find)
		if err != nil {
			err = fmt.Errorf("finding items in view %s: %w", v.Name(), err)
			report.Failures = append(report.Failures, err)
			b.opts.ErrorHandler(err)
			continue
		}
		report.Views++

		for _, item := range items {
			report.Items++
			for i, s := range b.cfg.Columns {
				o, err := b.apply(ctx, item, s, b.programs[i])
				report.record(o)
				if err != nil {
					err = &EvaluationError{
						ItemID:     item.ID(),
						Column:     s.String(),
						Expression: s.expression,
						Err:        err,
					}
					report.Failures = append(report.Failures, err)
					b.opts.ErrorHandler(err)
				}
				if o == OutcomeWritten {
					b.recordWrite(s)
				}
			}
		}
	}

	report.Duration = time.Since(report.Started)
	b.recordPass(report)
	b.logger.Debug("Recompute finished",
		zap.Int("views", report.Views),
		zap.Int("items", report.Items),
		zap.Int("writes", report.Writes),
		zap.Int("failures", len(report.Failures)),
		zap.Duration("elapsed", report.Duration))
	return report
}

// String renders the behavior's column specs as a table.
func (b *Behavior) String() string {
	tw := table.NewWriter()
	tw.SetTitle("\n" + strings.ToUpper(b.title) + "\n")
	tw.AppendHeader(table.Row{"\n#", "\nColumn", "\nTarget", "\nExpression", "\nCompiled"})

	maxWidthOfExpressionColumn := 50
	maxExprLength := 0
	for i, s := range b.cfg.Columns {
		compiled := ""
		if b.programs != nil && b.programs[i] != nil {
			compiled = "yes"
		}
		tw.AppendRow(table.Row{i + 1, s.String(), s.target.String(), s.expression, compiled})
		if len(s.expression) > maxExprLength {
			maxExprLength = len(s.expression)
		}
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, WidthMax: maxWidthOfExpressionColumn},
	})

	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	// Only add the row separator if the expression is wide enough to wrap.
	if maxExprLength > maxWidthOfExpressionColumn {
		style.Options.SeparateRows = true
	}
	tw.SetStyle(style)
	return tw.Render()
}
