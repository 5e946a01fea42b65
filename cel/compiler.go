package cel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ezachrisen/derive"
	celgo "github.com/google/cel-go/cel"
)

// ErrUnknownModule is returned by Compile when a capability name does not
// resolve to a registered module.
var ErrUnknownModule = errors.New("unknown capability module")

// Compiler compiles derive expressions to CEL programs. The zero value is not
// usable; create one with NewCompiler.
type Compiler struct {
	modules map[string][]celgo.EnvOption
	clock   func() time.Time

	mu   sync.Mutex
	base *celgo.Env
	envs map[string]*celgo.Env
}

// CompilerOption configures a Compiler.
type CompilerOption func(c *Compiler)

// WithModule registers a capability module under name. Expressions compiled
// with name in their capability list may use everything the options declare.
// Registering a name twice replaces the earlier module, including built-ins.
func WithModule(name string, opts ...celgo.EnvOption) CompilerOption {
	return func(c *Compiler) {
		c.modules[name] = opts
	}
}

// WithClock sets the source of the now variable. Defaults to time.Now.
func WithClock(clock func() time.Time) CompilerOption {
	return func(c *Compiler) {
		c.clock = clock
	}
}

// NewCompiler creates a Compiler with the built-in modules registered.
func NewCompiler(opts ...CompilerOption) (*Compiler, error) {
	c := &Compiler{
		modules: builtinModules(),
		clock:   time.Now,
		envs:    map[string]*celgo.Env{},
	}
	for _, o := range opts {
		o(c)
	}

	base, err := celgo.NewEnv(baseOptions()...)
	if err != nil {
		return nil, fmt.Errorf("creating CEL environment: %w", err)
	}
	c.base = base
	return c, nil
}

// Modules lists the names of the registered capability modules.
func (c *Compiler) Modules() []string {
	names := make([]string, 0, len(c.modules))
	for n := range c.modules {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Compile parses and type-checks expr. Every issue CEL reports is included in
// the returned error.
func (c *Compiler) Compile(expr string, capabilities []string) (derive.Program, error) {
	env, err := c.env(capabilities)
	if err != nil {
		return nil, err
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%s", strings.TrimSpace(iss.Err().Error()))
	}

	prg, err := env.Program(ast, celgo.EvalOptions(celgo.OptOptimize))
	if err != nil {
		return nil, fmt.Errorf("generating program: %w", err)
	}
	return &program{expr: expr, prg: prg, clock: c.clock}, nil
}

// env returns the environment extended with the capability modules, building
// it on first use.
func (c *Compiler) env(capabilities []string) (*celgo.Env, error) {
	if len(capabilities) == 0 {
		return c.base, nil
	}

	names := append([]string(nil), capabilities...)
	sort.Strings(names)
	key := strings.Join(names, ",")

	c.mu.Lock()
	defer c.mu.Unlock()

	if env, ok := c.envs[key]; ok {
		return env, nil
	}

	var opts []celgo.EnvOption
	for _, n := range names {
		m, ok := c.modules[n]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownModule, n)
		}
		opts = append(opts, m...)
	}

	env, err := c.base.Extend(opts...)
	if err != nil {
		return nil, fmt.Errorf("loading modules %s: %w", key, err)
	}
	c.envs[key] = env
	return env, nil
}

type program struct {
	expr  string
	prg   celgo.Program
	clock func() time.Time
}

// Eval binds item to the item's fields and now to the compiler's clock.
func (p *program) Eval(ctx context.Context, item derive.Item) (res derive.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluating %q: panic: %v", p.expr, r)
		}
	}()

	fields := item.Fields()
	if fields == nil {
		fields = map[string]any{}
	}

	out, _, err := p.prg.ContextEval(ctx, map[string]any{
		itemVar: fields,
		nowVar:  p.clock(),
	})
	if err != nil {
		return derive.Result{}, fmt.Errorf("evaluating %q: %w", p.expr, err)
	}
	return convertResult(out)
}
