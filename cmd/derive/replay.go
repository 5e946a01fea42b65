package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ezachrisen/derive"
	"github.com/ezachrisen/derive/memrepo"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// maxFeedback bounds the change events a replay feeds back from its own
// writes. Expressions that never settle would otherwise loop forever.
const maxFeedback = 10000

var errNoConvergence = errors.New("writes did not converge")

type replayOptions struct {
	*rootOptions
	Events   string
	Buffered bool
	Feedback bool
}

// scriptEvent is one entry of an event script:
//
//   - kind: BatchBegin
//   - kind: ItemChanged
//     item: "42"
//   - kind: BatchEnd
type scriptEvent struct {
	Kind string `yaml:"kind"`
	Item string `yaml:"item,omitempty"`
}

type replayStats struct {
	events   int
	passes   int
	writes   int
	feedback int
}

func newReplayCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &replayOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Deliver a script of change events to the behavior",
		Long: `Initialize the behavior against the item fixture, then deliver the events
of a YAML script one at a time, printing every recompute they cause.

With --feedback, every write the behavior makes is delivered back to it as a
change event, the way a tracking platform notifies its own extensions.

Examples:
  derive replay -c risk.xml --items backlog.yaml --events batch.yaml --buffered
  derive replay -c risk.xml --items backlog.yaml --events edits.yaml --feedback`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Events, "events", "e", "", "YAML event script (required)")
	_ = cmd.MarkFlagRequired("events")
	cmd.Flags().BoolVar(&opts.Buffered, "buffered", false, "coalesce changes between BatchBegin and BatchEnd")
	cmd.Flags().BoolVar(&opts.Feedback, "feedback", false, "deliver the behavior's own writes back as change events")
	return cmd
}

func runReplay(cmd *cobra.Command, opts *replayOptions) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	if opts.Items == "" {
		return errItemsRequired
	}

	script, err := loadEvents(opts.Events)
	if err != nil {
		return err
	}

	var queue []derive.Event
	var repoOpts []memrepo.Option
	if opts.Feedback {
		repoOpts = append(repoOpts, memrepo.OnChange(func(e derive.Event) {
			queue = append(queue, e)
		}))
	}

	repo, err := opts.loadRepository(repoOpts...)
	if err != nil {
		return err
	}

	b, err := opts.newBehavior(repo, derive.Buffered(opts.Buffered))
	if err != nil {
		return err
	}

	report, err := b.Initialize(ctx)
	if err != nil {
		printInitError(out, err)
		return err
	}
	fmt.Fprintf(out, "%-24s %s\n", "Initialize", summary(report))

	var stats replayStats
	deliver := func(e derive.Event, label string) error {
		rep, err := b.HandleEvent(ctx, e)
		if err != nil {
			return err
		}
		if rep != nil {
			stats.passes++
			stats.writes += rep.Writes
			fmt.Fprintf(out, "%-24s %s\n", label, summary(rep))
		}
		return nil
	}

	drain := func() error {
		for len(queue) > 0 {
			if stats.feedback == maxFeedback {
				return fmt.Errorf("%w after %d change events", errNoConvergence, maxFeedback)
			}
			e := queue[0]
			queue = queue[1:]
			stats.feedback++
			if err := deliver(e, "  <- "+eventLabel(e)); err != nil {
				return err
			}
		}
		return nil
	}

	if err := drain(); err != nil {
		return err
	}
	for _, e := range script {
		stats.events++
		if err := deliver(e, eventLabel(e)); err != nil {
			return err
		}
		if err := drain(); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "\n%d event(s), %d fed back, %d recompute(s), %d write(s)\n",
		stats.events, stats.feedback, stats.passes, stats.writes)
	return nil
}

func loadEvents(path string) ([]derive.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening event script: %w", err)
	}
	defer f.Close()
	return decodeEvents(f)
}

func decodeEvents(r io.Reader) ([]derive.Event, error) {
	var script []scriptEvent
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&script); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding event script: %w", err)
	}

	events := make([]derive.Event, 0, len(script))
	for i, se := range script {
		k, err := derive.ParseEventKind(se.Kind)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i+1, err)
		}
		events = append(events, derive.Event{Kind: k, ItemID: se.Item})
	}
	return events, nil
}

func eventLabel(e derive.Event) string {
	if e.ItemID == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s(%s)", e.Kind, e.ItemID)
}

func summary(r *derive.PassReport) string {
	if r == nil {
		return "no recompute"
	}
	return fmt.Sprintf("recomputed %d item(s): %d write(s), %d unchanged, %d no value, %d failed",
		r.Items, r.Writes, r.Unchanged, r.NoValues, len(r.Failures))
}
