// Package infer reconstructs a GraphQL schema from a server that has
// introspection disabled, by probing candidate names and classifying the
// error messages the validator leaks. The output is always best-effort: a
// partial model is a successful run.
package infer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/giuseppesec/gqlmap/httpgql"
	"github.com/giuseppesec/gqlmap/qerrors"
	"github.com/giuseppesec/gqlmap/schema"
)

const (
	DefaultWorkers = 4
	DefaultRetries = 2

	// rootProbeField is a name no schema plausibly has; the unknown-field
	// error it draws leaks the root type's name.
	rootProbeField = "gqlmapFieldThatDoesNotExist"

	// Give up on a type after this many transport faults in a row. A target
	// that stops answering mid-type is not coming back for the next probe.
	maxConsecutiveFaults = 5

	// An ambiguous verdict is usually a garbled response, not a property of
	// the hypothesis. Reprobe this many times before abandoning it.
	maxAmbiguousRetries = 2
)

// rootAliases are the customary names of root types, tried when the target
// leaks nothing better.
var rootAliases = map[schema.OperationType]string{
	schema.Query:        "Query",
	schema.Mutation:     "Mutation",
	schema.Subscription: "Subscription",
}

type Options struct {
	// Workers is the number of concurrent probing goroutines. Each owns one
	// type at a time, so writes to a type never race.
	Workers int
	// MaxProbes caps the total number of requests; zero means unlimited.
	// Hitting the cap ends the run with whatever was confirmed so far.
	MaxProbes int
	// MaxTime caps the wall clock of the whole run; zero means unlimited.
	// Like MaxProbes, hitting it ends the run with whatever was confirmed.
	MaxTime time.Duration
	// Wordlist is the candidate field list. Empty means the built-in list.
	Wordlist []string
	// ArgWordlist is the candidate argument list, probed against confirmed
	// fields when ProbeArgs is set. Empty means the built-in list.
	ArgWordlist []string
	// ProbeArgs enables argument discovery on confirmed fields.
	ProbeArgs bool
	// SkipMutations leaves the mutation root unprobed. Mutation field probes
	// can have side effects on the target.
	SkipMutations bool
	// Retries is the number of times a transport fault is retried with
	// exponential backoff before counting against the fault limit.
	Retries int

	Classifier *Classifier
	Logger     log.Logger
}

// Stats summarizes a finished run.
type Stats struct {
	Probes    int64
	Confirmed int64
	Rejected  int64
	Suggested int64
	Ambiguous int64
	// Partial is set when the run ended before the frontier drained; Reason
	// says why (budget, cancellation, transport).
	Partial bool
	Reason  string
}

// Engine drives schema inference against one endpoint.
type Engine struct {
	client *httpgql.Client
	opts   Options

	model      *schema.Model
	frontier   *frontier
	classifier *Classifier
	logger     log.Logger

	probes    atomic.Int64
	confirmed atomic.Int64
	rejected  atomic.Int64
	suggested atomic.Int64
	ambiguous atomic.Int64

	stopMu     sync.Mutex
	stopReason string
}

func New(client *httpgql.Client, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Retries < 0 {
		opts.Retries = DefaultRetries
	}
	if len(opts.Wordlist) == 0 {
		opts.Wordlist = DefaultFieldWordlist()
	}
	if len(opts.ArgWordlist) == 0 {
		opts.ArgWordlist = DefaultArgumentWordlist()
	}
	classifier := opts.Classifier
	if classifier == nil {
		classifier = DefaultClassifier()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Engine{
		client:     client,
		opts:       opts,
		model:      schema.NewModel(),
		frontier:   newFrontier(),
		classifier: classifier,
		logger:     logger,
	}
}

// Run probes the target until the frontier drains, the probe budget runs
// out, or the context is canceled. The returned model is usable in every
// case; Stats.Partial distinguishes a complete walk from a truncated one.
func (e *Engine) Run(ctx context.Context) (*schema.Model, *Stats, error) {
	if e.opts.MaxTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.MaxTime)
		defer cancel()
	}
	if err := e.discoverRoots(ctx); err != nil {
		return nil, nil, err
	}

	var wg sync.WaitGroup
	for i := 0; i < e.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.worker(ctx)
		}()
	}
	wg.Wait()

	stats := &Stats{
		Probes:    e.probes.Load(),
		Confirmed: e.confirmed.Load(),
		Rejected:  e.rejected.Load(),
		Suggested: e.suggested.Load(),
		Ambiguous: e.ambiguous.Load(),
	}
	e.stopMu.Lock()
	stats.Reason = e.stopReason
	e.stopMu.Unlock()
	if stats.Reason != "" {
		stats.Partial = true
		e.model.MarkPartial()
	}
	e.model.Finalize()

	level.Info(e.logger).Log("msg", "inference finished",
		"types", e.model.Len(), "probes", stats.Probes,
		"confirmed", stats.Confirmed, "partial", stats.Partial)
	return e.model, stats, nil
}

// discoverRoots resolves the root type name for each operation kind and
// seeds the frontier. The `{ __typename }` meta field answers directly on
// conforming servers; failing that, an unknown-field error leaks the name;
// failing that, the customary alias is assumed, since field probes do not
// actually need the real name.
func (e *Engine) discoverRoots(ctx context.Context) error {
	ops := []schema.OperationType{schema.Query, schema.Mutation}
	if e.opts.SkipMutations {
		ops = ops[:1]
	}

	seeded := false
	var lastErr error
	for _, op := range ops {
		name, ok, err := e.resolveRoot(ctx, op)
		if err != nil {
			lastErr = err
			continue
		}
		if !ok {
			level.Debug(e.logger).Log("msg", "operation not supported", "op", op)
			continue
		}
		level.Info(e.logger).Log("msg", "root resolved", "op", op, "type", name)
		e.model.SetRoot(op, name)
		e.model.UpsertType(name, schema.Object)
		e.frontier.Push(entry{TypeName: name, Op: op})
		seeded = true
	}

	if !seeded {
		if lastErr != nil {
			return errors.Wrap(lastErr, "no operation root reachable")
		}
		return errors.New("no operation root reachable")
	}
	return nil
}

func (e *Engine) resolveRoot(ctx context.Context, op schema.OperationType) (string, bool, error) {
	result, err := e.rootProbe(ctx, fmt.Sprintf("%s { __typename }", op), "root:"+string(op))
	if err != nil {
		return "", false, err
	}
	if e.classifier.OperationUnsupported(result) {
		return "", false, nil
	}
	if raw, ok := result.DataField("__typename"); ok {
		name := strings.Trim(string(raw), `"`)
		if validName(name) {
			return name, true, nil
		}
	}

	// No data payload. Draw an unknown-field error and read the type name
	// out of it.
	result, err = e.rootProbe(ctx, fmt.Sprintf("%s { %s }", op, rootProbeField), "root:"+string(op))
	if err != nil {
		return "", false, err
	}
	if e.classifier.OperationUnsupported(result) {
		return "", false, nil
	}
	verdict := e.classifier.ClassifyField(result, rootProbeField)
	if validName(verdict.OnType) {
		return verdict.OnType, true, nil
	}
	if verdict.Outcome == Ambiguous && len(result.ErrorMessages()) == 0 && !result.HasData() {
		// Nothing GraphQL-shaped came back at all.
		return "", false, nil
	}
	return rootAliases[op], true, nil
}

// rootProbe is probe with budget accounting. Discovery requests count
// against the budget and appear in the stats like hypothesis probes.
func (e *Engine) rootProbe(ctx context.Context, query, name string) (*httpgql.ProbeResult, error) {
	if !e.takeProbe(ctx) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, qerrors.ErrBudgetExhausted
	}
	return e.probe(ctx, query, name)
}

func (e *Engine) worker(ctx context.Context) {
	for {
		ent, ok := e.frontier.Pop()
		if !ok {
			return
		}
		e.processType(ctx, ent)
		e.frontier.Done()
	}
}

// processType walks the wordlist against one type. Server suggestions take
// precedence: they are probed before the rest of the wordlist, nearest
// first. The worker owns this type, so no locking beyond the model's own.
func (e *Engine) processType(ctx context.Context, ent entry) {
	e.model.MarkVisited(ent.TypeName)
	level.Debug(e.logger).Log("msg", "probing type", "type", ent.TypeName, "op", ent.Op)

	pending := append([]string{}, e.opts.Wordlist...)
	settled := map[string]bool{}
	attempts := map[string]int{}
	faults := 0

	for len(pending) > 0 {
		candidate := pending[0]
		pending = pending[1:]
		if settled[candidate] || !validName(candidate) {
			continue
		}
		attempts[candidate]++

		if !e.takeProbe(ctx) {
			return
		}

		result, err := e.probe(ctx, buildFieldProbe(ent, candidate), "field:"+ent.TypeName+"."+candidate)
		if err != nil {
			faults++
			if faults >= maxConsecutiveFaults {
				e.stop("transport: " + err.Error())
				return
			}
			continue
		}
		faults = 0

		verdict := e.classifier.ClassifyField(result, candidate, ent.Path...)
		e.recordLeaks(result)
		switch verdict.Outcome {
		case Confirmed:
			settled[candidate] = true
			e.confirmed.Add(1)
			e.confirmField(ctx, ent, candidate, verdict)
		case Suggested:
			settled[candidate] = true
			e.suggested.Add(1)
			// Suggestions jump the queue, already ranked nearest first.
			fresh := verdict.Suggestions[:0:0]
			for _, s := range verdict.Suggestions {
				if !settled[s] {
					fresh = append(fresh, s)
				}
			}
			pending = append(fresh, pending...)
		case Rejected:
			settled[candidate] = true
			e.rejected.Add(1)
		default:
			// Usually a garbled response; reprobe before giving up on the
			// name.
			if attempts[candidate] <= maxAmbiguousRetries {
				pending = append(pending, candidate)
				continue
			}
			settled[candidate] = true
			e.ambiguous.Add(1)
		}
	}
}

// confirmField records a confirmed field and expands the frontier when the
// field's type is itself probeable.
func (e *Engine) confirmField(ctx context.Context, ent entry, field string, verdict Classification) {
	ref := schema.TypeRef{Unresolved: true}
	switch {
	case verdict.RequiresSelection:
		if verdict.TypeName != "" {
			ref = schema.TypeRef{Name: verdict.TypeName}
		}
	case verdict.HasRef:
		ref = verdict.Ref
	case verdict.TypeName != "":
		ref = schema.TypeRef{Name: verdict.TypeName}
	}
	e.model.UpsertField(ent.TypeName, field, ref, schema.Inferred, schema.ConfidenceDirect)
	level.Debug(e.logger).Log("msg", "field confirmed", "type", ent.TypeName, "field", field, "returns", ref.Name)

	for _, hint := range verdict.RequiredArgs {
		if !validName(hint.Name) {
			continue
		}
		argRef := schema.TypeRef{Name: hint.Type}
		if hint.Type == "" {
			argRef = schema.TypeRef{Unresolved: true}
		}
		e.model.UpsertArgument(ent.TypeName, field, hint.Name, argRef, true)
	}

	if verdict.RequiresSelection && verdict.TypeName != "" && !schema.IsBuiltinScalar(verdict.TypeName) {
		e.model.UpsertType(verdict.TypeName, schema.Unresolved)
		e.frontier.Push(entry{
			TypeName: verdict.TypeName,
			Op:       ent.Op,
			Path:     append(append([]string{}, ent.Path...), field),
		})
	}

	if e.opts.ProbeArgs {
		e.probeArguments(ctx, ent, field, verdict.RequiresSelection)
	}
}

// probeArguments walks the argument wordlist against one confirmed field,
// with the same suggestion precedence as field probing.
func (e *Engine) probeArguments(ctx context.Context, ent entry, field string, needsSelection bool) {
	pending := append([]string{}, e.opts.ArgWordlist...)
	settled := map[string]bool{}
	attempts := map[string]int{}

	for len(pending) > 0 {
		candidate := pending[0]
		pending = pending[1:]
		if settled[candidate] || !validName(candidate) {
			continue
		}
		attempts[candidate]++

		if !e.takeProbe(ctx) {
			return
		}

		result, err := e.probe(ctx, buildArgProbe(ent, field, candidate, needsSelection), "arg:"+ent.TypeName+"."+field+"("+candidate+")")
		if err != nil {
			continue
		}

		verdict := e.classifier.ClassifyArgument(result, field, candidate, ent.Path...)
		switch verdict.Outcome {
		case Confirmed:
			settled[candidate] = true
			e.confirmed.Add(1)
			e.model.UpsertArgument(ent.TypeName, field, candidate, schema.TypeRef{Unresolved: true}, false)
		case Suggested:
			settled[candidate] = true
			e.suggested.Add(1)
			fresh := verdict.Suggestions[:0:0]
			for _, s := range verdict.Suggestions {
				if !settled[s] {
					fresh = append(fresh, s)
				}
			}
			pending = append(fresh, pending...)
		case Rejected:
			settled[candidate] = true
			e.rejected.Add(1)
		default:
			if attempts[candidate] <= maxAmbiguousRetries {
				pending = append(pending, candidate)
				continue
			}
			settled[candidate] = true
			e.ambiguous.Add(1)
		}
		for _, hint := range verdict.RequiredArgs {
			if validName(hint.Name) {
				argRef := schema.TypeRef{Name: hint.Type}
				if hint.Type == "" {
					argRef = schema.TypeRef{Unresolved: true}
				}
				e.model.UpsertArgument(ent.TypeName, field, hint.Name, argRef, true)
			}
		}
	}
}

// recordLeaks registers type names the response exposed incidentally. They
// cannot be frontier entries, there is no confirmed path to them, but their
// existence is still worth keeping.
func (e *Engine) recordLeaks(result *httpgql.ProbeResult) {
	for _, name := range e.classifier.LeakedTypes(result) {
		if schema.IsBuiltinScalar(name) || e.frontier.Dispatched(name) {
			continue
		}
		e.model.UpsertType(name, schema.Unresolved)
	}
}

// probe sends one request, retrying transport faults with exponential
// backoff. GraphQL errors and HTTP error statuses are results, not faults.
func (e *Engine) probe(ctx context.Context, query, name string) (*httpgql.ProbeResult, error) {
	var result *httpgql.ProbeResult
	operation := func() error {
		var err error
		result, err = e.client.Post(ctx, query, nil, name)
		if err != nil && !qerrors.IsTransport(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(e.opts.Retries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return result, nil
}

// takeProbe consumes one unit of budget. A false return means the run is
// over: budget spent or context canceled. Both drain the frontier so every
// worker winds down.
func (e *Engine) takeProbe(ctx context.Context) bool {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			e.stop("time budget exhausted")
		} else {
			e.stop("canceled")
		}
		return false
	}
	n := e.probes.Add(1)
	if e.opts.MaxProbes > 0 && n > int64(e.opts.MaxProbes) {
		e.probes.Add(-1)
		e.stop(qerrors.ErrBudgetExhausted.Error())
		return false
	}
	return true
}

// stop records the first termination reason and drains the frontier.
func (e *Engine) stop(reason string) {
	e.stopMu.Lock()
	if e.stopReason == "" {
		e.stopReason = reason
	}
	e.stopMu.Unlock()
	e.frontier.Close()
}

// buildFieldProbe renders the probe query for one field hypothesis, nesting
// the candidate inside the confirmed path that reaches the type.
func buildFieldProbe(ent entry, candidate string) string {
	sb := strings.Builder{}
	sb.WriteString(string(ent.Op))
	sb.WriteString(" {")
	for _, step := range ent.Path {
		sb.WriteString(" ")
		sb.WriteString(step)
		sb.WriteString(" {")
	}
	sb.WriteString(" ")
	sb.WriteString(candidate)
	sb.WriteString(" ")
	for range ent.Path {
		sb.WriteString("} ")
	}
	sb.WriteString("}")
	return sb.String()
}

// buildArgProbe renders the probe query for one argument hypothesis. A null
// literal either passes validation or draws an error naming the argument.
func buildArgProbe(ent entry, field, candidate string, needsSelection bool) string {
	sb := strings.Builder{}
	sb.WriteString(string(ent.Op))
	sb.WriteString(" {")
	for _, step := range ent.Path {
		sb.WriteString(" ")
		sb.WriteString(step)
		sb.WriteString(" {")
	}
	sb.WriteString(" ")
	sb.WriteString(field)
	sb.WriteString("(")
	sb.WriteString(candidate)
	sb.WriteString(": null)")
	if needsSelection {
		sb.WriteString(" { __typename }")
	}
	sb.WriteString(" ")
	for range ent.Path {
		sb.WriteString("} ")
	}
	sb.WriteString("}")
	return sb.String()
}
