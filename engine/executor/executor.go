// Package executor drives validated workflows to completion. For each
// operation in the declared order it resolves path references, injects
// credentials, consults the result cache and the rate limiter, executes
// with retries where the kind allows them, writes the output into the
// data model, and assembles the execution response.
package executor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lyzr/a2e/common/audit"
	"github.com/lyzr/a2e/common/cache"
	"github.com/lyzr/a2e/common/logger"
	"github.com/lyzr/a2e/common/metrics"
	"github.com/lyzr/a2e/common/ratelimit"
	"github.com/lyzr/a2e/common/retry"
	"github.com/lyzr/a2e/engine/agent"
	"github.com/lyzr/a2e/engine/catalog"
	"github.com/lyzr/a2e/engine/credential"
	"github.com/lyzr/a2e/engine/datamodel"
	"github.com/lyzr/a2e/engine/errs"
	"github.com/lyzr/a2e/engine/message"
	"github.com/lyzr/a2e/engine/pathref"
	"github.com/lyzr/a2e/engine/validation"
)

// Execution statuses.
const (
	StatusSuccess        = "success"
	StatusPartialSuccess = "partial_success"
	StatusFailed         = "failed"
)

// Per-operation statuses.
const (
	OpStatusSuccess = "success"
	OpStatusFailed  = "failed"
	OpStatusSkipped = "skipped"
)

// loopScope is the data model subtree bound during loop iterations.
const (
	loopScope        = "/workflow/_loop"
	loopCurrentPath  = "/workflow/_loop/current"
	loopIndexPath    = "/workflow/_loop/index"
)

// Limits caps a single execution.
type Limits struct {
	MaxOperations int
	MaxDuration   time.Duration
	MaxDataBytes  int
}

// Projection bounds the data returned in execution responses.
type Projection struct {
	MaxStringLength int
	MaxArrayLength  int
}

// Options wires an Engine. Catalog, Agents and Credentials are
// required; everything else has a working default.
type Options struct {
	Catalog     *catalog.Catalog
	Agents      agent.CatalogProvider
	Credentials credential.Resolver

	Limiter *ratelimit.Limiter
	Cache   *cache.ResultCache
	Retry   *retry.Policy
	Audit   audit.Log
	Metrics *metrics.Metrics
	HTTP    *http.Client
	Storage catalog.StorageProvider
	Logger  *logger.Logger

	Limits     Limits
	Projection Projection
}

// Engine executes workflows for agents.
type Engine struct {
	catalog   *catalog.Catalog
	validator *validation.Validator
	agents    agent.CatalogProvider
	injector  *credential.Injector
	limiter   *ratelimit.Limiter
	cache     *cache.ResultCache
	retry     *retry.Policy
	audit     audit.Log
	metrics   *metrics.Metrics
	http      *http.Client
	storage   catalog.StorageProvider
	log       *logger.Logger
	limits    Limits
	project   Projection
}

// New creates an engine from options.
func New(opts Options) *Engine {
	e := &Engine{
		catalog:  opts.Catalog,
		agents:   opts.Agents,
		injector: credential.NewInjector(opts.Credentials),
		limiter:  opts.Limiter,
		cache:    opts.Cache,
		retry:    opts.Retry,
		audit:    opts.Audit,
		metrics:  opts.Metrics,
		http:     opts.HTTP,
		storage:  opts.Storage,
		log:      opts.Logger,
		limits:   opts.Limits,
		project:  opts.Projection,
	}
	e.validator = validation.New(opts.Catalog, opts.Limits.MaxOperations)
	if e.cache == nil {
		e.cache = cache.New(cache.Config{})
	}
	if e.retry == nil {
		e.retry = retry.New(retry.DefaultConfig())
	}
	if e.audit == nil {
		e.audit = audit.NewMemoryLog(0)
	}
	if e.metrics == nil {
		e.metrics = metrics.Nop()
	}
	if e.http == nil {
		e.http = http.DefaultClient
	}
	if e.log == nil {
		e.log = logger.Discard()
	}
	if e.limiter == nil {
		e.limiter = ratelimit.New(ratelimit.Limits{}, 0, e.log)
	}
	return e
}

// OperationOutcome is the per-operation summary in the response.
type OperationOutcome struct {
	Status     string      `json:"status"`
	DurationMs int64       `json:"durationMs"`
	Result     any         `json:"result,omitempty"`
	Error      *errs.Error `json:"error,omitempty"`
	Cached     bool        `json:"cached,omitempty"`
	SkipReason string      `json:"skipReason,omitempty"`
}

// Response is the execution result returned to the agent.
type Response struct {
	ExecutionID string                       `json:"executionId"`
	Status      string                       `json:"status"`
	Operations  map[string]*OperationOutcome `json:"operations"`
	Data        any                          `json:"data,omitempty"`
	Validation  *validation.Report           `json:"validation,omitempty"`
	DurationMs  int64                        `json:"durationMs"`
}

// Request is one execution submission.
type Request struct {
	AgentID       string
	WorkflowBytes []byte
	// FullData disables the response projection limits.
	FullData bool
}

// runState is the mutable state of one execution.
type runState struct {
	agentID  string
	wf       *message.Workflow
	tree     *datamodel.Tree
	resolver *pathref.Resolver
	outcomes map[string]*OperationOutcome

	// gateSkips maps operation IDs to the Conditional that excluded them.
	gateSkips map[string]string
	// skippedOutputs holds outputPaths of operations that never ran, so
	// downstream readers can be skipped instead of failed.
	skippedOutputs []string

	log *logger.Logger
}

// Validate parses and validates a workflow without executing it.
func (e *Engine) Validate(ctx context.Context, agentID string, workflowBytes []byte) (*validation.Report, error) {
	wf, err := message.Parse(workflowBytes)
	if err != nil {
		return nil, err
	}
	allowed, err := e.agents.GetAllowedCatalog(ctx, agentID)
	if err != nil {
		return nil, errs.Authorization("agent", "no catalog for agent %q", agentID)
	}
	return e.validator.Validate(wf, allowed), nil
}

// Run parses, validates and executes a workflow. Parse failures and
// unknown agents return an error; validation failures return a failed
// response carrying the report, with no audit trail.
func (e *Engine) Run(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	wf, err := message.Parse(req.WorkflowBytes)
	if err != nil {
		return nil, err
	}
	allowed, err := e.agents.GetAllowedCatalog(ctx, req.AgentID)
	if err != nil {
		return nil, errs.Authorization("agent", "no catalog for agent %q", req.AgentID)
	}

	report := e.validator.Validate(wf, allowed)
	if !report.Valid {
		return &Response{
			ExecutionID: wf.ExecutionID,
			Status:      StatusFailed,
			Validation:  report,
			DurationMs:  time.Since(start).Milliseconds(),
		}, nil
	}

	execCtx := ctx
	if e.limits.MaxDuration > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, e.limits.MaxDuration)
		defer cancel()
	}

	run := &runState{
		agentID:   req.AgentID,
		wf:        wf,
		tree:      datamodel.New(e.limits.MaxDataBytes),
		outcomes:  make(map[string]*OperationOutcome, len(wf.Order)),
		gateSkips: make(map[string]string),
		log:       e.log.WithAgentID(req.AgentID).WithExecutionID(wf.ExecutionID),
	}
	run.resolver = pathref.NewResolver(run.tree)

	startEvent := audit.NewEvent(audit.EventExecutionStarted)
	startEvent.AgentID = req.AgentID
	startEvent.ExecutionID = wf.ExecutionID
	startEvent.WorkflowHash = wf.Hash
	e.appendAudit(execCtx, run, startEvent)

	aborted := false
	for _, opID := range wf.Order {
		def := wf.Operations[opID]
		desc, _ := e.catalog.Get(def.Kind)

		switch {
		case aborted:
			e.skipOperation(execCtx, run, def, "execution stopped after an earlier failure")

		case run.gateSkips[opID] != "":
			e.skipOperation(execCtx, run, def, run.gateSkips[opID])

		case run.blockedRef(def, desc) != "":
			e.skipOperation(execCtx, run, def,
				fmt.Sprintf("upstream value %q was skipped", run.blockedRef(def, desc)))

		case execCtx.Err() != nil:
			run.outcomes[opID] = e.failOperation(execCtx, run, def, 0, e.deadlineError(execCtx))
			run.markSkippedOutput(def)
			aborted = true

		default:
			var outcome *OperationOutcome
			switch def.Kind {
			case catalog.KindConditional:
				outcome = e.runConditional(execCtx, run, def)
			case catalog.KindLoop:
				outcome = e.runLoop(execCtx, run, def)
			default:
				outcome = e.runOperation(execCtx, run, def, desc)
			}
			run.outcomes[opID] = outcome
			if outcome.Status == OpStatusFailed {
				run.markSkippedOutput(def)
				aborted = true
			}
		}
	}

	status := e.aggregateStatus(run)
	duration := time.Since(start)

	finishEvent := audit.NewEvent(audit.EventExecutionFinished)
	finishEvent.AgentID = req.AgentID
	finishEvent.ExecutionID = wf.ExecutionID
	finishEvent.WorkflowHash = wf.Hash
	finishEvent.Status = status
	finishEvent.DurationMs = duration.Milliseconds()
	e.appendAudit(execCtx, run, finishEvent)

	e.metrics.ExecutionsTotal.WithLabelValues(status).Inc()
	e.metrics.ExecutionDuration.Observe(duration.Seconds())
	run.log.Info("execution finished", "status", status, "duration_ms", duration.Milliseconds())

	maxString, maxArray := e.project.MaxStringLength, e.project.MaxArrayLength
	if req.FullData {
		maxString, maxArray = 0, 0
	}
	for _, outcome := range run.outcomes {
		outcome.Result = datamodel.Project(outcome.Result, maxString, maxArray)
	}

	return &Response{
		ExecutionID: wf.ExecutionID,
		Status:      status,
		Operations:  run.outcomes,
		Data:        datamodel.Project(run.tree.Snapshot(), maxString, maxArray),
		DurationMs:  duration.Milliseconds(),
	}, nil
}

// runOperation runs one non-control-flow operation through the full
// pipeline: resolve, cache lookup, rate limit, credential injection,
// retried execution, output write, cache fill.
func (e *Engine) runOperation(ctx context.Context, run *runState, def *message.OperationDefinition, desc *catalog.Descriptor) *OperationOutcome {
	start := time.Now()

	startEvent := audit.NewEvent(audit.EventOperationStarted)
	startEvent.AgentID = run.agentID
	startEvent.ExecutionID = run.wf.ExecutionID
	startEvent.OperationID = def.ID
	startEvent.OperationKind = def.Kind
	startEvent.ArgsDigest = audit.Digest(def.Args)
	e.appendAudit(ctx, run, startEvent)

	resolved, err := run.resolver.ResolveArgs(def.Args, desc.SkipResolve)
	if err != nil {
		return e.failOperation(ctx, run, def, time.Since(start).Milliseconds(), errs.From(err))
	}

	cacheKey, ttl := "", e.cache.TTLFor(def.Kind)
	if desc.Cacheable != nil && desc.Cacheable(resolved) && ttl > 0 {
		// Keyed on the pre-injection view, so credentialRef markers act
		// as stable placeholders and secrets never enter the key.
		if key, err := cache.Key(def.Kind, resolved); err == nil {
			cacheKey = key
			if value, ok := e.cache.Get(key); ok {
				e.metrics.CacheHitsTotal.Inc()
				return e.completeOperation(ctx, run, def, desc, start, value, true)
			}
			e.metrics.CacheMissesTotal.Inc()
		}
	}

	limit, err := e.limiter.Acquire(ctx, run.agentID, def.Kind)
	if err != nil {
		return e.failOperation(ctx, run, def, time.Since(start).Milliseconds(), errs.Cancelled(err))
	}
	if !limit.Allowed {
		e.metrics.RateLimitDenials.Inc()
		rateErr := errs.RateLimit(
			fmt.Sprintf("%s limit exceeded (%d/%d)", limit.Scope, limit.Current, limit.Limit),
			limit.RetryAfter)
		return e.failOperation(ctx, run, def, time.Since(start).Milliseconds(), rateErr)
	}

	injected, usedCreds, err := e.injector.Inject(ctx, resolved)
	if err != nil {
		return e.failOperation(ctx, run, def, time.Since(start).Milliseconds(),
			errs.Authorization("credential", "%v", err))
	}
	for _, credID := range usedCreds {
		credEvent := audit.NewEvent(audit.EventCredentialUsed)
		credEvent.AgentID = run.agentID
		credEvent.ExecutionID = run.wf.ExecutionID
		credEvent.OperationID = def.ID
		credEvent.OperationKind = def.Kind
		credEvent.CredentialID = credID
		e.appendAudit(ctx, run, credEvent)
	}

	env := &catalog.Env{
		Data:    run.tree,
		HTTP:    e.http,
		Storage: e.storage,
		Logger:  run.log.WithOperationID(def.ID),
	}

	var result any
	execute := func() error {
		r, execErr := desc.Execute(ctx, env, injected)
		if execErr != nil {
			return execErr
		}
		result = r
		return nil
	}

	if desc.Retryable {
		attempt := 0
		err = e.retry.Do(ctx, func() error {
			if attempt > 0 {
				e.metrics.RetriesTotal.Inc()
			}
			attempt++
			return execute()
		})
	} else {
		err = execute()
	}
	if err != nil {
		return e.failOperation(ctx, run, def, time.Since(start).Milliseconds(), errs.From(err))
	}

	if cacheKey != "" {
		e.cache.Set(cacheKey, def.Kind, result, ttl)
	}
	return e.completeOperation(ctx, run, def, desc, start, result, false)
}

// completeOperation writes the result into the data model and records
// the successful outcome.
func (e *Engine) completeOperation(ctx context.Context, run *runState, def *message.OperationDefinition, desc *catalog.Descriptor, start time.Time, result any, cached bool) *OperationOutcome {
	outValue := result
	if desc.OutputValue != nil {
		outValue = desc.OutputValue(result)
	}
	if outputPath, ok := catalog.OutputPath(def.Args); ok {
		if err := run.tree.Write(outputPath, outValue); err != nil {
			return e.failOperation(ctx, run, def, time.Since(start).Milliseconds(), errs.From(err))
		}
	}

	duration := time.Since(start)
	outcome := &OperationOutcome{
		Status:     OpStatusSuccess,
		DurationMs: duration.Milliseconds(),
		Result:     result,
		Cached:     cached,
	}
	e.finishOperationAudit(ctx, run, def, OpStatusSuccess, duration.Milliseconds(), "")
	e.metrics.OperationsTotal.WithLabelValues(def.Kind, OpStatusSuccess).Inc()
	e.metrics.OperationDuration.WithLabelValues(def.Kind).Observe(duration.Seconds())
	return outcome
}

// failOperation records a failed outcome with its audit event.
func (e *Engine) failOperation(ctx context.Context, run *runState, def *message.OperationDefinition, durationMs int64, opErr *errs.Error) *OperationOutcome {
	bound := opErr.WithOperation(def.ID)
	e.finishOperationAudit(ctx, run, def, OpStatusFailed, durationMs, bound.Error())
	e.metrics.OperationsTotal.WithLabelValues(def.Kind, OpStatusFailed).Inc()
	run.log.Warn("operation failed", "operation_id", def.ID, "kind", def.Kind, "error", bound.Error())
	return &OperationOutcome{
		Status:     OpStatusFailed,
		DurationMs: durationMs,
		Error:      bound,
	}
}

// skipOperation records a skipped outcome and remembers its output so
// downstream readers skip too.
func (e *Engine) skipOperation(ctx context.Context, run *runState, def *message.OperationDefinition, reason string) {
	run.outcomes[def.ID] = &OperationOutcome{Status: OpStatusSkipped, SkipReason: reason}
	run.markSkippedOutput(def)
	e.finishOperationAudit(ctx, run, def, OpStatusSkipped, 0, "")
	e.metrics.OperationsTotal.WithLabelValues(def.Kind, OpStatusSkipped).Inc()
}

func (e *Engine) finishOperationAudit(ctx context.Context, run *runState, def *message.OperationDefinition, status string, durationMs int64, errMsg string) {
	event := audit.NewEvent(audit.EventOperationFinished)
	event.AgentID = run.agentID
	event.ExecutionID = run.wf.ExecutionID
	event.OperationID = def.ID
	event.OperationKind = def.Kind
	event.Status = status
	event.DurationMs = durationMs
	event.Error = errMsg
	e.appendAudit(ctx, run, event)
}

// runConditional evaluates the gate and marks the not-taken branch
// skipped. The taken branch executes later in the outer order.
func (e *Engine) runConditional(ctx context.Context, run *runState, def *message.OperationDefinition) *OperationOutcome {
	start := time.Now()

	startEvent := audit.NewEvent(audit.EventOperationStarted)
	startEvent.AgentID = run.agentID
	startEvent.ExecutionID = run.wf.ExecutionID
	startEvent.OperationID = def.ID
	startEvent.OperationKind = def.Kind
	startEvent.ArgsDigest = audit.Digest(def.Args)
	e.appendAudit(ctx, run, startEvent)

	result, err := catalog.EvalCondition(run.tree, def.Args["condition"])
	if err != nil {
		return e.failOperation(ctx, run, def, time.Since(start).Milliseconds(), errs.From(err))
	}

	ifTrue, ifFalse := catalog.Branches(def.Args)
	branch, notTaken := "ifTrue", ifFalse
	if !result {
		branch, notTaken = "ifFalse", ifTrue
	}
	for _, gatedID := range notTaken {
		run.gateSkips[gatedID] = fmt.Sprintf("branch not selected by %q", def.ID)
	}

	return e.completeOperation(ctx, run, def, &catalog.Descriptor{}, start,
		map[string]any{"result": result, "branch": branch}, false)
}

// runLoop iterates the forEach array, binding the loop variables and
// running the body operations per element. Iteration results collect
// into outputPath when set. A body failure fails the loop.
func (e *Engine) runLoop(ctx context.Context, run *runState, def *message.OperationDefinition) *OperationOutcome {
	start := time.Now()

	startEvent := audit.NewEvent(audit.EventOperationStarted)
	startEvent.AgentID = run.agentID
	startEvent.ExecutionID = run.wf.ExecutionID
	startEvent.OperationID = def.ID
	startEvent.OperationKind = def.Kind
	startEvent.ArgsDigest = audit.Digest(def.Args)
	e.appendAudit(ctx, run, startEvent)

	defer run.tree.Delete(loopScope)

	inputPath := catalog.LoopInput(def.Args)
	rawItems, err := run.tree.Read(inputPath)
	if err != nil {
		return e.failOperation(ctx, run, def, time.Since(start).Milliseconds(), errs.From(err))
	}
	items, ok := rawItems.([]any)
	if !ok {
		return e.failOperation(ctx, run, def, time.Since(start).Milliseconds(),
			errs.Data(inputPath, "loop input is not an array"))
	}

	bodyIDs := catalog.LoopBody(def.Args)
	var collected []any

	for i, item := range items {
		if ctx.Err() != nil {
			return e.failOperation(ctx, run, def, time.Since(start).Milliseconds(), e.deadlineError(ctx))
		}
		if err := run.tree.Write(loopCurrentPath, item); err != nil {
			return e.failOperation(ctx, run, def, time.Since(start).Milliseconds(), errs.From(err))
		}
		if err := run.tree.Write(loopIndexPath, i); err != nil {
			return e.failOperation(ctx, run, def, time.Since(start).Milliseconds(), errs.From(err))
		}

		var iterValue any
		for _, bodyID := range bodyIDs {
			bodyDef := run.wf.Operations[bodyID]
			bodyDesc, _ := e.catalog.Get(bodyDef.Kind)

			outcome := e.runOperation(ctx, run, bodyDef, bodyDesc)
			run.outcomes[bodyID] = outcome
			if outcome.Status != OpStatusSuccess {
				loopErr := outcome.Error
				if loopErr == nil {
					loopErr = errs.Execution(fmt.Errorf("loop body %q did not succeed", bodyID))
				}
				return e.failOperation(ctx, run, def, time.Since(start).Milliseconds(), loopErr)
			}

			if bodyOut, ok := catalog.OutputPath(bodyDef.Args); ok {
				if v, err := run.tree.Read(bodyOut); err == nil {
					iterValue = v
				}
			} else {
				iterValue = outcome.Result
			}
		}
		collected = append(collected, iterValue)
	}

	if outputPath, ok := catalog.OutputPath(def.Args); ok {
		if collected == nil {
			collected = []any{}
		}
		if err := run.tree.Write(outputPath, collected); err != nil {
			return e.failOperation(ctx, run, def, time.Since(start).Milliseconds(), errs.From(err))
		}
	}

	duration := time.Since(start)
	e.finishOperationAudit(ctx, run, def, OpStatusSuccess, duration.Milliseconds(), "")
	e.metrics.OperationsTotal.WithLabelValues(def.Kind, OpStatusSuccess).Inc()
	e.metrics.OperationDuration.WithLabelValues(def.Kind).Observe(duration.Seconds())
	return &OperationOutcome{
		Status:     OpStatusSuccess,
		DurationMs: duration.Milliseconds(),
		Result:     map[string]any{"iterations": len(items)},
	}
}

// deadlineError distinguishes the execution duration cap from caller
// cancellation.
func (e *Engine) deadlineError(ctx context.Context) *errs.Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && e.limits.MaxDuration > 0 {
		return errs.Resource("execution exceeded the %s duration limit", e.limits.MaxDuration)
	}
	return errs.Cancelled(ctx.Err())
}

// aggregateStatus folds per-operation outcomes (outer order only) into
// the execution status.
func (e *Engine) aggregateStatus(run *runState) string {
	succeeded, failed, skipped := 0, 0, 0
	for _, opID := range run.wf.Order {
		outcome, ok := run.outcomes[opID]
		if !ok {
			continue
		}
		switch outcome.Status {
		case OpStatusSuccess:
			succeeded++
		case OpStatusFailed:
			failed++
		case OpStatusSkipped:
			skipped++
		}
	}
	switch {
	case failed == 0 && skipped == 0:
		return StatusSuccess
	case succeeded == 0 && failed > 0:
		return StatusFailed
	default:
		return StatusPartialSuccess
	}
}

// blockedRef returns the first read reference whose producer was
// skipped, or "" when the operation can run.
func (run *runState) blockedRef(def *message.OperationDefinition, desc *catalog.Descriptor) string {
	if len(run.skippedOutputs) == 0 {
		return ""
	}
	var skip map[string]bool
	if desc != nil {
		skip = desc.SkipResolve
	}
	refs := pathref.CollectArgRefs(def.Args, skip)
	switch def.Kind {
	case catalog.KindConditional:
		if cond, ok := def.Args["condition"].(map[string]any); ok {
			if path, ok := cond["path"].(string); ok {
				refs = append(refs, path)
			}
		}
	case catalog.KindLoop:
		if in := catalog.LoopInput(def.Args); in != "" {
			refs = append(refs, in)
		}
	}

	for _, ref := range refs {
		refPath, err := pathref.Parse(ref)
		if err != nil {
			continue
		}
		for _, out := range run.skippedOutputs {
			outPath, err := pathref.Parse(out)
			if err != nil {
				continue
			}
			if refPath.HasPrefix(outPath) {
				return ref
			}
		}
	}
	return ""
}

func (run *runState) markSkippedOutput(def *message.OperationDefinition) {
	if out, ok := catalog.OutputPath(def.Args); ok {
		run.skippedOutputs = append(run.skippedOutputs, out)
	}
}

func (e *Engine) appendAudit(ctx context.Context, run *runState, event audit.Event) {
	if err := e.audit.Append(ctx, event); err != nil {
		run.log.Error("audit append failed", "event_type", string(event.Type), "error", err)
	}
}
