// Package validation checks a parsed workflow before execution. Checks
// run in four ordered categories (structure, permission, dependency,
// type); a failure in one category suppresses the later ones so agents
// fix foundational problems first.
package validation

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/lyzr/a2e/engine/agent"
	"github.com/lyzr/a2e/engine/catalog"
	"github.com/lyzr/a2e/engine/credential"
	"github.com/lyzr/a2e/engine/errs"
	"github.com/lyzr/a2e/engine/message"
	"github.com/lyzr/a2e/engine/pathref"
)

// Issue severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Issue categories, in check order.
const (
	CategoryStructure  = "structure"
	CategoryPermission = "permission"
	CategoryDependency = "dependency"
	CategoryType       = "type"
)

// LoopScopePrefix is the data model subtree bound per loop iteration.
const LoopScopePrefix = "/workflow/_loop"

// Issue is one validation finding.
type Issue struct {
	Severity    string `json:"severity"`
	Category    string `json:"category"`
	OperationID string `json:"operationId,omitempty"`
	Message     string `json:"message"`
	Suggestion  string `json:"suggestion,omitempty"`
}

// Report is the outcome of validating one workflow.
type Report struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// Validator validates workflows against the operation catalog and an
// agent's permission snapshot.
type Validator struct {
	catalog       *catalog.Catalog
	maxOperations int
}

// New creates a validator. maxOperations of zero disables the cap.
func New(cat *catalog.Catalog, maxOperations int) *Validator {
	return &Validator{catalog: cat, maxOperations: maxOperations}
}

// Validate runs all four categories. Categories short-circuit: errors
// in an earlier category suppress the later categories entirely.
func (v *Validator) Validate(wf *message.Workflow, allowed *agent.AllowedCatalog) *Report {
	report := &Report{}

	for _, check := range []func(*message.Workflow, *agent.AllowedCatalog, *Report){
		v.checkStructure,
		v.checkPermissions,
		v.checkDependencies,
		v.checkTypes,
	} {
		check(wf, allowed, report)
		if len(report.Errors) > 0 {
			report.Valid = false
			return report
		}
	}

	report.Valid = true
	return report
}

func (r *Report) addError(category, opID, msg, suggestion string) {
	r.Errors = append(r.Errors, Issue{
		Severity: SeverityError, Category: category,
		OperationID: opID, Message: msg, Suggestion: suggestion,
	})
}

func (r *Report) addWarning(category, opID, msg, suggestion string) {
	r.Warnings = append(r.Warnings, Issue{
		Severity: SeverityWarning, Category: category,
		OperationID: opID, Message: msg, Suggestion: suggestion,
	})
}

// checkStructure verifies the order, the operation count cap, kind
// names, argument schemas, output paths, and control-flow references.
func (v *Validator) checkStructure(wf *message.Workflow, _ *agent.AllowedCatalog, report *Report) {
	if v.maxOperations > 0 && len(wf.Operations) > v.maxOperations {
		report.addError(CategoryStructure, "",
			fmt.Sprintf("workflow defines %d operations, limit is %d", len(wf.Operations), v.maxOperations),
			"split the workflow into smaller executions")
	}

	seen := make(map[string]bool, len(wf.Order))
	orderPos := make(map[string]int, len(wf.Order))
	for pos, opID := range wf.Order {
		if seen[opID] {
			report.addError(CategoryStructure, opID, "operation appears twice in operationOrder", "list each operation once")
			continue
		}
		seen[opID] = true
		orderPos[opID] = pos
		if _, ok := wf.Operations[opID]; !ok {
			report.addError(CategoryStructure, opID, "operationOrder references an undefined operation",
				"send an operationUpdate for it before beginExecution")
		}
	}

	loopBodies := make(map[string]string)
	for _, opID := range wf.DefinedOrder {
		def := wf.Operations[opID]
		desc, ok := v.catalog.Get(def.Kind)
		if !ok {
			report.addError(CategoryStructure, opID, fmt.Sprintf("unknown operation kind %q", def.Kind),
				"use one of: "+strings.Join(v.catalog.Kinds(), ", "))
			continue
		}
		if err := desc.ValidateArgs(def.RawArgs); err != nil {
			report.addError(CategoryStructure, opID, errs.From(err).Message, "")
			continue
		}
		if outputPath, ok := catalog.OutputPath(def.Args); ok {
			if err := pathref.ValidOutput(outputPath); err != nil {
				report.addError(CategoryStructure, opID, errs.From(err).Message, "")
			}
		}

		switch def.Kind {
		case catalog.KindConditional:
			gatePos, gateInOrder := orderPos[opID], seen[opID]
			ifTrue, ifFalse := catalog.Branches(def.Args)
			for _, branchID := range append(ifTrue, ifFalse...) {
				if _, ok := wf.Operations[branchID]; !ok {
					report.addError(CategoryStructure, opID,
						fmt.Sprintf("branch references undefined operation %q", branchID), "")
					continue
				}
				branchPos, inOrder := orderPos[branchID]
				switch {
				case !inOrder:
					report.addError(CategoryStructure, opID,
						fmt.Sprintf("branch operation %q must appear in operationOrder", branchID),
						"branches gate operations in the order; add it after this Conditional")
				case gateInOrder && branchPos < gatePos:
					// A branch placed before its gate would run before the
					// gate can skip it.
					report.addError(CategoryStructure, opID,
						fmt.Sprintf("branch operation %q appears before this Conditional in operationOrder", branchID),
						"gated operations run after their Conditional; move it later in operationOrder")
				}
			}
		case catalog.KindLoop:
			for _, bodyID := range catalog.LoopBody(def.Args) {
				if _, ok := wf.Operations[bodyID]; !ok {
					report.addError(CategoryStructure, opID,
						fmt.Sprintf("loop body references undefined operation %q", bodyID), "")
					continue
				}
				if seen[bodyID] {
					report.addError(CategoryStructure, opID,
						fmt.Sprintf("loop body operation %q must not appear in operationOrder", bodyID),
						"loop bodies run inside the loop only; remove it from operationOrder")
				}
				loopBodies[bodyID] = opID
			}
		}
	}

	for bodyID, loopID := range loopBodies {
		def := wf.Operations[bodyID]
		if def != nil && def.Kind == catalog.KindLoop {
			report.addError(CategoryStructure, loopID,
				fmt.Sprintf("loop body operation %q is itself a Loop; nesting is not supported", bodyID), "")
		}
	}
}

// checkPermissions verifies every reachable operation against the
// agent's allowed catalog: kinds, ApiCall hosts, and credentials.
func (v *Validator) checkPermissions(wf *message.Workflow, allowed *agent.AllowedCatalog, report *Report) {
	for _, opID := range v.reachable(wf) {
		def := wf.Operations[opID]

		if !allowed.AllowsKind(def.Kind) {
			report.addError(CategoryPermission, opID,
				fmt.Sprintf("operation kind %q is not in your allowed catalog", def.Kind), "")
			continue
		}

		if def.Kind == catalog.KindAPICall {
			v.checkAPIPermission(def, allowed, report)
		}

		for _, credID := range credential.RefIDs(def.Args) {
			if !allowed.AllowsCredential(credID) {
				report.addError(CategoryPermission, opID,
					fmt.Sprintf("credential %q is not granted to this agent", credID), "")
			}
		}
	}
}

func (v *Validator) checkAPIPermission(def *message.OperationDefinition, allowed *agent.AllowedCatalog, report *Report) {
	rawURL, _ := def.Args["url"].(string)
	if strings.Contains(rawURL, "{/workflow") || pathref.IsPath(rawURL) {
		report.addWarning(CategoryPermission, def.ID,
			"URL is resolved at runtime; its host cannot be checked statically", "")
		return
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		report.addError(CategoryPermission, def.ID, fmt.Sprintf("invalid URL %q", rawURL), "")
		return
	}
	if !allowed.AllowsHost(u.Host) {
		report.addError(CategoryPermission, def.ID,
			fmt.Sprintf("host %q is not in your allowed APIs", u.Host), "")
	}
}

// checkDependencies verifies that every path reference is satisfied by
// an output produced earlier in the order.
func (v *Validator) checkDependencies(wf *message.Workflow, _ *agent.AllowedCatalog, report *Report) {
	producers := v.producerIndex(wf)
	available := []string{}

	for _, opID := range wf.Order {
		def := wf.Operations[opID]
		desc, _ := v.catalog.Get(def.Kind)

		v.checkOpRefs(def, desc, available, false, producers, report)

		if def.Kind == catalog.KindLoop {
			bodyAvailable := append([]string(nil), available...)
			for _, bodyID := range catalog.LoopBody(def.Args) {
				bodyDef := wf.Operations[bodyID]
				bodyDesc, _ := v.catalog.Get(bodyDef.Kind)
				v.checkOpRefs(bodyDef, bodyDesc, bodyAvailable, true, producers, report)
				if out, ok := catalog.OutputPath(bodyDef.Args); ok {
					bodyAvailable = append(bodyAvailable, out)
				}
			}
		}

		if out, ok := catalog.OutputPath(def.Args); ok {
			available = append(available, out)
		}
	}
}

// checkOpRefs validates the read references of one operation against
// the outputs available at its position.
func (v *Validator) checkOpRefs(def *message.OperationDefinition, desc *catalog.Descriptor, available []string, inLoop bool, producers map[string]string, report *Report) {
	var skip map[string]bool
	if desc != nil {
		skip = desc.SkipResolve
	}
	refs := pathref.CollectArgRefs(def.Args, skip)

	// Control-flow reads are skipped by the resolver but still reads.
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
		if v.satisfied(ref, available, inLoop) {
			continue
		}
		suggestion := ""
		if producer, ok := v.producerOf(ref, producers); ok {
			suggestion = fmt.Sprintf("move %q after operation %q, which produces it", ref, producer)
		}
		report.addError(CategoryDependency, def.ID,
			fmt.Sprintf("reference %q is not produced by any earlier operation", ref), suggestion)
	}
}

func (v *Validator) satisfied(ref string, available []string, inLoop bool) bool {
	refPath, err := pathref.Parse(ref)
	if err != nil {
		return false
	}
	if inLoop {
		if scope, err := pathref.Parse(LoopScopePrefix); err == nil && refPath.HasPrefix(scope) {
			return true
		}
	}
	for _, out := range available {
		outPath, err := pathref.Parse(out)
		if err != nil {
			continue
		}
		if refPath.HasPrefix(outPath) {
			return true
		}
	}
	return false
}

// producerIndex maps each outputPath to the operation that writes it,
// used only to build forward-reference suggestions.
func (v *Validator) producerIndex(wf *message.Workflow) map[string]string {
	producers := make(map[string]string)
	for _, opID := range wf.DefinedOrder {
		if out, ok := catalog.OutputPath(wf.Operations[opID].Args); ok {
			producers[out] = opID
		}
	}
	return producers
}

func (v *Validator) producerOf(ref string, producers map[string]string) (string, bool) {
	refPath, err := pathref.Parse(ref)
	if err != nil {
		return "", false
	}
	for out, opID := range producers {
		outPath, err := pathref.Parse(out)
		if err != nil {
			continue
		}
		if refPath.HasPrefix(outPath) {
			return opID, true
		}
	}
	return "", false
}

// checkTypes verifies array-input operations against the statically
// declared output types of their producers. Only a definite mismatch is
// an error; unknown shapes pass.
func (v *Validator) checkTypes(wf *message.Workflow, _ *agent.AllowedCatalog, report *Report) {
	outputTypes := make(map[string]catalog.OutputType)
	for _, opID := range wf.DefinedOrder {
		def := wf.Operations[opID]
		if desc, ok := v.catalog.Get(def.Kind); ok && desc.OutputTypeFor != nil {
			if out, ok := catalog.OutputPath(def.Args); ok {
				outputTypes[out] = desc.OutputTypeFor(def.Args)
			}
		}
	}

	for _, opID := range wf.DefinedOrder {
		def := wf.Operations[opID]
		switch def.Kind {
		case catalog.KindFilterData, catalog.KindTransformData:
			v.requireArrayRef(def, def.Args["inputPath"], outputTypes, report)
		case catalog.KindMergeData:
			if def.Args["strategy"] != "deepMerge" {
				if sources, ok := def.Args["sources"].([]any); ok {
					for _, src := range sources {
						v.requireArrayRef(def, src, outputTypes, report)
					}
				}
			}
		case catalog.KindLoop:
			v.requireArrayRef(def, def.Args["inputPath"], outputTypes, report)
		}
	}
}

func (v *Validator) requireArrayRef(def *message.OperationDefinition, input any, outputTypes map[string]catalog.OutputType, report *Report) {
	ref, ok := input.(string)
	if !ok || !pathref.IsPath(ref) {
		return
	}
	declared, ok := outputTypes[ref]
	if !ok {
		return
	}
	switch declared {
	case catalog.OutputArray, catalog.OutputAny:
		return
	default:
		report.addError(CategoryType, def.ID,
			fmt.Sprintf("%s expects an array at %q but its producer outputs %s", def.Kind, ref, declared), "")
	}
}

// reachable lists every operation that can run: the order plus loop
// bodies. Conditional branches are part of the order already.
func (v *Validator) reachable(wf *message.Workflow) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(opID string) {
		if !seen[opID] {
			if _, ok := wf.Operations[opID]; ok {
				seen[opID] = true
				out = append(out, opID)
			}
		}
	}
	for _, opID := range wf.Order {
		add(opID)
		if def, ok := wf.Operations[opID]; ok && def.Kind == catalog.KindLoop {
			for _, bodyID := range catalog.LoopBody(def.Args) {
				add(bodyID)
			}
		}
	}
	return out
}
