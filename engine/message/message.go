// Package message parses the JSONL workflow wire format.
//
// Two message kinds are accepted, one per line:
//
//	{"type":"operationUpdate","operationId":"a","operation":{"ApiCall":{...}}}
//	{"type":"beginExecution","executionId":"e1","operationOrder":["a"]}
//
// The batched form ({"operationUpdate":{"operations":[...]}}) is rejected.
package message

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"

	"github.com/lyzr/a2e/engine/errs"
)

const (
	// MaxLineBytes caps a single JSONL line.
	MaxLineBytes = 256 * 1024

	TypeOperationUpdate = "operationUpdate"
	TypeBeginExecution  = "beginExecution"
)

var operationIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)

// OperationDefinition is one parsed operation from the stream.
type OperationDefinition struct {
	ID   string
	Kind string
	// Args is the decoded argument object for the kind.
	Args map[string]any
	// RawArgs preserves the argument bytes for schema validation.
	RawArgs json.RawMessage
}

// Workflow is a fully parsed message stream.
type Workflow struct {
	ExecutionID string
	Order       []string
	Operations  map[string]*OperationDefinition
	// DefinedOrder preserves definition order for deterministic output.
	DefinedOrder []string
	// Hash is the SHA-256 of the raw workflow bytes.
	Hash string
}

type rawMessage struct {
	Type           string                     `json:"type"`
	OperationID    string                     `json:"operationId"`
	Operation      map[string]json.RawMessage `json:"operation"`
	ExecutionID    string                     `json:"executionId"`
	OperationOrder []string                   `json:"operationOrder"`

	// Legacy batched field, detected so it can be rejected explicitly.
	OperationUpdate json.RawMessage `json:"operationUpdate"`
}

// Parse decodes a JSONL workflow. Empty lines are ignored. Exactly one
// beginExecution message must be present and it must be the last
// non-empty line.
func Parse(workflowBytes []byte) (*Workflow, error) {
	wf := &Workflow{
		Operations: make(map[string]*OperationDefinition),
	}

	sum := sha256.Sum256(workflowBytes)
	wf.Hash = hex.EncodeToString(sum[:])

	scanner := bufio.NewScanner(bytes.NewReader(workflowBytes))
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)

	sawBegin := false
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if sawBegin {
			return nil, errs.Structure("line %d: beginExecution must be the last message", lineNo)
		}

		var msg rawMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, errs.Structure("line %d: invalid JSON: %v", lineNo, err)
		}
		if msg.OperationUpdate != nil {
			return nil, errs.Structure("line %d: batched operationUpdate form is not supported; send one operation per line", lineNo)
		}

		switch msg.Type {
		case TypeOperationUpdate:
			def, err := parseOperation(lineNo, &msg)
			if err != nil {
				return nil, err
			}
			if _, exists := wf.Operations[def.ID]; exists {
				// Redefinition replaces the operation but keeps its slot
				wf.Operations[def.ID] = def
				continue
			}
			wf.Operations[def.ID] = def
			wf.DefinedOrder = append(wf.DefinedOrder, def.ID)

		case TypeBeginExecution:
			if msg.ExecutionID == "" {
				return nil, errs.Structure("line %d: beginExecution missing executionId", lineNo)
			}
			if len(msg.OperationOrder) == 0 {
				return nil, errs.Structure("line %d: beginExecution has empty operationOrder", lineNo)
			}
			wf.ExecutionID = msg.ExecutionID
			wf.Order = msg.OperationOrder
			sawBegin = true

		case "":
			return nil, errs.Structure("line %d: message missing type", lineNo)
		default:
			return nil, errs.Structure("line %d: unknown message type %q", lineNo, msg.Type)
		}
	}
	if err := scanner.Err(); err != nil {
		if err == bufio.ErrTooLong {
			return nil, errs.Structure("line exceeds %d byte limit", MaxLineBytes)
		}
		return nil, errs.Structure("failed to read workflow: %v", err)
	}

	if !sawBegin {
		return nil, errs.Structure("workflow missing beginExecution message")
	}
	if len(wf.Operations) == 0 {
		return nil, errs.Structure("workflow contains no operations")
	}

	return wf, nil
}

func parseOperation(lineNo int, msg *rawMessage) (*OperationDefinition, error) {
	if msg.OperationID == "" {
		return nil, errs.Structure("line %d: operationUpdate missing operationId", lineNo)
	}
	if !operationIDPattern.MatchString(msg.OperationID) {
		return nil, errs.Structure("line %d: invalid operationId %q", lineNo, msg.OperationID)
	}
	if len(msg.Operation) != 1 {
		return nil, errs.Structure("line %d: operation %q must have exactly one kind key, got %d", lineNo, msg.OperationID, len(msg.Operation))
	}

	def := &OperationDefinition{ID: msg.OperationID}
	for kind, raw := range msg.Operation {
		def.Kind = kind
		def.RawArgs = raw

		var args map[string]any
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, errs.Structure("line %d: operation %q args must be an object: %v", lineNo, msg.OperationID, err)
		}
		def.Args = args
	}
	return def, nil
}
