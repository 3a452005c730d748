package agent

import (
	"context"
	"sync"

	"github.com/ocfcluster/rgmd/pkg/types"
)

// FakeRunner is an in-memory Runner for tests: Invoke returns
// Responses[ruleType][action], defaulting to Success, and records
// every call in Calls.
type FakeRunner struct {
	mu        sync.Mutex
	Responses map[string]map[Action]Code
	Calls     []Call
}

// Call records one Invoke.
type Call struct {
	RuleType string
	Action   Action
	Attrs    []types.Attr
}

// NewFakeRunner constructs an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{Responses: make(map[string]map[Action]Code)}
}

// SetResponse programs ruleType/action to return code.
func (f *FakeRunner) SetResponse(ruleType string, action Action, code Code) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Responses[ruleType] == nil {
		f.Responses[ruleType] = make(map[Action]Code)
	}
	f.Responses[ruleType][action] = code
}

// Invoke implements Runner.
func (f *FakeRunner) Invoke(ctx context.Context, ruleType string, action Action, attrs []types.Attr) (Code, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, Call{RuleType: ruleType, Action: action, Attrs: attrs})

	if byAction, ok := f.Responses[ruleType]; ok {
		if code, ok := byAction[action]; ok {
			return code, nil
		}
	}
	return Success, nil
}
