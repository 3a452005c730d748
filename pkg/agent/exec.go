package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/ocfcluster/rgmd/pkg/types"
)

// ExecRunner is the reference Runner: it execs an OCF agent script
// found at filepath.Join(AgentDir, ruleType), passing action as argv[1]
// and each attribute as an OCF_RESKEY_<NAME> environment variable, per
// the OCF resource agent API convention.
type ExecRunner struct {
	// AgentDir holds one executable script per rule type.
	AgentDir string

	// Timeout bounds a single invocation. Defaults to 20s if zero.
	Timeout time.Duration
}

// NewExecRunner constructs an ExecRunner rooted at agentDir.
func NewExecRunner(agentDir string) *ExecRunner {
	return &ExecRunner{AgentDir: agentDir, Timeout: 20 * time.Second}
}

// Invoke implements Runner.
func (r *ExecRunner) Invoke(ctx context.Context, ruleType string, action Action, attrs []types.Attr) (Code, error) {
	timeout := r.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	path := filepath.Join(r.AgentDir, ruleType)
	cmd := exec.CommandContext(runCtx, path, string(action))
	cmd.Env = envFor(attrs)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return Success, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Code(exitErr.ExitCode()), nil
	}
	return GenericError, fmt.Errorf("invoke %s %s: %w: %s", ruleType, action, err, stderr.String())
}

func envFor(attrs []types.Attr) []string {
	env := make([]string, 0, len(attrs))
	for _, a := range attrs {
		env = append(env, fmt.Sprintf("OCF_RESKEY_%s=%s", a.Name, a.Value))
	}
	return env
}
