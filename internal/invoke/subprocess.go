// Package invoke provides Invoker implementations that run skills.
package invoke

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/skillflow/orchestrator/internal/contextstore"
	"github.com/skillflow/orchestrator/internal/registry"
	"github.com/skillflow/orchestrator/pkg/types"
)

// SubprocessConfig tunes how skill processes are launched.
type SubprocessConfig struct {
	// Timeout bounds each invocation. Zero means no limit. A timed-out
	// skill is reported as an ordinary failure.
	Timeout time.Duration

	// Env contains extra environment variables passed to every skill.
	Env map[string]string

	// CWD is the working directory for skill processes (empty = inherit).
	CWD string
}

// SubprocessInvoker runs a skill as a local subprocess. The input bundle is
// written to the process on stdin as JSON; stdout is scanned as NDJSON where
// a line tagged "result" carries the skill's output, lines tagged "log" go
// to the service logger, and anything else is collected as plain output
// text. A non-zero exit is a failure.
type SubprocessInvoker struct {
	reg    registry.SkillRegistry
	cfg    SubprocessConfig
	logger *slog.Logger
}

// NewSubprocessInvoker creates an invoker that resolves capabilities through
// the registry.
func NewSubprocessInvoker(reg registry.SkillRegistry, cfg SubprocessConfig, logger *slog.Logger) *SubprocessInvoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubprocessInvoker{reg: reg, cfg: cfg, logger: logger}
}

// Invoke runs the named skill with the given bundle and returns its output.
func (s *SubprocessInvoker) Invoke(ctx context.Context, capability string, bundle *contextstore.Bundle) (interface{}, error) {
	skill, err := s.reg.Get(ctx, capability)
	if err != nil {
		return nil, fmt.Errorf("resolve skill %q: %w", capability, err)
	}

	argv, err := commandFor(skill)
	if err != nil {
		return nil, err
	}

	stdin, err := json.Marshal(bundle)
	if err != nil {
		return nil, fmt.Errorf("encode input bundle: %w", err)
	}

	execCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(execCtx, argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Env = s.buildEnv(skill)
	if s.cfg.CWD != "" {
		cmd.Dir = s.cfg.CWD
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start skill %q: %w", capability, err)
	}

	var (
		wg     sync.WaitGroup
		result interface{}
		plain  []string
	)
	wg.Add(2)

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			ev, err := types.ParseNDJSON([]byte(line))
			if err != nil {
				plain = append(plain, line)
				continue
			}
			data, _ := ev.Data.(map[string]interface{})
			switch {
			case ev.Type == types.EventTypeResult:
				if out, ok := data["output"]; ok {
					result = out
				} else {
					result = ev.Data
				}
			case ev.Type == types.EventTypeLog && hasExplicitType(data):
				s.logSkillLine(capability, data)
			default:
				// JSON without a recognized tag is ordinary output.
				plain = append(plain, line)
			}
		}
	}()

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				s.logger.Warn("skill stderr", "skill", capability, "line", line)
			}
		}
	}()

	wg.Wait()
	err = cmd.Wait()

	if execCtx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("skill %q timed out after %s", capability, s.cfg.Timeout)
	}
	if err != nil {
		return nil, fmt.Errorf("skill %q failed: %w", capability, err)
	}

	if result != nil {
		return result, nil
	}
	return strings.Join(plain, "\n"), nil
}

func (s *SubprocessInvoker) buildEnv(skill *registry.Skill) []string {
	env := os.Environ()
	for k, v := range s.cfg.Env {
		env = append(env, k+"="+v)
	}
	env = append(env, "SKILL_NAME="+skill.Name)
	if skill.Path != "" {
		env = append(env, "SKILL_PATH="+skill.Path)
	}
	return env
}

// commandFor builds the argv for a skill: an explicit command wins,
// otherwise the first bundled script is run with a runner picked by its
// extension.
func commandFor(skill *registry.Skill) ([]string, error) {
	if len(skill.Command) > 0 {
		return skill.Command, nil
	}
	if len(skill.Scripts) == 0 {
		return nil, fmt.Errorf("skill %q has no command and no scripts", skill.Name)
	}

	script := skill.Scripts[0]
	path := script
	if skill.Path != "" {
		path = filepath.Join(skill.Path, "scripts", script)
	}

	switch filepath.Ext(script) {
	case ".py":
		return []string{"python3", path}, nil
	case ".sh":
		return []string{"bash", path}, nil
	case ".js", ".mjs":
		return []string{"node", path}, nil
	default:
		return []string{path}, nil
	}
}

// hasExplicitType reports whether the parsed line carried a "type" tag, as
// opposed to untagged JSON that ParseNDJSON defaults to a log.
func hasExplicitType(data map[string]interface{}) bool {
	_, ok := data["type"].(string)
	return ok
}

// logSkillLine forwards a tagged NDJSON log line to the service logger at
// the severity the skill asked for.
func (s *SubprocessInvoker) logSkillLine(skill string, data map[string]interface{}) {
	msg, _ := data["message"].(string)
	if msg == "" {
		msg, _ = data["msg"].(string)
	}
	lvl, _ := data["level"].(string)
	switch types.LogLevel(lvl) {
	case types.LogLevelDebug:
		s.logger.Debug("skill log", "skill", skill, "message", msg)
	case types.LogLevelWarning:
		s.logger.Warn("skill log", "skill", skill, "message", msg)
	case types.LogLevelError:
		s.logger.Error("skill log", "skill", skill, "message", msg)
	default:
		s.logger.Info("skill log", "skill", skill, "message", msg)
	}
}
