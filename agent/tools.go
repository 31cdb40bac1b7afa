package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fluxa/db"
)

var (
	// ErrToolsDisabled is returned by RunTool when tool execution is switched off
	ErrToolsDisabled = errors.New("tool execution is disabled")
	// ErrToolNotAllowed is returned by RunTool for tools outside the allow-list
	ErrToolNotAllowed = errors.New("tool is not allowed")
)

// ToolFunc performs a tool call and returns its textual result
type ToolFunc func(ctx context.Context, params map[string]interface{}) (string, error)

// RunTool executes fn under the configured tool timeout and records the call.
// The record is written as started before fn runs and moved to success or
// error afterwards. When fn fails, the finished record is returned together
// with fn's error.
func (a *Agent) RunTool(ctx context.Context, messageID *int64, name string, params map[string]interface{}, fn ToolFunc) (*db.ToolExecution, error) {
	if !a.config.Tools.Enabled {
		return nil, ErrToolsDisabled
	}
	if !a.config.Tools.ToolAllowed(name) {
		return nil, fmt.Errorf("%w: %s", ErrToolNotAllowed, name)
	}

	exec, err := a.repo.StartToolExecution(ctx, messageID, name, params)
	if err != nil {
		return nil, err
	}
	a.logger.ToolExecution(name, string(db.ToolStarted), 0, "", nil)

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(a.config.Tools.Timeout)*time.Second)
	defer cancel()

	start := time.Now()
	result, runErr := callTool(runCtx, fn, params)
	duration := time.Since(start)
	if runErr == nil && runCtx.Err() != nil {
		runErr = fmt.Errorf("tool %s: %w", name, runCtx.Err())
	}

	status := db.ToolSuccess
	if runErr != nil {
		status = db.ToolError
	}
	a.logger.ToolExecution(name, string(status), duration, result, runErr)

	if err := a.repo.FinishToolExecution(ctx, exec.ID, result, duration, runErr); err != nil {
		return nil, err
	}

	exec, err = a.repo.GetToolExecution(ctx, exec.ID)
	if err != nil {
		return nil, err
	}
	return exec, runErr
}

// callTool turns a panicking tool into an error
func callTool(ctx context.Context, fn ToolFunc, params map[string]interface{}) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	return fn(ctx, params)
}
