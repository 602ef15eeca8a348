// Package task implements the background task handles returned by
// index/UDF management commands (spec.md §4.13): IndexTask and
// RegisterTask each poll a single info command and classify its reply.
package task

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status is a background task's coarse progress state.
type Status int

const (
	StatusNotFound Status = iota
	StatusInProgress
	StatusComplete
)

func (s Status) String() string {
	switch s {
	case StatusNotFound:
		return "not found"
	case StatusInProgress:
		return "in progress"
	case StatusComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// PollFunc runs one info command against a cluster node and returns the
// command -> value map (matches Client's internal info escape hatch).
type PollFunc func(ctx context.Context, cmd string) (map[string]string, error)

// pollInterval is how often query_status is re-checked by
// wait_till_complete (spec.md §4.13: polls every 1s, sleeping first).
const pollInterval = 1 * time.Second

func waitTillComplete(ctx context.Context, timeout time.Duration, queryStatus func(context.Context) (Status, error)) error {
	var deadline time.Time
	hasDeadline := timeout > 0
	if hasDeadline {
		deadline = time.Now().Add(timeout)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}

		status, err := queryStatus(ctx)
		if err != nil {
			return err
		}
		if status == StatusComplete {
			return nil
		}
		if hasDeadline && time.Now().After(deadline) {
			return fmt.Errorf("task: timed out waiting for completion")
		}
	}
}

// IndexTask tracks a create_index()/drop_index() background build
// (spec.md §4.13): status comes from the `sindex/<ns>/<name>` info line.
type IndexTask struct {
	poll PollFunc
	cmd  string
}

// NewIndexTask builds a tracker for the secondary index named indexName in
// namespace.
func NewIndexTask(poll PollFunc, namespace, indexName string) *IndexTask {
	return &IndexTask{poll: poll, cmd: fmt.Sprintf("sindex/%s/%s", namespace, indexName)}
}

// QueryStatus reports the index build's current state.
func (t *IndexTask) QueryStatus(ctx context.Context) (Status, error) {
	infoMap, err := t.poll(ctx, t.cmd)
	if err != nil {
		return StatusNotFound, err
	}
	line, ok := infoMap[t.cmd]
	if !ok || line == "" {
		return StatusNotFound, nil
	}
	if strings.Contains(line, "FAIL:201") || strings.Contains(line, "FAIL:203") {
		return StatusNotFound, nil
	}
	for _, field := range strings.Split(line, ";") {
		name, val, found := strings.Cut(field, "=")
		if !found || name != "load_pct" {
			continue
		}
		pct, err := strconv.Atoi(val)
		if err != nil {
			continue
		}
		if pct >= 100 {
			return StatusComplete, nil
		}
		return StatusInProgress, nil
	}
	return StatusInProgress, nil
}

// WaitTillComplete polls QueryStatus every second until it reports
// StatusComplete or timeout elapses (0 means no deadline).
func (t *IndexTask) WaitTillComplete(ctx context.Context, timeout time.Duration) error {
	return waitTillComplete(ctx, timeout, t.QueryStatus)
}

// RegisterTask tracks a register_udf() background registration (spec.md
// §4.13): status comes from whether `udf-list` advertises the module.
type RegisterTask struct {
	poll     PollFunc
	filename string
}

// NewRegisterTask builds a tracker for the UDF module filename.
func NewRegisterTask(poll PollFunc, filename string) *RegisterTask {
	return &RegisterTask{poll: poll, filename: filename}
}

// QueryStatus reports whether the module is present in udf-list yet.
func (t *RegisterTask) QueryStatus(ctx context.Context) (Status, error) {
	infoMap, err := t.poll(ctx, "udf-list")
	if err != nil {
		return StatusNotFound, err
	}
	list, ok := infoMap["udf-list"]
	if !ok {
		return StatusNotFound, nil
	}
	needle := "filename=" + t.filename
	for _, entry := range strings.Split(list, ";") {
		if strings.Contains(entry, needle) {
			return StatusComplete, nil
		}
	}
	return StatusInProgress, nil
}

// WaitTillComplete polls QueryStatus every second until the module appears
// or timeout elapses (0 means no deadline).
func (t *RegisterTask) WaitTillComplete(ctx context.Context, timeout time.Duration) error {
	return waitTillComplete(ctx, timeout, t.QueryStatus)
}
