package portrait

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"starlinks/internal/logger"
)

var (
	// ErrBatchFailed is returned when an attempt produced no usable result
	// for the whole batch.
	ErrBatchFailed = errors.New("image generation batch failed")

	// ErrNoOutput is returned when the process output holds no JSON result line.
	ErrNoOutput = errors.New("no result line in image generation output")
)

// RequestCelebrity is one entity in the process input.
type RequestCelebrity struct {
	Name      string `json:"name"`
	BirthYear int    `json:"birth_year"`
	Tagline   string `json:"tagline"`
	// FileStem is the suggested output file name without extension.
	FileStem string `json:"file_stem,omitempty"`
}

// Request is the JSON document written to the process standard input.
type Request struct {
	Celebrities   []RequestCelebrity `json:"celebrities"`
	OutputDir     string             `json:"output_dir"`
	PromptVariant int                `json:"prompt_variant"`
}

// Generated reports a saved image.
type Generated struct {
	Name      string `json:"name"`
	BirthYear int    `json:"birth_year"`
	Path      string `json:"path"`
}

// Failed reports an entity the process could not render.
type Failed struct {
	Name      string `json:"name"`
	BirthYear int    `json:"birth_year"`
	Error     string `json:"error"`
}

// Output is the authoritative result line of one attempt.
type Output struct {
	Generated []Generated `json:"generated"`
	Failed    []Failed    `json:"failed"`
}

// Runner performs one generation attempt for a whole batch.
type Runner interface {
	Run(ctx context.Context, req Request) (*Output, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, req Request) (*Output, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, req Request) (*Output, error) {
	return f(ctx, req)
}

// ExecRunner runs an external command per attempt. The request is written to
// its stdin and the last JSON line on stdout is the result. Stderr is logged
// at debug level and never parsed.
type ExecRunner struct {
	Command string
	Args    []string
	Timeout time.Duration
}

// Run executes the command once.
func (r *ExecRunner) Run(ctx context.Context, req Request) (*Output, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	input, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var stdout bytes.Buffer
	stderr := &lineLogger{command: r.Command}
	cmd := exec.CommandContext(ctx, r.Command, r.Args...)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	err = cmd.Run()
	stderr.Flush()
	if err != nil {
		return nil, fmt.Errorf("%w: %s exited: %v", ErrBatchFailed, r.Command, err)
	}
	logger.Debug("Image generation process finished", "command", r.Command, "duration", time.Since(start))

	out, err := ParseOutput(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBatchFailed, err)
	}
	return out, nil
}

// ParseOutput returns the last line of data that decodes as a JSON object.
// Earlier lines are progress noise.
func ParseOutput(data []byte) (*Output, error) {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read output: %w", err)
	}

	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var out Output
		if err := json.Unmarshal([]byte(line), &out); err == nil {
			return &out, nil
		}
	}
	return nil, ErrNoOutput
}

// lineLogger forwards complete lines written to it to the debug log.
type lineLogger struct {
	command string
	mu      sync.Mutex
	buf     bytes.Buffer
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf.Write(p)
	for {
		line, err := l.buf.ReadString('\n')
		if err != nil {
			// keep the partial line for the next write
			l.buf.Reset()
			l.buf.WriteString(line)
			break
		}
		l.log(line)
	}
	return len(p), nil
}

// Flush logs any trailing partial line.
func (l *lineLogger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.buf.Len() > 0 {
		l.log(l.buf.String())
		l.buf.Reset()
	}
}

func (l *lineLogger) log(line string) {
	if line = strings.TrimSpace(line); line != "" {
		logger.Debug("Image generation progress", "command", l.command, "line", line)
	}
}
