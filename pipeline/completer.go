package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/BaSui01/flowstate/config"
	"github.com/BaSui01/flowstate/types"
	"gopkg.in/yaml.v3"
)

// Request is one chat completion call made by a stage.
type Request struct {
	// Stage is the graph stage issuing the call.
	Stage       string
	Messages    []types.Message
	Temperature float64
	// JSON asks the model for a bare JSON object.
	JSON bool
}

// Completer is the language model client the stages talk to.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// decodeJSON parses a model response into out. A fenced ```json block is
// preferred over the surrounding text when present.
func decodeJSON(response string, out any) error {
	body := strings.TrimSpace(response)
	if m := fencePattern.FindStringSubmatch(response); m != nil {
		body = strings.TrimSpace(m[1])
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return types.NewError(types.ErrDecodeFailed, "response is not valid JSON").WithCause(err)
	}
	return nil
}

// decoder applies the configured decode mode to a stage result.
type decoder struct {
	mode config.DecodeMode
}

// decode parses response. In strict mode a failure is returned as a stage
// error; in lenient mode it is reported through ok so the stage can fall
// back to its default result.
func (d decoder) decode(stage, response string, out any) (ok bool, err error) {
	if err := decodeJSON(response, out); err != nil {
		if d.mode == config.DecodeStrict {
			if te, isTyped := types.AsError(err); isTyped {
				te.WithStage(stage)
			}
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// =============================================================================
// Replay completer
// =============================================================================

// ReplayCompleter answers from canned responses keyed by stage name. Each
// stage's responses are served in order; the last one repeats once the list
// is exhausted. It backs offline runs and tests.
type ReplayCompleter struct {
	mu        sync.Mutex
	responses map[string][]string
	served    map[string]int
}

// replayFile is the YAML layout read by LoadReplay:
//
//	responses:
//	  navigator: '{"pageType": "article", ...}'
//	  guardian:
//	    - '{"approved": false, ...}'
//	    - '{"approved": true, ...}'
type replayFile struct {
	Responses map[string]replayResponses `yaml:"responses"`
}

// replayResponses accepts either a single string or a list of strings.
type replayResponses []string

func (r *replayResponses) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*r = []string{node.Value}
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return err
	}
	*r = list
	return nil
}

// NewReplayCompleter creates a completer from in-memory responses.
func NewReplayCompleter(responses map[string][]string) *ReplayCompleter {
	c := &ReplayCompleter{
		responses: make(map[string][]string, len(responses)),
		served:    make(map[string]int),
	}
	for stage, list := range responses {
		c.responses[stage] = append([]string(nil), list...)
	}
	return c
}

// ParseReplay reads replay responses from YAML.
func ParseReplay(data []byte) (*ReplayCompleter, error) {
	var f replayFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse replay responses: %w", err)
	}
	responses := make(map[string][]string, len(f.Responses))
	for stage, list := range f.Responses {
		responses[stage] = list
	}
	return NewReplayCompleter(responses), nil
}

// LoadReplay reads replay responses from a YAML file.
func LoadReplay(path string) (*ReplayCompleter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read replay file: %w", err)
	}
	return ParseReplay(data)
}

// Complete implements Completer.
func (c *ReplayCompleter) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.responses[req.Stage]
	if len(list) == 0 {
		return "", types.NewError(types.ErrCompletionFailed, "no replay response recorded").WithStage(req.Stage)
	}
	i := min(c.served[req.Stage], len(list)-1)
	c.served[req.Stage]++
	return list[i], nil
}

// Calls returns how many completions a stage requested.
func (c *ReplayCompleter) Calls(stage string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.served[stage]
}
