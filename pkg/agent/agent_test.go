package agent_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stackagent/conductor/pkg/agent"
	"github.com/stretchr/testify/assert"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := agent.NewRegistry()
	browser := agent.NewBrowserAgent(time.Second)
	r.Register("browser", browser)

	got, err := r.Lookup("browser")
	assert.NoError(t, err)
	assert.Same(t, browser, got)
}

func TestRegistry_LookupUnknownType(t *testing.T) {
	r := agent.NewRegistry()
	_, err := r.Lookup("teleport")
	var notFound *agent.NotFoundError
	assert.ErrorAs(t, err, &notFound)
	assert.Equal(t, "teleport", notFound.AgentType)
}

func TestRegistry_BuiltinTable(t *testing.T) {
	r := agent.Builtin()
	assert.Equal(t, []string{"analyze", "browser", "extract", "file", "http"}, r.Types())
}

func TestBrowserAgent_Actions(t *testing.T) {
	a := agent.NewBrowserAgent(time.Second)
	ctx := context.Background()

	result, err := a.Execute(ctx, "navigate", map[string]any{"url": "https://example.com"})
	assert.NoError(t, err)
	assert.Equal(t, map[string]any{"url": "https://example.com", "success": true}, result)

	_, err = a.Execute(ctx, "navigate", map[string]any{})
	assert.ErrorContains(t, err, `missing required parameter "url"`)

	_, err = a.Execute(ctx, "teleport", map[string]any{})
	assert.ErrorContains(t, err, `unknown action "teleport"`)
}

func TestExtractAgent_DefaultsToText(t *testing.T) {
	a := agent.NewExtractAgent()
	result, err := a.Execute(context.Background(), "extract", map[string]any{"selector": ".price"})
	assert.NoError(t, err)
	assert.Equal(t, "text", result.(map[string]any)["extract_type"])
}

func TestHTTPAgent_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	a := agent.NewHTTPAgent(2 * time.Second)
	result, err := a.Execute(context.Background(), "get", map[string]any{"url": srv.URL})
	assert.NoError(t, err)
	got := result.(map[string]any)
	assert.Equal(t, http.StatusOK, got["status"])
	assert.Equal(t, `{"ok":true}`, got["body"])
}

func TestFileAgent_WriteThenRead(t *testing.T) {
	root := t.TempDir()
	a := agent.NewFileAgent(root)
	ctx := context.Background()

	_, err := a.Execute(ctx, "write", map[string]any{
		"path":    "out/report.txt",
		"content": "done",
	})
	assert.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "out", "report.txt"))
	assert.NoError(t, err)
	assert.Equal(t, "done", string(data))

	result, err := a.Execute(ctx, "read", map[string]any{"path": "out/report.txt"})
	assert.NoError(t, err)
	assert.Equal(t, "done", result.(map[string]any)["content"])
}

func TestFileAgent_RejectsEscapingPaths(t *testing.T) {
	a := agent.NewFileAgent(t.TempDir())
	_, err := a.Execute(context.Background(), "read", map[string]any{"path": "../../etc/passwd"})
	assert.ErrorContains(t, err, "escapes the sandbox root")
}
