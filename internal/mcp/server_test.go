package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/xiy/agentfund-mcp/internal/config"
	"github.com/xiy/agentfund-mcp/internal/escrow"
	"github.com/xiy/agentfund-mcp/internal/store"
	"github.com/xiy/agentfund-mcp/pkg/types"
)

type fakeChain struct {
	projects map[uint64]types.Project
	count    uint64
	encoded  int
}

func (f *fakeChain) GetProject(_ context.Context, id uint64) (types.Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return types.Project{}, errors.New("execution reverted")
	}
	return p, nil
}
func (f *fakeChain) GetProjectCount(context.Context) (uint64, error) { return f.count, nil }
func (f *fakeChain) EncodeCreateProject(string, []string) ([]byte, *big.Int, error) {
	f.encoded++
	return []byte{0x01}, big.NewInt(1), nil
}
func (f *fakeChain) EncodeReleaseMilestone(uint64) ([]byte, error) {
	f.encoded++
	return []byte{0x0a}, nil
}
func (f *fakeChain) EncodeCancelProject(uint64) ([]byte, error) {
	f.encoded++
	return []byte{0x0b}, nil
}
func (f *fakeChain) ContractAddress() string {
	return "0x3bC1eC9b4a3eA5C8F1bD5c1c7E6f9dD2a84F7b19"
}

type captureSink struct {
	rows []store.RequestLog
}

func (c *captureSink) InsertRequestLog(_ context.Context, rec store.RequestLog) error {
	c.rows = append(c.rows, rec)
	return nil
}

func newTestServer(ch *fakeChain, sink RequestLogSink) *Server {
	logger := log.NewWithOptions(io.Discard, log.Options{})
	svc := escrow.NewService(ch, config.Default(), logger)
	return NewServer(svc, "agentfund-mcp", logger, sink)
}

func TestHandle_ToolsList(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&fakeChain{}, nil)

	resp, ok := srv.handle(context.Background(), request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "tools/list",
	})
	if !ok {
		t.Fatal("expected response")
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error response: %+v", resp.Error)
	}

	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("unexpected result type %T", resp.Result)
	}
	tools, ok := result["tools"].([]ToolDefinition)
	if !ok || len(tools) != 7 {
		t.Fatalf("expected 7 tool definitions, got %v", result["tools"])
	}
	for _, def := range tools {
		if !strings.HasPrefix(def.Name, "agentfund_") {
			t.Fatalf("expected agentfund_ prefix, got %q", def.Name)
		}
	}
}

func TestHandle_UnknownToolIsErrorPayload(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&fakeChain{}, nil)

	resp, ok := srv.handle(context.Background(), request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "tools/call",
		Params:  json.RawMessage(`{"name":"agentfund_nope","arguments":{}}`),
	})
	if !ok {
		t.Fatal("expected response")
	}
	if resp.Error != nil {
		t.Fatalf("unknown tool must be an isError payload, not a JSON-RPC error: %+v", resp.Error)
	}
	result := resp.Result.(map[string]any)
	if isErr, _ := result["isError"].(bool); !isErr {
		t.Fatalf("expected isError=true, got %+v", result)
	}
}

func TestHandle_ReleaseOnCancelledProject(t *testing.T) {
	t.Parallel()
	ch := &fakeChain{projects: map[uint64]types.Project{
		5: {
			ID:             5,
			Agent:          "0x2222222222222222222222222222222222222222",
			TotalAmount:    big.NewInt(100),
			ReleasedAmount: big.NewInt(40),
			Status:         types.StatusCancelled,
		},
	}}
	srv := newTestServer(ch, nil)

	resp, _ := srv.handle(context.Background(), request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "tools/call",
		Params:  json.RawMessage(`{"name":"agentfund_generate_release_tx","arguments":{"project_id":"5"}}`),
	})
	result := resp.Result.(map[string]any)
	if isErr, _ := result["isError"].(bool); !isErr {
		t.Fatalf("expected isError=true for cancelled project, got %+v", result)
	}
	content := result["content"].([]map[string]any)
	text, _ := content[0]["text"].(string)
	if !strings.Contains(text, "Cancelled") {
		t.Fatalf("expected error text to name the current status, got %q", text)
	}
	if ch.encoded != 0 {
		t.Fatalf("expected no encoding call for cancelled project, got %d", ch.encoded)
	}
}

func TestReadWriteFramedMessage(t *testing.T) {
	t.Parallel()
	resp := response{JSONRPC: "2.0", ID: 1, Result: map[string]any{"ok": true}}
	var payloadBuf bytes.Buffer
	bw := bufio.NewWriter(&payloadBuf)
	if err := writeMessage(bw, resp, wireModeFramed); err != nil {
		t.Fatalf("writeMessage() error = %v", err)
	}
	br := bufio.NewReader(bytes.NewReader(payloadBuf.Bytes()))
	payload, err := readFramedMessage(br)
	if err != nil {
		t.Fatalf("readFramedMessage() error = %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if got["jsonrpc"] != "2.0" {
		t.Fatalf("expected jsonrpc 2.0, got %v", got["jsonrpc"])
	}
}

func TestReadMessage_JSONLine(t *testing.T) {
	t.Parallel()
	raw := []byte("{\"jsonrpc\":\"2.0\",\"id\":1,\"method\":\"ping\"}\n")
	br := bufio.NewReader(bytes.NewReader(raw))

	payload, mode, err := readMessage(br)
	if err != nil {
		t.Fatalf("readMessage() error = %v", err)
	}
	if mode != wireModeJSONLine {
		t.Fatalf("expected JSON-line mode, got %v", mode)
	}

	var req request
	if err := json.Unmarshal(payload, &req); err != nil {
		t.Fatalf("json.Unmarshal(payload) error = %v", err)
	}
	if req.Method != "ping" {
		t.Fatalf("expected method ping, got %q", req.Method)
	}
}

func TestServe_JSONLineInitialize(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&fakeChain{}, nil)

	in := bytes.NewBufferString("{\"jsonrpc\":\"2.0\",\"id\":1,\"method\":\"initialize\",\"params\":{\"protocolVersion\":\"2024-11-05\"}}\n")
	var out bytes.Buffer
	if err := srv.Serve(context.Background(), in, &out); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}

	line := bytes.TrimSpace(out.Bytes())
	if len(line) == 0 {
		t.Fatal("expected JSON-line response, got empty output")
	}
	if bytes.Contains(line, []byte("Content-Length:")) {
		t.Fatalf("expected JSON-line response, got framed output: %q", string(line))
	}

	var resp map[string]any
	if err := json.Unmarshal(line, &resp); err != nil {
		t.Fatalf("json.Unmarshal(response) error = %v", err)
	}
	if resp["jsonrpc"] != "2.0" {
		t.Fatalf("expected jsonrpc 2.0, got %v", resp["jsonrpc"])
	}
}

func TestServe_LogsRequestEvents(t *testing.T) {
	t.Parallel()
	sink := &captureSink{}
	srv := newTestServer(&fakeChain{}, sink)

	in := bytes.NewBufferString("{\"jsonrpc\":\"2.0\",\"id\":1,\"method\":\"tools/call\",\"params\":{\"name\":\"agentfund_get_project\",\"arguments\":{\"project_id\":\"abc\"}}}\n")
	var out bytes.Buffer
	if err := srv.Serve(context.Background(), in, &out); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}

	if len(sink.rows) != 1 {
		t.Fatalf("expected 1 request log row, got %d", len(sink.rows))
	}
	got := sink.rows[0]
	if got.Method != "tools/call" {
		t.Fatalf("expected method tools/call, got %q", got.Method)
	}
	if got.ToolName != "agentfund_get_project" {
		t.Fatalf("expected tool agentfund_get_project, got %q", got.ToolName)
	}
	if got.Success {
		t.Fatal("expected failed request due to non-numeric project id")
	}
	if got.ErrorText == "" {
		t.Fatal("expected non-empty error text")
	}
}
