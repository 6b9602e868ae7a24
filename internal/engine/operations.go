package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"panel-runtime/internal/instrument"
	"panel-runtime/internal/metadata"
)

// OperationResult is the reply of a named page operation.
type OperationResult struct {
	Status    int    `json:"status"`
	Data      any    `json:"data"`
	ErrorCode string `json:"errorCode,omitempty"`
	Message   string `json:"message,omitempty"`
}

// OK reports a transport success with a zero or absent errorCode.
func (r *OperationResult) OK() bool {
	if r == nil || r.Status < 200 || r.Status >= 300 {
		return false
	}
	return r.ErrorCode == "" || r.ErrorCode == "0"
}

// Operations calls a named operation on behalf of a page. It is the only
// network boundary the runtime uses.
type Operations interface {
	Call(ctx context.Context, page *metadata.PageDefinition, op string, payload any) (*OperationResult, error)
}

// PageAPIURL builds the endpoint of op for page under base.
func PageAPIURL(base string, page *metadata.PageDefinition, op string) string {
	name := page.Name
	if name == "" {
		name = page.ID
	}
	return strings.TrimRight(base, "/") + "/" + name + "/" + op
}

// HTTPOperations posts JSON payloads to PageAPIURL(BaseURL, page, op).
type HTTPOperations struct {
	BaseURL string
	Client  *http.Client
	Headers map[string]string
}

func NewHTTPOperations(baseURL string, timeout time.Duration) *HTTPOperations {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPOperations{BaseURL: baseURL, Client: &http.Client{Timeout: timeout}}
}

func (h *HTTPOperations) Call(ctx context.Context, page *metadata.PageDefinition, op string, payload any) (*OperationResult, error) {
	url := PageAPIURL(h.BaseURL, page, op)
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "operations", "http", "operation.call")
	defer span.End()
	span.SetPage(page.ID, "")
	span.SetMetadata("operation", op)
	span.SetMetadata("url", url)

	body, err := json.Marshal(payload)
	if err != nil {
		span.SetStatus("error")
		return nil, fmt.Errorf("encode %s payload: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		span.SetStatus("error")
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range h.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		span.SetStatus("error")
		span.SetMetadata("error", err.Error())
		return nil, fmt.Errorf("call %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		span.SetStatus("error")
		return nil, fmt.Errorf("read %s response: %w", op, err)
	}
	span.SetMetadata("status_code", resp.StatusCode)

	result := &OperationResult{Status: resp.StatusCode}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		result.Message = strings.TrimSpace(string(raw))
	} else if obj, ok := decoded.(map[string]any); ok {
		result.Data = obj["data"]
		result.Message, _ = obj["message"].(string)
		if result.Message == "" {
			result.Message, _ = obj["msg"].(string)
		}
		if code, ok := obj["errorCode"]; ok && code != nil {
			result.ErrorCode = metadata.Stringify(code)
		}
	} else {
		result.Data = decoded
	}

	if result.OK() {
		span.SetStatus("ok")
	} else {
		span.SetStatus("error")
	}
	return result, nil
}

// OperationRouter serves operations a page declares locally from Local and
// forwards everything else to Remote.
type OperationRouter struct {
	Local  Operations
	Remote Operations
}

func (r *OperationRouter) Call(ctx context.Context, page *metadata.PageDefinition, op string, payload any) (*OperationResult, error) {
	if r.Local != nil {
		if _, ok := page.LocalOperation(op); ok {
			return r.Local.Call(ctx, page, op, payload)
		}
	}
	if r.Remote == nil {
		return nil, fmt.Errorf("no backend for operation %s on page %s", op, page.ID)
	}
	return r.Remote.Call(ctx, page, op, payload)
}
