package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"skill-routing-engine/pkg/constants"
	"skill-routing-engine/pkg/metrics"
	"skill-routing-engine/pkg/models"
)

var ErrUnknownConnector = errors.New("no connector registered for tool")

// Result is what an integration connector reports back
type Result struct {
	Success bool                   `json:"success"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Connector performs one tool action against an external system
type Connector interface {
	Execute(ctx context.Context, action models.ToolKind, params map[string]string) (Result, error)
}

// Registry maps tool kinds to connectors. A default connector, if set, serves
// every kind without its own entry.
type Registry struct {
	mu         sync.RWMutex
	connectors map[models.ToolKind]Connector
	fallback   Connector
}

func NewRegistry() *Registry {
	return &Registry{connectors: make(map[models.ToolKind]Connector)}
}

func (r *Registry) Register(kind models.ToolKind, c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[kind] = c
}

func (r *Registry) SetDefault(c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = c
}

func (r *Registry) Lookup(kind models.ToolKind) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.connectors[kind]; ok {
		return c, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownConnector, kind)
}

// Executor runs dispatched tools through the registry under a bounded timeout
type Executor struct {
	registry *Registry
	timeout  time.Duration
	logger   *logrus.Logger
	metrics  *metrics.Metrics
}

func NewExecutor(registry *Registry, timeout time.Duration, logger *logrus.Logger, metrics *metrics.Metrics) *Executor {
	if timeout <= 0 {
		timeout = constants.MillisecondsToDuration(constants.DefaultToolTimeoutMS)
	}
	return &Executor{
		registry: registry,
		timeout:  timeout,
		logger:   logger,
		metrics:  metrics,
	}
}

// Execute performs the action. A connector that reports success=false is an
// error just like a transport failure.
func (e *Executor) Execute(ctx context.Context, action *models.ToolAction) (Result, error) {
	connector, err := e.registry.Lookup(action.Kind)
	if err != nil {
		e.metrics.ToolExecutions.WithLabelValues(string(action.Kind), "unrouted").Inc()
		return Result{}, err
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type reply struct {
		result Result
		err    error
	}
	replies := make(chan reply, 1)

	start := time.Now()
	// The connector may not honor ctx; the select keeps the bound regardless
	go func() {
		result, err := connector.Execute(execCtx, action.Kind, action.Params)
		replies <- reply{result: result, err: err}
	}()

	var result Result
	select {
	case r := <-replies:
		result, err = r.result, r.err
	case <-execCtx.Done():
		err = fmt.Errorf("%s action timed out: %w", action.Kind, execCtx.Err())
	}
	e.metrics.ExternalCallDuration.WithLabelValues("tool").Observe(time.Since(start).Seconds())

	if err == nil && !result.Success {
		err = fmt.Errorf("connector rejected %s action", action.Kind)
	}
	if err != nil {
		e.metrics.ToolExecutions.WithLabelValues(string(action.Kind), "failed").Inc()
		e.logger.WithError(err).WithFields(logrus.Fields{
			"tool":     action.Kind,
			"fallback": action.Fallback,
		}).Error("Tool execution failed")
		return result, err
	}

	e.metrics.ToolExecutions.WithLabelValues(string(action.Kind), "success").Inc()
	return result, nil
}

// HTTPConnector posts actions as JSON to {baseURL}/actions/{kind}
type HTTPConnector struct {
	baseURL string
	client  *http.Client
}

func NewHTTPConnector(baseURL string, timeout time.Duration) *HTTPConnector {
	return &HTTPConnector{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type actionRequest struct {
	Action models.ToolKind   `json:"action"`
	Params map[string]string `json:"params"`
}

func (c *HTTPConnector) Execute(ctx context.Context, action models.ToolKind, params map[string]string) (Result, error) {
	body, err := json.Marshal(actionRequest{Action: action, Params: params})
	if err != nil {
		return Result{}, fmt.Errorf("marshal action: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/actions/"+string(action), bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("connector request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("connector returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}
	return result, nil
}
