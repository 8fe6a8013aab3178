package clusterops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/SkySingh04/DreamOps-sub000/internal/models"
	"github.com/SkySingh04/DreamOps-sub000/internal/utils"
)

// AgentClient drives cluster operations through a remediation agent's HTTP
// API. The agent owns the actual cluster credentials and tooling; the engine
// only ever speaks this narrow endpoint pair.
type AgentClient struct {
	baseURL     string
	executePath string
	queryPath   string
	token       string
	httpClient  *http.Client
}

// NewAgentClient constructs a client targeting the configured agent.
func NewAgentClient(baseURL, executePath, queryPath, token string, timeout time.Duration) *AgentClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AgentClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		executePath: executePath,
		queryPath:   queryPath,
		token:       token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Execute performs one cluster operation. A transport or non-2xx failure is
// returned as an error; an unsuccessful but well-formed agent response comes
// back as Success=false with the agent's output.
func (c *AgentClient) Execute(ctx context.Context, req models.ActionRequest) (models.ActionResult, error) {
	if c == nil {
		return models.ActionResult{}, fmt.Errorf("agent client not initialised")
	}
	if c.baseURL == "" {
		return models.ActionResult{}, fmt.Errorf("agent base URL not configured")
	}
	if err := req.Params.Validate(req.Kind); err != nil {
		return models.ActionResult{}, fmt.Errorf("invalid action request: %w", err)
	}

	var response struct {
		Success bool     `json:"success"`
		Output  string   `json:"output"`
		Targets []string `json:"targets"`
		Error   string   `json:"error"`
	}
	if err := c.postJSON(ctx, c.resolvePath(c.executePath), req, &response); err != nil {
		return models.ActionResult{}, utils.NewAppError("clusterops.execute", "agent execute request failed", err)
	}

	result := models.ActionResult{
		Success: response.Success,
		Output:  firstNonEmpty(response.Output, response.Error),
		Targets: response.Targets,
	}
	return result, nil
}

// Query evaluates a verification condition against live cluster state.
func (c *AgentClient) Query(ctx context.Context, cond models.ConditionQuery) (models.QueryResult, error) {
	if c == nil {
		return models.QueryResult{}, fmt.Errorf("agent client not initialised")
	}
	if c.baseURL == "" {
		return models.QueryResult{}, fmt.Errorf("agent base URL not configured")
	}

	var response struct {
		Matches []string `json:"matches"`
		Detail  string   `json:"detail"`
	}
	if err := c.postJSON(ctx, c.resolvePath(c.queryPath), cond, &response); err != nil {
		return models.QueryResult{}, utils.NewAppError("clusterops.query", "agent query request failed", err)
	}

	return models.QueryResult{Matches: response.Matches, Detail: response.Detail}, nil
}

func (c *AgentClient) resolvePath(p string) string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *AgentClient) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	if endpoint == "" {
		return fmt.Errorf("empty endpoint")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agent returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
