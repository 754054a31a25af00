// Package sync moves genes between this instance and the rest of the
// deployment: incremental pulls from the platform, uploads of locally
// recorded genes, and broadcast/direct pushes to other instances.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	otelglobal "go.opentelemetry.io/otel"

	"github.com/basket/genebank/internal/gene"
	otelPkg "github.com/basket/genebank/internal/otel"
)

const defaultRequestTimeout = 15 * time.Second

// Client talks to the platform gene API.
type Client struct {
	baseURL    string
	token      string
	instanceID string
	userID     string
	httpClient *http.Client
}

// NewClient creates a platform API client. An empty baseURL produces an
// unconfigured client; callers check Configured before use.
func NewClient(baseURL, token, instanceID, userID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		instanceID: instanceID,
		userID:     userID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Configured reports whether a platform endpoint is set.
func (c *Client) Configured() bool { return c.baseURL != "" }

// InstanceID returns the identity this client presents to the platform.
func (c *Client) InstanceID() string { return c.instanceID }

// UserID returns the user identity this client presents to the platform.
func (c *Client) UserID() string { return c.userID }

// PullResponse is the platform's answer to any pull variant. Genes stay
// raw until they pass the wire schema (gene.ValidateRecord) in the
// engine; the platform is a trust boundary like any other peer.
type PullResponse struct {
	Success    bool              `json:"success"`
	Genes      []json.RawMessage `json:"genes"`
	Deleted    []string          `json:"deleted,omitempty"`
	ServerTime time.Time         `json:"server_time,omitzero"`
	Error      string            `json:"error,omitempty"`
}

type pullRequest struct {
	Since      time.Time `json:"since,omitzero"`
	InstanceID string    `json:"instance_id"`
	UserID     string    `json:"user_id,omitempty"`
	Category   string    `json:"category,omitempty"`
	GeneID     string    `json:"gene_id,omitempty"`
}

// PullUpdates requests everything changed on the platform since the
// given watermark.
func (c *Client) PullUpdates(ctx context.Context, since time.Time) (*PullResponse, error) {
	var resp PullResponse
	err := c.postJSON(ctx, "/api/genes/pull", pullRequest{
		Since:      since,
		InstanceID: c.instanceID,
		UserID:     c.userID,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// PullCategory requests the platform's current genes for one category.
func (c *Client) PullCategory(ctx context.Context, category gene.Category) (*PullResponse, error) {
	var resp PullResponse
	err := c.postJSON(ctx, "/api/genes/pull", pullRequest{
		InstanceID: c.instanceID,
		Category:   string(category),
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchGene requests one gene by id, returned raw for schema validation.
// Returns nil when the platform does not have it.
func (c *Client) FetchGene(ctx context.Context, id string) (json.RawMessage, error) {
	var resp struct {
		Gene json.RawMessage `json:"gene"`
	}
	err := c.postJSON(ctx, "/api/genes/get", pullRequest{
		InstanceID: c.instanceID,
		GeneID:     id,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Gene) == 0 || string(resp.Gene) == "null" {
		return nil, nil
	}
	return resp.Gene, nil
}

// UploadDetail is the platform's per-gene outcome for an upload batch.
type UploadDetail struct {
	GeneID string `json:"gene_id"`
	Error  string `json:"error,omitempty"`
}

// UploadResponse is the platform's answer to an upload batch.
type UploadResponse struct {
	Success bool           `json:"success"`
	Details []UploadDetail `json:"details,omitempty"`
	Error   string         `json:"error,omitempty"`
}

type uploadRequest struct {
	InstanceID string      `json:"instance_id"`
	UserID     string      `json:"user_id"`
	Genes      []gene.Gene `json:"genes"`
}

// Upload sends full gene records to the platform.
func (c *Client) Upload(ctx context.Context, genes []gene.Gene) (*UploadResponse, error) {
	var resp UploadResponse
	err := c.postJSON(ctx, "/api/genes/upload", uploadRequest{
		InstanceID: c.instanceID,
		UserID:     c.userID,
		Genes:      genes,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// BroadcastResponse reports the outcome of an administrative push.
type BroadcastResponse struct {
	Pushed int               `json:"pushed"`
	Errors map[string]string `json:"errors,omitempty"`
}

type broadcastRequest struct {
	GeneIDs []string `json:"gene_ids"`
	UserID  string   `json:"user_id,omitempty"` // empty targets all online users
	Message string   `json:"message,omitempty"`
}

// BroadcastPush asks the platform to deliver the genes to all online
// instances, or to one user when targetUserID is set.
func (c *Client) BroadcastPush(ctx context.Context, geneIDs []string, targetUserID, message string) (*BroadcastResponse, error) {
	var resp BroadcastResponse
	err := c.postJSON(ctx, "/api/genes/push", broadcastRequest{
		GeneIDs: geneIDs,
		UserID:  targetUserID,
		Message: message,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) postJSON(ctx context.Context, path string, reqBody, out any) error {
	if !c.Configured() {
		return fmt.Errorf("sync: platform endpoint not configured")
	}
	ctx, span := otelPkg.StartClientSpan(ctx, otelglobal.Tracer(otelPkg.TracerName),
		"platform"+path, otelPkg.AttrInstanceID.String(c.instanceID))
	defer span.End()

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("sync: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("sync: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("sync: %s returned %d: %s", path, resp.StatusCode, string(body))
		span.RecordError(err)
		return err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("sync: read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("sync: parse %s response: %w", path, err)
	}
	return nil
}
