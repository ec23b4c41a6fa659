package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/akulikov/securetext/internal/common"
)

// Drive talks to the SecureText drive gateway: a thin JSON/HTTP facade over
// the backing drive account. The gateway owns OAuth against the real drive;
// the client authenticates to the gateway with a bearer token.
//
// Endpoints:
//
//	GET    {base}/v1/nodes?parent=<id>      list children
//	POST   {base}/v1/nodes                  create file/folder
//	PATCH  {base}/v1/nodes/<id>             rename or trash
//	GET    {base}/v1/nodes/<id>/content     load content bytes
//	PUT    {base}/v1/nodes/<id>/content     save content bytes
//	POST   {base}/v1/root                   ensure named root folder
type Drive struct {
	base   string
	tokens TokenSource
	hc     *http.Client
}

var _ Store = (*Drive)(nil)

// NewDrive creates a gateway client. A nil http.Client gets a default with a
// conservative timeout so a hung gateway cannot stall a flush indefinitely.
func NewDrive(baseURL string, tokens TokenSource, hc *http.Client) *Drive {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Drive{base: baseURL, tokens: tokens, hc: hc}
}

func (d *Drive) EnsureRootFolder(ctx context.Context, name string) (string, error) {
	var out Node
	err := d.doJSON(ctx, http.MethodPost, "/v1/root", map[string]any{"name": name}, &out)
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

func (d *Drive) ListChildren(ctx context.Context, folderID string) ([]Node, error) {
	var out struct {
		Nodes []Node `json:"nodes"`
	}
	path := "/v1/nodes?parent=" + url.QueryEscape(folderID)
	if err := d.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Nodes, nil
}

func (d *Drive) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	return d.createNode(ctx, name, parentID, true)
}

func (d *Drive) CreateFile(ctx context.Context, name, parentID string) (string, error) {
	return d.createNode(ctx, name, parentID, false)
}

func (d *Drive) createNode(ctx context.Context, name, parentID string, folder bool) (string, error) {
	var out Node
	body := map[string]any{"name": name, "parentId": parentID, "folder": folder}
	if err := d.doJSON(ctx, http.MethodPost, "/v1/nodes", body, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (d *Drive) Rename(ctx context.Context, id, newName string) error {
	return d.doJSON(ctx, http.MethodPatch, "/v1/nodes/"+url.PathEscape(id), map[string]any{"name": newName}, nil)
}

func (d *Drive) Trash(ctx context.Context, id string) error {
	return d.doJSON(ctx, http.MethodPatch, "/v1/nodes/"+url.PathEscape(id), map[string]any{"trashed": true}, nil)
}

func (d *Drive) LoadBytes(ctx context.Context, id string) ([]byte, error) {
	resp, err := d.do(ctx, http.MethodGet, "/v1/nodes/"+url.PathEscape(id)+"/content", "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := mapStatus(resp.StatusCode); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read content: %v", common.ErrRemoteUnavailable, err)
	}
	return data, nil
}

func (d *Drive) SaveBytes(ctx context.Context, id string, data []byte) error {
	resp, err := d.do(ctx, http.MethodPut, "/v1/nodes/"+url.PathEscape(id)+"/content",
		"application/octet-stream", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return mapStatus(resp.StatusCode)
}

// doJSON performs a request with an optional JSON body and decodes a JSON
// response into out (when out is non-nil).
func (d *Drive) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	resp, err := d.do(ctx, method, path, "application/json", reader)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := mapStatus(resp.StatusCode); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", common.ErrRemoteUnavailable, err)
	}
	return nil
}

func (d *Drive) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	token, err := d.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, d.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	// request id for correlating client retries with gateway logs
	if id, err := common.MakeRandHexString(8); err == nil {
		req.Header.Set("X-Request-Id", id)
	}

	resp, err := d.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrRemoteUnavailable, err)
	}
	return resp, nil
}

// mapStatus translates gateway status codes into the client error taxonomy.
// "Not authenticated" and "authenticated but missing" stay distinct.
func mapStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return common.ErrNotAuthenticated
	case code == http.StatusNotFound:
		return common.ErrNotFound
	default:
		return fmt.Errorf("%w: gateway status %d", common.ErrRemoteUnavailable, code)
	}
}
