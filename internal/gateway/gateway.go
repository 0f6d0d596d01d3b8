package gateway

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sandboxui/bridge/internal/logging"
	"github.com/sandboxui/bridge/internal/shared/errs"
	"github.com/sandboxui/bridge/internal/shared/paths"
	"github.com/sandboxui/bridge/internal/shared/types"
	"github.com/sandboxui/bridge/internal/transport"
)

// Config defines gateway client configuration.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64 // 0 disables outbound rate limiting
	Burst             int
}

// Gateway is the typed client for the sandbox file and environment
// API. It never stores the credential; the auth transport injects it
// on every call.
type Gateway struct {
	client  *resty.Client
	limiter *rate.Limiter
	logger  *logging.Logger
}

// New creates a gateway talking to cfg.BaseURL with the session's
// credential injected by source.
func New(cfg Config, source transport.TokenSource, logger *logging.Logger) *Gateway {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "sandbox-bridge/1.0").
		SetTransport(transport.New(nil, source))

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(cfg.RequestsPerSecond)
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	if logger == nil {
		logger = logging.NewNop()
	}

	return &Gateway{
		client:  client,
		limiter: limiter,
		logger:  logger.Named("gateway"),
	}
}

// request creates a rate-limited request bound to ctx.
func (g *Gateway) request(ctx context.Context) (*resty.Request, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, errs.Newf(errs.Unreachable, "rate limiter: %v", err)
	}
	return g.client.R().SetContext(ctx), nil
}

// classify maps a resty outcome into the error taxonomy. Transport
// failures (timeout, refused connection) are Unreachable; non-2xx
// bodies are decoded into their structured form.
func classify(resp *resty.Response, err error) error {
	if err != nil {
		return errs.Newf(errs.Unreachable, "sandbox api unreachable: %v", err)
	}
	if resp.IsSuccess() {
		return nil
	}
	return transport.DecodeError(resp.StatusCode(), resp.Body())
}

// listItem is the backend's file listing entry. Folder children come
// back as an empty placeholder array and are deliberately dropped:
// hydration is the tree's job, one level at a time.
type listItem struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Size uint64         `json:"size"`
	Date string         `json:"date"`
	Type types.NodeKind `json:"type"`
}

// List returns the immediate children of path (root when empty). The
// backend's order is preserved. Returned nodes are always shallow:
// folders among them are unhydrated.
func (g *Gateway) List(ctx context.Context, sandboxID, path string) ([]*types.FileNode, error) {
	req, err := g.request(ctx)
	if err != nil {
		return nil, err
	}

	var items []listItem
	resp, err := req.
		SetQueryParam("path", paths.ToRequest(path)).
		SetResult(&items).
		Get(sandboxURL(sandboxID, "files"))
	if cerr := classify(resp, err); cerr != nil {
		return nil, cerr
	}

	nodes := make([]*types.FileNode, 0, len(items))
	for _, item := range items {
		nodes = append(nodes, &types.FileNode{
			ID:    paths.ToID(item.ID),
			Name:  item.Name,
			Size:  item.Size,
			MTime: types.ParseWireDate(item.Date),
			Kind:  item.Type,
		})
	}
	g.logger.Debug("listed sandbox path",
		zap.String("sandbox_id", sandboxID),
		zap.String("path", path),
		zap.Int("entries", len(nodes)),
	)
	return nodes, nil
}

// Upload stores a new file under path. The backend reports collisions
// as Conflict and size rejections as PayloadTooLarge.
func (g *Gateway) Upload(ctx context.Context, sandboxID, path, name string, r io.Reader) error {
	req, err := g.request(ctx)
	if err != nil {
		return err
	}

	resp, err := req.
		SetFileReader("file", name, r).
		SetFormData(map[string]string{"path": paths.ToRequest(path)}).
		Post(sandboxURL(sandboxID, "files"))
	return classify(resp, err)
}

// Download streams the bytes of a file. Fails with NotFound when the
// path does not exist or addresses a folder. The caller must close
// the returned reader.
func (g *Gateway) Download(ctx context.Context, sandboxID, filePath string) (io.ReadCloser, int64, string, error) {
	req, err := g.request(ctx)
	if err != nil {
		return nil, 0, "", err
	}

	resp, err := req.
		SetDoNotParseResponse(true).
		Get(sandboxURL(sandboxID, "files") + "/" + paths.EscapeRequest(paths.ToRequest(filePath)))
	if err != nil {
		return nil, 0, "", errs.Newf(errs.Unreachable, "sandbox api unreachable: %v", err)
	}
	if resp.StatusCode() >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.RawBody(), 64<<10))
		resp.RawBody().Close()
		return nil, 0, "", transport.DecodeError(resp.StatusCode(), body)
	}
	return resp.RawBody(), resp.RawResponse.ContentLength, resp.Header().Get("Content-Type"), nil
}

// Remove deletes a file or folder. Recursive-delete semantics for
// folders are the backend's call.
func (g *Gateway) Remove(ctx context.Context, sandboxID, path string) error {
	req, err := g.request(ctx)
	if err != nil {
		return err
	}

	resp, err := req.Delete(sandboxURL(sandboxID, "files") + "/" + paths.EscapeRequest(paths.ToRequest(path)))
	return classify(resp, err)
}

// Mkdir creates a folder named name under path.
func (g *Gateway) Mkdir(ctx context.Context, sandboxID, path, name string) error {
	req, err := g.request(ctx)
	if err != nil {
		return err
	}

	resp, err := req.
		SetQueryParams(map[string]string{
			"folder_name": name,
			"path":        paths.ToRequest(path),
		}).
		Post(sandboxURL(sandboxID, "folders"))
	return classify(resp, err)
}

// Rename changes the base name of a file or folder in place.
func (g *Gateway) Rename(ctx context.Context, sandboxID, path, newName string) error {
	req, err := g.request(ctx)
	if err != nil {
		return err
	}

	resp, err := req.
		SetQueryParam("new_name", newName).
		Put(sandboxURL(sandboxID, "files") + "/" + paths.EscapeRequest(paths.ToRequest(path)))
	return classify(resp, err)
}

// Info returns aggregate sandbox usage for quota display.
func (g *Gateway) Info(ctx context.Context, sandboxID string) (types.SandboxInfo, error) {
	req, err := g.request(ctx)
	if err != nil {
		return types.SandboxInfo{}, err
	}

	var info types.SandboxInfo
	resp, err := req.SetResult(&info).Get(sandboxURL(sandboxID, "info"))
	if cerr := classify(resp, err); cerr != nil {
		return types.SandboxInfo{}, cerr
	}
	return info, nil
}

// envEnvelope is the wire shape for environment variables.
type envEnvelope struct {
	Variables []types.SecretEntry `json:"variables"`
}

// LoadEnv fetches the persisted environment-variable sequence in
// stored order.
func (g *Gateway) LoadEnv(ctx context.Context, sandboxID string) ([]types.SecretEntry, error) {
	req, err := g.request(ctx)
	if err != nil {
		return nil, err
	}

	var env envEnvelope
	resp, err := req.SetResult(&env).Get(sandboxURL(sandboxID, "env"))
	if cerr := classify(resp, err); cerr != nil {
		return nil, cerr
	}
	if env.Variables == nil {
		return []types.SecretEntry{}, nil
	}
	return env.Variables, nil
}

// SaveEnv persists the full environment-variable sequence, replacing
// whatever was stored. Saving an empty sequence clears all remote
// variables.
func (g *Gateway) SaveEnv(ctx context.Context, sandboxID string, vars []types.SecretEntry) error {
	req, err := g.request(ctx)
	if err != nil {
		return err
	}

	if vars == nil {
		vars = []types.SecretEntry{}
	}
	resp, err := req.
		SetHeader("Content-Type", "application/json").
		SetBody(envEnvelope{Variables: vars}).
		Post(sandboxURL(sandboxID, "env"))
	return classify(resp, err)
}

func sandboxURL(sandboxID, suffix string) string {
	return "/sandboxes/" + url.PathEscape(sandboxID) + "/" + suffix
}
