package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sandboxui/bridge/internal/infrastructure/monitoring"
	"github.com/sandboxui/bridge/internal/logging"
	"github.com/sandboxui/bridge/internal/secrets"
	"github.com/sandboxui/bridge/internal/session"
	"github.com/sandboxui/bridge/internal/shared/errs"
	"github.com/sandboxui/bridge/internal/shared/id"
	"github.com/sandboxui/bridge/internal/shared/paths"
	"github.com/sandboxui/bridge/internal/shared/types"
	"github.com/sandboxui/bridge/internal/transfer"
	"github.com/sandboxui/bridge/internal/tree"
)

const (
	maxMessageBytes = 1 << 20
	opTimeout       = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced by the server middleware
	},
}

// FileOps is the slice of the gateway the handler drives directly:
// mutations and the usage query. Listing goes through the tree and
// byte fetches through the transfer agent.
type FileOps interface {
	Remove(ctx context.Context, sandboxID, path string) error
	Mkdir(ctx context.Context, sandboxID, path, name string) error
	Rename(ctx context.Context, sandboxID, path, newName string) error
	Info(ctx context.Context, sandboxID string) (types.SandboxInfo, error)
}

// Handler speaks the widget protocol over WebSocket. All connections
// share one session: the widget that most recently sent a session
// message owns the bridge's identity.
type Handler struct {
	sess   *session.Session
	bridge *tree.Bridge
	store  *secrets.Store
	agent  *transfer.Agent
	files  FileOps

	mu    sync.Mutex
	conns map[string]*client

	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// client is one widget connection. gorilla permits a single concurrent
// writer, so every send goes through the client's write mutex.
type client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewHandler wires the protocol onto the core components. Asynchronous
// secret-save failures are broadcast to every connected widget as
// notices.
func NewHandler(sess *session.Session, bridge *tree.Bridge, store *secrets.Store, agent *transfer.Agent, files FileOps, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	h := &Handler{
		sess:   sess,
		bridge: bridge,
		store:  store,
		agent:  agent,
		files:  files,
		conns:  make(map[string]*client),
		logger: logger.Named("ws"),
	}
	store.OnError(func(err error) {
		h.broadcast(noticeFor(err))
	})
	return h
}

// WithMetrics attaches a metrics collector.
func (h *Handler) WithMetrics(m *monitoring.Metrics) *Handler {
	h.metrics = m
	return h
}

// HandleConnection upgrades the request and runs the read loop until
// the widget disconnects. A pending secrets save is flushed on
// disconnect so an edit made just before unmount is not lost.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	cl := &client{id: id.NewConnID().String(), conn: conn}
	conn.SetReadLimit(maxMessageBytes)

	h.mu.Lock()
	h.conns[cl.id] = cl
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WSConnections.Inc()
	}
	h.logger.Info("widget connected", zap.String("conn_id", cl.id))

	defer func() {
		h.mu.Lock()
		delete(h.conns, cl.id)
		h.mu.Unlock()
		if h.metrics != nil {
			h.metrics.WSConnections.Dec()
		}
		conn.Close()

		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := h.store.Flush(ctx); err != nil {
			h.logger.Warn("flush on disconnect failed", zap.Error(err))
		}
		h.logger.Info("widget disconnected", zap.String("conn_id", cl.id))
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("read error", zap.String("conn_id", cl.id), zap.Error(err))
			}
			return
		}

		var msg Message
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			h.send(cl, protocolError{Type: MsgError, Message: "malformed message"})
			continue
		}
		if h.metrics != nil {
			h.metrics.WSMessages.WithLabelValues("in", msg.Type).Inc()
		}
		h.dispatch(cl, msg)
	}
}

// dispatch routes one message. Fast, in-memory operations run inline
// to keep their ordering relative to the read stream; anything that
// hits the network runs in its own goroutine so a slow fetch cannot
// stall pings or session switches.
func (h *Handler) dispatch(cl *client, msg Message) {
	switch msg.Type {
	case MsgSession:
		h.sess.Set(msg.SandboxID, msg.Token)
	case MsgPing:
		h.send(cl, pong{Type: MsgPong})
	case MsgInvalidate:
		h.bridge.Invalidate(msg.ID)
	case MsgEnvAdd:
		h.store.Add()
		h.send(cl, envData{Type: MsgEnvData, Variables: h.store.Entries()})
	case MsgEnvUpdate:
		if msg.Index == nil {
			h.send(cl, protocolError{Type: MsgError, Message: "env-update requires index"})
			return
		}
		if err := h.store.Update(*msg.Index, msg.Field, msg.Value); err != nil {
			h.send(cl, noticeFor(err))
		}
	case MsgRequestData:
		go h.handleRequestData(cl, msg.ID)
	case MsgOpenFile:
		go h.handleTransfer(cl, msg.ID, h.agent.Open)
	case MsgDownloadFile:
		go h.handleTransfer(cl, msg.ID, h.agent.Download)
	case MsgDeleteFile:
		go h.handleDelete(cl, msg.ID)
	case MsgRenameFile:
		go h.handleRename(cl, msg.ID, msg.Name)
	case MsgCreateFolder:
		go h.handleCreateFolder(cl, msg.ID, msg.Name)
	case MsgEnvLoad:
		go h.handleEnvLoad(cl)
	case MsgEnvRemove:
		if msg.Index == nil {
			h.send(cl, protocolError{Type: MsgError, Message: "env-remove requires index"})
			return
		}
		go h.handleEnvRemove(cl, *msg.Index)
	case MsgInfo:
		go h.handleInfo(cl)
	default:
		h.send(cl, protocolError{Type: MsgError, Message: "unknown message type"})
	}
}

func (h *Handler) handleRequestData(cl *client, nodeID string) {
	// No reply without a session: an empty repaint would blank a
	// widget that raced a teardown.
	if h.sess.ID() == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	children, err := h.bridge.Expand(ctx, nodeID)
	if err != nil {
		h.send(cl, noticeFor(err))
		return
	}
	if children == nil {
		children = []*types.FileNode{}
	}
	if nodeID == "" {
		nodeID = paths.Root
	}
	h.send(cl, provideData{Type: MsgProvideData, ID: nodeID, Data: children})
}

func (h *Handler) handleTransfer(cl *client, nodeID string, fetch func(context.Context, string) (*transfer.Handle, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	handle, err := fetch(ctx, nodeID)
	if err != nil {
		h.send(cl, noticeFor(err))
		return
	}
	h.send(cl, transferReady{
		Type:        MsgTransferReady,
		ID:          handle.ID,
		URL:         "/transfers/" + handle.ID,
		Name:        handle.Name,
		ContentType: handle.ContentType,
		Disposition: handle.Disposition,
	})
}

func (h *Handler) handleDelete(cl *client, nodeID string) {
	sandboxID := h.sess.ID()
	if sandboxID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := h.files.Remove(ctx, sandboxID, nodeID); err != nil {
		h.send(cl, noticeFor(err))
		return
	}
	h.refreshParent(cl, ctx, nodeID)
}

func (h *Handler) handleRename(cl *client, nodeID, newName string) {
	sandboxID := h.sess.ID()
	if sandboxID == "" {
		return
	}
	if newName == "" {
		h.send(cl, noticeFor(errs.New(errs.Invalid, "rename requires a name")))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := h.files.Rename(ctx, sandboxID, nodeID, newName); err != nil {
		h.send(cl, noticeFor(err))
		return
	}
	h.refreshParent(cl, ctx, nodeID)
}

func (h *Handler) handleCreateFolder(cl *client, parentID, name string) {
	sandboxID := h.sess.ID()
	if sandboxID == "" {
		return
	}
	if name == "" {
		h.send(cl, noticeFor(errs.New(errs.Invalid, "create-folder requires a name")))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := h.files.Mkdir(ctx, sandboxID, parentID, name); err != nil {
		h.send(cl, noticeFor(err))
		return
	}
	h.refreshNode(cl, ctx, parentID)
}

// refreshParent repaints the mutated node's parent: invalidate, fetch
// fresh, push provide-data.
func (h *Handler) refreshParent(cl *client, ctx context.Context, nodeID string) {
	h.refreshNode(cl, ctx, paths.Parent(nodeID))
}

func (h *Handler) refreshNode(cl *client, ctx context.Context, nodeID string) {
	if nodeID == "" {
		nodeID = paths.Root
	}
	h.bridge.Invalidate(nodeID)
	children, err := h.bridge.Expand(ctx, nodeID)
	if err != nil {
		h.send(cl, noticeFor(err))
		return
	}
	if children == nil {
		children = []*types.FileNode{}
	}
	h.send(cl, provideData{Type: MsgProvideData, ID: nodeID, Data: children})
}

func (h *Handler) handleEnvLoad(cl *client) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	vars, err := h.store.Load(ctx)
	if err != nil {
		h.send(cl, noticeFor(err))
		return
	}
	if vars == nil {
		vars = []types.SecretEntry{}
	}
	h.send(cl, envData{Type: MsgEnvData, Variables: vars})
}

func (h *Handler) handleEnvRemove(cl *client, index int) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := h.store.Remove(ctx, index); err != nil {
		h.send(cl, noticeFor(err))
		return
	}
	h.send(cl, envData{Type: MsgEnvData, Variables: h.store.Entries()})
}

func (h *Handler) handleInfo(cl *client) {
	sandboxID := h.sess.ID()
	if sandboxID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	info, err := h.files.Info(ctx, sandboxID)
	if err != nil {
		h.send(cl, noticeFor(err))
		return
	}
	h.send(cl, infoData{Type: MsgInfo, UsedBytes: info.UsedBytes, FileCount: info.FileCount})
}

func (h *Handler) send(cl *client, v interface{}) {
	data, err := sonic.Marshal(v)
	if err != nil {
		h.logger.Error("marshal failed", zap.Error(err))
		return
	}

	cl.mu.Lock()
	err = cl.conn.WriteMessage(websocket.TextMessage, data)
	cl.mu.Unlock()
	if err != nil {
		h.logger.Warn("write failed", zap.String("conn_id", cl.id), zap.Error(err))
		return
	}
	if h.metrics != nil {
		if m, ok := v.(interface{ msgType() string }); ok {
			h.metrics.WSMessages.WithLabelValues("out", m.msgType()).Inc()
		}
	}
}

func (h *Handler) broadcast(v interface{}) {
	h.mu.Lock()
	conns := make([]*client, 0, len(h.conns))
	for _, cl := range h.conns {
		conns = append(conns, cl)
	}
	h.mu.Unlock()

	for _, cl := range conns {
		h.send(cl, v)
	}
}

// noticeFor turns a failure into the widget's non-blocking notice. The
// code is the taxonomy kind, so the widget can special-case
// "unauthorized" (tear the session down) and "unreachable" (offer
// retry).
func noticeFor(err error) notice {
	kind := errs.KindOf(err)
	level := "error"
	if kind == errs.Unreachable {
		level = "warn"
	}
	return notice{
		Type:    MsgNotice,
		Level:   level,
		Message: err.Error(),
		Code:    kind.String(),
	}
}
