package ws

import "github.com/sandboxui/bridge/internal/shared/types"

// Inbound message types.
const (
	MsgSession      = "session"
	MsgRequestData  = "request-data"
	MsgOpenFile     = "open-file"
	MsgDownloadFile = "download-file"
	MsgDeleteFile   = "delete-file"
	MsgRenameFile   = "rename-file"
	MsgCreateFolder = "create-folder"
	MsgEnvLoad      = "env-load"
	MsgEnvAdd       = "env-add"
	MsgEnvRemove    = "env-remove"
	MsgEnvUpdate    = "env-update"
	MsgInvalidate   = "invalidate"
	MsgInfo         = "info"
	MsgPing         = "ping"
)

// Outbound message types.
const (
	MsgProvideData   = "provide-data"
	MsgTransferReady = "transfer-ready"
	MsgEnvData       = "env-data"
	MsgNotice        = "notice"
	MsgPong          = "pong"
	MsgError         = "error"
)

// Message is the inbound envelope. Fields beyond Type are populated per
// message type; Index is a pointer so index 0 is distinguishable from
// absent.
type Message struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	SandboxID string `json:"sandbox_id,omitempty"`
	Token     string `json:"token,omitempty"`
	Name      string `json:"name,omitempty"`
	Index     *int   `json:"index,omitempty"`
	Field     string `json:"field,omitempty"`
	Value     string `json:"value,omitempty"`
}

// provideData carries a node's children for the widget to paint.
type provideData struct {
	Type string            `json:"type"`
	ID   string            `json:"id"`
	Data []*types.FileNode `json:"data"`
}

// transferReady announces a handle the browser redeems over HTTP.
type transferReady struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	URL         string `json:"url"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Disposition string `json:"disposition"`
}

type envData struct {
	Type      string              `json:"type"`
	Variables []types.SecretEntry `json:"variables"`
}

type infoData struct {
	Type      string `json:"type"`
	UsedBytes uint64 `json:"used_bytes"`
	FileCount uint64 `json:"file_count"`
}

// notice is a non-blocking failure report; the widget shows it without
// tearing anything down, except code "unauthorized" which ends the
// session on the widget side.
type notice struct {
	Type    string `json:"type"`
	Level   string `json:"level"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type pong struct {
	Type string `json:"type"`
}

type protocolError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (m provideData) msgType() string   { return m.Type }
func (m transferReady) msgType() string { return m.Type }
func (m envData) msgType() string       { return m.Type }
func (m infoData) msgType() string      { return m.Type }
func (m notice) msgType() string        { return m.Type }
func (m pong) msgType() string          { return m.Type }
func (m protocolError) msgType() string { return m.Type }
