package ws

import (
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxui/bridge/internal/shared/errs"
)

func TestMessageUnmarshal(t *testing.T) {
	var msg Message
	require.NoError(t, sonic.Unmarshal([]byte(
		`{"type":"env-update","index":0,"field":"key","value":"TOKEN"}`), &msg))

	assert.Equal(t, MsgEnvUpdate, msg.Type)
	require.NotNil(t, msg.Index, "index 0 must survive decoding")
	assert.Equal(t, 0, *msg.Index)
	assert.Equal(t, "key", msg.Field)
	assert.Equal(t, "TOKEN", msg.Value)
}

func TestMessageMissingIndex(t *testing.T) {
	var msg Message
	require.NoError(t, sonic.Unmarshal([]byte(`{"type":"env-remove"}`), &msg))
	assert.Nil(t, msg.Index)
}

func TestNoticeFor(t *testing.T) {
	n := noticeFor(errs.New(errs.Unauthorized, "token rejected"))
	assert.Equal(t, MsgNotice, n.Type)
	assert.Equal(t, "unauthorized", n.Code)
	assert.Equal(t, "error", n.Level)

	n = noticeFor(errs.New(errs.Unreachable, "timeout"))
	assert.Equal(t, "unreachable", n.Code)
	assert.Equal(t, "warn", n.Level, "transient failures invite a retry, not an error state")

	n = noticeFor(errs.New(errs.Conflict, "name taken"))
	assert.Equal(t, "conflict", n.Code)
	assert.Equal(t, "error", n.Level)
}

func TestOutboundShapes(t *testing.T) {
	data, err := sonic.Marshal(transferReady{
		Type:        MsgTransferReady,
		ID:          "xfer_01ABC",
		URL:         "/transfers/xfer_01ABC",
		Name:        "report.pdf",
		ContentType: "application/pdf",
		Disposition: "attachment",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type":"transfer-ready",
		"id":"xfer_01ABC",
		"url":"/transfers/xfer_01ABC",
		"name":"report.pdf",
		"content_type":"application/pdf",
		"disposition":"attachment"
	}`, string(data))

	data, err = sonic.Marshal(notice{Type: MsgNotice, Level: "error", Message: "m", Code: "not_found"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"notice","level":"error","message":"m","code":"not_found"}`, string(data))
}
