package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnhydratedFolderOmitsChildren(t *testing.T) {
	n := &FileNode{ID: "/docs", Name: "docs", Kind: KindFolder}

	data, err := json.Marshal(n)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))

	assert.Equal(t, "/docs", m["id"])
	assert.Equal(t, "folder", m["type"])
	_, hasChildren := m["children"]
	assert.False(t, hasChildren, "unhydrated folder must not carry children")
}

func TestMarshalHydratedEmptyFolder(t *testing.T) {
	n := &FileNode{ID: "/empty", Name: "empty", Kind: KindFolder, Children: []*FileNode{}, Hydrated: true}

	data, err := json.Marshal(n)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))

	children, ok := m["children"].([]interface{})
	require.True(t, ok, "hydrated folder must carry children")
	assert.Empty(t, children)
}

func TestMarshalDate(t *testing.T) {
	n := &FileNode{ID: "/a.txt", Name: "a.txt", Kind: KindFile, MTime: time.Unix(1700000000, 0)}

	data, err := json.Marshal(n)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "1700000000", m["date"])

	zero := &FileNode{ID: "/b.txt", Name: "b.txt", Kind: KindFile}
	data, err = json.Marshal(zero)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "0", m["date"])
}

func TestParseWireDate(t *testing.T) {
	assert.Equal(t, time.Unix(1700000000, 0), ParseWireDate("1700000000"))
	assert.Equal(t, int64(1700000000), ParseWireDate("1700000000.5").Unix())
	assert.True(t, ParseWireDate("not-a-date").IsZero())
	assert.True(t, ParseWireDate("").IsZero())
}

func TestSecretEntryJSON(t *testing.T) {
	data, err := json.Marshal(SecretEntry{Key: "API_KEY", Value: "abc"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"API_KEY","value":"abc"}`, string(data))
}

func TestIsFolder(t *testing.T) {
	assert.True(t, (&FileNode{Kind: KindFolder}).IsFolder())
	assert.False(t, (&FileNode{Kind: KindFile}).IsFolder())
}
