// Package id provides typed ULID generation for the bridge.
//
// Transfer handles and widget connections get distinct prefixed types
// so a handle id can never be passed where a connection id belongs,
// and logs stay readable. ULIDs sort by creation time, which keeps
// log correlation across a transfer's lifetime straightforward.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// HandleID identifies a transient transfer handle.
type HandleID string

// ConnID identifies a widget WebSocket connection.
type ConnID string

const (
	handlePrefix = "xfer"
	connPrefix   = "conn"
)

// Generator generates ULIDs with optional prefixes.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy
// source; useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewHandleID generates a transfer handle id.
func NewHandleID() HandleID {
	return HandleID(Default().GenerateWithPrefix(handlePrefix))
}

// NewConnID generates a widget connection id.
func NewConnID() ConnID {
	return ConnID(Default().GenerateWithPrefix(connPrefix))
}

func (id HandleID) String() string { return string(id) }
func (id ConnID) String() string   { return string(id) }
