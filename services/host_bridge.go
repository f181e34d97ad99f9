package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/text/encoding/unicode"
)

// ExportFlags are the options of the host's document export command, sent
// in this order.
type ExportFlags struct {
	IncludeMarkers        bool
	IncludePageBackground bool
	EmbedImages           bool
}

// DefaultExportFlags matches what the converter expects from the host.
var DefaultExportFlags = ExportFlags{EmbedImages: true}

// ExportCommand renders the script the host evaluates to post its active
// document back as SVG.
func ExportCommand(flags ExportFlags) string {
	return fmt.Sprintf(`app.activeDocument.saveToOE("svg:%t,%t,%t")`,
		flags.IncludeMarkers, flags.IncludePageBackground, flags.EmbedImages)
}

// MessageConn is a framed, bidirectional message channel. *websocket.Conn
// satisfies it.
type MessageConn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
}

// ErrHostAbandoned is returned once a request was given up while the host
// still owed a reply. The connection has a read outstanding and must be
// replaced.
var ErrHostAbandoned = errors.New("host bridge abandoned with a reply outstanding")

// HostBridge requests documents from the host application. One request is
// in flight at a time; concurrent callers wait their turn.
type HostBridge struct {
	conn      MessageConn
	flags     ExportFlags
	mu        sync.Mutex
	abandoned bool
}

func NewHostBridge(conn MessageConn) *HostBridge {
	return &HostBridge{conn: conn, flags: DefaultExportFlags}
}

// DialHostBridge connects to a host exposing its message channel over a
// WebSocket. The returned close func releases the connection.
func DialHostBridge(ctx context.Context, url string) (*HostBridge, func() error, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to host %s: %w", url, err)
	}
	return NewHostBridge(conn), conn.Close, nil
}

type inbound struct {
	data []byte
	err  error
}

// FetchActiveDocument asks the host to serialize its active document and
// returns the first message it sends back, decoded as UTF-8. No timeout is
// applied; ctx is the only way to give up on a host that never answers.
func (b *HostBridge) FetchActiveDocument(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.abandoned {
		return "", ErrHostAbandoned
	}

	// armed before the command is sent
	reply := make(chan inbound, 1)
	go func() {
		_, data, err := b.conn.ReadMessage()
		reply <- inbound{data: data, err: err}
	}()

	if err := b.conn.WriteMessage(websocket.TextMessage, []byte(ExportCommand(b.flags))); err != nil {
		b.abandoned = true
		return "", fmt.Errorf("failed to send export command: %w", err)
	}

	select {
	case <-ctx.Done():
		b.abandoned = true
		return "", ctx.Err()
	case msg := <-reply:
		if msg.err != nil {
			return "", fmt.Errorf("failed to read host reply: %w", msg.err)
		}
		return DecodeUTF8(msg.data), nil
	}
}

// DecodeUTF8 decodes like a browser TextDecoder: a leading BOM is dropped
// and every invalid byte becomes U+FFFD.
func DecodeUTF8(data []byte) string {
	decoded, err := unicode.UTF8BOM.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "\uFFFD")
	}
	return string(decoded)
}
