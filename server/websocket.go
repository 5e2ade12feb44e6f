package server

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xhad/docuchat/internal/logger"
	"github.com/xhad/docuchat/pkg/scraper"
)

// Message types exchanged over /ws.
const (
	TypeAsk      = "ask"
	TypeClear    = "clear"
	TypeStatus   = "status"
	TypeProgress = "progress"
	TypeResponse = "response"
	TypeError    = "error"
)

type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

var urlRegex = regexp.MustCompile(`https?://[^\s]+`)

// wsConn serializes writes to a websocket connection.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(msgType, content string, data interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(Message{Type: msgType, Content: content, Data: data}); err != nil {
		logger.Debug("error sending message", "error", err)
	}
}

func (s *Server) handleWebSocket(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return nil
	}
	defer conn.Close()

	ws := &wsConn{conn: conn}
	ctx := c.Request().Context()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("error reading message", "error", err)
			}
			return nil
		}
		s.handleMessage(ctx, ws, msg)
	}
}

// handleMessage answers one client message. A question that contains a URL
// first ingests that page; a message that is only a URL stops there.
func (s *Server) handleMessage(ctx context.Context, ws *wsConn, msg Message) {
	if msg.Type == TypeClear {
		s.session.ClearHistory()
		ws.send(TypeStatus, "History cleared", nil)
		return
	}

	query := strings.TrimSpace(msg.Content)
	if query == "" {
		ws.send(TypeError, "empty message", nil)
		return
	}

	if url := urlRegex.FindString(query); url != "" {
		if !s.ingestFromSocket(ctx, ws, url) {
			return
		}
		if query == url {
			return
		}
	}

	answer, err := s.session.Ask(ctx, query)
	if err != nil {
		ws.send(TypeError, fmt.Sprintf("Error: %v", err), nil)
		return
	}
	ws.send(TypeResponse, answer, nil)
}

func (s *Server) ingestFromSocket(ctx context.Context, ws *wsConn, url string) bool {
	ws.send(TypeStatus, fmt.Sprintf("Processing URL: %s", url), nil)

	var scraped int32
	config := s.pipeline.ScraperConfig()
	config.OnProgress = func(string) {
		n := atomic.AddInt32(&scraped, 1)
		ws.send(TypeProgress, fmt.Sprintf("Scraped %d pages", n), nil)
	}
	sc, err := scraper.NewWithConfig(config)
	if err != nil {
		ws.send(TypeError, fmt.Sprintf("Failed to initialize scraper: %v", err), nil)
		return false
	}

	results, err := s.pipeline.ProcessURLWith(ctx, sc, url)
	if err != nil {
		ws.send(TypeError, fmt.Sprintf("Failed to process URL: %v", err), nil)
		return false
	}

	segments := 0
	for _, r := range results {
		segments += r.Segments
	}
	ws.send(TypeStatus, fmt.Sprintf("Indexed %d pages (%d segments)", len(results), segments), results)
	s.autoPush(ctx)
	return true
}
