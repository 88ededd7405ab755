package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Kylethg/wayback-ecommerce-chatbot/pkg/config"
	"github.com/Kylethg/wayback-ecommerce-chatbot/pkg/pipeline"
	"github.com/Kylethg/wayback-ecommerce-chatbot/pkg/query"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

// WSServer serves the chatbot over a websocket. Each connection gets a
// sequential question loop: one answer finishes before the next question is
// read, matching the terminal UI's behavior.
type WSServer struct {
	pipe *pipeline.Pipeline
	log  *logrus.Logger

	// mu serializes questions across connections: the pipeline's stage
	// callback is per-question state.
	mu sync.Mutex
}

func NewWSServer(pipe *pipeline.Pipeline, log *logrus.Logger) *WSServer {
	if log == nil {
		log = logrus.New()
	}
	return &WSServer{pipe: pipe, log: log}
}

func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Error("websocket upgrade failed")
		return
	}
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.WithError(err).Debug("websocket read ended")
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			s.sendMessage(conn, "error", "Message must be JSON with a \"content\" field.")
			continue
		}

		s.handleMessage(r.Context(), conn, msg)
	}
}

func (s *WSServer) handleMessage(ctx context.Context, conn *websocket.Conn, msg Message) {
	question := strings.TrimSpace(msg.Content)
	if question == "" {
		s.sendMessage(conn, "error", "Ask me about a website's past, e.g. \"What was asos.com promoting this time last year?\"")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pipe.OnStage = func(stage string) {
		s.sendMessage(conn, "status", stageText(stage))
	}
	defer func() { s.pipe.OnStage = nil }()

	result, err := s.pipe.Ask(ctx, question)
	if err != nil {
		s.log.WithError(err).WithField("question", question).Warn("question failed")
		s.sendMessage(conn, "error", pipeline.UserMessage(err))

		// Parse failures carry a field worth surfacing to richer clients.
		var parseErr *query.ParseError
		if errors.As(err, &parseErr) {
			_ = conn.WriteJSON(Message{Type: "clarify", Content: parseErr.Clarification, Data: parseErr.Field})
		}
		return
	}

	if err := conn.WriteJSON(Message{Type: "response", Content: result.Response, Data: result}); err != nil {
		s.log.WithError(err).Error("failed to send response")
	}
}

func stageText(stage string) string {
	switch stage {
	case pipeline.StageParsing:
		return "Understanding your question..."
	case pipeline.StageSearching:
		return "Searching the archive for a snapshot..."
	case pipeline.StageFetching:
		return "Fetching the archived page..."
	case pipeline.StageExtracting:
		return "Extracting page content..."
	case pipeline.StageAnalyzing:
		return "Analyzing the snapshot..."
	default:
		return stage
	}
}

func (s *WSServer) sendMessage(conn *websocket.Conn, msgType, content string) {
	if err := conn.WriteJSON(Message{Type: msgType, Content: content}); err != nil {
		s.log.WithError(err).Error("failed to send message")
	}
}

// Run builds the pipeline from config and serves /ws and /health until the
// listener fails.
func Run(cfg *config.Config, addr string, log *logrus.Logger) error {
	if log == nil {
		log = logrus.New()
	}

	pipe, err := pipeline.FromConfig(context.Background(), cfg, log)
	if err != nil {
		return err
	}

	server := NewWSServer(pipe, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.WithField("addr", addr).Info("starting websocket server")
	return httpServer.ListenAndServe()
}
