package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kylethg/wayback-ecommerce-chatbot/internal/models"
	"github.com/Kylethg/wayback-ecommerce-chatbot/pkg/pipeline"
	"github.com/Kylethg/wayback-ecommerce-chatbot/pkg/query"
)

type stubParser struct {
	query models.Query
	err   error
}

func (s *stubParser) Parse(ctx context.Context, question string) (models.Query, error) {
	if s.err != nil {
		return models.Query{}, s.err
	}
	q := s.query
	q.RawText = question
	return q, nil
}

type stubArchive struct{ snap models.Snapshot }

func (s *stubArchive) FindSnapshot(ctx context.Context, domain string, target time.Time) (models.Snapshot, error) {
	return s.snap, nil
}
func (s *stubArchive) FetchContent(ctx context.Context, snap models.Snapshot) (string, error) {
	return "<html>sale</html>", nil
}
func (s *stubArchive) WaybackURL(snap models.Snapshot) string {
	return "https://web.archive.org/web/" + snap.Timestamp + "/" + snap.OriginalURL
}

type stubExtractor struct{}

func (stubExtractor) Extract(html, domain string) models.ExtractedContent {
	return models.ExtractedContent{NormalizedText: "summer sale"}
}
func (stubExtractor) Format(content models.ExtractedContent) string { return "digest" }

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(ctx context.Context, req models.AnalysisRequest) (models.Analysis, error) {
	return models.Analysis{Summary: "Big summer sale."}, nil
}

type stubStore struct{ entries map[string]models.CacheEntry }

func (s *stubStore) Get(fp string) (models.CacheEntry, bool) {
	entry, ok := s.entries[fp]
	return entry, ok
}
func (s *stubStore) Put(fp string, result models.Result) error {
	s.entries[fp] = models.CacheEntry{Fingerprint: fp, Result: result}
	return nil
}

func newTestServer(t *testing.T, parser *stubParser) (*httptest.Server, *websocket.Conn) {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	pipe := pipeline.New(parser, &stubArchive{snap: models.Snapshot{
		Timestamp:   "20230601120000",
		OriginalURL: "https://example.com",
		Captured:    time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC),
	}}, stubExtractor{}, stubAnalyzer{}, &stubStore{entries: map[string]models.CacheEntry{}}, log)

	server := NewWSServer(pipe, log)
	ts := httptest.NewServer(http.HandlerFunc(server.handleWebSocket))

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		ts.Close()
	})
	return ts, conn
}

// readUntil reads messages until one of the given type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) Message {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == msgType {
			return msg
		}
	}
}

func TestWebSocketQuestionFlow(t *testing.T) {
	parser := &stubParser{query: models.Query{
		Domain:     "example.com",
		TargetDate: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		Intent:     "promotions",
	}}
	_, conn := newTestServer(t, parser)

	err := conn.WriteJSON(Message{Type: "question", Content: "What was example.com promoting last June?"})
	require.NoError(t, err)

	status := readUntil(t, conn, "status")
	assert.NotEmpty(t, status.Content)

	resp := readUntil(t, conn, "response")
	assert.Contains(t, resp.Content, "Big summer sale.")
	assert.Contains(t, resp.Content, "example.com")
}

func TestWebSocketParseErrorSendsClarification(t *testing.T) {
	parser := &stubParser{err: &query.ParseError{Field: "domain", Clarification: "Which website do you mean?"}}
	_, conn := newTestServer(t, parser)

	require.NoError(t, conn.WriteJSON(Message{Type: "question", Content: "what were they promoting?"}))

	errMsg := readUntil(t, conn, "error")
	assert.Equal(t, "Which website do you mean?", errMsg.Content)

	clarify := readUntil(t, conn, "clarify")
	assert.Equal(t, "domain", clarify.Data)
}

func TestWebSocketRejectsEmptyQuestion(t *testing.T) {
	parser := &stubParser{}
	_, conn := newTestServer(t, parser)

	require.NoError(t, conn.WriteJSON(Message{Type: "question", Content: "   "}))

	errMsg := readUntil(t, conn, "error")
	assert.Contains(t, errMsg.Content, "Ask me about a website's past")
}

func TestWebSocketRejectsMalformedJSON(t *testing.T) {
	parser := &stubParser{}
	_, conn := newTestServer(t, parser)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	errMsg := readUntil(t, conn, "error")
	assert.Contains(t, errMsg.Content, "JSON")
}
