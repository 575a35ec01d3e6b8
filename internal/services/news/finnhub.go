package news

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"EconPulse/internal/domain/models"
	domrepo "EconPulse/internal/domain/repository"
	"EconPulse/pkg/logger"
)

// FinnhubStream keeps a Finnhub websocket open and buffers the news frames
// it pushes. Poll drains the buffer, so the scheduler sees each headline
// on the pass after it arrived.
type FinnhubStream struct {
	apiKey         string
	url            string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	bufferSize     int
	dialer         *websocket.Dialer
	l              *logger.Logger

	mu      sync.Mutex
	buf     []models.NewsItem
	dropped int
	conn    *websocket.Conn
	lastErr error
}

func NewFinnhubStream(apiKey, url string, symbols []string, reconnectDelay, pingInterval time.Duration, l *logger.Logger) *FinnhubStream {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &FinnhubStream{
		apiKey:         apiKey,
		url:            url,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		bufferSize:     256,
		dialer:         websocket.DefaultDialer,
		l:              l,
	}
}

var _ domrepo.NewsSource = (*FinnhubStream)(nil)

func (s *FinnhubStream) Name() string { return "finnhub" }

// Poll returns buffered headlines. It reports the last connection error
// only when nothing was buffered.
func (s *FinnhubStream) Poll(context.Context) ([]models.NewsItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.buf
	s.buf = nil
	if len(items) == 0 && s.lastErr != nil {
		err := s.lastErr
		s.lastErr = nil
		return nil, err
	}
	if s.dropped > 0 {
		s.l.Warn("finnhub news buffer overflowed", logger.Int("dropped", s.dropped))
		s.dropped = 0
	}
	return items, nil
}

// Run connects and reads until ctx is done, reconnecting after failures.
func (s *FinnhubStream) Run(ctx context.Context) {
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return
		}
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		s.l.Warn("finnhub stream disconnected", logger.Error(err), logger.Duration("retry_in_ms", s.reconnectDelay))

		select {
		case <-time.After(s.reconnectDelay):
		case <-ctx.Done():
			return
		}
	}
}

func (s *FinnhubStream) session(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url+"?token="+s.apiKey, nil)
	if err != nil {
		return fmt.Errorf("finnhub connect: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for _, sym := range s.symbols {
		if err := conn.WriteJSON(map[string]string{"type": "subscribe-news", "symbol": sym}); err != nil {
			return fmt.Errorf("finnhub subscribe %s: %w", sym, err)
		}
	}
	s.l.Info("finnhub stream connected", logger.Strings("symbols", s.symbols))

	// Closing the connection unblocks ReadMessage on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-done:
				return
			}
		}
	}()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("finnhub read: %w", err)
		}
		s.ingest(b)
	}
}

type fhNews struct {
	ID       int64  `json:"id"`
	Category string `json:"category"`
	Datetime int64  `json:"datetime"`
	Headline string `json:"headline"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

type fhFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
	Msg  string          `json:"msg"`
}

func (s *FinnhubStream) ingest(b []byte) {
	var f fhFrame
	if err := json.Unmarshal(b, &f); err != nil {
		return
	}
	switch f.Type {
	case "news":
	case "error":
		s.l.Warn("finnhub error frame", logger.String("msg", f.Msg))
		return
	default:
		// ping and trade frames
		return
	}

	var rows []fhNews
	if err := json.Unmarshal(f.Data, &rows); err != nil {
		s.l.Debug("finnhub news frame undecodable", logger.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		if r.Headline == "" {
			continue
		}
		if len(s.buf) >= s.bufferSize {
			s.dropped++
			continue
		}
		item := models.NewsItem{
			ID:      strconv.FormatInt(r.ID, 10),
			Source:  "finnhub",
			Title:   r.Headline,
			Summary: r.Summary,
			URL:     r.URL,
		}
		if r.Datetime > 0 {
			item.Published = time.Unix(r.Datetime, 0).UTC()
		}
		s.buf = append(s.buf, item)
	}
}

// Connected reports whether a session is currently open.
func (s *FinnhubStream) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}
