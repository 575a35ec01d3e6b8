package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	domrepo "EconPulse/internal/domain/repository"
	"EconPulse/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSender(t *testing.T, h http.HandlerFunc) *TelegramSender {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewTelegramSender("TOKEN", time.Second, logger.Nop(),
		WithBaseURL(srv.URL),
		WithLimits(1000, 1000),
		WithMaxRetryWait(2*time.Second),
	)
}

func TestTelegramSendMessage(t *testing.T) {
	var got sendMessageReq
	s := newSender(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	})

	err := s.Send(context.Background(), "42", "<b>CPI</b>", domrepo.SendOptions{ParseMode: "HTML", DisablePreview: true})
	require.NoError(t, err)
	assert.Equal(t, sendMessageReq{ChatID: "42", Text: "<b>CPI</b>", ParseMode: "HTML", DisableWebPagePreview: true}, got)
}

func TestTelegramBlockedRecipient(t *testing.T) {
	cases := map[string]struct {
		code int
		body string
	}{
		"blocked":     {http.StatusForbidden, `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`},
		"deactivated": {http.StatusForbidden, `{"ok":false,"error_code":403,"description":"Forbidden: user is deactivated"}`},
		"missing":     {http.StatusBadRequest, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s := newSender(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.code)
				_, _ = w.Write([]byte(tc.body))
			})
			err := s.Send(context.Background(), "42", "x", domrepo.SendOptions{})
			assert.ErrorIs(t, err, domrepo.ErrRecipientBlocked)
		})
	}
}

func TestTelegramOtherBadRequestIsTransient(t *testing.T) {
	s := newSender(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities"}`))
	})
	err := s.Send(context.Background(), "42", "<b", domrepo.SendOptions{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domrepo.ErrRecipientBlocked)
}

func TestTelegramRetriesFloodControlOnce(t *testing.T) {
	var calls int32
	s := newSender(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 1","parameters":{"retry_after":1}}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	require.NoError(t, s.Send(context.Background(), "42", "x", domrepo.SendOptions{}))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
