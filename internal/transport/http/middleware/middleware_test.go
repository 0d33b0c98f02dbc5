package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jal-shakti/jal-shakti-api/internal/models"
	logctx "github.com/jal-shakti/jal-shakti-api/internal/pkg/log"
	"github.com/jal-shakti/jal-shakti-api/internal/token"
)

// capHandler — slog.Handler, запоминающий последнюю запись и базовые attrs.
type capHandler struct {
	mu      sync.Mutex
	base    []slog.Attr
	lastMsg string
	lastLvl slog.Level
	attrs   map[string]any
	count   int
}

func (h *capHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *capHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]any, len(h.base)+8)
	for _, a := range h.base {
		out[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value.Any()
		return true
	})

	h.count++
	h.lastMsg = r.Message
	h.lastLvl = r.Level
	h.attrs = out

	return nil
}

func (h *capHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.base = append(h.base, attrs...)
	return h
}

func (h *capHandler) WithGroup(string) slog.Handler { return h }

func makeReq(target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = (&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 12345}).String()
	return req
}

type errBody struct {
	Success   bool   `json:"success"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func TestChain_Order(t *testing.T) {
	order := []string{}

	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name+"-begin")
				next.ServeHTTP(w, r)
				order = append(order, name+"-end")
			})
		}
	}

	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
		w.WriteHeader(http.StatusTeapot)
	})

	rr := httptest.NewRecorder()
	Chain(final, mw("m1"), mw("m2")).ServeHTTP(rr, makeReq("/chain"))

	require.Equal(t, []string{"m1-begin", "m2-begin", "handler", "m2-end", "m1-end"}, order)
	require.Equal(t, http.StatusTeapot, rr.Code)
}

func TestRequestID_GenerateAndPropagate(t *testing.T) {
	var seenHeader, seenCtx string

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenHeader = r.Header.Get(HeaderRequestID)
		seenCtx = RequestIDFrom(r.Context())
	})

	rr := httptest.NewRecorder()
	Chain(h, RequestID()).ServeHTTP(rr, makeReq("/rid"))

	respID := rr.Header().Get(HeaderRequestID)
	require.Len(t, respID, 36)
	require.Equal(t, respID, seenHeader)
	require.Equal(t, respID, seenCtx)
}

func TestRequestID_UseExisting(t *testing.T) {
	const given = "abc123-existing-id"
	var seenCtx string

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenCtx = RequestIDFrom(r.Context())
	})

	rr := httptest.NewRecorder()
	req := makeReq("/rid2")
	req.Header.Set(HeaderRequestID, given)
	Chain(h, RequestID()).ServeHTTP(rr, req)

	require.Equal(t, given, rr.Header().Get(HeaderRequestID))
	require.Equal(t, given, seenCtx)
}

type stubAuth struct {
	payload *models.TokenPayload
	err     error
	header  string
}

func (s *stubAuth) Authenticate(_ context.Context, header string) (*models.TokenPayload, error) {
	s.header = header
	return s.payload, s.err
}

func TestAuthBearer_PutsPayloadIntoContext(t *testing.T) {
	auth := &stubAuth{payload: &models.TokenPayload{ID: "u1", Role: models.RoleAdmin}}

	var got *models.TokenPayload
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = PayloadFrom(r.Context())
	})

	rr := httptest.NewRecorder()
	req := makeReq("/me")
	req.Header.Set("Authorization", "Bearer abc")
	Chain(h, AuthBearer(auth)).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "Bearer abc", auth.header)
	require.NotNil(t, got)
	require.Equal(t, "u1", got.ID)
}

func TestAuthBearer_RejectsWithTokenCode(t *testing.T) {
	tcs := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"missing", token.ErrMissingToken, 1502},
		{"invalid", token.ErrInvalidToken, 1501},
		{"expired", token.ErrExpiredToken, 1011},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

			rr := httptest.NewRecorder()
			Chain(h, AuthBearer(&stubAuth{err: tc.err})).ServeHTTP(rr, makeReq("/me"))

			require.False(t, called)
			require.Equal(t, http.StatusUnauthorized, rr.Code)

			var body errBody
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			require.False(t, body.Success)
			require.Equal(t, tc.wantCode, body.Code)
		})
	}
}

func TestPayloadFrom_Empty(t *testing.T) {
	_, ok := PayloadFrom(context.Background())
	require.False(t, ok)
}

func TestTimeout_SetsDeadline_WhenAbsent(t *testing.T) {
	var hasDeadline bool
	var left time.Duration

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dl, ok := r.Context().Deadline()
		hasDeadline = ok
		if ok {
			left = time.Until(dl)
		}
	})

	Chain(h, Timeout(50*time.Millisecond)).ServeHTTP(httptest.NewRecorder(), makeReq("/timeout"))

	require.True(t, hasDeadline)
	require.Greater(t, left, time.Duration(0))
}

func TestTimeout_DoesNotOverrideExistingDeadline(t *testing.T) {
	var childDL time.Time

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		childDL, _ = r.Context().Deadline()
	})

	parent, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req := makeReq("/timeout2").WithContext(parent)

	Chain(h, Timeout(time.Second)).ServeHTTP(httptest.NewRecorder(), req)

	parentDL, _ := parent.Deadline()
	require.WithinDuration(t, parentDL, childDL, time.Millisecond)
}

func TestTimeout_NonPositiveIsNoop(t *testing.T) {
	var hasDeadline bool
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	})

	Chain(h, Timeout(0)).ServeHTTP(httptest.NewRecorder(), makeReq("/t"))
	require.False(t, hasDeadline)
}

func TestTimeout_SilentHandler_Gets504Envelope(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	rr := httptest.NewRecorder()
	req := makeReq("/slow")
	req.Header.Set(HeaderRequestID, "rid-slow")
	Chain(h, Timeout(20*time.Millisecond)).ServeHTTP(rr, req)

	require.Equal(t, http.StatusGatewayTimeout, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, false, body["success"])
	require.EqualValues(t, 1000, body["code"])
	require.Equal(t, "rid-slow", body["request_id"])
}

func TestTimeout_WrittenResponseKept(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		w.WriteHeader(http.StatusTeapot)
	})

	rr := httptest.NewRecorder()
	Chain(h, Timeout(20*time.Millisecond)).ServeHTTP(rr, makeReq("/slow2"))

	require.Equal(t, http.StatusTeapot, rr.Code)
}

func TestRecover_ConvertsPanicTo500(t *testing.T) {
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rr := httptest.NewRecorder()
	req := makeReq("/panic")
	req.Header.Set(HeaderRequestID, "rid-9")
	Chain(panicHandler, Recover()).ServeHTTP(rr, req)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body errBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, 1000, body.Code)
	require.Equal(t, "rid-9", body.RequestID)
	require.NotContains(t, body.Message, "boom")
}

func TestLogging_WritesRecord_WithStatusDurBytesAndRequestID(t *testing.T) {
	h := &capHandler{}
	logger := slog.New(h)

	const rid = "rid-456"
	var ctxLogged bool
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxLogged = logctx.From(r.Context()) != slog.Default()
		// Без WriteHeader статус должен стать 200 после Write.
		_, _ = w.Write([]byte("0123456789"))
	})

	handler := Chain(final, RequestID(), Logging(logger))

	rr := httptest.NewRecorder()
	req := makeReq("/log")
	req.Header.Set(HeaderRequestID, rid)
	handler.ServeHTTP(rr, req)

	require.True(t, ctxLogged)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, h.count)
	require.Equal(t, "http", h.lastMsg)
	require.Equal(t, slog.LevelInfo, h.lastLvl)

	require.Equal(t, http.MethodGet, h.attrs["method"])
	require.Equal(t, "/log", h.attrs["path"])
	require.EqualValues(t, http.StatusOK, h.attrs["status"])
	require.EqualValues(t, 10, h.attrs["bytes"])
	require.Equal(t, rid, h.attrs["request_id"])
	require.Contains(t, h.attrs, "dur")
}

func TestLogging_ServerErrorLoggedAsError(t *testing.T) {
	h := &capHandler{}

	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	Chain(final, Logging(slog.New(h))).ServeHTTP(httptest.NewRecorder(), makeReq("/down"))

	require.Equal(t, slog.LevelError, h.lastLvl)
	require.EqualValues(t, http.StatusServiceUnavailable, h.attrs["status"])
}

func TestRecover_RepanicsAbortHandler(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	})

	require.PanicsWithError(t, http.ErrAbortHandler.Error(), func() {
		Chain(h, Recover()).ServeHTTP(httptest.NewRecorder(), makeReq("/abort"))
	})
}

func TestStatusWriter_CountsBytes_AndDefaultStatus200(t *testing.T) {
	sw := newStatusWriter(httptest.NewRecorder())

	_, _ = sw.Write([]byte("abcd"))

	require.Equal(t, http.StatusOK, sw.status)
	require.Equal(t, 4, sw.count)
}
