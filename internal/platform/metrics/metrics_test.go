package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestGinMiddleware_RecordsMatchedRoute(t *testing.T) {
	m := New("test")
	router := gin.New()
	router.Use(m.GinMiddleware())
	router.GET("/sessions/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, path := range []string{"/sessions/1", "/sessions/2", "/nope"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	body := scrape(t, m)
	assert.Contains(t, body, `test_http_requests_total{method="GET",route="/sessions/:id",status="204"} 2`)
	assert.Contains(t, body, `test_http_requests_total{method="GET",route="unmatched",status="404"} 1`)
}

func TestMetrics_DomainCounters(t *testing.T) {
	m := New("test")

	m.SessionWritten("INSERT")
	m.SessionWritten("INSERT")
	m.ChangeEventHandled("dispatched")
	m.OutboxMessageHandled("published")
	m.IdleSignOuts(3)
	m.WebsocketConnected()
	m.WebsocketConnected()
	m.WebsocketDisconnected()

	body := scrape(t, m)
	assert.Contains(t, body, `test_trade_session_writes_total{change_type="INSERT"} 2`)
	assert.Contains(t, body, `test_session_change_events_total{result="dispatched"} 1`)
	assert.Contains(t, body, `test_outbox_messages_total{result="published"} 1`)
	assert.Contains(t, body, "test_idle_sign_outs_total 3")
	assert.Contains(t, body, "test_websocket_clients 1")
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.SessionWritten("INSERT")
	m.IdleSignOuts(1)
	m.WebsocketConnected()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	router := gin.New()
	router.Use(m.GinMiddleware())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
