package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facewatch/pkg/dto"
)

func TestAlertFromSubject(t *testing.T) {
	alert, ok := AlertFromSubject("alerts.video.abc", []byte(`{"identities":[]}`))
	require.True(t, ok)
	assert.Equal(t, dto.WSVideoSummary, alert.Type)
	assert.Equal(t, "abc", alert.VideoID)

	alert, ok = AlertFromSubject("alerts.image.req-1", []byte(`{}`))
	require.True(t, ok)
	assert.Equal(t, dto.WSImageMatch, alert.Type)
	assert.Equal(t, "req-1", alert.RequestID)
	assert.Empty(t, alert.VideoID)

	_, ok = AlertFromSubject("alerts.other.x", []byte(`{}`))
	assert.False(t, ok)
	_, ok = AlertFromSubject("alerts.video.x", []byte(`not json`))
	assert.False(t, ok)
}

func TestClientAccepts(t *testing.T) {
	all := &Client{}
	one := &Client{videoID: "v1"}

	assert.True(t, all.accepts(&dto.WSAlert{VideoID: "v2"}))
	assert.True(t, all.accepts(&dto.WSAlert{RequestID: "r"}))
	assert.True(t, one.accepts(&dto.WSAlert{VideoID: "v1"}))
	assert.False(t, one.accepts(&dto.WSAlert{VideoID: "v2"}))
	assert.False(t, one.accepts(&dto.WSAlert{RequestID: "r"}))
}

func TestHub_DeliversFilteredAlerts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	go hub.Run()

	r := gin.New()
	r.GET("/ws", hub.HandleWS)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?video_id=v1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Registration happens asynchronously after the upgrade.
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.clients) == 1
	}, time.Second, 10*time.Millisecond)

	hub.Broadcast(&dto.WSAlert{Type: dto.WSVideoSummary, VideoID: "v2", Data: []byte(`{"n":2}`)})
	hub.Broadcast(&dto.WSAlert{Type: dto.WSVideoSummary, VideoID: "v1", Data: []byte(`{"n":1}`)})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"video_summary","video_id":"v1","data":{"n":1}}`, string(msg))
}
