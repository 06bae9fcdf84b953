package remote

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/clock"
	"github.com/teslashibe/go-wayfinder/pkg/control"
	"github.com/teslashibe/go-wayfinder/pkg/events"
	"github.com/teslashibe/go-wayfinder/pkg/framebus"
	"github.com/teslashibe/go-wayfinder/pkg/protocol"
	"github.com/teslashibe/go-wayfinder/pkg/resultbus"
	"github.com/teslashibe/go-wayfinder/pkg/stage"
	"github.com/teslashibe/go-wayfinder/pkg/tts"
	"github.com/teslashibe/go-wayfinder/pkg/voice"
)

type fixture struct {
	hub  *Hub
	env  stage.Env
	base string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	env := stage.Env{
		Frames:  framebus.New(framebus.WithQueueSize(16), framebus.WithLogger(log.Discard())),
		Results: resultbus.New(resultbus.WithLogger(log.Discard())),
		Control: control.New(),
		Clock:   clock.New(30, time.UnixMilli(1_000)),
	}
	h := NewHub(log.Discard())
	tasks, err := h.Start(context.Background(), env)
	require.NoError(t, err)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	h.RegisterRoutes(app)
	h.RegisterAPIRoutes(app.Group("/api"))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go app.Listener(ln)

	t.Cleanup(func() {
		h.Stop()
		for _, task := range tasks {
			<-task.Done()
		}
		app.Shutdown()
	})
	return &fixture{hub: h, env: env, base: "ws://" + ln.Addr().String()}
}

func (f *fixture) dial(t *testing.T, id string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.base+"/ws/device/"+id, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg *protocol.Message) {
	t.Helper()
	data, err := msg.Bytes()
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func nextFrame(t *testing.T, sub *framebus.Subscription) events.FramePacket {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pkt, ok := sub.Next(ctx)
	require.True(t, ok, "no frame published")
	return pkt
}

func TestDeviceConnectAndDisconnect(t *testing.T) {
	f := setup(t)
	conn := f.dial(t, "phone-1")

	require.Eventually(t, func() bool { return f.hub.DeviceCount() == 1 }, time.Second, 10*time.Millisecond)
	require.NotNil(t, f.hub.Device("phone-1"))

	conn.Close()
	assert.Eventually(t, func() bool { return f.hub.DeviceCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestAutoID(t *testing.T) {
	f := setup(t)
	f.dial(t, AutoID)
	require.Eventually(t, func() bool { return f.hub.DeviceCount() == 1 }, time.Second, 10*time.Millisecond)
	id := f.hub.Devices()[0].ID
	assert.NotEqual(t, AutoID, id)
	assert.Len(t, id, 36)
}

func TestFramesArePublishedWithIncreasingIDs(t *testing.T) {
	f := setup(t)
	sub := f.env.Frames.Subscribe()
	defer sub.Close()

	conn := f.dial(t, "phone")
	first, _ := protocol.NewFrameMessage(41, 640, 480, []byte{0xff, 0xd8, 1})
	send(t, conn, first)
	pkt := nextFrame(t, sub)
	assert.Equal(t, 0, pkt.FrameID)
	assert.Equal(t, 640, pkt.Width)
	assert.Equal(t, []byte{0xff, 0xd8, 1}, pkt.JPEG)
	assert.Equal(t, first.Timestamp, pkt.TimestampMs)

	// The phone restarts its own count; the pipeline id keeps rising.
	conn.Close()
	conn = f.dial(t, "phone")
	again, _ := protocol.NewFrameMessage(0, 640, 480, []byte{0xff, 0xd8, 2})
	again.Timestamp = 0
	send(t, conn, again)
	pkt = nextFrame(t, sub)
	assert.Equal(t, 1, pkt.FrameID)
	assert.GreaterOrEqual(t, pkt.TimestampMs, f.env.Clock.StartMs())
}

func TestFramesDroppedWhilePaused(t *testing.T) {
	f := setup(t)
	f.env.Control.SetPaused(true)
	conn := f.dial(t, "phone")
	msg, _ := protocol.NewFrameMessage(1, 10, 10, []byte{1})
	send(t, conn, msg)

	assert.Eventually(t, func() bool { return f.hub.Stats().FramesDropped == 1 }, time.Second, 10*time.Millisecond)
	assert.Zero(t, f.env.Frames.Stats().Published)
}

func TestPingPong(t *testing.T) {
	f := setup(t)
	conn := f.dial(t, "phone")
	ping, _ := protocol.NewPingMessage("abc")
	send(t, conn, ping)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := protocol.ParseMessage(data)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypePong, msg.Type)
	var pong protocol.PongData
	require.NoError(t, msg.ParseData(&pong))
	assert.Equal(t, "abc", pong.ID)
}

func TestControlFromDevice(t *testing.T) {
	f := setup(t)
	sub := resultbus.SubscribeType[events.ControlEvent](f.env.Results)
	conn := f.dial(t, "phone")
	msg, _ := protocol.NewControlMessage(events.ControlDescribeScene, nil)
	send(t, conn, msg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev, ok := sub.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, events.ControlDescribeScene, ev.Kind)
}

func TestSpeakBroadcasts(t *testing.T) {
	f := setup(t)
	a := f.dial(t, "a")
	b := f.dial(t, "b")
	require.Eventually(t, func() bool { return f.hub.DeviceCount() == 2 }, time.Second, 10*time.Millisecond)

	audio, err := tts.NewMock().Synthesize(context.Background(), "hi")
	require.NoError(t, err)
	require.NoError(t, f.hub.Speak(context.Background(), voice.Utterance{Text: "Stop! person", Priority: 1, Audio: audio}))

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		msg, err := protocol.ParseMessage(data)
		require.NoError(t, err)
		speak, err := msg.GetSpeakData()
		require.NoError(t, err)
		assert.Equal(t, "Stop! person", speak.Text)
		assert.Equal(t, 24000, speak.SampleRate)
		assert.NotEmpty(t, speak.Data)
	}
	assert.Equal(t, uint64(2), f.hub.Stats().MessagesSent)
}

func TestSendToUnknownDevice(t *testing.T) {
	h := NewHub(log.Discard())
	msg, _ := protocol.NewPingMessage("x")
	assert.ErrorIs(t, h.SendTo("nope", msg), ErrDeviceNotConnected)
	assert.NoError(t, h.Speak(context.Background(), voice.Utterance{Text: "nobody listening"}))
}

func TestDevicesAPI(t *testing.T) {
	h := NewHub(log.Discard())
	app := fiber.New()
	h.RegisterAPIRoutes(app.Group("/api"))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/devices", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Devices []DeviceInfo `json:"devices"`
		Count   int          `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Zero(t, body.Count)
	assert.Empty(t, body.Devices)
}
