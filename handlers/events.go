package handlers

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	// events buffered per feed before the slowest clients start missing them
	subscriberBuffer = 64

	keepAliveInterval = 30 * time.Second
	writeWait         = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// VideosEvents streams pipeline progress as server-sent events.
func (a *API) VideosEvents(c echo.Context) error {
	req := c.Request()
	res := c.Response()

	// Set headers for SSE
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(200)
	res.Flush()

	done := req.Context().Done()

	sub := a.Broker.Subscribe(subscriberBuffer)
	defer a.Broker.Unsubscribe(sub)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-done:
			return nil
		case <-keepAlive.C:
			if _, err := res.Write([]byte(": keep-alive\n\n")); err != nil {
				return nil
			}
			res.Flush()
		case event, ok := <-sub.C:
			if !ok {
				return nil
			}
			jsonData, err := json.Marshal(event)
			if err != nil {
				return err
			}

			msg := fmt.Sprintf("data: %s\n\n", jsonData)
			if _, err := res.Write([]byte(msg)); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

// ProgressSocket streams pipeline progress over a websocket, one JSON text
// frame per event. Messages from the client are ignored.
func (a *API) ProgressSocket(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already replied to the client
		log.Warnf("websocket upgrade failed: %v", err)
		return nil
	}
	defer conn.Close()

	sub := a.Broker.Subscribe(subscriberBuffer)
	defer a.Broker.Unsubscribe(sub)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(keepAliveInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return nil
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return nil
			}
		case event, ok := <-sub.C:
			if !ok {
				return nil
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				log.Debugf("websocket write: %v", err)
				return nil
			}
		}
	}
}
