package kucoin

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"accountflow/logger"
)

const (
	defaultPingInterval = 30 * time.Second
	reconnectBaseDelay  = time.Second
	reconnectMaxDelay   = 8 * time.Second
	reconnectAttempts   = 5
)

// MessageHandler receives every data frame.
type MessageHandler func(raw []byte)

// WSClient maintains the private KuCoin stream. Connecting requires a bullet
// token issued over REST; the token is single-use, so every (re)connect
// issues a fresh one. The socket opens lazily on the first subscribe.
type WSClient struct {
	rest    *Client
	handler MessageHandler

	connMu   sync.Mutex
	mu       sync.Mutex
	writeMu  sync.Mutex
	conn     *websocket.Conn
	pingStop chan struct{}
	wg       sync.WaitGroup
	log      *logger.Log
}

func NewWSClient(rest *Client, handler MessageHandler) *WSClient {
	return &WSClient{
		rest:    rest,
		handler: handler,
		log:     logger.GetLogger(),
	}
}

// Subscribe opens the socket if needed and subscribes one topic.
func (w *WSClient) Subscribe(ctx context.Context, topic string) error {
	if err := w.ensureSocket(ctx, false); err != nil {
		return err
	}
	w.log.WithComponent("kucoin_ws").WithField("topic", topic).Info("subscribing")
	return w.send(wsSubscribeRequest{ID: uuid.NewString(), Type: "subscribe", Topic: topic, Response: true})
}

// Unsubscribe drops one topic. A closed socket is not an error; there is
// nothing left to unsubscribe from.
func (w *WSClient) Unsubscribe(topic string) error {
	w.mu.Lock()
	connected := w.conn != nil
	w.mu.Unlock()
	if !connected {
		return nil
	}
	w.log.WithComponent("kucoin_ws").WithField("topic", topic).Info("unsubscribing")
	return w.send(wsSubscribeRequest{ID: uuid.NewString(), Type: "unsubscribe", Topic: topic, Response: true})
}

// UpdateToken forces a reconnect under a freshly issued bullet token. Used
// after a credential swap.
func (w *WSClient) UpdateToken(ctx context.Context) error {
	return w.ensureSocket(ctx, true)
}

// Stop closes the socket and the keepalive timer. Idempotent and safe when
// never connected.
func (w *WSClient) Stop() {
	w.mu.Lock()
	if w.pingStop != nil {
		close(w.pingStop)
		w.pingStop = nil
	}
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *WSClient) send(req wsSubscribeRequest) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return conn.WriteJSON(req)
}

// ensureSocket issues a bullet token and dials its endpoint when disconnected
// (or always when force is set), with bounded exponential backoff. connMu
// serializes the whole check-dial-install sequence; concurrent subscribers
// queue here and find the winner's connection installed once they get their
// turn.
func (w *WSClient) ensureSocket(ctx context.Context, force bool) error {
	w.connMu.Lock()
	defer w.connMu.Unlock()

	w.mu.Lock()
	if w.conn != nil && !force {
		w.mu.Unlock()
		return nil
	}
	if w.pingStop != nil {
		close(w.pingStop)
		w.pingStop = nil
	}
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.mu.Unlock()

	log := w.log.WithComponent("kucoin_ws")

	token, err := w.rest.GetBulletToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain bullet token: %w", err)
	}

	endpoint := fmt.Sprintf("%s?token=%s&connectId=%s", token.Endpoint, token.Token, uuid.NewString())
	delay := reconnectBaseDelay
	var conn *websocket.Conn
	for attempt := 1; attempt <= reconnectAttempts; attempt++ {
		conn, _, err = websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
		if err == nil {
			break
		}
		log.WithError(err).WithField("attempt", attempt).Warn("websocket dial failed")
		if attempt == reconnectAttempts {
			return fmt.Errorf("websocket connect failed after %d attempts: %w", reconnectAttempts, err)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}

	pingInterval := defaultPingInterval
	if token.PingInterval > 0 {
		pingInterval = time.Duration(token.PingInterval) * time.Millisecond
	}

	pingStop := make(chan struct{})
	w.mu.Lock()
	w.conn = conn
	w.pingStop = pingStop
	w.mu.Unlock()

	log.WithField("pingInterval", pingInterval.String()).Info("websocket connected")

	w.wg.Add(2)
	go w.readLoop(conn)
	go w.pingLoop(conn, pingInterval, pingStop)
	return nil
}

// readLoop forwards data frames to the handler, swallowing the control frame
// types (welcome, ack, pong). A read error drops the connection; reconnecting
// happens lazily on the next subscribe.
func (w *WSClient) readLoop(conn *websocket.Conn) {
	defer w.wg.Done()
	log := w.log.WithComponent("kucoin_ws")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.WithError(err).Info("websocket closed")
			w.onClose(conn)
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.WithError(err).Debug("undecodable stream frame")
			continue
		}
		switch msg.Type {
		case "welcome", "ack", "pong":
			continue
		case "error":
			log.WithField("frame", string(raw)).Warn("stream error event")
			continue
		}
		if w.handler != nil {
			w.handler(raw)
		}
	}
}

func (w *WSClient) onClose(conn *websocket.Conn) {
	w.mu.Lock()
	if w.conn == conn {
		w.conn = nil
		if w.pingStop != nil {
			close(w.pingStop)
			w.pingStop = nil
		}
	}
	w.mu.Unlock()
	conn.Close()
}

func (w *WSClient) pingLoop(conn *websocket.Conn, interval time.Duration, stop chan struct{}) {
	defer w.wg.Done()
	log := w.log.WithComponent("kucoin_ws")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.writeMu.Lock()
			err := conn.WriteJSON(wsMessage{ID: uuid.NewString(), Type: "ping"})
			w.writeMu.Unlock()
			if err != nil {
				log.WithError(err).Warn("keepalive write failed")
				return
			}
		}
	}
}
