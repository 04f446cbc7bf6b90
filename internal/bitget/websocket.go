package bitget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"accountflow/logger"
)

const (
	pingInterval       = 30 * time.Second
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 8 * time.Second
	reconnectAttempts  = 5
)

// MessageHandler receives every non-keepalive frame.
type MessageHandler func(raw []byte)

type wsArg struct {
	InstType string `json:"instType"`
	Channel  string `json:"channel"`
	InstID   string `json:"instId"`
}

// wsRequest is the subscribe/unsubscribe control frame.
type wsRequest struct {
	Op   string  `json:"op"`
	Args []wsArg `json:"args"`
}

// WSClient maintains the public Bitget stream. No authentication is involved;
// the client keeps the connection alive with a literal "ping" text frame every
// 30 seconds. The socket opens lazily on the first subscribe and reopens on
// demand after a close.
type WSClient struct {
	wsURL   string
	handler MessageHandler

	connMu   sync.Mutex
	mu       sync.Mutex
	writeMu  sync.Mutex
	conn     *websocket.Conn
	pingStop chan struct{}
	wg       sync.WaitGroup
	log      *logger.Log
}

func NewWSClient(wsURL string, handler MessageHandler) *WSClient {
	return &WSClient{
		wsURL:   wsURL,
		handler: handler,
		log:     logger.GetLogger(),
	}
}

// Subscribe opens the socket if needed and subscribes one candle channel.
func (w *WSClient) Subscribe(ctx context.Context, channel, instID string) error {
	if err := w.ensureSocket(ctx); err != nil {
		return err
	}
	w.log.WithComponent("bitget_ws").WithFields(logger.Fields{"channel": channel, "instId": instID}).Info("subscribing")
	return w.send(wsRequest{Op: "subscribe", Args: []wsArg{{InstType: productType, Channel: channel, InstID: instID}}})
}

// Unsubscribe drops one channel. A closed socket is not an error; there is
// nothing left to unsubscribe from.
func (w *WSClient) Unsubscribe(channel, instID string) error {
	w.mu.Lock()
	connected := w.conn != nil
	w.mu.Unlock()
	if !connected {
		return nil
	}
	w.log.WithComponent("bitget_ws").WithFields(logger.Fields{"channel": channel, "instId": instID}).Info("unsubscribing")
	return w.send(wsRequest{Op: "unsubscribe", Args: []wsArg{{InstType: productType, Channel: channel, InstID: instID}}})
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

func (w *WSClient) send(req wsRequest) error {
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

// ensureSocket dials the public endpoint when disconnected, with bounded
// exponential backoff. connMu serializes the whole check-dial-install
// sequence; concurrent subscribers queue here and find the winner's
// connection installed once they get their turn.
func (w *WSClient) ensureSocket(ctx context.Context) error {
	w.connMu.Lock()
	defer w.connMu.Unlock()

	w.mu.Lock()
	if w.conn != nil {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	log := w.log.WithComponent("bitget_ws")

	delay := reconnectBaseDelay
	var conn *websocket.Conn
	var err error
	for attempt := 1; attempt <= reconnectAttempts; attempt++ {
		conn, _, err = websocket.DefaultDialer.DialContext(ctx, w.wsURL, nil)
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

	pingStop := make(chan struct{})
	w.mu.Lock()
	w.conn = conn
	w.pingStop = pingStop
	w.mu.Unlock()

	log.Info("websocket connected")

	w.wg.Add(2)
	go w.readLoop(conn)
	go w.pingLoop(conn, pingStop)
	return nil
}

// readLoop forwards frames to the handler, swallowing the "pong" keepalive
// reply. A read error drops the connection; reconnecting happens lazily on
// the next subscribe.
func (w *WSClient) readLoop(conn *websocket.Conn) {
	defer w.wg.Done()
	log := w.log.WithComponent("bitget_ws")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.WithError(err).Info("websocket closed")
			w.onClose(conn)
			return
		}
		if string(raw) == "pong" {
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

func (w *WSClient) pingLoop(conn *websocket.Conn, stop chan struct{}) {
	defer w.wg.Done()
	log := w.log.WithComponent("bitget_ws")

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.writeMu.Lock()
			err := conn.WriteMessage(websocket.TextMessage, []byte("ping"))
			w.writeMu.Unlock()
			if err != nil {
				log.WithError(err).Warn("keepalive write failed")
				return
			}
		}
	}
}
