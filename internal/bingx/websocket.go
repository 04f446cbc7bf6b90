package bingx

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"accountflow/logger"
)

const (
	listenKeyRenewInterval = 30 * time.Minute
	reconnectBaseDelay     = time.Second
	reconnectMaxDelay      = 8 * time.Second
	reconnectAttempts      = 5
)

// MessageHandler receives every decompressed non-keepalive frame.
type MessageHandler func(raw []byte)

// wsRequest is the subscribe/unsubscribe control frame.
type wsRequest struct {
	ID       string `json:"id"`
	ReqType  string `json:"reqType"`
	DataType string `json:"dataType"`
}

// WSClient maintains the private BingX stream. The socket is opened lazily on
// the first subscribe and reopened on demand after a close; the listen key is
// renewed on a 30 minute timer while the socket lives.
type WSClient struct {
	rest    *Client
	wsURL   string
	handler MessageHandler

	connMu    sync.Mutex
	mu        sync.Mutex
	writeMu   sync.Mutex
	conn      *websocket.Conn
	listenKey string
	renewStop chan struct{}
	wg        sync.WaitGroup
	log       *logger.Log
}

// NewWSClient creates a stream client. wsURL is the bare stream endpoint; the
// listen key is appended as a query parameter on connect.
func NewWSClient(rest *Client, wsURL string, handler MessageHandler) *WSClient {
	return &WSClient{
		rest:    rest,
		wsURL:   wsURL,
		handler: handler,
		log:     logger.GetLogger(),
	}
}

// Subscribe opens the socket if needed and sends a sub control frame.
func (w *WSClient) Subscribe(ctx context.Context, socketID, channel string) error {
	if err := w.ensureSocket(ctx, false); err != nil {
		return err
	}
	w.log.WithComponent("bingx_ws").WithField("channel", channel).Info("subscribing")
	return w.send(wsRequest{ID: socketID, ReqType: "sub", DataType: channel})
}

// Unsubscribe sends an unsub control frame. A closed socket is not an error;
// there is nothing left to unsubscribe from.
func (w *WSClient) Unsubscribe(socketID, channel string) error {
	w.mu.Lock()
	connected := w.conn != nil
	w.mu.Unlock()
	if !connected {
		return nil
	}
	w.log.WithComponent("bingx_ws").WithField("channel", channel).Info("unsubscribing")
	return w.send(wsRequest{ID: socketID, ReqType: "unsub", DataType: channel})
}

// UpdateListenKey forces a reconnect with a freshly issued key. Used after a
// credential swap.
func (w *WSClient) UpdateListenKey(ctx context.Context) error {
	return w.ensureSocket(ctx, true)
}

// Stop closes the socket and cancels the renewal timer. Idempotent and safe
// when never connected.
func (w *WSClient) Stop() {
	w.mu.Lock()
	if w.renewStop != nil {
		close(w.renewStop)
		w.renewStop = nil
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

// ensureSocket dials the stream endpoint when disconnected (or always when
// force is set), with bounded exponential backoff. connMu serializes the whole
// check-dial-install sequence; concurrent subscribers queue here and find the
// winner's connection installed once they get their turn.
func (w *WSClient) ensureSocket(ctx context.Context, force bool) error {
	w.connMu.Lock()
	defer w.connMu.Unlock()

	w.mu.Lock()
	if w.conn != nil && !force {
		w.mu.Unlock()
		return nil
	}
	if w.renewStop != nil {
		close(w.renewStop)
		w.renewStop = nil
	}
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	listenKey := w.listenKey
	w.mu.Unlock()

	log := w.log.WithComponent("bingx_ws")

	if listenKey == "" || force {
		key, err := w.rest.GetListenKey(ctx)
		if err != nil {
			return fmt.Errorf("failed to obtain listen key: %w", err)
		}
		listenKey = key
	}

	endpoint := w.wsURL + "?listenKey=" + listenKey
	delay := reconnectBaseDelay
	var conn *websocket.Conn
	var err error
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

	renewStop := make(chan struct{})
	w.mu.Lock()
	w.conn = conn
	w.listenKey = listenKey
	w.renewStop = renewStop
	w.mu.Unlock()

	log.Info("websocket connected")

	w.wg.Add(2)
	go w.readLoop(conn)
	go w.renewLoop(listenKey, renewStop)
	return nil
}

// readLoop decompresses incoming frames, answers the text keepalive and
// forwards everything else to the handler. A read error drops the connection;
// reconnecting happens lazily on the next subscribe or key update.
func (w *WSClient) readLoop(conn *websocket.Conn) {
	defer w.wg.Done()
	log := w.log.WithComponent("bingx_ws")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.WithError(err).Info("websocket closed")
			w.onClose(conn)
			return
		}

		msg := decompress(raw)
		if string(msg) == "Ping" {
			w.writeMu.Lock()
			conn.WriteMessage(websocket.TextMessage, []byte("Pong"))
			w.writeMu.Unlock()
			continue
		}
		if w.handler != nil {
			w.handler(msg)
		}
	}
}

func (w *WSClient) onClose(conn *websocket.Conn) {
	w.mu.Lock()
	if w.conn == conn {
		w.conn = nil
		if w.renewStop != nil {
			close(w.renewStop)
			w.renewStop = nil
		}
	}
	w.mu.Unlock()
	conn.Close()
}

// renewLoop extends the listen key every 30 minutes. A failed renewal is
// logged and retried on the next tick without tearing down the socket.
func (w *WSClient) renewLoop(listenKey string, stop chan struct{}) {
	defer w.wg.Done()
	log := w.log.WithComponent("bingx_ws")

	ticker := time.NewTicker(listenKeyRenewInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := w.rest.ExtendListenKey(ctx, listenKey); err != nil {
				log.WithError(err).Warn("failed to extend listen key")
			} else {
				log.Debug("listen key extended")
			}
			cancel()
		}
	}
}

// decompress gunzips a frame, passing plain-text frames through untouched.
func decompress(raw []byte) []byte {
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return raw
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return raw
	}
	return out
}

// probeMessage classifies a frame without fully decoding it.
type probeMessage struct {
	Event    string `json:"e"`
	DataType string `json:"dataType"`
}

func probe(raw []byte) probeMessage {
	var p probeMessage
	json.Unmarshal(raw, &p)
	return p
}
