package progress

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vishnualpha/sensuQ-sub001/internal/logger"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Broadcaster serves progress events over WebSocket. Each connected
// client gets the latest event on connect, then the live stream.
type Broadcaster struct {
	tracker  *Tracker
	upgrader websocket.Upgrader
	server   *http.Server
	log      *logger.Logger
}

// NewBroadcaster wires a tracker to a WebSocket endpoint.
func NewBroadcaster(tracker *Tracker, log *logger.Logger) *Broadcaster {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Broadcaster{
		tracker: tracker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Progress is a local observability stream, not an origin-
			// sensitive surface.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log.WithComponent("broadcaster"),
	}
}

// ServeHTTP upgrades the connection and streams events until the client
// disconnects.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warnf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	events, cancel := b.tracker.Subscribe()
	defer cancel()

	// Drain client frames so close messages are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if last := b.tracker.Last(); last.Phase != "" {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(last); err != nil {
			return
		}
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// Start serves the broadcast endpoint at /ws on addr until Shutdown.
func (b *Broadcaster) Start(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", b)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	b.server = &http.Server{Addr: addr, Handler: mux}
	b.log.Infof("Progress broadcaster listening on %s", addr)

	err := b.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the broadcast server.
func (b *Broadcaster) Shutdown(ctx context.Context) error {
	if b.server == nil {
		return nil
	}
	return b.server.Shutdown(ctx)
}
