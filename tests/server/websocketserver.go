/*
Package server provides a minimal websocket broker stand-in for tests: it
records every frame a client sends, can push arbitrary frames back, and can
drop the connection on demand to exercise reconnect paths.
*/
package server

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sarameisburger/go-pcp-client/logger"
)

type WebsocketServer struct {
	logger   *logger.Logger
	listener net.Listener

	connLock sync.Mutex
	conn     *websocket.Conn

	Addr          string
	ReceivedBytes chan []byte
}

func NewWebsocketServer(logger *logger.Logger) *WebsocketServer {
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		logger.Errorf("failed to setup listener")
	}

	server := &WebsocketServer{
		logger:        logger,
		listener:      listener,
		Addr:          fmt.Sprintf("ws://localhost:%d", listener.Addr().(*net.TCPAddr).Port),
		ReceivedBytes: make(chan []byte, 50),
	}

	go func() {
		http.Serve(server.listener, server)
	}()

	return server
}

func (w *WebsocketServer) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	upgrader := websocket.Upgrader{}

	conn, err := upgrader.Upgrade(writer, request, nil)
	if err != nil {
		w.logger.Errorf("failed to upgrade websocket: %s", err)
		return
	}

	w.connLock.Lock()
	w.conn = conn
	w.connLock.Unlock()

	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		w.ReceivedBytes <- message
	}
}

// Send pushes one binary frame to the connected client.
func (w *WebsocketServer) Send(message []byte) error {
	w.connLock.Lock()
	defer w.connLock.Unlock()

	if w.conn == nil {
		return fmt.Errorf("no client is connected")
	}
	return w.conn.WriteMessage(websocket.BinaryMessage, message)
}

// ForceClose drops the client connection without a close handshake.
func (w *WebsocketServer) ForceClose() {
	w.connLock.Lock()
	defer w.connLock.Unlock()

	if w.conn != nil {
		w.conn.Close()
	}
}

// Close performs an elegant websocket close handshake with the client.
func (w *WebsocketServer) Close() {
	w.connLock.Lock()
	defer w.connLock.Unlock()

	if w.conn != nil {
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		w.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
	}
}

// Shutdown stops listening for new connections.
func (w *WebsocketServer) Shutdown() {
	w.listener.Close()
}
