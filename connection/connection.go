/*
The connection package establishes and supervises the raw websocket link to
the broker. It dials with mutual TLS, retries failed attempts with an
exponential backoff, runs a read loop that hands inbound frames to the
registered on-message callback, and exposes the connection state that the
layers above key their decisions on.
*/
package connection

import (
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	gorilla "github.com/gorilla/websocket"
	"gopkg.in/tomb.v2"

	"github.com/sarameisburger/go-pcp-client/logger"
)

const (
	HttpsOnlyWebsocketScheme = "wss"
	HttpWebsocketScheme      = "ws"

	// how long a ping control frame may take to go out
	pingWriteTimeout = 10 * time.Second

	// backoff between connect attempts
	initialRetryInterval = 500 * time.Millisecond
	maxRetryInterval     = 15 * time.Second
)

// State is the lifecycle state of the websocket link.
type State int32

const (
	Initialized State = iota
	Connecting
	Open
	Closing
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("unknown (%d)", int32(s))
	}
}

type WebsocketConnection struct {
	tmb    tomb.Tomb
	logger *logger.Logger

	serverUrl string
	metadata  *ClientMetadata

	client *gorilla.Conn
	state  atomic.Int32

	// closed once Close has been called; a closed connection never redials
	closed   atomic.Bool
	shutdown chan struct{}

	// Ref: https://github.com/gorilla/websocket/issues/119#issuecomment-198710015
	socketLock sync.Mutex

	// Callbacks are snapshotted under this lock before every delivery so a
	// ResetCallbacks cannot race an in-flight message into a dead receiver
	callbackLock sync.Mutex
	onMessage    func([]byte)
	onOpen       func()
}

func New(logger *logger.Logger, serverUrl string, metadata *ClientMetadata) *WebsocketConnection {
	return &WebsocketConnection{
		logger:    logger,
		serverUrl: serverUrl,
		metadata:  metadata,
		shutdown:  make(chan struct{}),
	}
}

func (w *WebsocketConnection) State() State {
	return State(w.state.Load())
}

func (w *WebsocketConnection) SetOnMessage(callback func([]byte)) {
	w.callbackLock.Lock()
	defer w.callbackLock.Unlock()
	w.onMessage = callback
}

func (w *WebsocketConnection) SetOnOpen(callback func()) {
	w.callbackLock.Lock()
	defer w.callbackLock.Unlock()
	w.onOpen = callback
}

func (w *WebsocketConnection) ResetCallbacks() {
	w.callbackLock.Lock()
	defer w.callbackLock.Unlock()
	w.onMessage = nil
	w.onOpen = nil
}

// Connect dials the broker, retrying failed attempts with an exponential
// backoff. maxAttempts bounds the number of dials; zero or a negative value
// means keep trying. Exhausting the attempts or an unusable configuration
// returns a FatalError; an interrupted connect returns a ProcessingError.
// On success the read loop is running and the on-open callback has fired.
func (w *WebsocketConnection) Connect(maxAttempts int) error {
	if w.State() == Open {
		return nil
	}

	dialer, connUrl, err := w.buildDialer()
	if err != nil {
		w.state.Store(int32(Failed))
		return &FatalError{Err: err}
	}

	w.state.Store(int32(Connecting))

	backoffParams := backoff.NewExponentialBackOff()
	backoffParams.InitialInterval = initialRetryInterval
	backoffParams.MaxInterval = maxRetryInterval
	backoffParams.MaxElapsedTime = 0 // attempts are bounded, not elapsed time

	ticker := backoff.NewTicker(backoffParams)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-w.shutdown:
			w.state.Store(int32(Closed))
			return &ProcessingError{Err: fmt.Errorf("connect interrupted by shutdown")}
		case <-ticker.C:
			if w.closed.Load() {
				w.state.Store(int32(Closed))
				return &ProcessingError{Err: fmt.Errorf("connect interrupted by shutdown")}
			}

			client, _, err := dialer.Dial(connUrl.String(), nil)
			if err == nil {
				w.opened(client)
				return nil
			}

			w.logger.Errorf("connect attempt %d to %s failed: %s", attempt, connUrl, err)

			if maxAttempts > 0 && attempt >= maxAttempts {
				w.state.Store(int32(Failed))
				return &FatalError{Err: fmt.Errorf("failed to connect to %s after %d attempts: %w", connUrl, attempt, err)}
			}
		}
	}
}

func (w *WebsocketConnection) buildDialer() (*gorilla.Dialer, *url.URL, error) {
	connUrl, err := url.Parse(w.serverUrl)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse server url %s: %w", w.serverUrl, err)
	}

	dialer := *gorilla.DefaultDialer

	switch connUrl.Scheme {
	case HttpsOnlyWebsocketScheme:
		tlsConfig, err := w.metadata.tlsConfig()
		if err != nil {
			return nil, nil, err
		}
		dialer.TLSClientConfig = tlsConfig
	case HttpWebsocketScheme:
		// plaintext, used by tests and local brokers
	default:
		return nil, nil, fmt.Errorf("server url %s is not a websocket url", w.serverUrl)
	}

	return &dialer, connUrl, nil
}

// opened installs the freshly dialed socket, starts the read loop, and
// fires the on-open callback before returning so anything sent by that
// callback goes out before Connect returns. The state is already Open while
// the callback runs, so a Send from another goroutine is not held back.
func (w *WebsocketConnection) opened(client *gorilla.Conn) {
	w.socketLock.Lock()
	w.client = client
	w.socketLock.Unlock()

	// a fresh tomb for each successfully opened socket
	w.tmb = tomb.Tomb{}
	w.state.Store(int32(Open))
	w.tmb.Go(w.receive)

	w.callbackLock.Lock()
	onOpen := w.onOpen
	w.callbackLock.Unlock()

	if onOpen != nil {
		onOpen()
	}
}

func (w *WebsocketConnection) receive() error {
	defer w.logger.Info("Websocket connection closed")
	w.logger.Info("Websocket connection started")

	for {
		_, rawMessage, err := w.client.ReadMessage()
		if !w.tmb.Alive() {
			return nil
		} else if err != nil {
			if gorilla.IsCloseError(err, gorilla.CloseNormalClosure) {
				w.logger.Info("Websocket connection closed normally")
			} else {
				w.logger.Error(err)
			}
			w.state.Store(int32(Closed))
			return err
		}

		w.callbackLock.Lock()
		onMessage := w.onMessage
		w.callbackLock.Unlock()

		if onMessage != nil {
			onMessage(rawMessage)
		}
	}
}

// Send ships one message as a single binary websocket frame.
func (w *WebsocketConnection) Send(message []byte) error {
	if w.State() != Open {
		return &NotOpenError{State: w.State()}
	}

	w.socketLock.Lock()
	defer w.socketLock.Unlock()

	if err := w.client.WriteMessage(gorilla.BinaryMessage, message); err != nil {
		return &ProcessingError{Err: fmt.Errorf("failed to send %d bytes: %w", len(message), err)}
	}
	return nil
}

// Ping issues a websocket ping control frame as the link heartbeat.
// WriteControl is safe to call concurrently with Send.
func (w *WebsocketConnection) Ping() error {
	if w.State() != Open {
		return &NotOpenError{State: w.State()}
	}

	if err := w.client.WriteControl(gorilla.PingMessage, []byte{}, time.Now().Add(pingWriteTimeout)); err != nil {
		return &ProcessingError{Err: fmt.Errorf("failed to ping: %w", err)}
	}
	return nil
}

// Close tears the link down for good and waits for the read loop to finish.
// A closed connection will not reconnect.
func (w *WebsocketConnection) Close(reason error) {
	if !w.closed.CompareAndSwap(false, true) {
		w.logger.Info("Close was called while in a dying state")
		return
	}

	close(w.shutdown)
	w.state.Store(int32(Closing))

	w.socketLock.Lock()
	client := w.client
	w.socketLock.Unlock()

	if client != nil && w.tmb.Alive() {
		w.logger.Infof("Websocket connection closing because: %s", reason)
		w.tmb.Kill(reason)

		deadline := time.Now().Add(time.Second)
		message := gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, "")
		client.WriteControl(gorilla.CloseMessage, message, deadline)
		client.Close()

		w.tmb.Wait()
	}

	w.state.Store(int32(Closed))
}
