/*
The connector package is the client half of the messaging fabric. A
Connector owns the websocket link to the broker, performs the associate
session handshake when the link opens, frames outbound messages, and
validates and dispatches inbound ones to the callbacks registered for their
message type. A background monitor keeps the link alive with heartbeats and
bounded reconnects.
*/
package connector

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/tomb.v2"

	"github.com/sarameisburger/go-pcp-client/connection"
	"github.com/sarameisburger/go-pcp-client/logger"
	"github.com/sarameisburger/go-pcp-client/protocol"
	"github.com/sarameisburger/go-pcp-client/validator"
)

const (
	// cadence of the connection monitor
	defaultHeartbeat = 15 * time.Second

	// timeout on internal handshake messages
	defaultMessageTimeout = 10 * time.Second
)

// Connection is the transport the connector drives. The production
// implementation is connection.WebsocketConnection.
type Connection interface {
	Connect(maxAttempts int) error
	Send(message []byte) error
	Ping() error
	State() connection.State
	SetOnMessage(callback func([]byte))
	SetOnOpen(callback func())
	ResetCallbacks()
	Close(reason error)
}

type Connector struct {
	logger *logger.Logger

	serverUrl string
	metadata  *connection.ClientMetadata

	// created lazily on the first Connect; newConnection is the factory
	conn          Connection
	newConnection func() Connection

	validator *validator.Validator
	registry  *CallbackRegistry

	// true once the broker has acknowledged our associate session request
	associated atomic.Bool

	// guards the monitor and shutdown bookkeeping below
	lock       sync.Mutex
	monitoring bool
	closed     bool
	monitorTmb tomb.Tomb
	heartbeat  time.Duration
}

// New builds a connector for the given broker and client credentials. No
// connection is opened; the envelope and debug schemas and the internal
// associate response handler are pre-registered.
func New(log *logger.Logger, serverUrl string, clientType string, caCertPath string, certPath string, keyPath string) (*Connector, error) {
	metadata, err := connection.NewClientMetadata(clientType, caCertPath, certPath, keyPath)
	if err != nil {
		return nil, err
	}
	return NewWithMetadata(log, serverUrl, metadata)
}

// NewWithMetadata builds a connector from already-assembled client metadata.
func NewWithMetadata(log *logger.Logger, serverUrl string, metadata *connection.ClientMetadata) (*Connector, error) {
	v := validator.New()
	if err := v.RegisterSchema(protocol.EnvelopeSchema()); err != nil {
		return nil, err
	}
	if err := v.RegisterSchema(protocol.DebugSchema()); err != nil {
		return nil, err
	}

	c := &Connector{
		logger:    log,
		serverUrl: serverUrl,
		metadata:  metadata,
		validator: v,
		registry:  NewCallbackRegistry(v),
		heartbeat: defaultHeartbeat,
	}

	c.newConnection = func() Connection {
		connLogger := log.GetComponentLogger("Websocket")
		return connection.New(connLogger, serverUrl, metadata)
	}

	if err := c.registry.Register(protocol.AssociateResponseSchema(), c.associateResponse); err != nil {
		return nil, err
	}

	return c, nil
}

// Uri returns the client's identity on the fabric.
func (c *Connector) Uri() string {
	return c.metadata.Uri
}

// RegisterMessageCallback stores the schema with the validator and binds the
// handler to the schema name. Registration is rejected once the connection
// monitor is running.
func (c *Connector) RegisterMessageCallback(schema validator.Schema, callback MessageCallback) error {
	c.lock.Lock()
	monitoring := c.monitoring
	c.lock.Unlock()

	if monitoring {
		return fmt.Errorf("cannot register a message callback while the connection monitor is running")
	}

	return c.registry.Register(schema, callback)
}

// Connect lazily creates the underlying connection, installs the message
// and open callbacks, and opens the link with up to maxAttempts dials.
// Fatal transport failures propagate as connection.FatalError; transient
// ones surface as ConfigError.
func (c *Connector) Connect(maxAttempts int) error {
	c.lock.Lock()
	if c.conn == nil {
		c.conn = c.newConnection()
		c.conn.SetOnMessage(c.processMessage)
		c.conn.SetOnOpen(c.associateSession)
	}
	conn := c.conn
	c.lock.Unlock()

	if err := conn.Connect(maxAttempts); err != nil {
		var fatal *connection.FatalError
		if errors.As(err, &fatal) {
			return err
		}

		c.logger.Errorf("Failed to connect: %s", err)
		return &ConfigError{Err: err}
	}

	return nil
}

// Connected is true iff the underlying connection exists and is open.
func (c *Connector) Connected() bool {
	conn := c.connection()
	return conn != nil && conn.State() == connection.Open
}

// Associated is true iff the link is open and the broker has accepted our
// associate session request on it.
func (c *Connector) Associated() bool {
	return c.Connected() && c.associated.Load()
}

func (c *Connector) connection() Connection {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.conn
}

// Send serializes the message and ships it over the connection.
func (c *Connector) Send(msg *protocol.Message) error {
	conn := c.connection()
	if conn == nil {
		return &NotInitializedError{}
	}

	serialized := msg.Serialize()
	c.logger.Debugf("Sending message of %d bytes:\n%s", len(serialized), msg)
	return conn.Send(serialized)
}

// SendJSON builds and sends a message whose data chunk carries JSON content.
func (c *Connector) SendJSON(targets []string, messageType string, timeout time.Duration, destinationReport bool, data json.RawMessage, debug ...json.RawMessage) error {
	return c.sendMessage(targets, messageType, timeout, destinationReport, []byte(data), debug)
}

// SendBinary builds and sends a message whose data chunk carries raw bytes.
func (c *Connector) SendBinary(targets []string, messageType string, timeout time.Duration, destinationReport bool, data []byte, debug ...json.RawMessage) error {
	return c.sendMessage(targets, messageType, timeout, destinationReport, data, debug)
}

func (c *Connector) sendMessage(targets []string, messageType string, timeout time.Duration, destinationReport bool, data []byte, debug []json.RawMessage) error {
	envelope, err := protocol.NewEnvelope(c.metadata.Uri, targets, messageType, timeout, destinationReport)
	if err != nil {
		return err
	}
	c.logger.Infof("Creating message with id %s for %d receivers", envelope.Id, len(targets))

	envelopeChunk, err := envelope.Chunk()
	if err != nil {
		return err
	}

	msg, err := protocol.NewMessage(envelopeChunk)
	if err != nil {
		return err
	}
	if err := msg.SetDataChunk(protocol.NewMessageChunk(protocol.DataChunk, data)); err != nil {
		return err
	}
	for _, debugContent := range debug {
		if err := msg.AddDebugChunk(protocol.NewMessageChunk(protocol.DebugChunk, debugContent)); err != nil {
			return err
		}
	}

	return c.Send(msg)
}

// Close resets the transport callbacks so nothing re-enters a dying
// connector, stops the monitor, and tears down the connection. Idempotent.
func (c *Connector) Close(reason error) {
	c.lock.Lock()
	if c.closed {
		c.lock.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	monitoring := c.monitoring
	c.lock.Unlock()

	if conn != nil {
		c.logger.Info("Resetting the websocket event callbacks")
		conn.ResetCallbacks()
	}

	if monitoring {
		c.monitorTmb.Kill(reason)
		c.monitorTmb.Wait()
	}

	if conn != nil {
		conn.Close(reason)
	}

	c.associated.Store(false)
}

// websocket on-open callback: the associate session request is sent from the
// open path before Connect returns; user sends from other goroutines are not
// gated or queued behind it
func (c *Connector) associateSession() {
	envelope, err := protocol.NewEnvelope(
		c.metadata.Uri,
		[]string{protocol.ServerUri},
		protocol.AssociateRequestType,
		defaultMessageTimeout,
		false)
	if err != nil {
		c.logger.Errorf("failed to create associate session request: %s", err)
		return
	}

	envelopeChunk, err := envelope.Chunk()
	if err != nil {
		c.logger.Errorf("failed to serialize associate session request: %s", err)
		return
	}

	// envelope only, no data chunk
	msg, err := protocol.NewMessage(envelopeChunk)
	if err != nil {
		c.logger.Errorf("failed to create associate session request: %s", err)
		return
	}

	c.logger.Info("Sending Associate Session request")
	if err := c.Send(msg); err != nil {
		c.logger.Errorf("failed to send associate session request: %s", err)
	}
}

// websocket on-message callback: deserialize, validate, dispatch. Decode and
// validation failures drop the message and never touch the link itself.
func (c *Connector) processMessage(raw []byte) {
	c.logger.Debugf("Received message of %d bytes", len(raw))

	msg, err := protocol.FromBytes(raw)
	if err != nil {
		c.logger.Errorf("Failed to deserialize message: %s", err)
		return
	}

	parsed, err := msg.ParsedChunks(c.validator)
	if err != nil {
		var (
			invalidEnvelope *protocol.InvalidEnvelopeError
			invalidData     *protocol.InvalidDataError
			parseFailure    *protocol.DataParseError
			unknownSchema   *validator.SchemaNotFoundError
		)
		switch {
		case errors.As(err, &invalidEnvelope), errors.As(err, &invalidData):
			c.logger.Errorf("Invalid message - bad content: %s", err)
		case errors.As(err, &parseFailure):
			c.logger.Errorf("Invalid message - invalid JSON content: %s", err)
		case errors.As(err, &unknownSchema):
			c.logger.Errorf("Invalid message - unknown schema: %s", err)
		default:
			c.logger.Errorf("Invalid message: %s", err)
		}
		return
	}

	schemaName := parsed.Envelope.MessageType
	callback, ok := c.registry.Lookup(schemaName)
	if !ok {
		c.logger.Warnf("No message callback has been registered for the %s schema", schemaName)
		return
	}

	c.logger.Tracef("Executing callback for a message with the %s schema", schemaName)
	c.dispatch(schemaName, callback, parsed)
}

func (c *Connector) dispatch(schemaName string, callback MessageCallback, parsed *protocol.ParsedChunks) {
	// a panicking callback must not tear down the transport read loop
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorf("message callback for the %s schema panicked: %v", schemaName, r)
		}
	}()

	callback(parsed)
}

// internal handler for the broker's reply to our associate session request
func (c *Connector) associateResponse(parsed *protocol.ParsedChunks) {
	if !parsed.HasData {
		c.logger.Errorf("Received an associate session response without data")
		return
	}

	var response protocol.AssociateResponse
	if err := json.Unmarshal(parsed.Data, &response); err != nil {
		c.logger.Errorf("Failed to parse associate session response data: %s", err)
		return
	}

	received := fmt.Sprintf("associate session response %s from %s for request %s",
		parsed.Envelope.Id, parsed.Envelope.Sender, response.Id)

	if response.Success {
		c.logger.Infof("Received %s: success", received)
		c.associated.Store(true)
	} else if response.Reason != "" {
		c.logger.Warnf("Received %s: failure - %s", received, response.Reason)
	} else {
		c.logger.Warnf("Received %s: failure", received)
	}
}
