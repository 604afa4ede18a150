package connector

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/mock"

	"github.com/sarameisburger/go-pcp-client/connection"
	"github.com/sarameisburger/go-pcp-client/protocol"
)

var _ = Describe("Monitor", func() {
	var c *Connector
	var mockConn *MockConnection

	BeforeEach(func() {
		c, mockConn = newTestConnector()
		c.SetHeartbeatInterval(20 * time.Millisecond)
	})

	When("the connection was never initialized", func() {
		It("refuses to start", func() {
			err := c.MonitorConnection(2)

			var notInit *NotInitializedError
			Expect(errors.As(err, &notInit)).To(BeTrue())
		})
	})

	When("the link is open", func() {
		It("issues heartbeat pings at every interval", func() {
			pinged := make(chan struct{}, 10)

			mockConn.On("Connect", 1).Return(nil)
			mockConn.On("Ping").Run(func(args mock.Arguments) {
				select {
				case pinged <- struct{}{}:
				default:
				}
			}).Return(nil)
			mockConn.On("Close", mock.Anything).Return()

			Expect(c.Connect(1)).To(Succeed())
			mockConn.SetState(connection.Open)
			Expect(c.MonitorConnection(1)).To(Succeed())
			defer c.Close(fmt.Errorf("test over"))

			Eventually(pinged).Should(Receive())
			Eventually(pinged).Should(Receive())
		})

		It("keeps running when a ping fails transiently", func() {
			pinged := make(chan struct{}, 10)

			mockConn.On("Connect", 1).Return(nil)
			mockConn.On("Ping").Run(func(args mock.Arguments) {
				select {
				case pinged <- struct{}{}:
				default:
				}
			}).Return(&connection.ProcessingError{Err: fmt.Errorf("slow link")})
			mockConn.On("Close", mock.Anything).Return()

			Expect(c.Connect(1)).To(Succeed())
			mockConn.SetState(connection.Open)
			Expect(c.MonitorConnection(1)).To(Succeed())
			defer c.Close(fmt.Errorf("test over"))

			Eventually(pinged).Should(Receive())
			Eventually(pinged).Should(Receive())
			Consistently(c.MonitorDone(), "100ms").ShouldNot(BeClosed())
		})
	})

	When("the link is lost", func() {
		It("clears the associated flag and reconnects within one interval", func() {
			var sent [][]byte
			var sentLock sync.Mutex
			reconnected := make(chan struct{}, 5)

			mockConn.On("Connect", 2).Run(func(args mock.Arguments) {
				select {
				case reconnected <- struct{}{}:
				default:
				}
			}).Return(nil)
			mockConn.On("Send", mock.Anything).Run(func(args mock.Arguments) {
				sentLock.Lock()
				defer sentLock.Unlock()
				sent = append(sent, args.Get(0).([]byte))
			}).Return(nil)
			mockConn.On("Close", mock.Anything).Return()

			Expect(c.Connect(2)).To(Succeed())
			Expect(reconnected).To(Receive()) // drain the initial dial

			// pretend a previous handshake succeeded, then the link dropped
			c.associated.Store(true)
			mockConn.SetState(connection.Closed)

			Expect(c.MonitorConnection(2)).To(Succeed())
			defer c.Close(fmt.Errorf("test over"))

			Eventually(reconnected).Should(Receive())
			Expect(c.associated.Load()).To(BeFalse())

			// the dial succeeded: the link opens and the handshake replays
			mockConn.SetState(connection.Open)
			mockConn.TriggerOpen()

			Eventually(func() int {
				sentLock.Lock()
				defer sentLock.Unlock()
				return len(sent)
			}).Should(BeNumerically(">", 0))

			sentLock.Lock()
			request, err := protocol.FromBytes(sent[0])
			sentLock.Unlock()
			Expect(err).ShouldNot(HaveOccurred())

			var envelope protocol.Envelope
			Expect(json.Unmarshal(request.Envelope().Content, &envelope)).To(Succeed())
			Expect(envelope.MessageType).To(Equal(protocol.AssociateRequestType))

			response, err := json.Marshal(protocol.AssociateResponse{Id: envelope.Id, Success: true})
			Expect(err).ShouldNot(HaveOccurred())
			mockConn.DeliverMessage(wireMessage(protocol.ServerUri, protocol.AssociateResponseType, response))

			Expect(c.Associated()).To(BeTrue())
		})

		It("stops after a fatal reconnect failure", func() {
			mockConn.On("Connect", 2).Return(nil).Once()
			mockConn.On("Connect", 2).Return(&connection.FatalError{Err: fmt.Errorf("attempts exhausted")})

			Expect(c.Connect(2)).To(Succeed())
			mockConn.SetState(connection.Closed)

			Expect(c.MonitorConnection(2)).To(Succeed())

			Eventually(c.MonitorDone()).Should(BeClosed())

			var fatal *connection.FatalError
			Expect(errors.As(c.MonitorErr(), &fatal)).To(BeTrue())
		})
	})

	When("the monitor is started twice", func() {
		It("keeps exactly one monitor running", func() {
			mockConn.On("Connect", 1).Return(nil)
			mockConn.On("Ping").Return(nil)
			mockConn.On("Close", mock.Anything).Return()

			Expect(c.Connect(1)).To(Succeed())
			mockConn.SetState(connection.Open)

			Expect(c.MonitorConnection(1)).To(Succeed())
			Expect(c.MonitorConnection(1)).To(Succeed())
			defer c.Close(fmt.Errorf("test over"))

			c.lock.Lock()
			monitoring := c.monitoring
			c.lock.Unlock()
			Expect(monitoring).To(BeTrue())
		})
	})

	When("a callback registration races the running monitor", func() {
		It("is rejected", func() {
			mockConn.On("Connect", 1).Return(nil)
			mockConn.On("Ping").Return(nil)
			mockConn.On("Close", mock.Anything).Return()

			Expect(c.Connect(1)).To(Succeed())
			mockConn.SetState(connection.Open)
			Expect(c.MonitorConnection(1)).To(Succeed())
			defer c.Close(fmt.Errorf("test over"))

			err := c.RegisterMessageCallback(exampleTextSchema(), func(parsed *protocol.ParsedChunks) {})
			Expect(err).Should(HaveOccurred())
		})
	})

	When("the connector is closed", func() {
		It("stops the monitor and resets the transport callbacks", func() {
			mockConn.On("Connect", 1).Return(nil)
			mockConn.On("Ping").Return(nil)
			mockConn.On("Close", mock.Anything).Return()

			Expect(c.Connect(1)).To(Succeed())
			mockConn.SetState(connection.Open)
			Expect(c.MonitorConnection(1)).To(Succeed())

			done := c.MonitorDone()
			c.Close(fmt.Errorf("shutting down"))

			Eventually(done).Should(BeClosed())
			Expect(mockConn.onMessage).To(BeNil())
			Expect(mockConn.onOpen).To(BeNil())
			mockConn.AssertCalled(GinkgoT(), "Close", mock.Anything)
		})

		It("tolerates a second close", func() {
			mockConn.On("Connect", 1).Return(nil)
			mockConn.On("Close", mock.Anything).Return()

			Expect(c.Connect(1)).To(Succeed())

			c.Close(fmt.Errorf("first"))
			Expect(func() {
				c.Close(fmt.Errorf("second"))
			}).ToNot(Panic())
		})
	})
})
