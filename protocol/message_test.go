package protocol

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarameisburger/go-pcp-client/validator"
)

func testValidator() *validator.Validator {
	v := validator.New()
	Expect(v.RegisterSchema(EnvelopeSchema())).To(Succeed())
	Expect(v.RegisterSchema(DebugSchema())).To(Succeed())
	Expect(v.RegisterSchema(validator.Schema{
		Name:        "example/type",
		ContentType: validator.ContentTypeJson,
		Document: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"text": map[string]interface{}{"type": "string"},
			},
			"required": []string{"text"},
		},
	})).To(Succeed())
	Expect(v.RegisterSchema(validator.Schema{
		Name:        "example/blob",
		ContentType: validator.ContentTypeBinary,
	})).To(Succeed())
	return v
}

func testEnvelopeChunk(messageType string) MessageChunk {
	envelope, err := NewEnvelope("cth://client-A", []string{"cth://agent1"}, messageType, 30*time.Second, false)
	Expect(err).ShouldNot(HaveOccurred())
	chunk, err := envelope.Chunk()
	Expect(err).ShouldNot(HaveOccurred())
	return chunk
}

var _ = Describe("Message", func() {

	Context("Assembly", func() {
		When("starting from a non-envelope chunk", func() {
			It("fails", func() {
				_, err := NewMessage(NewMessageChunk(DataChunk, []byte("payload")))
				Expect(err).Should(HaveOccurred())
			})
		})

		When("attaching chunks with the wrong descriptor", func() {
			It("fails", func() {
				msg, err := NewMessage(testEnvelopeChunk("example/type"))
				Expect(err).ShouldNot(HaveOccurred())

				Expect(msg.SetDataChunk(NewMessageChunk(DebugChunk, []byte("{}")))).ShouldNot(Succeed())
				Expect(msg.AddDebugChunk(NewMessageChunk(DataChunk, []byte("{}")))).ShouldNot(Succeed())
			})
		})
	})

	Context("Serialization", func() {
		When("round-tripping a full message", func() {
			It("preserves every chunk", func() {
				msg, err := NewMessage(testEnvelopeChunk("example/type"))
				Expect(err).ShouldNot(HaveOccurred())
				Expect(msg.SetDataChunk(NewMessageChunk(DataChunk, []byte(`{"text":"hi"}`)))).To(Succeed())
				Expect(msg.AddDebugChunk(NewMessageChunk(DebugChunk, []byte(`{"hop":"a"}`)))).To(Succeed())
				Expect(msg.AddDebugChunk(NewMessageChunk(DebugChunk, []byte(`{"hop":"b"}`)))).To(Succeed())

				parsed, err := FromBytes(msg.Serialize())
				Expect(err).ShouldNot(HaveOccurred())

				Expect(parsed.Envelope().Equals(msg.Envelope())).To(BeTrue())
				data, ok := parsed.Data()
				Expect(ok).To(BeTrue())
				Expect(data.Content).To(Equal([]byte(`{"text":"hi"}`)))
				Expect(parsed.Debug()).To(HaveLen(2))
				Expect(parsed.Debug()[0].Content).To(Equal([]byte(`{"hop":"a"}`)))
				Expect(parsed.Debug()[1].Content).To(Equal([]byte(`{"hop":"b"}`)))
			})
		})

		When("the frame does not lead with an envelope", func() {
			It("fails with a malformed frame error", func() {
				raw := NewMessageChunk(DataChunk, []byte("payload")).Encode()

				_, err := FromBytes(raw)

				Expect(err).To(BeAssignableToTypeOf(&MalformedFrameError{}))
			})
		})

		When("the frame carries two data chunks", func() {
			It("fails with a malformed frame error", func() {
				raw := testEnvelopeChunk("example/type").Encode()
				raw = append(raw, NewMessageChunk(DataChunk, []byte("one")).Encode()...)
				raw = append(raw, NewMessageChunk(DataChunk, []byte("two")).Encode()...)

				_, err := FromBytes(raw)

				Expect(err).To(BeAssignableToTypeOf(&MalformedFrameError{}))
			})
		})

		When("a data chunk follows a debug chunk", func() {
			It("fails with a malformed frame error", func() {
				raw := testEnvelopeChunk("example/type").Encode()
				raw = append(raw, NewMessageChunk(DebugChunk, []byte("{}")).Encode()...)
				raw = append(raw, NewMessageChunk(DataChunk, []byte("late")).Encode()...)

				_, err := FromBytes(raw)

				Expect(err).To(BeAssignableToTypeOf(&MalformedFrameError{}))
			})
		})
	})

	Context("Parsing and validation", func() {
		var v *validator.Validator

		BeforeEach(func() {
			v = testValidator()
		})

		When("a JSON data chunk satisfies its schema", func() {
			It("returns the decoded view", func() {
				msg, err := NewMessage(testEnvelopeChunk("example/type"))
				Expect(err).ShouldNot(HaveOccurred())
				Expect(msg.SetDataChunk(NewMessageChunk(DataChunk, []byte(`{"text":"hi"}`)))).To(Succeed())
				Expect(msg.AddDebugChunk(NewMessageChunk(DebugChunk, []byte(`{"hop":"a"}`)))).To(Succeed())

				parsed, err := msg.ParsedChunks(v)
				Expect(err).ShouldNot(HaveOccurred())

				Expect(parsed.Envelope.MessageType).To(Equal("example/type"))
				Expect(parsed.HasData).To(BeTrue())
				Expect(parsed.DataType).To(Equal(validator.ContentTypeJson))
				Expect(parsed.Data).To(Equal(json.RawMessage(`{"text":"hi"}`)))
				Expect(parsed.BinaryData).To(BeNil())
				Expect(parsed.Debug).To(HaveLen(1))
			})
		})

		When("the schema declares binary content", func() {
			It("retains the raw bytes without JSON validation", func() {
				msg, err := NewMessage(testEnvelopeChunk("example/blob"))
				Expect(err).ShouldNot(HaveOccurred())
				blob := []byte{0x00, 0x01, 0xFF}
				Expect(msg.SetDataChunk(NewMessageChunk(DataChunk, blob))).To(Succeed())

				parsed, err := msg.ParsedChunks(v)
				Expect(err).ShouldNot(HaveOccurred())

				Expect(parsed.HasData).To(BeTrue())
				Expect(parsed.DataType).To(Equal(validator.ContentTypeBinary))
				Expect(parsed.BinaryData).To(Equal(blob))
				Expect(parsed.Data).To(BeNil())
			})
		})

		When("the message has no data chunk", func() {
			It("reports no data", func() {
				msg, err := NewMessage(testEnvelopeChunk("example/type"))
				Expect(err).ShouldNot(HaveOccurred())

				parsed, err := msg.ParsedChunks(v)
				Expect(err).ShouldNot(HaveOccurred())
				Expect(parsed.HasData).To(BeFalse())
			})
		})

		When("the envelope does not satisfy the envelope schema", func() {
			It("fails with an invalid envelope error", func() {
				msg, err := NewMessage(NewMessageChunk(EnvelopeChunk, []byte(`{"id":"x"}`)))
				Expect(err).ShouldNot(HaveOccurred())

				_, err = msg.ParsedChunks(v)
				Expect(err).To(BeAssignableToTypeOf(&InvalidEnvelopeError{}))
			})
		})

		When("the envelope is not JSON at all", func() {
			It("fails with an invalid envelope error", func() {
				msg, err := NewMessage(NewMessageChunk(EnvelopeChunk, []byte("not json")))
				Expect(err).ShouldNot(HaveOccurred())

				_, err = msg.ParsedChunks(v)
				Expect(err).To(BeAssignableToTypeOf(&InvalidEnvelopeError{}))
			})
		})

		When("the message type names an unregistered schema", func() {
			It("fails with a schema not found error", func() {
				msg, err := NewMessage(testEnvelopeChunk("unregistered"))
				Expect(err).ShouldNot(HaveOccurred())

				_, err = msg.ParsedChunks(v)
				Expect(err).To(BeAssignableToTypeOf(&validator.SchemaNotFoundError{}))
			})
		})

		When("the data chunk violates its schema", func() {
			It("fails with an invalid data error", func() {
				msg, err := NewMessage(testEnvelopeChunk("example/type"))
				Expect(err).ShouldNot(HaveOccurred())
				Expect(msg.SetDataChunk(NewMessageChunk(DataChunk, []byte(`{"text":42}`)))).To(Succeed())

				_, err = msg.ParsedChunks(v)
				Expect(err).To(BeAssignableToTypeOf(&InvalidDataError{}))
			})
		})

		When("the data chunk is not parseable JSON", func() {
			It("fails with a data parse error", func() {
				msg, err := NewMessage(testEnvelopeChunk("example/type"))
				Expect(err).ShouldNot(HaveOccurred())
				Expect(msg.SetDataChunk(NewMessageChunk(DataChunk, []byte("{{{")))).To(Succeed())

				_, err = msg.ParsedChunks(v)
				Expect(err).To(BeAssignableToTypeOf(&DataParseError{}))
			})
		})

		When("a debug chunk is not a JSON object", func() {
			It("fails with an invalid data error", func() {
				msg, err := NewMessage(testEnvelopeChunk("example/type"))
				Expect(err).ShouldNot(HaveOccurred())
				Expect(msg.AddDebugChunk(NewMessageChunk(DebugChunk, []byte(`"just a string"`)))).To(Succeed())

				_, err = msg.ParsedChunks(v)
				Expect(err).To(BeAssignableToTypeOf(&InvalidDataError{}))
			})
		})
	})
})
