package protocol

import (
	"github.com/sarameisburger/go-pcp-client/validator"
)

// Message types and routing constants of the session association
// sub-protocol
const (
	ServerUri = "cth:///server"

	AssociateRequestType  = "http://puppetlabs.com/associate_request"
	AssociateResponseType = "http://puppetlabs.com/associate_response"

	EnvelopeSchemaName = "envelope"
	DebugSchemaName    = "debug"
)

// EnvelopeSchema describes the envelope chunk every message leads with.
func EnvelopeSchema() validator.Schema {
	return validator.Schema{
		Name:        EnvelopeSchemaName,
		ContentType: validator.ContentTypeJson,
		Document: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"id":           map[string]interface{}{"type": "string"},
				"message_type": map[string]interface{}{"type": "string"},
				"targets": map[string]interface{}{
					"type":     "array",
					"items":    map[string]interface{}{"type": "string"},
					"minItems": 1,
				},
				"expires":            map[string]interface{}{"type": "string"},
				"sender":             map[string]interface{}{"type": "string"},
				"destination_report": map[string]interface{}{"type": "boolean"},
			},
			"required": []string{"id", "message_type", "targets", "expires", "sender"},
		},
	}
}

// DebugSchema describes the diagnostic chunks a message may carry.
func DebugSchema() validator.Schema {
	return validator.Schema{
		Name:        DebugSchemaName,
		ContentType: validator.ContentTypeJson,
		Document: map[string]interface{}{
			"type": "object",
		},
	}
}

// AssociateResponseSchema describes the data chunk of the broker's reply to
// an associate session request.
func AssociateResponseSchema() validator.Schema {
	return validator.Schema{
		Name:        AssociateResponseType,
		ContentType: validator.ContentTypeJson,
		Document: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"id":      map[string]interface{}{"type": "string"},
				"success": map[string]interface{}{"type": "boolean"},
				"reason":  map[string]interface{}{"type": "string"},
			},
			"required": []string{"id", "success"},
		},
	}
}

// AssociateResponse is the decoded data chunk of an associate session reply.
type AssociateResponse struct {
	Id      string `json:"id"`
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}
