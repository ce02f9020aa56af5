package altur

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/base64x"
)

// envelope is the only message shape exchanged for audio:
//
//	{"call_id": "<call id>", "payload": "<base64 µ-law>"}
type envelope struct {
	CallID  string `json:"call_id"`
	Payload string `json:"payload"`
}

// inboundEnvelope uses pointers so absent and null fields can be told apart
// from empty strings.
type inboundEnvelope struct {
	CallID  *string `json:"call_id"`
	Payload *string `json:"payload"`
}

// strictJSON rejects keys other than call_id and payload.
var strictJSON = sonic.Config{
	DisallowUnknownFields: true,
}.Froze()

func encodeEnvelope(callID string, ulaw []byte) ([]byte, error) {
	return sonic.Marshal(envelope{
		CallID:  callID,
		Payload: base64x.StdEncoding.EncodeToString(ulaw),
	})
}

// parseEnvelope checks the envelope's shape and returns its two fields.
// The payload is not decoded yet: a message for another call is dropped
// before its payload is looked at.
func parseEnvelope(data []byte) (envelope, error) {
	var env inboundEnvelope
	if err := strictJSON.Unmarshal(data, &env); err != nil {
		return envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.CallID == nil {
		return envelope{}, fmt.Errorf("%w: missing call_id", ErrMalformedEnvelope)
	}
	if env.Payload == nil {
		return envelope{}, fmt.Errorf("%w: missing payload", ErrMalformedEnvelope)
	}
	return envelope{CallID: *env.CallID, Payload: *env.Payload}, nil
}

func decodePayload(payload string) ([]byte, error) {
	ulaw, err := base64x.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload is not base64: %v", ErrMalformedEnvelope, err)
	}
	return ulaw, nil
}
