package wire

import (
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// ErrUnknownType is returned when encoding a value with no wire type.
var ErrUnknownType = errors.New("no wire type for message")

// encMode uses Core Deterministic Encoding so the same message always
// produces identical bytes.
var encMode cbor.EncMode

// decMode ignores unknown fields for forward compatibility.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("wire: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("wire: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes msg into one self-delimiting envelope.
func Marshal(msg any) ([]byte, error) {
	msgType, ok := TypeOf(msg)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, msg)
	}
	payload, err := encMode.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := encMode.Marshal(Envelope{Type: msgType, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// Unmarshal decodes one envelope from data.
func Unmarshal(data []byte) (any, error) {
	var env Envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return decodePayload(env)
}

func decodePayload(env Envelope) (any, error) {
	if env.Type == "" {
		return nil, errors.New("envelope has no type")
	}
	newFn, ok := registry[env.Type]
	if !ok {
		return &Unknown{Type: env.Type, Payload: env.Payload}, nil
	}
	v := newFn()
	if err := decMode.Unmarshal(env.Payload, v); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", env.Type, err)
	}
	return v, nil
}

// Decoder reads whole messages from a byte stream.
type Decoder struct {
	dec *cbor.Decoder
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: decMode.NewDecoder(r)}
}

// Decode blocks until one complete message has been read and returns it
// as a pointer to its core type, or *Unknown. It never returns a partial
// message: on error the returned value is nil.
func (d *Decoder) Decode() (any, error) {
	var env Envelope
	if err := d.dec.Decode(&env); err != nil {
		return nil, err
	}
	return decodePayload(env)
}
