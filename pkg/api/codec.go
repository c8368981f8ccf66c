// Package api defines the RPC surface of the bridge service: the request
// and response messages, the CBOR codec they travel in, and the gRPC
// service descriptor with its client and server bindings.
package api

import (
	"github.com/fxamacker/cbor/v2"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype messages are encoded with.
const CodecName = "cbor"

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	encMode = em
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	decMode = dm
	encoding.RegisterCodec(codec{})
}

// codec implements grpc encoding.Codec over deterministic CBOR.
type codec struct{}

func (codec) Name() string { return CodecName }

func (codec) Marshal(v interface{}) ([]byte, error) {
	return encMode.Marshal(v)
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	return decMode.Unmarshal(data, v)
}

// Marshal encodes v the same way the RPC layer does. Exposed for tests
// and tooling.
func Marshal(v interface{}) ([]byte, error) { return encMode.Marshal(v) }

// Unmarshal decodes data the same way the RPC layer does.
func Unmarshal(data []byte, v interface{}) error { return decMode.Unmarshal(data, v) }
