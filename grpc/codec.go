// Package resonancegrpc provides the gRPC transport for remote
// decision producers, using cramberry for deterministic binary
// serialization.
//
// No protobuf code generation is required. Wire types carry cramberry
// struct tags and are serialized directly.
package resonancegrpc

import (
	"errors"
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"google.golang.org/grpc/encoding"
)

const codecName = "cramberry"

// ErrUnsupportedMessage is returned by the codec for anything other
// than the producer wire messages.
var ErrUnsupportedMessage = errors.New("resonancegrpc: unsupported message")

// CramberryCodec implements grpc/encoding.Codec for ProduceRequest and
// ProduceResponse.
type CramberryCodec struct{}

func (CramberryCodec) Marshal(v any) ([]byte, error) {
	if err := checkMessage(v); err != nil {
		return nil, err
	}
	data, err := cramberry.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("resonancegrpc: encode %T: %w", v, err)
	}
	return data, nil
}

func (CramberryCodec) Unmarshal(data []byte, v any) error {
	if err := checkMessage(v); err != nil {
		return err
	}
	if err := cramberry.Unmarshal(data, v); err != nil {
		return fmt.Errorf("resonancegrpc: decode %T: %w", v, err)
	}
	return nil
}

func (CramberryCodec) Name() string { return codecName }

func checkMessage(v any) error {
	switch v.(type) {
	case *ProduceRequest, *ProduceResponse:
		return nil
	}
	return fmt.Errorf("%w: %T", ErrUnsupportedMessage, v)
}

// The server side picks the codec from the content subtype.
func init() {
	encoding.RegisterCodec(CramberryCodec{})
}
