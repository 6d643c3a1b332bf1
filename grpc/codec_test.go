package resonancegrpc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockberries/resonance/types"
)

func TestCodec_ProduceResponse(t *testing.T) {
	var c CramberryCodec
	require.Equal(t, "cramberry", c.Name())

	in := &ProduceResponse{
		ReplicaID:      "auditor-002",
		Decision:       "REJECT",
		Explanation:    "amount exceeds limit",
		ConfidenceBits: math.Float64bits(0.1),
		ContextDigest:  types.Digest{7},
	}
	data, err := c.Marshal(in)
	require.NoError(t, err)

	out := new(ProduceResponse)
	require.NoError(t, c.Unmarshal(data, out))
	require.Equal(t, in.Decision, out.Decision)
	require.Equal(t, 0.1, math.Float64frombits(out.ConfidenceBits))
	require.Equal(t, in.ContextDigest, out.ContextDigest)
}

func TestCodec_RejectsForeignMessages(t *testing.T) {
	var c CramberryCodec
	_, err := c.Marshal(&types.Task{ID: "t1"})
	require.ErrorIs(t, err, ErrUnsupportedMessage)
	require.ErrorContains(t, err, "types.Task")

	_, err = c.Marshal(ProduceResponse{})
	require.ErrorIs(t, err, ErrUnsupportedMessage)

	require.ErrorIs(t, c.Unmarshal(nil, new(string)), ErrUnsupportedMessage)
}
