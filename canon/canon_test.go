package canon

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/sha3"

	"github.com/blockberries/resonance"
	"github.com/blockberries/resonance/types"
)

func TestCanonicalizeSortsKeys(t *testing.T) {
	got, err := Canonicalize(map[string]any{
		"b": 1,
		"a": []any{"x", 2.5, true, nil},
		"c": map[string]any{"z": "<tag>", "y": 0},
	})
	require.NoError(t, err)
	require.Equal(t, `{"a":["x",2.5,true,null],"b":1,"c":{"y":0,"z":"<tag>"}}`, string(got))
}

func TestCanonicalizeNumbers(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"int", 42, "42"},
		{"negative", -7, "-7"},
		{"whole float", 100.0, "100"},
		{"fraction", 0.1, "0.1"},
		{"large", 1e21, "1000000000000000000000"},
		{"small", 1.5e-7, "0.00000015"},
		{"uint64 max", uint64(math.MaxUint64), "18446744073709551615"},
		{"negative zero", math.Copysign(0, -1), "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, string(got))
		})
	}
}

func TestCanonicalizeExactDecimals(t *testing.T) {
	tests := []struct {
		in   json.Number
		want string
	}{
		{"0.1", "0.1"},
		{"0.10000000000000000001", "0.10000000000000000001"},
		{"1.50", "1.5"},
		{"15e-1", "1.5"},
		{"1E3", "1000"},
		{"1.0", "1"},
		{"-0.0", "0"},
		{"-12.340e+2", "-1234"},
		{"0.000e5", "0"},
		{"123456789012345678901234567890.5", "123456789012345678901234567890.5"},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			got, err := Canonicalize(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, string(got))
		})
	}

	a, err := Digest(types.Payload{"amount": json.Number("0.1")})
	require.NoError(t, err)
	b, err := Digest(types.Payload{"amount": json.Number("0.10000000000000000001")})
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	_, err = Canonicalize(json.Number("1e999999"))
	require.ErrorIs(t, err, resonance.ErrUnserializablePayload)
}

func TestCanonicalizeRejectsInvalidUTF8(t *testing.T) {
	type note struct {
		Text string `json:"text"`
	}
	for name, v := range map[string]any{
		"value":  types.Payload{"note": "ok\xff"},
		"key":    map[string]any{"k\xfe": 1},
		"nested": []any{map[string]any{"a": []string{"x", "\xc3"}}},
		"struct": note{Text: "bad\x80"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Canonicalize(v)
			require.ErrorIs(t, err, resonance.ErrUnserializablePayload)
		})
	}

	got, err := Canonicalize(types.Payload{"note": "héllo ✓"})
	require.NoError(t, err)
	require.Equal(t, `{"note":"héllo ✓"}`, string(got))
}

func TestCanonicalizeUnserializable(t *testing.T) {
	for name, v := range map[string]any{
		"channel": map[string]any{"c": make(chan int)},
		"func":    func() {},
		"nan":     math.NaN(),
		"inf":     map[string]any{"x": math.Inf(1)},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Canonicalize(v)
			require.ErrorIs(t, err, resonance.ErrUnserializablePayload)
		})
	}
}

func TestDigestOrderIndependent(t *testing.T) {
	a := types.Payload{}
	b := types.Payload{}
	keys := []string{"amount", "currency", "limit", "owner", "region"}
	for i, k := range keys {
		a[k] = i
	}
	for i := len(keys) - 1; i >= 0; i-- {
		b[keys[i]] = i
	}

	da, err := Digest(a)
	require.NoError(t, err)
	db, err := Digest(b)
	require.NoError(t, err)
	require.Equal(t, da, db)
}

func TestDigestDeterministic(t *testing.T) {
	v := types.Payload{"amount": 50000, "limit": 100000, "tags": []any{"a", "b"}}
	first, err := Digest(v)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		d, err := Digest(v)
		require.NoError(t, err)
		require.Equal(t, first, d)
	}
}

func TestDigestSensitiveToValues(t *testing.T) {
	d1, err := Digest(types.Payload{"amount": 50000})
	require.NoError(t, err)
	d2, err := Digest(types.Payload{"amount": 50001})
	require.NoError(t, err)
	require.NotEqual(t, d1, d2)

	// Sequence order is significant.
	d3, err := Digest([]any{1, 2})
	require.NoError(t, err)
	d4, err := Digest([]any{2, 1})
	require.NoError(t, err)
	require.NotEqual(t, d3, d4)
}

func TestSumIsDoubleHash(t *testing.T) {
	b := []byte(`{"a":1}`)
	first := sha3.Sum256(b)
	require.NotEqual(t, types.Digest(first), Sum(b))
	require.Equal(t, types.Digest(sha3.Sum256(first[:])), Sum(b))
}

func TestOutputDigest(t *testing.T) {
	approve := OutputDigest("APPROVE", "within limit")
	require.Equal(t, approve, OutputDigest("APPROVE", "within limit"))
	require.NotEqual(t, approve, OutputDigest("APPROVE", "within limit, low risk"))
	require.NotEqual(t, approve, OutputDigest("REJECT", "within limit"))

	want, err := Digest(map[string]any{"explanation": "within limit", "decision": "APPROVE"})
	require.NoError(t, err)
	require.Equal(t, want, approve)
}

func TestCheckOutput(t *testing.T) {
	require.NoError(t, CheckOutput("APPROVE", "ok"))
	require.ErrorIs(t, CheckOutput("APPROVE", "ok\xff"), resonance.ErrUnserializablePayload)
	require.ErrorIs(t, CheckOutput("APPR\xfeOVE", "ok"), resonance.ErrUnserializablePayload)
	require.Panics(t, func() { OutputDigest("APPROVE", "ok\xff") })
}

func TestAttestationMessageBindsContext(t *testing.T) {
	out := OutputDigest("APPROVE", "ok")
	ctxA := Sum([]byte("a"))
	ctxB := Sum([]byte("b"))

	msgA := AttestationMessage(out, ctxA)
	require.Len(t, msgA, len(attestationTag)+2*types.DigestSize)
	require.Equal(t, msgA, AttestationMessage(out, ctxA))
	require.NotEqual(t, msgA, AttestationMessage(out, ctxB))
}
