// Package canon implements the canonical hasher: a deterministic byte
// serialization of structured values and a double SHA3-256 digest over
// it.
//
// Two values that are semantically equal (same keys and values,
// regardless of map iteration order or insertion order) always produce
// the same canonical bytes and therefore the same digest. Everything in
// this package is pure and safe for concurrent use.
package canon

import (
	"bytes"
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/sha3"

	"github.com/blockberries/resonance"
	"github.com/blockberries/resonance/types"
)

// attestationTag separates attestation messages from every other use of
// the hasher's digests.
const attestationTag = "resonance/attestation/v1\x00"

// maxExponent bounds the decimal exponent of a canonical number, well
// beyond the float64 range, so a tiny literal cannot expand into an
// enormous canonical form.
const maxExponent = 1024

var errInvalidUTF8 = errors.New("string is not valid UTF-8")

// Canonicalize returns the canonical serialization of v: JSON with
// lexicographically sorted object keys, no insignificant whitespace, no
// HTML escaping and numbers in exact plain decimal with no exponent and
// no redundant zeros. Sequences keep their order.
//
// Values that cannot be expressed in JSON (channels, functions, NaN,
// infinities, non-string map keys, strings that are not valid UTF-8)
// return an error wrapping resonance.ErrUnserializablePayload.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", resonance.ErrUnserializablePayload, err)
	}
	// json.Marshal replaces invalid UTF-8 with U+FFFD, which would let
	// distinct strings hash alike.
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("%w: %v", resonance.ErrUnserializablePayload, errInvalidUTF8)
	}
	if err := checkUTF8(reflect.ValueOf(v)); err != nil {
		return nil, fmt.Errorf("%w: %v", resonance.ErrUnserializablePayload, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("%w: %v", resonance.ErrUnserializablePayload, err)
	}

	var buf bytes.Buffer
	buf.Grow(len(raw))
	if err := encode(&buf, tree); err != nil {
		return nil, fmt.Errorf("%w: %v", resonance.ErrUnserializablePayload, err)
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(x))
	case string:
		return encodeString(buf, x)
	case json.Number:
		s, err := canonicalNumber(x)
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case []any:
		buf.WriteByte('[')
		for i, elem := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encode(buf, x[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unexpected %T in decoded tree", v)
	}
	return nil
}

func encodeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encoder appends a newline.
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'}))
	return nil
}

// canonicalNumber renders a JSON number exactly in plain decimal:
// 1.50, 1.5 and 15e-1 all become 1.5, 1e3 becomes 1000, and no digit is
// lost to float64 rounding.
func canonicalNumber(n json.Number) (string, error) {
	s := n.String()
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	exp := 0
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		e, err := strconv.Atoi(s[i+1:])
		if err != nil {
			return "", fmt.Errorf("number %s: exponent: %w", n, err)
		}
		exp, s = e, s[:i]
	}
	if i := strings.IndexByte(s, '.'); i >= 0 {
		exp -= len(s) - i - 1
		s = s[:i] + s[i+1:]
	}
	if s == "" || strings.Trim(s, "0123456789") != "" {
		return "", fmt.Errorf("number %s: malformed", n)
	}

	digits := strings.TrimLeft(s, "0")
	if digits == "" {
		return "0", nil
	}
	trimmed := strings.TrimRight(digits, "0")
	exp += len(digits) - len(trimmed)
	digits = trimmed
	if exp > maxExponent || exp < -maxExponent {
		return "", fmt.Errorf("number %s: exponent out of range", n)
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	switch point := len(digits) + exp; {
	case exp >= 0:
		b.WriteString(digits)
		b.WriteString(strings.Repeat("0", exp))
	case point > 0:
		b.WriteString(digits[:point])
		b.WriteByte('.')
		b.WriteString(digits[point:])
	default:
		b.WriteString("0.")
		b.WriteString(strings.Repeat("0", -point))
		b.WriteString(digits)
	}
	return b.String(), nil
}

var textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()

// checkUTF8 rejects any string reachable from v that is not valid
// UTF-8. It runs after json.Marshal succeeded, so v holds no cycles.
func checkUTF8(v reflect.Value) error {
	if !v.IsValid() {
		return nil
	}
	if v.Type().Implements(textMarshalerType) && v.CanInterface() {
		if (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) && v.IsNil() {
			return nil
		}
		text, err := v.Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return err
		}
		if !utf8.Valid(text) {
			return errInvalidUTF8
		}
		return nil
	}
	switch v.Kind() {
	case reflect.String:
		if !utf8.ValidString(v.String()) {
			return errInvalidUTF8
		}
	case reflect.Pointer, reflect.Interface:
		if !v.IsNil() {
			return checkUTF8(v.Elem())
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if err := checkUTF8(iter.Key()); err != nil {
				return err
			}
			if err := checkUTF8(iter.Value()); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return nil
		}
		for i := 0; i < v.Len(); i++ {
			if err := checkUTF8(v.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			if f := t.Field(i); !f.IsExported() && !f.Anonymous {
				continue
			}
			if err := checkUTF8(v.Field(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Sum returns SHA3-256(SHA3-256(b)).
func Sum(b []byte) types.Digest {
	first := sha3.Sum256(b)
	return types.Digest(sha3.Sum256(first[:]))
}

// Digest canonicalizes v and returns the digest of the result.
func Digest(v any) (types.Digest, error) {
	b, err := Canonicalize(v)
	if err != nil {
		return types.Digest{}, err
	}
	return Sum(b), nil
}

// outputRecord is the hashed view of a replica's output. Only the
// decision and its explanation take part in the vote; replica identity,
// confidence and timing do not.
type outputRecord struct {
	Decision    string `json:"decision"`
	Explanation string `json:"explanation"`
}

// CheckOutput reports whether a replica output can be digested: both
// strings must be valid UTF-8.
func CheckOutput(decision, explanation string) error {
	if !utf8.ValidString(decision) || !utf8.ValidString(explanation) {
		return fmt.Errorf("%w: output %v", resonance.ErrUnserializablePayload, errInvalidUTF8)
	}
	return nil
}

// OutputDigest returns the digest of a replica output. It panics if
// CheckOutput rejects the output; callers taking output from a producer
// check it first.
func OutputDigest(decision, explanation string) types.Digest {
	d, err := Digest(outputRecord{Decision: decision, Explanation: explanation})
	if err != nil {
		panic(fmt.Sprintf("canon: output record failed to canonicalize: %v", err))
	}
	return d
}

// AttestationMessage returns the bytes a replica signs: the output
// digest bound to the context digest it was produced against.
func AttestationMessage(output, context types.Digest) []byte {
	msg := make([]byte, 0, len(attestationTag)+2*types.DigestSize)
	msg = append(msg, attestationTag...)
	msg = append(msg, output[:]...)
	msg = append(msg, context[:]...)
	return msg
}
