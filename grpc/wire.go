package resonancegrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/blockberries/resonance/canon"
	"github.com/blockberries/resonance/types"
)

// ProduceRequest is the wire form of types.ProduceRequest. The task
// payload travels as canonical JSON, so both sides hash it alike.
type ProduceRequest struct {
	Replica       types.ReplicaHandle `cramberry:"1"`
	TaskID        string              `cramberry:"2"`
	TaskKind      string              `cramberry:"3"`
	TaskPayload   []byte              `cramberry:"4"`
	ContextDigest types.Digest        `cramberry:"5"`
}

// ProduceResponse is the wire form of types.Production. Confidence
// travels as its IEEE-754 bit pattern.
type ProduceResponse struct {
	ReplicaID      string       `cramberry:"1"`
	Decision       string       `cramberry:"2"`
	Explanation    string       `cramberry:"3"`
	ConfidenceBits uint64       `cramberry:"4"`
	Signature      []byte       `cramberry:"5"`
	PublicKey      []byte       `cramberry:"6"`
	ContextDigest  types.Digest `cramberry:"7"`
}

func encodeRequest(req types.ProduceRequest) (*ProduceRequest, error) {
	payload, err := canon.Canonicalize(req.Task.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode task %s: %w", req.Task.ID, err)
	}
	return &ProduceRequest{
		Replica:       req.Replica,
		TaskID:        req.Task.ID,
		TaskKind:      req.Task.Kind,
		TaskPayload:   payload,
		ContextDigest: req.ContextDigest,
	}, nil
}

func (r *ProduceRequest) decode() (types.ProduceRequest, error) {
	var payload types.Payload
	dec := json.NewDecoder(bytes.NewReader(r.TaskPayload))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return types.ProduceRequest{}, fmt.Errorf("decode task %s payload: %w", r.TaskID, err)
	}
	return types.ProduceRequest{
		Replica: r.Replica,
		Task: types.Task{
			ID:      r.TaskID,
			Kind:    r.TaskKind,
			Payload: payload,
		},
		ContextDigest: r.ContextDigest,
	}, nil
}

func encodeProduction(p types.Production) *ProduceResponse {
	return &ProduceResponse{
		ReplicaID:      p.ReplicaID,
		Decision:       p.Decision,
		Explanation:    p.Explanation,
		ConfidenceBits: math.Float64bits(p.Confidence),
		Signature:      p.Signature,
		PublicKey:      p.PublicKey,
		ContextDigest:  p.ContextDigest,
	}
}

func (r *ProduceResponse) decode() types.Production {
	return types.Production{
		ReplicaID:     r.ReplicaID,
		Decision:      r.Decision,
		Explanation:   r.Explanation,
		Confidence:    math.Float64frombits(r.ConfidenceBits),
		Signature:     r.Signature,
		PublicKey:     r.PublicKey,
		ContextDigest: r.ContextDigest,
	}
}
