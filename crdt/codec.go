package crdt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// Wire formats:
//
//   GCounter:  [{"actor": A, "counter": N}, ...]   sorted by actor
//   PNCounter: {"p": <GCounter>, "n": <GCounter>}
//   Op:        {"actor": A, "counter": N, "dir": "inc"|"dec"}
//
// The same layout is used for JSON and msgpack.

// Errors returned when decoding counters and operations.
var (
	ErrUnknownDir     = errors.New("unknown operation direction")
	ErrDuplicateActor = errors.New("actor appears more than once in counter state")
	ErrZeroCounter    = errors.New("operation has a zero counter")
	ErrEmptyPayload   = errors.New("empty or nil payload")
)

// +-----------+
// | Direction |
// +-----------+

func (d Dir) MarshalText() ([]byte, error) {
	switch d {
	case Increase, Decrease:
		return []byte(d.String()), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownDir, uint8(d))
}

func (d *Dir) UnmarshalText(text []byte) error {
	switch string(text) {
	case "inc":
		*d = Increase
	case "dec":
		*d = Decrease
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDir, text)
	}
	return nil
}

// +----------+
// | GCounter |
// +----------+

func (c *GCounter[A]) fromDots(dots []Dot[A]) error {
	counters := make(map[A]uint64, len(dots))
	for _, dot := range dots {
		if _, ok := counters[dot.Actor]; ok {
			return fmt.Errorf("%w: %v", ErrDuplicateActor, dot.Actor)
		}
		counters[dot.Actor] = dot.Counter
	}
	// Zero counters are equivalent to absent actors.
	for actor, n := range counters {
		if n == 0 {
			delete(counters, actor)
		}
	}
	c.counters = counters
	return nil
}

func (c *GCounter[A]) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Dots())
}

func (c *GCounter[A]) UnmarshalJSON(bs []byte) error {
	var dots []Dot[A]
	if err := json.Unmarshal(bs, &dots); err != nil {
		return err
	}
	return c.fromDots(dots)
}

func (c *GCounter[A]) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(c.Dots())
}

func (c *GCounter[A]) DecodeMsgpack(dec *msgpack.Decoder) error {
	var dots []Dot[A]
	if err := dec.Decode(&dots); err != nil {
		return err
	}
	return c.fromDots(dots)
}

// +-----------+
// | PNCounter |
// +-----------+

type pnCounterState[A Actor] struct {
	P []Dot[A] `json:"p" msgpack:"p"`
	N []Dot[A] `json:"n" msgpack:"n"`
}

func (c *PNCounter[A]) state() pnCounterState[A] {
	return pnCounterState[A]{P: c.p.Dots(), N: c.n.Dots()}
}

func (c *PNCounter[A]) fromState(s pnCounterState[A]) error {
	p, n := NewGCounter[A](), NewGCounter[A]()
	if err := p.fromDots(s.P); err != nil {
		return fmt.Errorf("increments: %w", err)
	}
	if err := n.fromDots(s.N); err != nil {
		return fmt.Errorf("decrements: %w", err)
	}
	c.p, c.n = *p, *n
	return nil
}

func (c *PNCounter[A]) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.state())
}

func (c *PNCounter[A]) UnmarshalJSON(bs []byte) error {
	var s pnCounterState[A]
	if err := json.Unmarshal(bs, &s); err != nil {
		return err
	}
	return c.fromState(s)
}

func (c *PNCounter[A]) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(c.state())
}

func (c *PNCounter[A]) DecodeMsgpack(dec *msgpack.Decoder) error {
	var s pnCounterState[A]
	if err := dec.Decode(&s); err != nil {
		return err
	}
	return c.fromState(s)
}

// +----+
// | Op |
// +----+

type opWire[A Actor] struct {
	Actor   A      `json:"actor" msgpack:"actor"`
	Counter uint64 `json:"counter" msgpack:"counter"`
	Dir     string `json:"dir" msgpack:"dir"`
}

func (op Op[A]) wire() (opWire[A], error) {
	dir, err := op.Dir.MarshalText()
	if err != nil {
		return opWire[A]{}, err
	}
	return opWire[A]{Actor: op.Dot.Actor, Counter: op.Dot.Counter, Dir: string(dir)}, nil
}

func (op *Op[A]) fromWire(w opWire[A]) error {
	// Actors count their operations from 1.
	if w.Counter == 0 {
		return fmt.Errorf("%w: %v", ErrZeroCounter, w.Actor)
	}
	var dir Dir
	if err := dir.UnmarshalText([]byte(w.Dir)); err != nil {
		return err
	}
	*op = Op[A]{Dot: Dot[A]{Actor: w.Actor, Counter: w.Counter}, Dir: dir}
	return nil
}

func (op Op[A]) MarshalJSON() ([]byte, error) {
	w, err := op.wire()
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func (op *Op[A]) UnmarshalJSON(bs []byte) error {
	var w opWire[A]
	if err := json.Unmarshal(bs, &w); err != nil {
		return err
	}
	return op.fromWire(w)
}

func (op Op[A]) EncodeMsgpack(enc *msgpack.Encoder) error {
	w, err := op.wire()
	if err != nil {
		return err
	}
	return enc.Encode(w)
}

func (op *Op[A]) DecodeMsgpack(dec *msgpack.Decoder) error {
	var w opWire[A]
	if err := dec.Decode(&w); err != nil {
		return err
	}
	return op.fromWire(w)
}

// +-----------+
// | Transport |
// +-----------+

// EncodeOp serializes an operation in msgpack format.
func EncodeOp[A Actor](op Op[A]) ([]byte, error) {
	return msgpack.Marshal(op)
}

// DecodeOp parses an operation serialized by EncodeOp.
func DecodeOp[A Actor](bs []byte) (Op[A], error) {
	dec, err := newPayloadDecoder(bs)
	if err != nil {
		return Op[A]{}, fmt.Errorf("decoding op: %w", err)
	}
	var op Op[A]
	if err := dec.Decode(&op); err != nil {
		return Op[A]{}, fmt.Errorf("decoding op: %w", err)
	}
	return op, nil
}

// EncodeState serializes the full state of a counter in msgpack format.
func EncodeState[A Actor](c *PNCounter[A]) ([]byte, error) {
	return msgpack.Marshal(c)
}

// DecodeState parses a counter state serialized by EncodeState.
func DecodeState[A Actor](bs []byte) (*PNCounter[A], error) {
	dec, err := newPayloadDecoder(bs)
	if err != nil {
		return nil, fmt.Errorf("decoding state: %w", err)
	}
	c := NewPNCounter[A]()
	if err := dec.Decode(c); err != nil {
		return nil, fmt.Errorf("decoding state: %w", err)
	}
	return c, nil
}

// newPayloadDecoder returns a decoder positioned at the payload's single value.
// msgpack decodes nil into a zero value without calling DecodeMsgpack, so an empty or
// nil payload is rejected here.
func newPayloadDecoder(bs []byte) (*msgpack.Decoder, error) {
	if len(bs) == 0 {
		return nil, ErrEmptyPayload
	}
	dec := msgpack.NewDecoder(bytes.NewReader(bs))
	code, err := dec.PeekCode()
	if err != nil {
		return nil, err
	}
	if code == msgpcode.Nil {
		return nil, ErrEmptyPayload
	}
	return dec, nil
}
