package shape

import (
	"encoding/json"
	"fmt"
)

// Op identifies what an edit payload does to a canvas.
type Op int

const (
	OpAppend Op = iota + 1
	OpErase
	OpReplace
)

func (o Op) String() string {
	switch o {
	case OpAppend:
		return "append"
	case OpErase:
		return "erase"
	case OpReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Payload is the body of a chat edit event. Exactly one of the three forms is
// populated, reported by Op.
type Payload struct {
	op     Op
	Shape  Shape
	Erased []int
	Shapes []Shape
}

// Append builds a payload that appends s to the canvas.
func Append(s Shape) Payload {
	return Payload{op: OpAppend, Shape: s}
}

// Erase builds a payload that removes the shapes at the given indices.
func Erase(indices ...int) Payload {
	return Payload{op: OpErase, Erased: append([]int(nil), indices...)}
}

// Replace builds an undo payload that replaces the whole canvas.
func Replace(shapes []Shape) Payload {
	return Payload{op: OpReplace, Shapes: CloneAll(shapes)}
}

func (p Payload) Op() Op { return p.op }

type appendWire struct {
	Shape json.RawMessage `json:"shape"`
}

type eraseWire struct {
	Erased []int `json:"erased"`
}

type replaceWire struct {
	Undo   bool              `json:"undo"`
	Shapes []json.RawMessage `json:"shapes"`
}

type payloadWire struct {
	Shape  json.RawMessage    `json:"shape"`
	Erased *[]int             `json:"erased"`
	Undo   bool               `json:"undo"`
	Shapes *[]json.RawMessage `json:"shapes"`
}

// EncodePayload renders p as the string carried in a chat message.
func EncodePayload(p Payload) (string, error) {
	var v any
	switch p.op {
	case OpAppend:
		raw, err := Encode(p.Shape)
		if err != nil {
			return "", err
		}
		v = appendWire{Shape: raw}
	case OpErase:
		erased := p.Erased
		if erased == nil {
			erased = []int{}
		}
		v = eraseWire{Erased: erased}
	case OpReplace:
		shapes := make([]json.RawMessage, 0, len(p.Shapes))
		for _, s := range p.Shapes {
			raw, err := Encode(s)
			if err != nil {
				return "", err
			}
			shapes = append(shapes, raw)
		}
		v = replaceWire{Undo: true, Shapes: shapes}
	default:
		return "", fmt.Errorf("%w: empty payload", ErrShapeDecode)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodePayload parses a chat message string into a payload. Any malformed
// shape inside fails the whole payload.
func DecodePayload(msg string) (Payload, error) {
	var w payloadWire
	if err := json.Unmarshal([]byte(msg), &w); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrShapeDecode, err)
	}
	switch {
	case w.Undo:
		if w.Shapes == nil {
			return Payload{}, fmt.Errorf("%w: undo without shapes", ErrShapeDecode)
		}
		shapes := make([]Shape, 0, len(*w.Shapes))
		for i, raw := range *w.Shapes {
			s, err := Decode(raw)
			if err != nil {
				return Payload{}, fmt.Errorf("%w: shapes[%d]: %w", ErrShapeDecode, i, err)
			}
			shapes = append(shapes, s)
		}
		return Payload{op: OpReplace, Shapes: shapes}, nil
	case len(w.Shape) > 0 && string(w.Shape) != "null":
		s, err := Decode(w.Shape)
		if err != nil {
			return Payload{}, fmt.Errorf("%w: %w", ErrShapeDecode, err)
		}
		return Append(s), nil
	case w.Erased != nil:
		for _, idx := range *w.Erased {
			if idx < 0 {
				return Payload{}, fmt.Errorf("%w: negative erase index %d", ErrShapeDecode, idx)
			}
		}
		return Erase(*w.Erased...), nil
	default:
		return Payload{}, fmt.Errorf("%w: no shape, erased or undo field", ErrShapeDecode)
	}
}
