package corpus

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Outcome classifies how a generated program ran.
type Outcome string

const (
	OutcomeOK            Outcome = "ok"
	OutcomeUnderflow     Outcome = "underflow"
	OutcomeOverflow      Outcome = "overflow"
	OutcomeUnimplemented Outcome = "unimplemented"
	OutcomeAssert        Outcome = "assert"
	OutcomeUnsafe        Outcome = "unsafe" // rejected by the verifier
	OutcomeError         Outcome = "error"
)

// Entry is one generated program and the result of running it.
type Entry struct {
	ID        string  `cbor:"1,keyasint"`
	Seed      int64   `cbor:"2,keyasint"`
	Code      []byte  `cbor:"3,keyasint"`
	Required  []byte  `cbor:"4,keyasint,omitempty"`
	Inserted  int     `cbor:"5,keyasint"`
	Outcome   Outcome `cbor:"6,keyasint"`
	Steps     int     `cbor:"7,keyasint"`
	Error     string  `cbor:"8,keyasint,omitempty"`
	Report    *Report `cbor:"9,keyasint,omitempty"`
	CreatedAt int64   `cbor:"10,keyasint"` // unix nanoseconds
}

// Report summarises the generation bounds of a program.
type Report struct {
	Length     int  `cbor:"1,keyasint"`
	Branches   int  `cbor:"2,keyasint"`
	Restricted int  `cbor:"3,keyasint"` // positions a branch constrained
	MaxUpper   int  `cbor:"4,keyasint"` // highest possible stack depth
	Covered    bool `cbor:"5,keyasint"` // required sequence ran in full
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("corpus: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalEntry serializes an Entry to canonical CBOR, the fixture format.
func MarshalEntry(e *Entry) ([]byte, error) {
	return cborEncMode.Marshal(e)
}

// UnmarshalEntry deserializes an Entry from CBOR bytes.
func UnmarshalEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := cbor.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("corpus: unmarshal entry: %w", err)
	}
	return &e, nil
}

func marshalReport(r *Report) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	return cborEncMode.Marshal(r)
}

func unmarshalReport(data []byte) (*Report, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var r Report
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("corpus: unmarshal report: %w", err)
	}
	return &r, nil
}
