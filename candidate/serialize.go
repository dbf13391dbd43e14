// ABOUTME: Candidate serialization across text (json), xml and binary (gob)
// ABOUTME: Round-trips parameters, fitness cache, bookkeeping and personality

package candidate

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"encoding/xml"
	"fmt"
)

// SerializationMode selects the wire codec for a candidate payload. The
// mode is agreed per port at construction; peers never negotiate per item.
type SerializationMode int

const (
	ModeText SerializationMode = iota
	ModeXML
	ModeBinary
)

// ParseSerializationMode maps the configuration spelling onto a mode.
func ParseSerializationMode(s string) (SerializationMode, error) {
	switch s {
	case "text":
		return ModeText, nil
	case "xml":
		return ModeXML, nil
	case "binary":
		return ModeBinary, nil
	default:
		return 0, fmt.Errorf("unknown serialization mode %q (want text, xml or binary)", s)
	}
}

// String returns the configuration spelling.
func (m SerializationMode) String() string {
	switch m {
	case ModeText:
		return "text"
	case ModeXML:
		return "xml"
	case ModeBinary:
		return "binary"
	default:
		return fmt.Sprintf("SerializationMode(%d)", int(m))
	}
}

// envelope is the exported wire form of a candidate. The personality
// travels as a tag plus at most one concrete variant, so the same envelope
// works for all three codecs.
type envelope struct {
	XMLName xml.Name `json:"-" xml:"candidate"`

	Floats      []float64
	FloatBounds []FloatRange
	Ints        []int32
	IntBounds   []IntRange
	Bools       []bool
	Adaptors    Adaptors

	State      int
	Dirty      bool
	ServerMode bool
	Maximize   bool

	Primary    float64
	Secondary  []float64
	NSecondary int

	AdaptionCount     uint64
	AssignedIteration uint32
	NStalls           uint32
	BestKnownFitness  float64

	EvaluatorName string
	Courtier      CourtierID

	PersonalityTag string            `json:",omitempty"`
	EATraits       *EAPersonality    `json:",omitempty"`
	SATraits       *SAPersonality    `json:",omitempty"`
	SwarmTraits    *SwarmPersonality `json:",omitempty"`
	ScanTraits     *ScanPersonality  `json:",omitempty"`
	GDTraits       *GDPersonality    `json:",omitempty"`
}

// toEnvelope flattens the candidate into its wire form.
func (c *Candidate) toEnvelope() envelope {
	env := envelope{
		Floats:            c.params.Floats,
		FloatBounds:       c.params.FloatBounds,
		Ints:              c.params.Ints,
		IntBounds:         c.params.IntBounds,
		Bools:             c.params.Bools,
		Adaptors:          c.params.Adapt,
		State:             int(c.state),
		Dirty:             c.dirty,
		ServerMode:        c.serverMode,
		Maximize:          c.maximize,
		Primary:           c.primary,
		Secondary:         c.secondary,
		NSecondary:        c.nSecondary,
		AdaptionCount:     c.adaptionCount,
		AssignedIteration: c.AssignedIteration,
		NStalls:           c.NStalls,
		BestKnownFitness:  c.BestKnownFitness,
		EvaluatorName:     c.EvaluatorName,
		Courtier:          c.Courtier,
	}

	switch p := c.personality.(type) {
	case *EAPersonality:
		env.PersonalityTag = p.Mnemonic()
		env.EATraits = p
	case *SAPersonality:
		env.PersonalityTag = p.Mnemonic()
		env.SATraits = p
	case *SwarmPersonality:
		env.PersonalityTag = p.Mnemonic()
		env.SwarmTraits = p
	case *ScanPersonality:
		env.PersonalityTag = p.Mnemonic()
		env.ScanTraits = p
	case *GDPersonality:
		env.PersonalityTag = p.Mnemonic()
		env.GDTraits = p
	}

	return env
}

// fromEnvelope restores the candidate from its wire form.
func (c *Candidate) fromEnvelope(env envelope) error {
	c.params = &ParameterSet{
		Floats:      env.Floats,
		FloatBounds: env.FloatBounds,
		Ints:        env.Ints,
		IntBounds:   env.IntBounds,
		Bools:       env.Bools,
		Adapt:       env.Adaptors,
	}
	c.state = ProcessingState(env.State)
	c.dirty = env.Dirty
	c.serverMode = env.ServerMode
	c.maximize = env.Maximize
	c.primary = env.Primary
	c.secondary = env.Secondary
	c.nSecondary = env.NSecondary
	c.adaptionCount = env.AdaptionCount
	c.AssignedIteration = env.AssignedIteration
	c.NStalls = env.NStalls
	c.BestKnownFitness = env.BestKnownFitness
	c.EvaluatorName = env.EvaluatorName
	c.Courtier = env.Courtier

	switch env.PersonalityTag {
	case "":
		c.personality = nil
	case "ea":
		c.personality = env.EATraits
	case "sa":
		c.personality = env.SATraits
	case "swarm":
		c.personality = env.SwarmTraits
	case "ps":
		c.personality = env.ScanTraits
	case "gd":
		c.personality = env.GDTraits
	default:
		return fmt.Errorf("unknown personality tag %q", env.PersonalityTag)
	}

	return nil
}

// Marshal serializes the full candidate in the given mode.
func (c *Candidate) Marshal(mode SerializationMode) ([]byte, error) {
	env := c.toEnvelope()

	switch mode {
	case ModeText:
		return json.Marshal(env)
	case ModeXML:
		return xml.Marshal(env)
	case ModeBinary:
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(env); err != nil {
			return nil, fmt.Errorf("gob encode: %w", err)
		}

		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown serialization mode %d", int(mode))
	}
}

// Unmarshal restores a candidate serialized with Marshal in the same mode.
func Unmarshal(mode SerializationMode, data []byte) (*Candidate, error) {
	var env envelope

	switch mode {
	case ModeText:
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("json decode: %w", err)
		}
	case ModeXML:
		if err := xml.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("xml decode: %w", err)
		}
	case ModeBinary:
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&env); err != nil {
			return nil, fmt.Errorf("gob decode: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown serialization mode %d", int(mode))
	}

	c := &Candidate{}
	if err := c.fromEnvelope(env); err != nil {
		return nil, err
	}

	return c, nil
}
