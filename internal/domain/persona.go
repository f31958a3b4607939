package domain

import "strings"

// Tone values.
const (
	ToneNeutral   = "neutral"
	ToneSarcastic = "sarcastic"
)

// Detail values.
const (
	DetailNormal   = "normal"
	DetailDetailed = "detailed"
)

// Persona controls how the assistant phrases its answers.
// It is passed explicitly to every generator call.
type Persona struct {
	Tone   string `json:"tone" mapstructure:"tone"`
	Detail string `json:"detail" mapstructure:"detail"`
}

// DefaultPersona is the persona used when nothing is configured.
func DefaultPersona() Persona {
	return Persona{Tone: ToneSarcastic, Detail: DetailNormal}
}

// ApplyFeedback returns the persona adjusted by feedback phrases found in text,
// and whether anything changed.
func (p Persona) ApplyFeedback(text string) (Persona, bool) {
	lower := strings.ToLower(text)
	next := p
	if strings.Contains(lower, "more detail") {
		next.Detail = DetailDetailed
	}
	if strings.Contains(lower, "less detail") {
		next.Detail = DetailNormal
	}
	if strings.Contains(lower, "less sarcasm") {
		next.Tone = ToneNeutral
	}
	if strings.Contains(lower, "more sarcasm") {
		next.Tone = ToneSarcastic
	}
	return next, next != p
}

// Describe renders the persona as a short instruction fragment.
func (p Persona) Describe() string {
	var sb strings.Builder
	switch p.Tone {
	case ToneNeutral:
		sb.WriteString("Answer in a plain, neutral tone.")
	default:
		sb.WriteString("Answer with a sarcastic, witty tone.")
	}
	if p.Detail == DetailDetailed {
		sb.WriteString(" Give detailed explanations.")
	} else {
		sb.WriteString(" Keep answers short.")
	}
	return sb.String()
}
