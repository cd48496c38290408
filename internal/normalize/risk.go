package normalize

import "github.com/nao1215/vulnmerge/internal/model"

// RiskNormalizer maps source risk labels onto the severity scale.
type RiskNormalizer struct {
	tokens map[string]model.Severity
}

// NewRiskNormalizer builds a normalizer from a vocabulary. Tokens are folded
// so lookups ignore case and width.
func NewRiskNormalizer(v model.Vocabulary) *RiskNormalizer {
	n := &RiskNormalizer{tokens: make(map[string]model.Severity, len(v))}
	for token, s := range v {
		n.tokens[FoldToken(token)] = s
	}
	return n
}

// Normalize returns the level of token. The second result is false when the
// token is not in the vocabulary, in which case the level is SeverityUnknown.
func (n *RiskNormalizer) Normalize(token string) (model.Severity, bool) {
	s, ok := n.tokens[FoldToken(token)]
	if !ok {
		return model.SeverityUnknown, false
	}
	return s, true
}
