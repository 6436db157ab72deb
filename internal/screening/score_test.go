package screening

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore_EmptyOperands(t *testing.T) {
	assert.Equal(t, 0.0, Score("", "acme"))
	assert.Equal(t, 0.0, Score("acme", ""))
	assert.Equal(t, 0.0, Score("", ""))
}

func TestScore_ExactMatch(t *testing.T) {
	assert.Equal(t, 1.0, Score("acme", "acme"))
	assert.Equal(t, 1.0, Score("acme holdings", "acme holdings"))
}

func TestScore_ReflexiveAfterNormalization(t *testing.T) {
	n := NewWesternNormalizer()
	for _, raw := range []string{"Acme Inc", "Zenith Partners Ltd", "Gazprom"} {
		q := n.Normalize(raw)
		assert.Equal(t, 1.0, Score(q, q), "raw=%q", raw)
	}
}

func TestScore_ContainmentIsExactlyPointNine(t *testing.T) {
	n := NewWesternNormalizer()

	// Containment is a fixed bonus, not proportional to length difference.
	q := n.Normalize("Acme")
	c := n.Normalize("Acme Holdings Group")
	assert.Equal(t, 0.9, Score(q, c))
	assert.Equal(t, 0.9, Score(c, q))
}

func TestScore_Symmetry(t *testing.T) {
	n := NewWesternNormalizer()

	// Containment tier.
	a := n.Normalize("Acme Inc")
	b := n.Normalize("ACME Holdings")
	assert.Equal(t, Score(a, b), Score(b, a))

	// Jaccard tier.
	x := "acme global trading"
	y := "acme trading partners"
	assert.Equal(t, Score(x, y), Score(y, x))
}

func TestScore_JaccardWordOverlap(t *testing.T) {
	// intersection {acme, trading} = 2, union {acme, global, trading,
	// partners} = 4.
	assert.InDelta(t, 0.5, Score("acme global trading", "acme trading partners"), 1e-9)
}

func TestScore_DisjointNames(t *testing.T) {
	n := NewWesternNormalizer()
	assert.Equal(t, 0.0, Score(n.Normalize("Acme Corp"), n.Normalize("Zenith Partners")))
}

func TestScore_TiersNotBlended(t *testing.T) {
	// Exact equality wins over containment.
	assert.Equal(t, 1.0, Score("acme", "acme"))

	// Containment wins over Jaccard even when Jaccard would be higher than
	// overlap suggests.
	assert.Equal(t, 0.9, Score("acme", "acme holdings"))
}

func TestRoundScore(t *testing.T) {
	assert.Equal(t, 0.67, RoundScore(2.0/3.0))
	assert.Equal(t, 0.9, RoundScore(0.9))
	assert.Equal(t, 1.0, RoundScore(1.0))
}
