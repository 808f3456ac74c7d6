package harvest

import (
	"testing"

	"github.com/qepting91/review-harvester/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestDeduplicatorAdmitsOnce(t *testing.T) {
	st := NewState()
	d := NewDeduplicator(st, IdentityExplicit, discardLogger)
	records := makeRecords(5)

	for _, r := range records {
		assert.True(t, d.Accept(r))
	}
	for _, r := range records {
		assert.False(t, d.Accept(r), "replayed %s", r.ID)
	}

	assert.Len(t, st.Seen, 5)
	assert.Len(t, st.Pending, 5)
}

func TestDeduplicatorIdentityIsSoleCriterion(t *testing.T) {
	st := NewState()
	d := NewDeduplicator(st, IdentityExplicit, discardLogger)

	a := domain.Record{ID: "gp:1", Author: "Ann", Text: "same", Date: "2024-01-01T00:00:00Z"}
	b := a
	b.ID = "gp:AAA-1"

	assert.True(t, d.Accept(a))
	assert.True(t, d.Accept(b))
	assert.Len(t, st.Seen, 2)
}

func TestDeduplicatorStructuralMode(t *testing.T) {
	st := NewState()
	d := NewDeduplicator(st, IdentityStructural, discardLogger)

	a := domain.Record{ID: "1", Author: "Ann", Text: "same", Date: "2024-01-01T00:00:00Z"}
	b := a
	b.ID = "2"
	c := a
	c.Text = "different"

	assert.True(t, d.Accept(a))
	assert.False(t, d.Accept(b))
	assert.True(t, d.Accept(c))
}

func TestDeduplicatorExplicitWithoutID(t *testing.T) {
	st := NewState()
	d := NewDeduplicator(st, IdentityExplicit, discardLogger)

	r := domain.Record{Author: "Ann", Text: "no id"}
	assert.Equal(t, domain.StructuralKey(r), d.Identity(r))
	assert.True(t, d.Accept(r))
	assert.False(t, d.Accept(r))
}

func TestDeduplicatorSeed(t *testing.T) {
	st := NewState()
	d := NewDeduplicator(st, IdentityExplicit, discardLogger)
	records := makeRecords(3)

	assert.Equal(t, 3, d.Seed(append(records, records[0])))
	assert.Empty(t, st.Pending)
	assert.False(t, d.Accept(records[1]))
}

func TestKeyFunc(t *testing.T) {
	r := domain.Record{ID: "gp:1", Author: "Ann", Text: "hi"}
	assert.Equal(t, "gp:1", KeyFunc(IdentityExplicit)(r))
	assert.Equal(t, "gp:1", KeyFunc("")(r))
	assert.Equal(t, domain.StructuralKey(r), KeyFunc(IdentityStructural)(r))

	r.ID = ""
	assert.Equal(t, domain.StructuralKey(r), KeyFunc(IdentityExplicit)(r))
}
