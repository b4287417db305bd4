package purchase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionTable(t *testing.T) {
	all := []Status{StatusDraft, StatusSent, StatusConfirmed, StatusShipping, StatusShipped, StatusReceived, StatusCancelled}
	allowed := map[Status][]Status{
		StatusDraft:     {StatusSent, StatusShipping, StatusCancelled},
		StatusSent:      {StatusConfirmed, StatusShipping, StatusReceived, StatusCancelled},
		StatusConfirmed: {StatusShipping, StatusCancelled},
		StatusShipping:  {StatusShipped, StatusCancelled},
		StatusShipped:   {StatusReceived, StatusCancelled},
	}
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
	assert.True(t, StatusReceived.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusShipped.Terminal())
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("shipped")
	assert.NoError(t, err)
	assert.Equal(t, StatusShipped, s)

	_, err = ParseStatus("lost")
	assert.Error(t, err)
}
