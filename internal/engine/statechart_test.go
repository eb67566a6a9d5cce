package engine

import (
	"testing"

	"github.com/felixgeelhaar/statekit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelter/internal/domain"
)

func TestAdoptionChartTransitions(t *testing.T) {
	chart := mustAdoptionChart()
	cases := []struct {
		from string
		ev   statekit.EventType
		to   string
	}{
		{domain.AdoptionPending, evApprove, domain.AdoptionApproved},
		{domain.AdoptionPending, evReject, domain.AdoptionRejected},
		{domain.AdoptionApproved, evReturn, domain.AdoptionReturned},
		{domain.AdoptionApproved, evReject, domain.AdoptionRejected},
		{domain.AdoptionRejected, evReject, domain.AdoptionRejected},
	}
	for _, tc := range cases {
		got, err := chart.next(tc.from, tc.ev)
		require.NoError(t, err, "%s on %s", tc.ev, tc.from)
		assert.Equal(t, tc.to, got, "%s on %s", tc.ev, tc.from)
	}
}

func TestAdoptionChartRefusals(t *testing.T) {
	chart := mustAdoptionChart()
	cases := []struct {
		from string
		ev   statekit.EventType
	}{
		{domain.AdoptionPending, evReturn},
		{domain.AdoptionApproved, evApprove},
		{domain.AdoptionRejected, evApprove},
		{domain.AdoptionRejected, evReturn},
		{domain.AdoptionReturned, evApprove},
		{domain.AdoptionReturned, evReject},
		{domain.AdoptionReturned, evReturn},
		{"archived", evApprove},
	}
	for _, tc := range cases {
		_, err := chart.next(tc.from, tc.ev)
		assert.ErrorIs(t, err, ErrInvalidState, "%s on %s", tc.ev, tc.from)
	}
}
