package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveCounterparty(t *testing.T) {
	tests := []struct {
		name      string
		direction string
		from      string
		to        string
		want      string
	}{
		{
			name:      "inbound indexes by sender",
			direction: DirectionInbound,
			from:      "+15550002222",
			to:        "+15550001111",
			want:      "+15550002222",
		},
		{
			name:      "outbound api indexes by recipient",
			direction: DirectionOutboundAPI,
			from:      "+15550001111",
			to:        "+15005550006",
			want:      "+15005550006",
		},
		{
			name:      "other outbound directions index by recipient",
			direction: "outbound-reply",
			from:      "+15550001111",
			to:        "+15005550006",
			want:      "+15005550006",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveCounterparty(tt.direction, tt.from, tt.to))
		})
	}
}
