package engine

import (
	"testing"

	"ariac-fulfillment/internal/types"

	"github.com/stretchr/testify/assert"
)

func order(id string, high bool) *types.Order {
	return &types.Order{ID: id, Kind: types.KindKitting, Priority: high, Kitting: &types.KittingTask{Carrier: 1}}
}

func TestOrderStore_Insert(t *testing.T) {
	tests := []struct {
		name     string
		existing []*types.Order
		arrival  *types.Order
		want     []string
	}{
		{
			name:     "high jumps ahead of normal run",
			existing: []*types.Order{order("N1", false), order("N2", false)},
			arrival:  order("H", true),
			want:     []string{"H", "N1", "N2"},
		},
		{
			name:     "normal always appends",
			existing: []*types.Order{order("H1", true), order("N1", false)},
			arrival:  order("N2", false),
			want:     []string{"H1", "N1", "N2"},
		},
		{
			name:     "high appends when tail is high",
			existing: []*types.Order{order("H1", true)},
			arrival:  order("H2", true),
			want:     []string{"H1", "H2"},
		},
		{
			name:     "high keeps FIFO among highs",
			existing: []*types.Order{order("H1", true), order("N1", false)},
			arrival:  order("H2", true),
			want:     []string{"H1", "H2", "N1"},
		},
		{
			name:    "empty queue",
			arrival: order("H", true),
			want:    []string{"H"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewOrderStore()
			for _, o := range tt.existing {
				s.orders = append(s.orders, o)
			}
			s.Insert(tt.arrival)
			assert.Equal(t, tt.want, s.IDs())
		})
	}
}

func TestOrderStore_PeekPop(t *testing.T) {
	s := NewOrderStore()
	assert.Nil(t, s.Peek())
	assert.Nil(t, s.Pop())

	s.Insert(order("N1", false))
	s.Insert(order("H1", true))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, "H1", s.Peek().ID)
	assert.Equal(t, "H1", s.Pop().ID)
	assert.Equal(t, "N1", s.Pop().ID)
	assert.Equal(t, 0, s.Len())
}
