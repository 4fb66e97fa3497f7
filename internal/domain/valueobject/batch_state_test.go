package valueobject

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBatchState(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    BatchState
		wantErr bool
	}{
		{name: "in_progress is valid", input: "in_progress", want: BatchStateInProgress},
		{name: "ended is valid", input: "ended", want: BatchStateEnded},
		{name: "expired is valid", input: "expired", want: BatchStateExpired},
		{name: "cancelled is valid", input: "cancelled", want: BatchStateCancelled},
		{name: "unknown state is rejected", input: "finished", wantErr: true},
		{name: "empty state is rejected", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewBatchState(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBatchStateIsTerminal(t *testing.T) {
	assert.False(t, BatchStateInProgress.IsTerminal())
	assert.True(t, BatchStateEnded.IsTerminal())
	assert.True(t, BatchStateExpired.IsTerminal())
	assert.True(t, BatchStateCancelled.IsTerminal())
}

func TestBatchStateIsAbandoned(t *testing.T) {
	assert.False(t, BatchStateInProgress.IsAbandoned())
	assert.False(t, BatchStateEnded.IsAbandoned())
	assert.True(t, BatchStateExpired.IsAbandoned())
	assert.True(t, BatchStateCancelled.IsAbandoned())
}
