package queue

import "testing"

func TestValidTransition(t *testing.T) {
	tests := []struct {
		action Action
		from   Status
		want   bool
	}{
		{ActionCall, StatusWaiting, true},
		{ActionCall, StatusServing, false},
		{ActionCall, StatusFinished, false},
		{ActionFinish, StatusServing, true},
		{ActionFinish, StatusWaiting, false},
		{ActionCancel, StatusWaiting, true},
		{ActionCancel, StatusServing, true},
		{ActionCancel, StatusFinished, false},
		{ActionCancel, StatusCanceled, false},
		{ActionEdit, StatusWaiting, true},
		{ActionEdit, StatusServing, false},
		{Action("unknown"), StatusWaiting, false},
	}

	for _, tt := range tests {
		if got := ValidTransition(tt.action, tt.from); got != tt.want {
			t.Errorf("ValidTransition(%s, %s) = %v, want %v", tt.action, tt.from, got, tt.want)
		}
	}
}
