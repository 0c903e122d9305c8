package queue

import "slices"

type Action string

const (
	ActionCall   Action = "call"
	ActionFinish Action = "finish"
	ActionCancel Action = "cancel"
	ActionEdit   Action = "edit"
)

var transitionMap = map[Action][]Status{
	ActionCall:   {StatusWaiting},
	ActionFinish: {StatusServing},
	ActionCancel: {StatusWaiting, StatusServing},
	ActionEdit:   {StatusWaiting},
}

func ValidTransition(action Action, from Status) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	return slices.Contains(allowed, from)
}
