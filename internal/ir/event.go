package ir

import "fmt"

// Event classifies the node at the current FormIndex.
type Event int

const (
	EventBeginningOfForm Event = iota
	EventQuestion
	EventGroup
	EventRepeat
	EventPromptNewRepeat
	EventRepeatJuncture
	EventEndOfForm
)

var eventNames = [...]string{
	EventBeginningOfForm: "beginning_of_form",
	EventQuestion:        "question",
	EventGroup:           "group",
	EventRepeat:          "repeat",
	EventPromptNewRepeat: "prompt_new_repeat",
	EventRepeatJuncture:  "repeat_juncture",
	EventEndOfForm:       "end_of_form",
}

func (e Event) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return fmt.Sprintf("event(%d)", int(e))
	}
	return eventNames[e]
}

// MarshalText implements encoding.TextMarshaler.
func (e Event) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// ParseEvent maps a name produced by String back to an Event.
func ParseEvent(s string) (Event, error) {
	for i, name := range eventNames {
		if name == s {
			return Event(i), nil
		}
	}
	return 0, fmt.Errorf("unknown event %q", s)
}

// Direction is the direction of a navigation step.
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}
