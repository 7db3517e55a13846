package messages

// Action is the actuator instruction emitted by the decision loop.
type Action uint8

// Actions.
const (
	ActionHold Action = iota
	ActionPick
	ActionDrop
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionHold:
		return "hold"
	case ActionPick:
		return "pick"
	case ActionDrop:
		return "drop"
	default:
		return "unknown"
	}
}

// Command is published on TopicCommand.
type Command struct {
	_msgpack struct{} `msgpack:",as_array"`

	SeqNo          uint64
	PubTimestampNs int64
	Action         Action
	Reason         string
}
