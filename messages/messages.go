// Package messages defines the records exchanged by the controller.
//
// Bus records are encoded positionally: every struct carries the msgpack
// as_array tag, so field order is the wire schema. Reordering or inserting
// fields breaks compatibility with deployed drivers. Append only.
package messages

// Topic names used on the bus.
const (
	TopicTagScan  = "tag_scan"
	TopicDistance = "distance"
	TopicVolume   = "volume"
	TopicCommand  = "command"
)

// DriverState is the health reported by a sensor driver with each sample.
type DriverState uint8

// Driver states.
const (
	StateOK DriverState = iota
	StateEmpty
	StateError
)

// String returns the state name.
func (s DriverState) String() string {
	switch s {
	case StateOK:
		return "ok"
	case StateEmpty:
		return "empty"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is the envelope every sensor driver publishes. P is the
// sensor-specific payload and is always the last field.
type Status[P any] struct {
	_msgpack struct{} `msgpack:",as_array"`

	SourceID       string
	SeqNo          uint64
	PubTimestampNs int64
	State          DriverState
	ReturnCode     int32
	ErrorMessage   *string
	Payload        P
}

// OK reports whether the driver produced a usable sample.
func (s Status[P]) OK() bool {
	return s.State == StateOK
}

// TagRead is one RFID tag observation.
type TagRead struct {
	_msgpack struct{} `msgpack:",as_array"`

	TagID       string
	RSSI        float32
	ReadCount   uint32
	Antenna     uint8
	TimestampNs int64
}

// TagScan is the result of one RFID inventory round.
type TagScan struct {
	_msgpack struct{} `msgpack:",as_array"`

	Tags []TagRead
}

// Distance is a single range measurement.
type Distance struct {
	_msgpack struct{} `msgpack:",as_array"`

	RawMM        float64
	CalibratedMM float64
}

// Volume is a volumetric measurement of the load.
type Volume struct {
	_msgpack struct{} `msgpack:",as_array"`

	Width    float64
	Height   float64
	Depth    float64
	Distance float64
}

// Status records per sensor.
type (
	TagScanStatus  = Status[TagScan]
	DistanceStatus = Status[Distance]
	VolumeStatus   = Status[Volume]
)
