package messages

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestDistance_EncodesPositionally(t *testing.T) {
	b, err := msgpack.Marshal(Distance{RawMM: 1, CalibratedMM: 2})
	require.NoError(t, err)

	// fixarray of two elements, no field names on the wire
	assert.Equal(t, byte(0x92), b[0])
	assert.NotContains(t, string(b), "RawMM")

	var fields []float64
	require.NoError(t, msgpack.Unmarshal(b, &fields))
	assert.Equal(t, []float64{1, 2}, fields)
}

func TestStatus_PayloadIsLastField(t *testing.T) {
	msg := "lens dirty"
	in := VolumeStatus{
		SourceID:       "volume-1",
		SeqNo:          7,
		PubTimestampNs: 1700000000000000000,
		State:          StateError,
		ReturnCode:     -3,
		ErrorMessage:   &msg,
		Payload:        Volume{Width: 1.5, Height: 2, Depth: 3, Distance: 4},
	}

	b, err := msgpack.Marshal(in)
	require.NoError(t, err)

	var raw []any
	require.NoError(t, msgpack.Unmarshal(b, &raw))
	require.Len(t, raw, 7)
	assert.Equal(t, "volume-1", raw[0])
	assert.Equal(t, "lens dirty", raw[5])
	assert.Len(t, raw[6], 4)

	var out VolumeStatus
	require.NoError(t, msgpack.Unmarshal(b, &out))
	assert.Equal(t, in.Payload, out.Payload)
	assert.Equal(t, "lens dirty", *out.ErrorMessage)
	assert.False(t, out.OK())
}

func TestStatus_NilErrorMessage(t *testing.T) {
	b, err := msgpack.Marshal(TagScanStatus{SourceID: "rfid", Payload: TagScan{Tags: []TagRead{{TagID: "E200", RSSI: -41.5, ReadCount: 3, Antenna: 2}}}})
	require.NoError(t, err)

	var out TagScanStatus
	require.NoError(t, msgpack.Unmarshal(b, &out))
	assert.Nil(t, out.ErrorMessage)
	require.Len(t, out.Payload.Tags, 1)
	assert.Equal(t, "E200", out.Payload.Tags[0].TagID)
	assert.True(t, out.OK())
}

func TestTabletEnvelope_JSON(t *testing.T) {
	frame := `{"res":2,"driver_instance_id":1,"seq_no":9,"pub_timestamp":1700000000000,"command":3,"measure":1,"work_type":2,"payload":{"fork_height_mm":740,"fork_forward_mm":1200,"note":"hello_tablet"}}`

	var env TabletEnvelope
	require.NoError(t, json.Unmarshal([]byte(frame), &env))
	assert.Equal(t, 2, env.Res)
	assert.Equal(t, uint64(9), env.SeqNo)
	assert.Equal(t, 2, env.WorkType)
	require.NotNil(t, env.Payload)
	assert.Equal(t, 740, env.Payload.ForkHeightMM)
	assert.Nil(t, env.Products)
	assert.Nil(t, env.Message)
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "ok", StateOK.String())
	assert.Equal(t, "empty", StateEmpty.String())
	assert.Equal(t, "error", StateError.String())
	assert.Equal(t, "unknown", DriverState(9).String())

	assert.Equal(t, "hold", ActionHold.String())
	assert.Equal(t, "pick", ActionPick.String())
	assert.Equal(t, "drop", ActionDrop.String())
	assert.Equal(t, "unknown", Action(9).String())
}
