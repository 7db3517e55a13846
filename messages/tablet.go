package messages

// TabletEnvelope is one JSON frame from the operator tablet. Res is the
// discriminator every frame must carry as a number.
type TabletEnvelope struct {
	Res              int            `json:"res"`
	DriverInstanceID int            `json:"driver_instance_id,omitempty"`
	SeqNo            uint64         `json:"seq_no,omitempty"`
	PubTimestamp     int64          `json:"pub_timestamp,omitempty"`
	Command          int            `json:"command,omitempty"`
	Products         *[]ProductScan `json:"products,omitempty"`
	Message          *string        `json:"message,omitempty"`
	WorkType         int            `json:"work_type"`
	Measure          int            `json:"measure"`
	ZeroSet          int            `json:"zero_set"`
	Enabled          int            `json:"enabled"`
	Misloading       int            `json:"misloading"`
	Payload          *TabletPayload `json:"payload,omitempty"`
}

// ProductScan is one barcode read on the tablet.
type ProductScan struct {
	Barcode  string `json:"barcode"`
	Quantity int    `json:"quantity"`
}

// TabletPayload carries the fork position reported with a tablet frame.
type TabletPayload struct {
	ForkHeightMM  int    `json:"fork_height_mm"`
	ForkForwardMM int    `json:"fork_forward_mm"`
	Note          string `json:"note,omitempty"`
}

// TabletDiscriminator is the field every tablet frame must carry.
const TabletDiscriminator = "res"
