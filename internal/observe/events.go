package observe

// EventType tags what kind of observability event a frame carries, the
// same role the single leading byte plays in the websocket bridge this
// package's wire format is adapted from.
type EventType byte

const (
	// EventClientInfo carries a session connect/disconnect/rename.
	EventClientInfo EventType = iota
	// EventServerListening carries a listen socket starting, stopping,
	// or failing to bind.
	EventServerListening
	// EventDeviceListChanged is fired on registry membership changes;
	// it is best-effort and clients must re-enumerate).
	EventDeviceListChanged

	// Control message types a debug client may send back, carried as
	// the first byte of an inbound message.
	ControlSetCompression EventType = 100
)

// ClientInfoEvent is EventClientInfo's JSON body.
type ClientInfoEvent struct {
	RemoteAddr string  `json:"remote_addr"`
	ClientName string  `json:"client_name,omitempty"`
	Connected  bool    `json:"connected"`
	RTTMillis  float64 `json:"rtt_ms,omitempty"`
}

// ServerListeningEvent is EventServerListening's JSON body.
type ServerListeningEvent struct {
	Addr      string `json:"addr"`
	Listening bool   `json:"listening"`
	Err       string `json:"err,omitempty"`
}

// DeviceListChangedEvent is EventDeviceListChanged's JSON body; it
// carries the number of registered (non-removed) controllers after the
// change.
type DeviceListChangedEvent struct {
	ControllerCount int `json:"controller_count"`
}
