package domain

// Change-notification event names.
const (
	EventOpen   = "open"
	EventUpdate = "update"
	EventPing   = "ping"
)

type OpenPayload struct {
	OK bool `json:"ok"`
}

// UpdatePayload signals that the version counter moved. It never carries entry data.
type UpdatePayload struct {
	V  int64 `json:"v"`
	At int64 `json:"at"`
}
