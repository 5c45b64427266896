package types

// MessageType is the discriminator of a lifecycle message.
type MessageType string

// Lifecycle message types.
const (
	// MessageTypeRequest carries a request body chunk (inbound).
	MessageTypeRequest MessageType = "http.request"
	// MessageTypeDisconnect tells the handler the client went away (inbound, synthetic).
	MessageTypeDisconnect MessageType = "http.disconnect"
	// MessageTypeResponseStart starts the response (outbound).
	MessageTypeResponseStart MessageType = "http.response.start"
	// MessageTypeResponseBody carries a response body chunk (outbound).
	MessageTypeResponseBody MessageType = "http.response.body"
	// MessageTypeResponseDisconnect tells the bridge the handler is done
	// sending without a terminal body chunk (outbound).
	MessageTypeResponseDisconnect MessageType = "http.response.disconnect"
)

// IsInbound returns true for messages produced by the bridge for the handler.
func (t MessageType) IsInbound() bool {
	return t == MessageTypeRequest || t == MessageTypeDisconnect
}

// Message is a lifecycle message. The set of implementations is closed:
// Request, Disconnect, ResponseStart, ResponseBody and ResponseDisconnect.
type Message interface {
	Type() MessageType
	isMessage()
}

// Request is an inbound body chunk.
type Request struct {
	Body     []byte
	MoreBody bool
}

// Disconnect is the inbound disconnect notification.
type Disconnect struct{}

// ResponseStart starts the response with a status and headers.
type ResponseStart struct {
	Status  int
	Headers []RawHeader
	// Trailers is accepted for compatibility and ignored.
	Trailers bool
}

// ResponseBody is an outbound body chunk. MoreBody=false ends the response.
type ResponseBody struct {
	Body     []byte
	MoreBody bool
}

// ResponseDisconnect ends the response without a final body chunk.
type ResponseDisconnect struct{}

func (Request) Type() MessageType            { return MessageTypeRequest }
func (Disconnect) Type() MessageType         { return MessageTypeDisconnect }
func (ResponseStart) Type() MessageType      { return MessageTypeResponseStart }
func (ResponseBody) Type() MessageType       { return MessageTypeResponseBody }
func (ResponseDisconnect) Type() MessageType { return MessageTypeResponseDisconnect }

func (Request) isMessage()            {}
func (Disconnect) isMessage()         {}
func (ResponseStart) isMessage()      {}
func (ResponseBody) isMessage()       {}
func (ResponseDisconnect) isMessage() {}
