package manifest

// HandlerType enumerates the supported route handler kinds.
type HandlerType string

const (
	// HandlerInproc resolves a registered in-process handler by name at
	// dispatch time.
	HandlerInproc HandlerType = "inproc"
	// HandlerStatic writes a fixed status and body.
	HandlerStatic HandlerType = "static"
	// HandlerRelayPublish publishes the request body to a relay topic.
	HandlerRelayPublish HandlerType = "relay.publish"
	// HandlerRelayReq performs a relay request/reply and writes the reply.
	HandlerRelayReq HandlerType = "relay.request"
	// HandlerError renders the pending error as JSON. It only runs while an
	// error is being punted down the chain.
	HandlerError HandlerType = "error"
)

// Known reports whether t is one of the supported handler kinds.
func (t HandlerType) Known() bool {
	switch t {
	case HandlerInproc, HandlerStatic, HandlerRelayPublish, HandlerRelayReq, HandlerError:
		return true
	}
	return false
}
