// Package message defines the remoting Command exchanged with a broker.
//
// A Command is one logical request or response: a small Header (operation code,
// flags, language tag, opaque correlation id, remark, ext fields) plus an optional
// body. The protocol layer turns it into a length-prefixed frame for TCP.
package message

import (
	"maps"
	"sync/atomic"
)

// LanguageGo is the RocketMQ LanguageCode for Go clients.
const LanguageGo uint8 = 9

// Flag bits carried in Header.Flag.
const (
	flagResponse uint8 = 1 << 0 // set on replies
	flagOneway   uint8 = 1 << 1 // no reply expected
)

// Response codes understood by the transport itself. Anything else is business
// meaning and is passed through untouched.
const (
	Success                 uint8 = 0
	SystemError             uint8 = 1
	SystemBusy              uint8 = 2
	RequestCodeNotSupported uint8 = 3
)

// requestID hands out opaque values. Relaxed uniqueness is all that is needed:
// the value is a correlation key, not a sequence number.
var requestID atomic.Uint64

// nextOpaque returns 0 for the first command of the process, then 1, 2, ...
func nextOpaque() uint64 {
	return requestID.Add(1) - 1
}

// Header is the self-describing part of a frame. Field names are fixed by the wire format.
type Header struct {
	Code      uint8             `json:"code"`
	Flag      uint8             `json:"flag"`
	Language  uint8             `json:"language"`
	Opaque    uint64            `json:"opaque"`
	Remark    string            `json:"remark"`
	ExtFields map[string]string `json:"ext_fields"`
}

// Command owns exactly one Header and an optional body.
//
// Opaque is fixed at construction and never changes afterwards.
type Command struct {
	header Header
	body   []byte
}

// NewCommand creates a request with a fresh opaque drawn from the process-wide allocator.
func NewCommand(code uint8) *Command {
	return &Command{
		header: Header{
			Code:      code,
			Language:  LanguageGo,
			Opaque:    nextOpaque(),
			ExtFields: make(map[string]string),
		},
	}
}

// NewResponseCommand creates a reply bound to the opaque of the request it answers.
func NewResponseCommand(code uint8, opaque uint64) *Command {
	c := &Command{
		header: Header{
			Code:      code,
			Language:  LanguageGo,
			Opaque:    opaque,
			ExtFields: make(map[string]string),
		},
	}
	c.MarkResponseType()
	return c
}

// FromHeader rebuilds a Command from a decoded header and body. Used by the protocol layer.
func FromHeader(h Header, body []byte) *Command {
	if h.ExtFields == nil {
		h.ExtFields = make(map[string]string)
	}
	return &Command{header: h, body: body}
}

// Header returns a copy of the header. ExtFields is cloned so callers cannot mutate the command.
func (c *Command) Header() Header {
	h := c.header
	h.ExtFields = maps.Clone(c.header.ExtFields)
	if h.ExtFields == nil {
		h.ExtFields = make(map[string]string)
	}
	return h
}

func (c *Command) Code() uint8     { return c.header.Code }
func (c *Command) Opaque() uint64  { return c.header.Opaque }
func (c *Command) Flag() uint8     { return c.header.Flag }
func (c *Command) Language() uint8 { return c.header.Language }
func (c *Command) Remark() string  { return c.header.Remark }

func (c *Command) SetRemark(remark string) {
	c.header.Remark = remark
}

// AddProperty sets an ext field, replacing any previous value for key.
func (c *Command) AddProperty(key, value string) {
	if c.header.ExtFields == nil {
		c.header.ExtFields = make(map[string]string)
	}
	c.header.ExtFields[key] = value
}

// Property looks up an ext field.
func (c *Command) Property(key string) (string, bool) {
	v, ok := c.header.ExtFields[key]
	return v, ok
}

// Properties returns a copy of all ext fields.
func (c *Command) Properties() map[string]string {
	return maps.Clone(c.header.ExtFields)
}

// SetBody attaches the payload. The command keeps the slice; do not modify it afterwards.
func (c *Command) SetBody(body []byte) {
	c.body = body
}

// Body returns the payload, nil when absent.
func (c *Command) Body() []byte {
	return c.body
}

func (c *Command) MarkResponseType()    { c.header.Flag |= flagResponse }
func (c *Command) IsResponseType() bool { return c.header.Flag&flagResponse != 0 }
func (c *Command) MarkOnewayRPC()       { c.header.Flag |= flagOneway }
func (c *Command) IsOnewayRPC() bool    { return c.header.Flag&flagOneway != 0 }
