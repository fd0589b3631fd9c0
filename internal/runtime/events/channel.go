package events

// Kind enumerates the well-known event channels. KindOther covers every
// passthrough channel, which is then identified by its name.
type Kind uint8

const (
	KindOther Kind = iota
	KindSubmit
	KindAck
	KindNack
	KindOpen
	KindClose
	KindReset
	KindColumn
	KindInsert
	KindUpdate
	KindDelete
)

var kindNames = [...]string{
	KindOther:  "",
	KindSubmit: "submit",
	KindAck:    "ack",
	KindNack:   "nack",
	KindOpen:   "open",
	KindClose:  "close",
	KindReset:  "reset",
	KindColumn: "column",
	KindInsert: "insert",
	KindUpdate: "update",
	KindDelete: "delete",
}

var kindByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		if name != "" {
			m[name] = Kind(k)
		}
	}
	return m
}()

func (k Kind) String() string {
	if int(k) < len(kindNames) && k != KindOther {
		return kindNames[k]
	}
	return "other"
}

// Channel names an event category. Channels are comparable and can be used
// as map keys; two channels are equal when kind and name are equal.
type Channel struct {
	kind Kind
	name string
}

var (
	Submit = Channel{kind: KindSubmit}
	Ack    = Channel{kind: KindAck}
	Nack   = Channel{kind: KindNack}
	Open   = Channel{kind: KindOpen}
	Close  = Channel{kind: KindClose}
	Reset  = Channel{kind: KindReset}
	Column = Channel{kind: KindColumn}
	Insert = Channel{kind: KindInsert}
	Update = Channel{kind: KindUpdate}
	Delete = Channel{kind: KindDelete}
)

// Named resolves a channel name. Well-known names map to their kind and
// anything else becomes a passthrough channel.
func Named(name string) Channel {
	if k, ok := kindByName[name]; ok {
		return Channel{kind: k}
	}
	return Channel{kind: KindOther, name: name}
}

func (c Channel) Kind() Kind { return c.kind }

func (c Channel) String() string {
	if c.kind == KindOther {
		return c.name
	}
	return kindNames[c.kind]
}

// IsPassthrough reports whether the channel is not one of the well-known kinds.
func (c Channel) IsPassthrough() bool { return c.kind == KindOther }
