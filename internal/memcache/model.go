package memcache

// Kind selects how a Response is written
type Kind byte

const (
	KindValues Kind = iota + 1 // VALUE lines terminated by END
	KindStatus                 // single status word, e.g. STORED
	KindNumber                 // incr/decr result
	KindError                  // ERROR
	KindClientError            // CLIENT_ERROR <message>
	KindServerError            // SERVER_ERROR <message>
)

const (
	StatusStored    = "STORED"
	StatusNotStored = "NOT_STORED"
	StatusDeleted   = "DELETED"
	StatusNotFound  = "NOT_FOUND"
	StatusTouched   = "TOUCHED"
	StatusOK        = "OK"
)

// Request is a decoded memcache text protocol command
type Request struct {
	Command string   // lowercase command name
	Keys    [][]byte // raw keys, exactly one for everything but get/gets
	Value   []byte   // data block of storage commands
	Exptime int64    // storage and touch commands
	Delta   uint64   // incr/decr
	Flags   uint32   // storage commands
	NoReply bool
}

// Key returns the first key of the request
func (r Request) Key() []byte {
	if len(r.Keys) == 0 {
		return nil
	}
	return r.Keys[0]
}

// Item is one hit of a retrieval command
type Item struct {
	Key   string
	Value []byte
	Flags uint32
}

// Response is a reply to a single Request
type Response struct {
	Items   []Item
	Status  string
	Message string
	Number  uint64
	Kind    Kind
}
