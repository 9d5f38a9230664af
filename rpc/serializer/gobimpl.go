package serializer

import (
	"bytes"
	"encoding/gob"
	"sync"

	"github.com/mpetrunic/ChainGuardian/rpc/common"
)

// NewGOBSerializer creates a new serializer using Go's binary gob format.
// gob does not transmit empty slices, an empty value arrives as nil.
func NewGOBSerializer() IRPCSerializer {
	return &gobSerializerImpl{}
}

// gobSerializerImpl implements the IRPCSerializer interface using gob encoding.
// Every message carries its own type description since connections are not bound to one stream.
type gobSerializerImpl struct {
}

var gobBuffers = sync.Pool{New: func() any { return new(bytes.Buffer) }}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (g gobSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	buf := gobBuffers.Get().(*bytes.Buffer)
	defer gobBuffers.Put(buf)
	buf.Reset()

	if err := gob.NewEncoder(buf).Encode(msg); err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}

func (g gobSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	*msg = common.Message{}
	return gob.NewDecoder(bytes.NewReader(b)).Decode(msg)
}
