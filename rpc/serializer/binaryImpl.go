package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/mpetrunic/ChainGuardian/lib/db"
	"github.com/mpetrunic/ChainGuardian/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format.
//
// Layout: MsgType (1 byte) | flags (2 bytes) | present fields in flag order.
// Byte slices are written as u32 length + data, the length nilBytes marks a nil slice.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasKey     uint16 = 1 << 0
	hasValue   uint16 = 1 << 1
	hasFilter  uint16 = 1 << 2
	hasEntries uint16 = 1 << 3
	hasList    uint16 = 1 << 4
	hasToken   uint16 = 1 << 5
	hasWindow  uint16 = 1 << 6
	hasOk      uint16 = 1 << 7
	hasEnd     uint16 = 1 << 8
	hasResults uint16 = 1 << 9
	hasCode    uint16 = 1 << 10
	hasErr     uint16 = 1 << 11
	hasMeta    uint16 = 1 << 12
)

// Bit flags of the filter options
const (
	filterGt      byte = 1 << 0
	filterGte     byte = 1 << 1
	filterLt      byte = 1 << 2
	filterLte     byte = 1 << 3
	filterReverse byte = 1 << 4
)

// nilBytes is the length written for a nil byte slice
const nilBytes = ^uint32(0)

const headerSize = 3

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Allocate the total size needed once
	result := make([]byte, headerSize, b.sizeBytes(msg))

	// Write message type
	result[0] = byte(msg.MsgType)

	// Initialize flags
	var flags uint16 = 0

	if msg.Key != nil {
		flags |= hasKey
		result = appendBytes(result, msg.Key)
	}

	if msg.Value != nil {
		flags |= hasValue
		result = appendBytes(result, msg.Value)
	}

	if msg.Filter != nil {
		flags |= hasFilter
		result = appendFilter(result, msg.Filter)
	}

	if msg.Entries != nil {
		flags |= hasEntries
		result = binary.BigEndian.AppendUint32(result, uint32(len(msg.Entries)))
		for _, kv := range msg.Entries {
			result = appendBytes(result, kv.Key)
			result = appendBytes(result, kv.Value)
		}
	}

	if msg.List != nil {
		flags |= hasList
		result = binary.BigEndian.AppendUint32(result, uint32(len(msg.List)))
		for _, item := range msg.List {
			result = appendBytes(result, item)
		}
	}

	if msg.Token != "" {
		flags |= hasToken
		result = appendBytes(result, []byte(msg.Token))
	}

	if msg.Window > 0 {
		flags |= hasWindow
		result = binary.BigEndian.AppendUint32(result, msg.Window)
	}

	// Booleans are fully described by their flag
	if msg.Ok {
		flags |= hasOk
	}
	if msg.End {
		flags |= hasEnd
	}

	if msg.Results != nil {
		flags |= hasResults
		result = binary.BigEndian.AppendUint32(result, uint32(len(msg.Results)))
		for _, r := range msg.Results {
			result = binary.BigEndian.AppendUint64(result, r.Code)
			result = appendBytes(result, []byte(r.Err))
		}
	}

	if msg.Code != 0 {
		flags |= hasCode
		result = binary.BigEndian.AppendUint64(result, msg.Code)
	}

	if msg.Err != "" {
		flags |= hasErr
		result = appendBytes(result, []byte(msg.Err))
	}

	if msg.Meta != nil {
		flags |= hasMeta
		result = appendBytes(result, msg.Meta)
	}

	// Set flags after knowing which fields are present
	binary.BigEndian.PutUint16(result[1:3], flags)

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < headerSize {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{}

	// Read message type and flags
	msg.MsgType = common.MessageType(data[0])
	flags := binary.BigEndian.Uint16(data[1:3])

	r := &reader{data: data, pos: headerSize}
	var err error

	if flags&hasKey != 0 {
		if msg.Key, err = r.bytes("key"); err != nil {
			return err
		}
	}

	if flags&hasValue != 0 {
		if msg.Value, err = r.bytes("value"); err != nil {
			return err
		}
	}

	if flags&hasFilter != 0 {
		if msg.Filter, err = r.filter(); err != nil {
			return err
		}
	}

	if flags&hasEntries != 0 {
		n, err := r.count("entries", 8)
		if err != nil {
			return err
		}
		msg.Entries = make([]db.KeyValue, n)
		for i := range msg.Entries {
			if msg.Entries[i].Key, err = r.bytes("entry key"); err != nil {
				return err
			}
			if msg.Entries[i].Value, err = r.bytes("entry value"); err != nil {
				return err
			}
		}
	}

	if flags&hasList != 0 {
		n, err := r.count("list", 4)
		if err != nil {
			return err
		}
		msg.List = make([][]byte, n)
		for i := range msg.List {
			if msg.List[i], err = r.bytes("list item"); err != nil {
				return err
			}
		}
	}

	if flags&hasToken != 0 {
		token, err := r.bytes("token")
		if err != nil {
			return err
		}
		msg.Token = string(token)
	}

	if flags&hasWindow != 0 {
		if msg.Window, err = r.uint32("window"); err != nil {
			return err
		}
	}

	msg.Ok = flags&hasOk != 0
	msg.End = flags&hasEnd != 0

	if flags&hasResults != 0 {
		n, err := r.count("results", 12)
		if err != nil {
			return err
		}
		msg.Results = make([]common.ItemResult, n)
		for i := range msg.Results {
			if msg.Results[i].Code, err = r.uint64("result code"); err != nil {
				return err
			}
			text, err := r.bytes("result error")
			if err != nil {
				return err
			}
			msg.Results[i].Err = string(text)
		}
	}

	if flags&hasCode != 0 {
		if msg.Code, err = r.uint64("code"); err != nil {
			return err
		}
	}

	if flags&hasErr != 0 {
		text, err := r.bytes("error")
		if err != nil {
			return err
		}
		msg.Err = string(text)
	}

	if flags&hasMeta != 0 {
		if msg.Meta, err = r.bytes("meta"); err != nil {
			return err
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	// 1 byte for MsgType + 2 bytes for flags
	size := headerSize

	if msg.Key != nil {
		size += 4 + len(msg.Key)
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	if f := msg.Filter; f != nil {
		size += 1 + 8 + 4*4 + len(f.Gt) + len(f.Gte) + len(f.Lt) + len(f.Lte)
	}
	if msg.Entries != nil {
		size += 4
		for _, kv := range msg.Entries {
			size += 8 + len(kv.Key) + len(kv.Value)
		}
	}
	if msg.List != nil {
		size += 4
		for _, item := range msg.List {
			size += 4 + len(item)
		}
	}
	if msg.Token != "" {
		size += 4 + len(msg.Token)
	}
	if msg.Window > 0 {
		size += 4
	}
	if msg.Results != nil {
		size += 4
		for _, r := range msg.Results {
			size += 12 + len(r.Err)
		}
	}
	if msg.Code != 0 {
		size += 8
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	if msg.Meta != nil {
		size += 4 + len(msg.Meta)
	}

	return size
}

func appendBytes(dst, b []byte) []byte {
	if b == nil {
		return binary.BigEndian.AppendUint32(dst, nilBytes)
	}
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(b)))
	return append(dst, b...)
}

func appendFilter(dst []byte, f *db.FilterOptions) []byte {
	var flags byte
	if f.Gt != nil {
		flags |= filterGt
	}
	if f.Gte != nil {
		flags |= filterGte
	}
	if f.Lt != nil {
		flags |= filterLt
	}
	if f.Lte != nil {
		flags |= filterLte
	}
	if f.Reverse {
		flags |= filterReverse
	}

	dst = append(dst, flags)
	dst = appendBytes(dst, f.Gt)
	dst = appendBytes(dst, f.Gte)
	dst = appendBytes(dst, f.Lt)
	dst = appendBytes(dst, f.Lte)
	return binary.BigEndian.AppendUint64(dst, uint64(int64(f.Limit)))
}

// reader reads the fields of a serialized message in order
type reader struct {
	data []byte
	pos  int
}

func (r *reader) need(n int, field string) error {
	if n < 0 || r.pos+n > len(r.data) {
		return fmt.Errorf("data too short for %s", field)
	}
	return nil
}

func (r *reader) uint32(field string) (uint32, error) {
	if err := r.need(4, field); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *reader) uint64(field string) (uint64, error) {
	if err := r.need(8, field); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.data[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

// count reads the length of a sequence whose items need at least minItemSize bytes each
func (r *reader) count(field string, minItemSize int) (int, error) {
	n, err := r.uint32(field + " length")
	if err != nil {
		return 0, err
	}
	if uint64(n)*uint64(minItemSize) > uint64(len(r.data)-r.pos) {
		return 0, fmt.Errorf("data too short for %s", field)
	}
	return int(n), nil
}

// bytes reads a length prefixed slice, the result is a copy
func (r *reader) bytes(field string) ([]byte, error) {
	n, err := r.uint32(field + " length")
	if err != nil {
		return nil, err
	}
	if n == nilBytes {
		return nil, nil
	}
	if err := r.need(int(n), field+" data"); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, r.data[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return b, nil
}

func (r *reader) filter() (*db.FilterOptions, error) {
	if err := r.need(1, "filter flags"); err != nil {
		return nil, err
	}
	flags := r.data[r.pos]
	r.pos++

	f := &db.FilterOptions{Reverse: flags&filterReverse != 0}
	var err error
	if f.Gt, err = r.bytes("filter gt"); err != nil {
		return nil, err
	}
	if f.Gte, err = r.bytes("filter gte"); err != nil {
		return nil, err
	}
	if f.Lt, err = r.bytes("filter lt"); err != nil {
		return nil, err
	}
	if f.Lte, err = r.bytes("filter lte"); err != nil {
		return nil, err
	}
	limit, err := r.uint64("filter limit")
	if err != nil {
		return nil, err
	}
	f.Limit = int(int64(limit))
	return f, nil
}
