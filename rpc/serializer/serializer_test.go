package serializer

import (
	"reflect"
	"testing"

	"github.com/mpetrunic/ChainGuardian/lib/db"
	"github.com/mpetrunic/ChainGuardian/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages creates a set of test messages with different fields filled.
// Byte slices are either nil or non empty, JSON and GOB do not keep empty slices apart from nil.
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Put request
		{
			MsgType: common.MsgTDBPut,
			Key:     []byte("\x00alice"),
			Value:   []byte(`{"name":"Alice"}`),
		},

		// Get response
		{
			MsgType: common.MsgTDBGet,
			Value:   []byte(`{"name":"Alice"}`),
			Ok:      true,
		},

		// Error response
		{
			MsgType: common.MsgTError,
			Code:    3,
			Err:     "engine not ready",
		},

		// Range request
		{
			MsgType: common.MsgTDBSearch,
			Filter: &db.FilterOptions{
				Gt:      []byte("\x02a"),
				Lte:     []byte("\x02z"),
				Reverse: true,
				Limit:   10,
			},
		},

		// Batch put request and response
		{
			MsgType: common.MsgTDBBatchPut,
			Entries: []db.KeyValue{
				{Key: []byte("a"), Value: []byte("1")},
				{Key: []byte("b")},
			},
		},
		{
			MsgType: common.MsgTDBBatchPut,
			Results: []common.ItemResult{{}, {Code: 2, Err: "invalid key"}},
		},

		// List response
		{
			MsgType: common.MsgTDBKeys,
			List:    [][]byte{[]byte("a"), []byte("b"), []byte("c")},
		},

		// Stream messages
		{
			MsgType: common.MsgTDBValuesStream,
			Token:   "4f1c0f6e-6a4b-4c83-9a53-8cbbd34c1b55",
			Filter:  &db.FilterOptions{Gte: []byte("\x00")},
			Window:  64,
		},
		{
			MsgType: common.MsgTDBValuesEvent,
			Token:   "4f1c0f6e-6a4b-4c83-9a53-8cbbd34c1b55",
			Value:   []byte("v1"),
		},
		{
			MsgType: common.MsgTDBValuesEvent,
			Token:   "4f1c0f6e-6a4b-4c83-9a53-8cbbd34c1b55",
			End:     true,
			Code:    4,
			Err:     "disk full",
		},

		// Info response
		{
			MsgType: common.MsgTDBInfo,
			Meta:    []byte(`{"size_bytes":42}`),
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				// Compare
				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for msgType := common.MsgTSuccess; msgType <= common.MsgTDBInfo; msgType++ {
				msg := common.Message{MsgType: msgType}

				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestDeserializeResetsMessage checks that fields of a reused message do not leak into the next one
func TestDeserializeResetsMessage(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			data, err := serializer.Serialize(common.Message{MsgType: common.MsgTDBHas})
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			msg := common.Message{Key: []byte("old"), Ok: true, Token: "old", Code: 1}
			if err := serializer.Deserialize(data, &msg); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}
			if !reflect.DeepEqual(common.Message{MsgType: common.MsgTDBHas}, msg) {
				t.Errorf("stale fields after deserialize: %+v", msg)
			}
		})
	}
}

// TestBinarySerializerSpecific tests specific edge cases for the binary serializer
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name string
		msg  common.Message
	}{
		{
			name: "Empty message",
			msg:  common.Message{},
		},
		{
			name: "Empty slices are not nil",
			msg: common.Message{
				MsgType: common.MsgTDBGet,
				Key:     []byte{},
				Value:   []byte{},
				Ok:      true,
				Meta:    []byte{},
			},
		},
		{
			name: "Empty list and entries",
			msg: common.Message{
				MsgType: common.MsgTDBValues,
				List:    [][]byte{},
				Entries: []db.KeyValue{},
			},
		},
		{
			name: "Nil items inside a list",
			msg: common.Message{
				MsgType: common.MsgTDBKeys,
				List:    [][]byte{nil, {}, []byte("x")},
			},
		},
		{
			name: "Keys only entries",
			msg: common.Message{
				MsgType: common.MsgTDBEntries,
				Entries: []db.KeyValue{{Key: []byte("k")}},
			},
		},
		{
			name: "Filter with negative limit",
			msg: common.Message{
				MsgType: common.MsgTDBKeys,
				Filter:  &db.FilterOptions{Gte: []byte{}, Limit: -1},
			},
		},
		{
			name: "Terminal event without error",
			msg: common.Message{
				MsgType: common.MsgTDBValuesEvent,
				Token:   "t",
				End:     true,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := serializer.Serialize(tc.msg)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			if size := (binarySerializerImpl{}).sizeBytes(tc.msg); size != len(data) {
				t.Errorf("size estimate %d does not match serialized size %d", size, len(data))
			}

			var result common.Message
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			if !reflect.DeepEqual(tc.msg, result) {
				t.Errorf("Message doesn't match after round trip:\nOriginal: %+v\nResult: %+v", tc.msg, result)
			}
		})
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1, 0}, // Message type and half of the flags
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0, 0}, // Message type 1, no flags
			expectError: false,
		},
		{
			name:        "Invalid length for key",
			data:        []byte{1, 0, 1, 0, 0, 0, 5, 'a', 'b', 'c'}, // Claims key length 5 but only 3 bytes provided
			expectError: true,
		},
		{
			name:        "Invalid length for value",
			data:        []byte{1, 0, 2, 0, 0, 0, 10}, // Claims value length 10 but no bytes provided
			expectError: true,
		},
		{
			name:        "Huge list count",
			data:        []byte{1, 0, 16, 0xff, 0xff, 0xff, 0xf0}, // Claims billions of list items
			expectError: true,
		},
		{
			name:        "Truncated filter",
			data:        []byte{1, 0, 4, 0x01, 0, 0, 0, 1}, // Filter flags and a gt length without data
			expectError: true,
		},
		{
			name:        "Missing code",
			data:        []byte{1, 0x04, 0, 0, 0}, // Code flag set but only 2 bytes follow
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}

func TestFromName(t *testing.T) {
	for _, name := range []string{"binary", "json", "gob"} {
		if _, ok := FromName(name); !ok {
			t.Errorf("serializer %s not found", name)
		}
	}
	if _, ok := FromName("xml"); ok {
		t.Errorf("unexpected serializer xml")
	}
}
