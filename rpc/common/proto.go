package common

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mpetrunic/ChainGuardian/lib/db"
	"github.com/mpetrunic/ChainGuardian/lib/store"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for requests, responses and stream events.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Key     []byte            `json:"key,omitempty"`     // Used for: Get, Has, Put, Delete (request), stream events
	Value   []byte            `json:"value,omitempty"`   // Used for: Put (request), Get (response), stream events
	Filter  *db.FilterOptions `json:"filter,omitempty"`  // Used for: range and stream requests
	Entries []db.KeyValue     `json:"entries,omitempty"` // Used for: BatchPut (request), Entries (response)
	List    [][]byte          `json:"list,omitempty"`    // Used for: BatchDelete (request), Keys, Values, Search (response)

	// Stream fields
	Token  string `json:"token,omitempty"`  // Correlates stream requests, events, credits and cancels
	Window uint32 `json:"window,omitempty"` // Stream request: initial credit, Credit: additional credit

	// Response only fields
	Ok      bool         `json:"ok,omitempty"`      // Used for: Get, Has responses
	End     bool         `json:"end,omitempty"`     // Marks the terminal stream event
	Results []ItemResult `json:"results,omitempty"` // Used for: BatchPut responses, one entry per item
	Code    uint64       `json:"code,omitempty"`    // store.RetCode, zero if no error
	Err     string       `json:"err,omitempty"`     // Empty if no error, otherwise contains the error message

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Used for: Info responses (json encoded db.DatabaseInfo)
}

// ItemResult is the outcome of a single item of a batch.
type ItemResult struct {
	Code uint64 `json:"code,omitempty"`
	Err  string `json:"err,omitempty"`
}

// Error returns the error carried by the message as *store.Error, nil if there is none.
func (m *Message) Error() error {
	return decodeError(m.Code, m.Err)
}

// setError stores err as code and message.
func (m *Message) setError(err error) {
	m.Code, m.Err = encodeError(err)
}

// ItemErrors converts the batch results into one error per item.
func (m *Message) ItemErrors() []error {
	errs := make([]error, len(m.Results))
	for i, r := range m.Results {
		errs[i] = decodeError(r.Code, r.Err)
	}
	return errs
}

// KeyValue returns the entry carried by a stream event.
func (m *Message) KeyValue() db.KeyValue {
	return db.KeyValue{Key: m.Key, Value: m.Value}
}

func encodeError(err error) (uint64, string) {
	if err == nil {
		return 0, ""
	}
	var storeErr *store.Error
	if !errors.As(store.FromError(err), &storeErr) {
		return uint64(store.RetCInternalError), err.Error()
	}
	return uint64(storeErr.Code), storeErr.Msg
}

func decodeError(code uint64, msg string) error {
	if code == uint64(store.RetCSuccess) && msg == "" {
		return nil
	}
	if code == uint64(store.RetCSuccess) {
		code = uint64(store.RetCInternalError)
	}
	return store.NewError(store.RetCode(code), msg)
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewGetRequest creates a new Get request
func NewGetRequest(key []byte) *Message {
	return &Message{
		MsgType: MsgTDBGet,
		Key:     key,
	}
}

// NewGetResponse creates a new Get response
func NewGetResponse(value []byte, ok bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTDBGet,
		Ok:      ok,
		Value:   value,
	}
	msg.setError(err)
	return msg
}

// NewHasRequest creates a new Has request
func NewHasRequest(key []byte) *Message {
	return &Message{
		MsgType: MsgTDBHas,
		Key:     key,
	}
}

// NewHasResponse creates a new Has response
func NewHasResponse(ok bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTDBHas,
		Ok:      ok,
	}
	msg.setError(err)
	return msg
}

// NewPutRequest creates a new Put request
func NewPutRequest(key, value []byte) *Message {
	return &Message{
		MsgType: MsgTDBPut,
		Key:     key,
		Value:   value,
	}
}

// NewDeleteRequest creates a new Delete request
func NewDeleteRequest(key []byte) *Message {
	return &Message{
		MsgType: MsgTDBDelete,
		Key:     key,
	}
}

// NewAckResponse creates the acknowledgement of a write (Put, Delete, BatchDelete)
func NewAckResponse(msgType MessageType, err error) *Message {
	msg := &Message{
		MsgType: msgType,
	}
	msg.setError(err)
	return msg
}

// NewBatchPutRequest creates a new BatchPut request
func NewBatchPutRequest(items []db.KeyValue) *Message {
	return &Message{
		MsgType: MsgTDBBatchPut,
		Entries: items,
	}
}

// NewBatchPutResponse creates a new BatchPut response with one result per item
func NewBatchPutResponse(results []error, err error) *Message {
	msg := &Message{
		MsgType: MsgTDBBatchPut,
	}
	if results != nil {
		msg.Results = make([]ItemResult, len(results))
		for i, r := range results {
			msg.Results[i].Code, msg.Results[i].Err = encodeError(r)
		}
	}
	msg.setError(err)
	return msg
}

// NewBatchDeleteRequest creates a new BatchDelete request
func NewBatchDeleteRequest(keys [][]byte) *Message {
	return &Message{
		MsgType: MsgTDBBatchDelete,
		List:    keys,
	}
}

// NewRangeRequest creates a Keys, Values, Entries or Search request
func NewRangeRequest(msgType MessageType, filter *db.FilterOptions) *Message {
	return &Message{
		MsgType: msgType,
		Filter:  filter,
	}
}

// NewListResponse creates a Keys, Values or Search response
func NewListResponse(msgType MessageType, list [][]byte, err error) *Message {
	msg := &Message{
		MsgType: msgType,
		List:    list,
	}
	msg.setError(err)
	return msg
}

// NewEntriesResponse creates an Entries response
func NewEntriesResponse(entries []db.KeyValue, err error) *Message {
	msg := &Message{
		MsgType: MsgTDBEntries,
		Entries: entries,
	}
	msg.setError(err)
	return msg
}

// NewStreamRequest creates a request starting a stream. window is the initial credit.
func NewStreamRequest(msgType MessageType, token string, filter *db.FilterOptions, window uint32) *Message {
	return &Message{
		MsgType: msgType,
		Token:   token,
		Filter:  filter,
		Window:  window,
	}
}

// NewStreamResponse acknowledges (or rejects) a stream request
func NewStreamResponse(msgType MessageType, token string, err error) *Message {
	msg := &Message{
		MsgType: msgType,
		Token:   token,
	}
	msg.setError(err)
	return msg
}

// NewStreamEvent creates an event carrying one entry of a stream
func NewStreamEvent(token string, kv db.KeyValue) *Message {
	return &Message{
		MsgType: MsgTDBValuesEvent,
		Token:   token,
		Key:     kv.Key,
		Value:   kv.Value,
	}
}

// NewStreamEnd creates the terminal event of a stream, err is nil on normal completion
func NewStreamEnd(token string, err error) *Message {
	msg := &Message{
		MsgType: MsgTDBValuesEvent,
		Token:   token,
		End:     true,
	}
	msg.setError(err)
	return msg
}

// NewStreamCredit grants the server n more events for a stream
func NewStreamCredit(token string, n uint32) *Message {
	return &Message{
		MsgType: MsgTDBStreamCredit,
		Token:   token,
		Window:  n,
	}
}

// NewStreamCancel asks the server to stop a stream
func NewStreamCancel(token string) *Message {
	return &Message{
		MsgType: MsgTDBStreamCancel,
		Token:   token,
	}
}

// NewInfoRequest creates a new Info request
func NewInfoRequest() *Message {
	return &Message{
		MsgType: MsgTDBInfo,
	}
}

// NewInfoResponse creates a new Info response
func NewInfoResponse(info db.DatabaseInfo, err error) *Message {
	msg := &Message{
		MsgType: MsgTDBInfo,
	}
	if err == nil {
		meta, mErr := json.Marshal(info)
		if mErr != nil {
			err = store.WrapError(store.RetCSerializationFailure, mErr)
		}
		msg.Meta = meta
	}
	msg.setError(err)
	return msg
}

// DatabaseInfo decodes the payload of an Info response
func (m *Message) DatabaseInfo() (db.DatabaseInfo, error) {
	var info db.DatabaseInfo
	if len(m.Meta) == 0 {
		return info, nil
	}
	if err := json.Unmarshal(m.Meta, &info); err != nil {
		return info, store.WrapError(store.RetCSerializationFailure, err)
	}
	return info, nil
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTError,
	}
	msg.setError(err)
	if msg.Code == 0 {
		msg.Code = uint64(store.RetCInternalError)
	}
	return msg
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
// It doubles as the op tag of the transport frame.
type MessageType uint8

var messageTypeNames = map[MessageType]string{
	MsgTUnknown:         "UNKNOWN",
	MsgTSuccess:         "SUCCESS",
	MsgTError:           "ERROR",
	MsgTDBGet:           "DATABASE_GET",
	MsgTDBHas:           "DATABASE_HAS",
	MsgTDBPut:           "DATABASE_PUT",
	MsgTDBDelete:        "DATABASE_DELETE",
	MsgTDBSearch:        "DATABASE_SEARCH",
	MsgTDBBatchPut:      "DATABASE_BATCH_PUT",
	MsgTDBBatchDelete:   "DATABASE_BATCH_DELETE",
	MsgTDBKeys:          "DATABASE_KEYS",
	MsgTDBValues:        "DATABASE_VALUES",
	MsgTDBEntries:       "DATABASE_ENTRIES",
	MsgTDBValuesStream:  "DATABASE_VALUES_STREAM",
	MsgTDBKeysStream:    "DATABASE_KEYS_STREAM",
	MsgTDBEntriesStream: "DATABASE_ENTRIES_STREAM",
	MsgTDBValuesEvent:   "DATABASE_VALUES_EVENT",
	MsgTDBStreamCredit:  "DATABASE_STREAM_CREDIT",
	MsgTDBStreamCancel:  "DATABASE_STREAM_CANCEL",
	MsgTDBInfo:          "DATABASE_INFO",
}

// String returns the catalogue name of a MessageType.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseMessageType resolves a catalogue name.
func ParseMessageType(s string) (MessageType, error) {
	for t, name := range messageTypeNames {
		if name == s {
			return t, nil
		}
	}
	return MsgTUnknown, fmt.Errorf("unknown message type: %s", s)
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMessageType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// IsStreamStart reports whether t opens a stream.
func (t MessageType) IsStreamStart() bool {
	return t == MsgTDBValuesStream || t == MsgTDBKeysStream || t == MsgTDBEntriesStream
}

// StreamMode maps a stream start type to the part of the entries it carries.
func (t MessageType) StreamMode() db.StreamMode {
	switch t {
	case MsgTDBKeysStream:
		return db.StreamKeys
	case MsgTDBEntriesStream:
		return db.StreamEntries
	default:
		return db.StreamValues
	}
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// Request/response operations

	MsgTDBGet         // Get a value by key
	MsgTDBHas         // Check if a key exists
	MsgTDBPut         // Put a key-value pair (acknowledged)
	MsgTDBDelete      // Delete a key (acknowledged)
	MsgTDBSearch      // Values range query
	MsgTDBBatchPut    // Atomic batch of puts with per item results
	MsgTDBBatchDelete // Atomic batch of deletes
	MsgTDBKeys        // Keys inside a range
	MsgTDBValues      // Values inside a range
	MsgTDBEntries     // Key value pairs inside a range

	// Stream operations

	MsgTDBValuesStream  // Start a values stream
	MsgTDBKeysStream    // Start a keys stream
	MsgTDBEntriesStream // Start an entries stream
	MsgTDBValuesEvent   // Server push: one stream entry or the terminal event
	MsgTDBStreamCredit  // Client notification: grant more events
	MsgTDBStreamCancel  // Client notification: stop a stream

	// Metadata

	MsgTDBInfo // Database information
)

// RequestTypes lists every message type the server registers a request handler for.
var RequestTypes = []MessageType{
	MsgTDBGet, MsgTDBHas, MsgTDBPut, MsgTDBDelete, MsgTDBSearch,
	MsgTDBBatchPut, MsgTDBBatchDelete, MsgTDBKeys, MsgTDBValues, MsgTDBEntries,
	MsgTDBValuesStream, MsgTDBKeysStream, MsgTDBEntriesStream, MsgTDBInfo,
}

// NotificationTypes lists the fire-and-forget message types the server handles.
var NotificationTypes = []MessageType{
	MsgTDBStreamCredit, MsgTDBStreamCancel,
}
