package payload

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"

	"github.com/noteprotocol/note-wallet/pkg/errors"
	notelib "github.com/noteprotocol/note-wallet/pkg/note-lib"
	"github.com/vmihailenco/msgpack/v5"
)

// Canonicalize normalizes a decoded JSON like value so that its encoding is stable: json.Number
// becomes an integer when it has no fraction or exponent and a float otherwise, nested maps
// become map[string]any. Floats stay floats.
func Canonicalize(v any) any {
	switch value := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(value))
		for k, item := range value {
			out[k] = Canonicalize(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(value))
		for k, item := range value {
			out[fmt.Sprint(k)] = Canonicalize(item)
		}
		return out
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = Canonicalize(item)
		}
		return out
	case json.Number:
		if n, err := value.Int64(); err == nil {
			return n
		}
		if n, err := strconv.ParseUint(value.String(), 10, 64); err == nil {
			return n
		}
		if f, err := value.Float64(); err == nil {
			return f
		}
		return value.String()
	default:
		return v
	}
}

// Marshal serializes data to msgpack with the keys of every map sorted, at any depth.
func Marshal(data any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	enc.UseCompactInts(true)

	if err := encodeValue(enc, Canonicalize(data)); err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeValue(enc *msgpack.Encoder, v any) error {
	switch value := v.(type) {
	case nil:
		return enc.EncodeNil()
	case map[string]any:
		keys := make([]string, 0, len(value))
		for k := range value {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		if err := enc.EncodeMapLen(len(keys)); err != nil {
			return err
		}
		for _, k := range keys {
			if err := enc.EncodeString(k); err != nil {
				return err
			}
			if err := encodeValue(enc, value[k]); err != nil {
				return err
			}
		}
		return nil
	case []any:
		if err := enc.EncodeArrayLen(len(value)); err != nil {
			return err
		}
		for _, item := range value {
			if err := encodeValue(enc, item); err != nil {
				return err
			}
		}
		return nil
	case string:
		return enc.EncodeString(value)
	case bool:
		return enc.EncodeBool(value)
	case []byte:
		return enc.EncodeBytes(value)
	case float64:
		return enc.EncodeFloat64(value)
	case float32:
		return enc.EncodeFloat64(float64(value))
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return enc.EncodeInt(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return enc.EncodeUint(rv.Uint())
	default:
		// structs and typed maps go through reflection, keys still sorted
		return enc.Encode(v)
	}
}

// Split chunks buf into at most MaxDataSegments segments of segmentSize bytes.
func Split(buf []byte, segmentSize int) ([][]byte, error) {
	if segmentSize <= 0 {
		return nil, fmt.Errorf("invalid segment size %d", segmentSize)
	}

	maxSize := segmentSize * notelib.MaxDataSegments
	if len(buf) > maxSize {
		return nil, errors.PAYLOAD_TOO_LARGE.New("Data is too long").
			WithMetadata(errors.PayloadTooLargeMetadata{Size: len(buf), MaxSize: maxSize})
	}

	segments := make([][]byte, 0, notelib.MaxDataSegments)
	for start := 0; start < len(buf); start += segmentSize {
		end := min(start+segmentSize, len(buf))
		segments = append(segments, buf[start:end])
	}
	return segments, nil
}

// FromBytes places already serialized data into the slots of a note payload. Data up to
// MaxStackFullSize is split in standard stack items, bigger data needs allowScriptSize and is
// split in script elements up to MaxScriptFullSize.
func FromBytes(buf []byte, allowScriptSize bool) (notelib.NotePayload, error) {
	segmentSize := notelib.MaxStandardStackItemSize
	switch {
	case len(buf) <= notelib.MaxStackFullSize:
	case allowScriptSize && len(buf) <= notelib.MaxScriptFullSize:
		segmentSize = notelib.MaxScriptElementSize
	default:
		maxSize := notelib.MaxStackFullSize
		if allowScriptSize {
			maxSize = notelib.MaxScriptFullSize
		}
		return notelib.NotePayload{}, errors.PAYLOAD_TOO_LARGE.New("Data is too long").
			WithMetadata(errors.PayloadTooLargeMetadata{Size: len(buf), MaxSize: maxSize})
	}

	segments, err := Split(buf, segmentSize)
	if err != nil {
		return notelib.NotePayload{}, err
	}

	var payload notelib.NotePayload
	for i, segment := range segments {
		payload.Data[i] = hex.EncodeToString(segment)
	}
	return payload, nil
}

// Encode canonicalizes and serializes data into a note payload.
func Encode(data any, allowScriptSize bool) (notelib.NotePayload, error) {
	buf, err := Marshal(data)
	if err != nil {
		return notelib.NotePayload{}, err
	}
	return FromBytes(buf, allowScriptSize)
}

// Decode concatenates the non empty slots back into the serialized bytes.
func Decode(payload notelib.NotePayload) ([]byte, error) {
	segments, err := payload.Segments()
	if err != nil {
		return nil, err
	}

	var buf []byte
	for _, segment := range segments {
		buf = append(buf, segment...)
	}
	return buf, nil
}

// Unmarshal decodes the slots of a note payload back into a map.
func Unmarshal(payload notelib.NotePayload) (map[string]any, error) {
	buf, err := Decode(payload)
	if err != nil {
		return nil, err
	}

	var data map[string]any
	if err := msgpack.Unmarshal(buf, &data); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return data, nil
}
