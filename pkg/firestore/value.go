package firestore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// GeoPoint is a latitude/longitude pair.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// FieldMapper converts a typed document to and from its field map.
// Implement it on any struct stored with SetData / DataTo.
type FieldMapper interface {
	ToFields() map[string]any
	FromFields(fields map[string]any) error
}

// encodeFields converts plain Go values into the typed wire format.
func encodeFields(fields map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		ev, err := encodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = ev
	}
	return out, nil
}

func encodeValue(v any) (map[string]any, error) {
	switch x := v.(type) {
	case nil:
		return map[string]any{"nullValue": nil}, nil
	case bool:
		return map[string]any{"booleanValue": x}, nil
	case string:
		return map[string]any{"stringValue": x}, nil
	case int:
		return intValue(int64(x)), nil
	case int8:
		return intValue(int64(x)), nil
	case int16:
		return intValue(int64(x)), nil
	case int32:
		return intValue(int64(x)), nil
	case int64:
		return intValue(x), nil
	case uint8:
		return intValue(int64(x)), nil
	case uint16:
		return intValue(int64(x)), nil
	case uint32:
		return intValue(int64(x)), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", x)
		}
		return intValue(int64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", x)
		}
		return intValue(int64(x)), nil
	case float32:
		return map[string]any{"doubleValue": float64(x)}, nil
	case float64:
		return map[string]any{"doubleValue": x}, nil
	case time.Time:
		return map[string]any{"timestampValue": x.UTC().Format(time.RFC3339Nano)}, nil
	case []byte:
		return map[string]any{"bytesValue": base64.StdEncoding.EncodeToString(x)}, nil
	case GeoPoint:
		return map[string]any{"geoPointValue": x}, nil
	case []any:
		values := make([]any, len(x))
		for i, item := range x {
			ev, err := encodeValue(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			values[i] = ev
		}
		return map[string]any{"arrayValue": map[string]any{"values": values}}, nil
	case map[string]any:
		fields, err := encodeFields(x)
		if err != nil {
			return nil, err
		}
		return map[string]any{"mapValue": map[string]any{"fields": fields}}, nil
	case FieldMapper:
		return encodeValue(x.ToFields())
	default:
		// Other slices, maps and json-tagged structs go through their JSON form.
		data, err := json.Marshal(x)
		if err != nil {
			return nil, fmt.Errorf("unsupported value %T: %w", v, err)
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return nil, err
		}
		if _, same := generic.(float64); same {
			if n, ok := asInteger(data); ok {
				return intValue(n), nil
			}
		}
		return encodeValue(generic)
	}
}

func intValue(n int64) map[string]any {
	return map[string]any{"integerValue": strconv.FormatInt(n, 10)}
}

func asInteger(data []byte) (int64, bool) {
	n, err := strconv.ParseInt(string(data), 10, 64)
	return n, err == nil
}

// decodeFields converts wire fields into plain Go values: nil, bool,
// int64, float64, string, []byte, time.Time, GeoPoint, []any and
// map[string]any.
func decodeFields(raw map[string]json.RawMessage) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		dv, err := decodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = dv
	}
	return out, nil
}

func decodeValue(raw json.RawMessage) (any, error) {
	var typed map[string]json.RawMessage
	if err := json.Unmarshal(raw, &typed); err != nil {
		return nil, err
	}

	for kind, payload := range typed {
		switch kind {
		case "nullValue":
			return nil, nil
		case "booleanValue":
			var b bool
			err := json.Unmarshal(payload, &b)
			return b, err
		case "integerValue":
			var s string
			if err := json.Unmarshal(payload, &s); err != nil {
				return nil, err
			}
			return strconv.ParseInt(s, 10, 64)
		case "doubleValue":
			var f float64
			if err := json.Unmarshal(payload, &f); err == nil {
				return f, nil
			}
			var s string
			if err := json.Unmarshal(payload, &s); err != nil {
				return nil, err
			}
			return strconv.ParseFloat(s, 64)
		case "stringValue", "referenceValue":
			var s string
			err := json.Unmarshal(payload, &s)
			return s, err
		case "timestampValue":
			var s string
			if err := json.Unmarshal(payload, &s); err != nil {
				return nil, err
			}
			return time.Parse(time.RFC3339Nano, s)
		case "bytesValue":
			var s string
			if err := json.Unmarshal(payload, &s); err != nil {
				return nil, err
			}
			return base64.StdEncoding.DecodeString(s)
		case "geoPointValue":
			var g GeoPoint
			err := json.Unmarshal(payload, &g)
			return g, err
		case "arrayValue":
			var arr struct {
				Values []json.RawMessage `json:"values"`
			}
			if err := json.Unmarshal(payload, &arr); err != nil {
				return nil, err
			}
			out := make([]any, len(arr.Values))
			for i, item := range arr.Values {
				dv, err := decodeValue(item)
				if err != nil {
					return nil, err
				}
				out[i] = dv
			}
			return out, nil
		case "mapValue":
			var m struct {
				Fields map[string]json.RawMessage `json:"fields"`
			}
			if err := json.Unmarshal(payload, &m); err != nil {
				return nil, err
			}
			return decodeFields(m.Fields)
		}
	}
	return nil, fmt.Errorf("unknown value type in %s", raw)
}
