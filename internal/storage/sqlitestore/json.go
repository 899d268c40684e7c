package sqlitestore

import "encoding/json"

// sqlite has no native array/object column types, so slices and maps are
// stored as JSON text and marshaled/unmarshaled at the storage boundary.

func marshalJSON(v any) (string, error) {
	if v == nil {
		return "null", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalJSON[T any](s string, out *T) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), out)
}
