// internal/catalog/floatify.go
package catalog

import "encoding/json"

// FloatifyItem returns a copy of the item with every json.Number value
// converted to float64, recursively. Records decoded with UseNumber carry
// json.Number values to keep decimal text intact through status write-backs;
// the catalog database wants plain floats, so the conversion happens here,
// at the bulk-load boundary and nowhere earlier.
func FloatifyItem(item map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(item))
	for k, v := range item {
		out[k] = floatifyValue(v)
	}
	return out
}

func floatifyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			// Not representable as a float; keep the textual form.
			return t.String()
		}
		return f
	case map[string]interface{}:
		return FloatifyItem(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = floatifyValue(e)
		}
		return out
	default:
		return v
	}
}
