package converter

import (
	"fmt"

	"semantic-reconciliation-service/pkg/errors"
)

// ExtractRows finds the row objects in a conversion service reply: the reply
// itself when it is an array, its data or records array, or the reply object
// alone. Array elements that are not objects are wrapped as {"value": v}.
func ExtractRows(reply interface{}) ([]map[string]interface{}, error) {
	var items []interface{}

	switch v := reply.(type) {
	case []interface{}:
		items = v
	case map[string]interface{}:
		if arr, ok := v["data"].([]interface{}); ok {
			items = arr
		} else if arr, ok := v["records"].([]interface{}); ok {
			items = arr
		} else {
			items = []interface{}{v}
		}
	default:
		return nil, errors.ConversionError(errors.CodeConversionFailed, "extract rows",
			fmt.Errorf("unexpected reply type %T", reply)).
			WithMessage("External service returned invalid data format")
	}

	if len(items) == 0 {
		return nil, errors.ConversionError(errors.CodeConversionFailed, "extract rows", nil).
			WithMessage("External service returned empty data")
	}

	rows := make([]map[string]interface{}, len(items))
	for i, item := range items {
		if obj, ok := item.(map[string]interface{}); ok {
			rows[i] = obj
			continue
		}
		rows[i] = map[string]interface{}{"value": item}
	}
	return rows, nil
}
