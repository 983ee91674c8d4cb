package hclconf

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// evalStringMap evaluates an env-style expression into a string map. A nil
// expression (absent attribute) yields nil.
func evalStringMap(expr hcl.Expression) (map[string]string, error) {
	if expr == nil {
		return nil, nil
	}

	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("evaluate: %w", diags)
	}
	if val.IsNull() {
		return nil, nil
	}

	converted, err := convert.Convert(val, cty.Map(cty.String))
	if err != nil {
		return nil, fmt.Errorf("expected a map of strings: %w", err)
	}
	if converted.IsNull() || converted.LengthInt() == 0 {
		return nil, nil
	}

	result := make(map[string]string, converted.LengthInt())
	for key, value := range converted.AsValueMap() {
		result[key] = value.AsString()
	}
	return result, nil
}

// evalDefault evaluates an input default into a native Go value: string,
// bool, or the decimal text of a number. Nil means no default was declared.
func evalDefault(expr hcl.Expression) (any, error) {
	if expr == nil {
		return nil, nil
	}

	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("evaluate: %w", diags)
	}
	if val.IsNull() {
		return nil, nil
	}

	switch val.Type() {
	case cty.String:
		return val.AsString(), nil
	case cty.Bool:
		return val.True(), nil
	case cty.Number:
		return val.AsBigFloat().Text('f', -1), nil
	default:
		return nil, fmt.Errorf("unsupported default type %s", val.Type().FriendlyName())
	}
}
