package sequencer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateParamsFillsDefaults(t *testing.T) {
	schema := []ParamSpec{
		{Name: "device", Type: ParamString, Required: true},
		{Name: "frame_type", Type: ParamString, Required: false, Default: "light"},
	}
	out, errs := ValidateParams(schema, map[string]interface{}{"device": "cam0"})

	assert.Empty(t, errs)
	assert.Equal(t, "cam0", out["device"])
	assert.Equal(t, "light", out["frame_type"])
}

func TestValidateParamsRequiredMissing(t *testing.T) {
	schema := []ParamSpec{{Name: "device", Type: ParamString, Required: true}}
	_, errs := ValidateParams(schema, map[string]interface{}{})

	assert.Len(t, errs, 1)
	assert.Equal(t, "device", errs[0].Param)
}

func TestValidateParamsAccumulatesAllErrors(t *testing.T) {
	schema := []ParamSpec{
		{Name: "device", Type: ParamString, Required: true},
		{Name: "position", Type: ParamInteger, Required: true},
	}
	_, errs := ValidateParams(schema, map[string]interface{}{"position": "not-an-int"})

	assert.Len(t, errs, 2)
}

func TestValidateParamsTypeMismatch(t *testing.T) {
	schema := []ParamSpec{{Name: "duration_seconds", Type: ParamNumber, Required: true}}
	_, errs := ValidateParams(schema, map[string]interface{}{"duration_seconds": "not-a-number"})

	assert.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "expected number")
}

func TestValidateParamsIntegerRejectsFraction(t *testing.T) {
	schema := []ParamSpec{{Name: "position", Type: ParamInteger, Required: true}}
	_, errs := ValidateParams(schema, map[string]interface{}{"position": 2.5})

	assert.Len(t, errs, 1)
}

func TestValidateParamsPassesThroughExtraKeys(t *testing.T) {
	schema := []ParamSpec{{Name: "device", Type: ParamString, Required: true}}
	out, errs := ValidateParams(schema, map[string]interface{}{"device": "cam0", "extra": 42})

	assert.Empty(t, errs)
	assert.Equal(t, 42, out["extra"])
}

func TestValidateParamsArrayAndObject(t *testing.T) {
	schema := []ParamSpec{
		{Name: "filters", Type: ParamArray, Required: true},
		{Name: "meta", Type: ParamObject, Required: true},
	}
	out, errs := ValidateParams(schema, map[string]interface{}{
		"filters": []interface{}{"r", "g", "b"},
		"meta":    map[string]interface{}{"k": "v"},
	})

	assert.Empty(t, errs)
	assert.Len(t, out["filters"], 3)
}

func TestValidationErrorString(t *testing.T) {
	err := ValidationError{Param: "device", Message: "required parameter missing"}
	assert.Equal(t, "device: required parameter missing", err.Error())
}
