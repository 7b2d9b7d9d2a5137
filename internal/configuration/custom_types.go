package configuration

import (
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Enum is a string option with a fixed set of allowed values.
// Values are normalized to lower case when decoded.
type Enum string

func (e Enum) String() string {
	return string(e)
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		EnumHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// EnumHookFunc returns a mapstructure decode hook that trims and lower-cases Enum values,
// so "Realtime" and " realtime" are both accepted.
func EnumHookFunc() mapstructure.DecodeHookFuncType {
	enumType := reflect.TypeOf(Enum(""))

	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if t != enumType || f.Kind() != reflect.String {
			return data, nil
		}
		return Enum(strings.ToLower(strings.TrimSpace(reflect.ValueOf(data).String()))), nil
	}
}
