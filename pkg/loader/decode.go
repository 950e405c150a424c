package loader

import (
	"reflect"
	"time"

	"github.com/jingkaihe/skillrt/pkg/types/skills"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

var (
	durationType = reflect.TypeOf(skills.Duration(0))
	childRefType = reflect.TypeOf(skills.ChildRef{})
	timeType     = reflect.TypeOf(time.Time{})
)

// durationHook accepts a number of seconds or a duration string for Duration fields
func durationHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	return skills.ParseDuration(data)
}

// childRefHook expands a bare composite child name into a ChildRef
func childRefHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != childRefType {
		return data, nil
	}
	if name, ok := data.(string); ok {
		return map[string]any{"name": name}, nil
	}
	return data, nil
}

// timeHook keeps metadata dates as strings when a YAML decoder produced time.Time
func timeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from != timeType || to.Kind() != reflect.String {
		return data, nil
	}
	t := data.(time.Time)
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(time.DateOnly), nil
	}
	return t.Format(time.RFC3339), nil
}

// decodeSkill decodes a normalised document tree into a Skill. Unknown keys
// are rejected.
func decodeSkill(doc map[string]any) (*skills.Skill, error) {
	var s skills.Skill
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &s,
		TagName:     "json",
		ErrorUnused: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			durationHook,
			childRefHook,
			timeHook,
		),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create skill decoder")
	}
	if err := decoder.Decode(doc); err != nil {
		return nil, errors.Wrap(err, "failed to decode skill document")
	}
	return &s, nil
}
