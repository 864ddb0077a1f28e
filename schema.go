package main

import (
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

// messageSchemas maps client message types to the payload they carry
var messageSchemas = []struct {
	msgType string
	title   string
	typ     reflect.Type
}{
	{MsgCreate, "Create room", reflect.TypeOf(CreateMsg{})},
	{MsgJoin, "Join room", reflect.TypeOf(JoinMsg{})},
	{MsgMove, "Move input", reflect.TypeOf(MoveInput{})},
	{MsgSplit, "Split", reflect.TypeOf(SplitMsg{})},
}

// BuildMessageSchemas reflects a JSON schema for every client payload
func BuildMessageSchemas() (map[string]*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	out := make(map[string]*jsonschema.Schema, len(messageSchemas))
	for _, m := range messageSchemas {
		s := reflector.ReflectFromType(m.typ)
		if s == nil {
			return nil, fmt.Errorf("reflect %s schema", m.msgType)
		}
		s.Title = m.title
		out[m.msgType] = s
	}
	return out, nil
}
