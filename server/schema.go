package server

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBaseURL = "https://voxelrelay.local/schemas/"

var inboundTypes = []string{
	TypeCreateRoom,
	TypeJoinRoom,
	TypeLeaveRoom,
	TypePlayerMove,
	TypeBlockUpdate,
}

// inboundSchemas 进程启动时编译一次；编译失败属于构建错误，直接 panic
var inboundSchemas = mustCompileSchemas()

func mustCompileSchemas() map[string]*jsonschema.Schema {
	c := jsonschema.NewCompiler()
	for _, typ := range inboundTypes {
		b, err := schemaFS.ReadFile("schemas/" + typ + ".schema.json")
		if err != nil {
			panic(fmt.Sprintf("schema %s: %v", typ, err))
		}
		if err := c.AddResource(schemaBaseURL+typ+".json", bytes.NewReader(b)); err != nil {
			panic(fmt.Sprintf("schema %s: %v", typ, err))
		}
	}
	out := make(map[string]*jsonschema.Schema, len(inboundTypes))
	for _, typ := range inboundTypes {
		out[typ] = c.MustCompile(schemaBaseURL + typ + ".json")
	}
	return out
}

func validatePayload(typ string, data json.RawMessage) error {
	s, ok := inboundSchemas[typ]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, typ, err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, typ, err)
	}
	return nil
}
