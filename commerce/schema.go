package commerce

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/codewandler/orderrt-go/tool"
)

// argumentSchemas holds the compiled parameter schema of every tool that
// declares parameters.
type argumentSchemas map[string]*jsonschema.Schema

func compileSchemas(tools []tool.Tool) (argumentSchemas, error) {
	schemas := make(argumentSchemas, len(tools))
	for _, t := range tools {
		if t.Parameters == nil {
			continue
		}

		data, err := json.Marshal(t.Parameters)
		if err != nil {
			return nil, err
		}

		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		url := fmt.Sprintf("https://orderrt.local/tools/%s.schema.json", t.Name)
		if err := c.AddResource(url, bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("load schema of %s: %w", t.Name, err)
		}
		compiled, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema of %s: %w", t.Name, err)
		}
		schemas[t.Name] = compiled
	}
	return schemas, nil
}

// validate checks args against the schema of name. Functions without a
// schema accept anything.
func (s argumentSchemas) validate(name string, args map[string]any) error {
	schema, ok := s[name]
	if !ok {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	return schema.Validate(args)
}
