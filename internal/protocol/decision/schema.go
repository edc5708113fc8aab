package decision

import (
	_ "embed"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	//go:embed decision.schema.json
	decisionSchemaSource string
	//go:embed alliance_response.schema.json
	allianceSchemaSource string

	schemasOnce    sync.Once
	decisionSchema *jsonschema.Schema
	allianceSchema *jsonschema.Schema
)

func schemas() (*jsonschema.Schema, *jsonschema.Schema) {
	schemasOnce.Do(func() {
		decisionSchema = jsonschema.MustCompileString("decision.schema.json", decisionSchemaSource)
		allianceSchema = jsonschema.MustCompileString("alliance_response.schema.json", allianceSchemaSource)
	})
	return decisionSchema, allianceSchema
}
