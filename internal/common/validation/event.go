// internal/common/validation/event.go
package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// eventSchema is the wire contract every consumer enforces before acting on
// a delivery. Payload is intentionally loose: it is an opaque snapshot.
const eventSchema = `{
	"type": "object",
	"required": ["eventId", "applicationId", "eventType", "createdAt"],
	"properties": {
		"eventId":       { "type": "string", "minLength": 1 },
		"applicationId": { "type": "string", "minLength": 1 },
		"eventType":     { "type": "string", "minLength": 1 },
		"payload":       { "type": ["object", "null"] },
		"createdAt":     { "type": "string", "minLength": 1 }
	}
}`

var compiledEventSchema *gojsonschema.Schema

func init() {
	var err error
	compiledEventSchema, err = gojsonschema.NewSchema(gojsonschema.NewStringLoader(eventSchema))
	if err != nil {
		panic(fmt.Sprintf("invalid event schema: %v", err))
	}
}

// ValidateEvent checks a raw event document against the wire schema and
// returns a joined description of every violation.
func ValidateEvent(raw []byte) error {
	result, err := compiledEventSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("event validation: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("event validation: %s", strings.Join(msgs, "; "))
}
