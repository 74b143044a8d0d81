package pipeline

import (
	"fmt"
	"strings"
	"sync"

	"github.com/siherrmann/pano/model"
)

var standardFields = map[string]bool{"notes": true, "source": true, "image": true}

var systemPrompt = sync.OnceValue(func() string {
	var types strings.Builder
	for _, schema := range model.Schemas() {
		var props []string
		for _, field := range schema.Fields {
			if standardFields[field.Name] {
				continue
			}
			props = append(props, fmt.Sprintf("%s (%s)", field.Name, field.Kind))
		}
		fmt.Fprintf(&types, "- %s: %s\n  Properties: %s\n", schema.Type, schema.Description, strings.Join(props, ", "))
	}

	return `You help investigators build a graph of entities and relationships. Analyse the text and extract the entities it mentions and how they are connected.

Available entity types and their properties:
` + types.String() + `
Guidelines:
1. For violent events:
   - Create an Event with a clear descriptive name
   - Connect victims with "victim_of" and perpetrators with "perpetrator_of" to the event
   - Connect vehicles or weapons with "used_in" to the event
   - Use "accomplice_of" between perpetrators
2. For vehicles connect owners with "owned_by".
3. Between people use "knows", "friend_of" or "related_to" for social ties. Connect people to events rather than to each other for actions.
4. For events include all relevant details in name and description and connect every involved entity.

Use only the listed entity types and property names. Dates use ISO 8601. Leave out properties you do not know instead of writing "Unknown".
Connections reference entities by their zero-based index in the entities list.`
})

// SystemPrompt returns the instructions sent with every extraction.
func SystemPrompt() string {
	return systemPrompt()
}
