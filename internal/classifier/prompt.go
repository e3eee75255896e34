package classifier

import (
	"fmt"
	"strings"

	"github.com/testvault/portal/internal/models"
)

// promptContext is the registry snapshot embedded in one classification prompt.
type promptContext struct {
	Targets         []models.NavigationTarget
	Modules         []models.ModuleRef
	Users           []models.UserRef
	CurrentRelease  *models.ReleaseRef
	PreviousRelease *models.ReleaseRef
}

const systemPrompt = `You are the navigation classifier for a test management portal.
Given a user's query and the portal context, respond with a single JSON object and nothing else:
{
  "intent": "<one of the page keys below, or \"unknown\">",
  "target_path": "<the page's path>",
  "filters": {"<field>": "<value>", ...},
  "requires_semantic": <true when the query asks for content matching rather than exact fields>,
  "semantic_query": "<text to match against stored records, empty if none>",
  "confidence": <0.0 to 1.0>
}
Only use filter fields listed for the chosen page, with values from their allowed sets where given.
Use the literal value "me" when the query refers to the requester and "current" for the active release.
Do not invent pages, fields, or values.`

// buildUserPrompt renders the context snapshot and the query. Original query
// casing is preserved; normalization is for cache keys only.
func buildUserPrompt(pc promptContext, query string) string {
	var b strings.Builder

	b.WriteString("Pages:\n")

	for _, t := range pc.Targets {
		fmt.Fprintf(&b, "- key: %s, name: %s, path: %s\n", t.Key, t.Name, t.PathTemplate)

		if len(t.FilterFields) > 0 {
			b.WriteString("  filters:")

			for _, f := range t.FilterFields {
				fmt.Fprintf(&b, " %s(%s)", f.Name, f.Type)

				if len(f.AllowedValues) > 0 {
					fmt.Fprintf(&b, "=[%s]", strings.Join(f.AllowedValues, "|"))
				}
			}

			b.WriteString("\n")
		}

		if len(t.ExampleQueries) > 0 {
			fmt.Fprintf(&b, "  examples: %s\n", strings.Join(t.ExampleQueries, "; "))
		}
	}

	if len(pc.Modules) > 0 {
		b.WriteString("Modules:\n")

		for _, m := range pc.Modules {
			if len(m.Aliases) > 0 {
				fmt.Fprintf(&b, "- %s (aka %s)\n", m.Name, strings.Join(m.Aliases, ", "))
			} else {
				fmt.Fprintf(&b, "- %s\n", m.Name)
			}
		}
	}

	if len(pc.Users) > 0 {
		b.WriteString("Users:\n")

		for _, u := range pc.Users {
			fmt.Fprintf(&b, "- %s <%s>\n", u.Name, u.Email)
		}
	}

	if pc.CurrentRelease != nil {
		fmt.Fprintf(&b, "Current release: %s\n", pc.CurrentRelease.Version)
	} else {
		b.WriteString("Current release: none\n")
	}

	if pc.PreviousRelease != nil {
		fmt.Fprintf(&b, "Previous release: %s\n", pc.PreviousRelease.Version)
	}

	fmt.Fprintf(&b, "\nQuery: %s\n", query)

	return b.String()
}
