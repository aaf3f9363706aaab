package testing

// SampleCRMSeed returns a CRM seed file with two organizations and three people.
// Contact fields are populated so privacy checks have something to catch.
func SampleCRMSeed() string {
	return `organizations:
  - id: org-acme
    name: Acme Corp
    fields:
      industry: Developer tools
      website: https://acme.example
      location: Berlin
    tags: [customer, enterprise]
    notes:
      - text: Renewal due in Q3, contact billing@acme.example for invoices.
  - id: org-globex
    name: Globex
    fields:
      industry: Energy
    tags: [prospect]

people:
  - id: abc
    name: Ada Lovelace
    organization_id: org-acme
    fields:
      title: Chief Scientist
      email: ada@acme.example
      phone: 555-123-4567
      linkedin_url: https://linkedin.com/in/ada
      location: London
    tags: [vip, math]
    notes:
      - text: Met at the analytics summit. Prefers calls at 555-987-6543.
      - text: Interested in the compiler roadmap.
  - id: grace
    name: Grace Hopper
    fields:
      title: Rear Admiral
      email: grace@navy.example
    tags: [compilers]
  - id: alan
    name: Alan Turing
    organization_id: org-globex
    fields:
      title: Researcher
`
}

// SampleSuggestedUpdatesReply returns an assistant reply carrying a suggested_updates block
func SampleSuggestedUpdatesReply() string {
	return "Ada recently moved to a new role.\n\n" +
		"```json\n" +
		`{"suggested_updates": [{"entity_type": "person", "entity_id": "abc", "field": "title", "value": "CTO", "confidence": 0.8, "source": "https://news.example/ada"}]}` +
		"\n```\n"
}
