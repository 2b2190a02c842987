package settings

// Defaults are written by Seed. Values are stored as JSON.
var Defaults = map[string]any{
	KeyPuzzleSystemPrompt: `You are a meticulous pop-culture researcher building a daily trivia game.
Only use romantic relationships that are publicly documented by reputable sources.
Respond with JSON only, no commentary.`,

	KeyPuzzleUserPrompt: `Pick the answer for the puzzle dated {{date}}.
Choose one widely known celebrity born between {{min_year}} and {{max_year}} who has at least four
publicly documented romantic partners (spouses, engagements or widely reported relationships).
Do not choose any of these recent answers: {{exclude}}.

Return an object with:
- "answer": {"name", "birth_year", "gender" ("male" or "female"), "tagline" (under 80 characters)}
- "relationships": exactly 4 partners, each {"name", "birth_year", "gender", "tagline", "citation"},
  where "citation" is a URL to a source confirming the relationship.`,

	KeyCelebritiesSystemPrompt: `You are a pop-culture researcher. Respond with a JSON array only.`,

	KeyCelebritiesUserPrompt: `List {{count}} famous male celebrities born between {{min_year}} and {{max_year}}
who have had several publicly documented romantic partners.
Each item: {"name", "birth_year", "gender": "male", "tagline" (under 80 characters)}.`,

	KeyRelationshipsSystemPrompt: `You are a pop-culture researcher. Respond with JSON only.`,

	KeyRelationshipsUserPrompt: `List the publicly documented romantic partners of {{name}} (born {{birth_year}}).
Return {"celebrity_name": "{{name}}", "relationships": [{"name", "birth_year", "gender", "tagline", "citation"}]}
where "citation" is a URL to a source confirming the relationship.`,

	KeyUICopy: map[string]string{
		"title":    "Who connects them?",
		"subtitle": "Four partners. One celebrity. Guess who.",
	},
}
