package enrich

import "strings"

const promptHeader = `Analyse the note below and reply with a single JSON object with exactly these keys:
  "summary": two or three sentences describing the note,
  "excerpt": the single most representative sentence, quoted or paraphrased,
  "keyInsights": an array of short strings, most important first,
  "topics": an array of 3 to 7 short lower-case topic labels,
  "sentiment": one of "positive", "neutral" or "negative".
Reply with JSON only.

Note:
`

func buildPrompt(surrogate string) string {
	var b strings.Builder
	b.Grow(len(promptHeader) + len(surrogate))
	b.WriteString(promptHeader)
	b.WriteString(surrogate)
	return b.String()
}
