package extract

import (
	"fmt"
	"strings"
)

// BuildPrompt embeds a chunk and an instruction in the extraction prompt.
func BuildPrompt(chunk, instruction string) string {
	return fmt.Sprintf(`You are an expert data extractor. Your task is to extract information from the following content:

%s

Please carefully follow these instructions:

1. **Objective**: Extract exactly what is described below:
    **%s**

2. **Output Format**:
    - If the description or question specifies a format (e.g., list, markdown table, plain text), deliver the output in that format.
    - If the format request is mentioned in a conversational way (like "show me in a table"), still deliver in that format.
    - Do not include any extra explanation, commentary, or notes.

3. **No Duplicates**: Only show each unique item once. Remove any duplicate entries.

4. **Understanding User Intent**: If the format is not explicitly mentioned in the description but is requested in the question, respect that format.

5. **No Additional Text**: Your response must contain only the extracted information in the requested format.

6. **No Match Found**: If no matching information is found, return an empty string ('')`, chunk, instruction)
}

// noMatchPhrase is what models tend to say instead of returning nothing.
const noMatchPhrase = "no relevant information found"

// isNoMatch reports whether a model reply means "nothing found". Models
// asked to return '' sometimes return the quotes themselves, or the phrase
// alone. A longer reply that merely contains the phrase is a real result.
func isNoMatch(reply string) bool {
	reply = strings.TrimSpace(reply)
	switch reply {
	case "", "''", `""`, "``":
		return true
	}
	return strings.ToLower(strings.TrimRight(reply, ".!")) == noMatchPhrase
}
