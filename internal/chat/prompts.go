package chat

import (
	"fmt"
	"strings"

	"github.com/pagebound/pagebound/internal/model"
)

const noContextMarker = "No document context is available."

// supportedLanguages the assistant may reply in; the reply language follows
// the user's message. This is a prompt-level contract, not runtime detection.
var supportedLanguages = []string{"English", "Spanish", "French", "German", "Portuguese"}

func systemPrompt(doc *model.Document, grounding string, method Method) string {
	var b strings.Builder
	b.WriteString("You are a reading assistant for the Pagebound library. ")
	b.WriteString("Answer questions about the document below using only the provided context.\n\n")

	fmt.Fprintf(&b, "Document title: %s\n", doc.Title)
	if len(doc.Authors) > 0 {
		fmt.Fprintf(&b, "Authors: %s\n", strings.Join(doc.Authors, ", "))
	}
	if len(doc.Categories) > 0 {
		fmt.Fprintf(&b, "Categories: %s\n", strings.Join(doc.Categories, ", "))
	}

	b.WriteString("\n")
	switch method {
	case MethodEmbedding:
		b.WriteString("Relevant excerpts from the document, with page references:\n\n")
		b.WriteString(grounding)
		b.WriteString("\n\nCite page numbers when the excerpts carry them.")
	case MethodFullContent:
		b.WriteString("Document content (may be truncated):\n\n")
		b.WriteString(grounding)
	default:
		b.WriteString(grounding)
		b.WriteString("\nAnswer from the document metadata above and general knowledge, and say when the document itself does not provide the answer.")
	}

	fmt.Fprintf(&b, "\n\nReply in the language of the user's most recent message (supported: %s). ",
		strings.Join(supportedLanguages, ", "))
	b.WriteString("If the context does not cover the question, say so instead of inventing details.")
	return b.String()
}
