package models

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultTopK         = 4

	// ContextSeparator joins retrieved chunks inside the system prompt.
	ContextSeparator = "\n\n"

	NoContextMessage = "No relevant context."
	NoAnswerMessage  = "No answer found."
)

var (
	// SystemPromptTemplate takes the retrieved context as its only verb.
	SystemPromptTemplate = "You are an assistant for question-answering tasks. " +
		"Use the following pieces of retrieved context to answer " +
		"the question. If you don't know the answer, say that you " +
		"don't know. Use three sentences maximum and keep the " +
		"answer concise." +
		"\n\n" +
		"%s"
)
