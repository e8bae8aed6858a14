// Package llm provides the answer generators behind retrieval-augmented
// answers, and the prompt and citation helpers around them.
//
// The provider set is closed and selected once from configuration: none
// (retrieval-only, New returns a nil Generator), ollama, and openai.
package llm
