package enrich

// densityPromptHeader instructs the model to score sentence complexity.
// Keys are the first five words of each sentence with punctuation stripped,
// matching the lookup normalization on the parsing side.
const densityPromptHeader = `You are scoring sentences of a book passage for reading difficulty.

Reply with ONLY a JSON object. Each key is the first five words of a sentence
with punctuation removed. Each value is an integer complexity score from 0 to 10:
- 0: structural or junk fragment (page number, footnote marker, bracketed citation)
- 1-3: very simple prose
- 4-6: average prose
- 7-10: dense or technical prose

Sentences:
`

// summaryPrompt asks for a structured classification of one chunk.
const summaryPrompt = `You are labeling a section of a book.

Reply with ONLY a JSON object of the form
{"status": "CONTENT" or "JUNK", "title": "...", "summary": "..."}.
Use status JUNK for front matter, indexes, or publishing boilerplate.
The title is a short heading for the section; the summary is one or two
sentences.

Section text:
`
