package models

// SourceKind identifies the origin of an ingested document.
type SourceKind string

const (
	SourcePDF   SourceKind = "pdf"
	SourceVideo SourceKind = "video"
)

// SourceDocument is one ingested unit of content. Documents live only in
// memory for the duration of an ingestion run and are replaced wholesale
// by the next successful run.
type SourceDocument struct {
	SourceID string     `json:"source"`
	Text     string     `json:"-"`
	Kind     SourceKind `json:"type"`
}

// PassageMetadata carries the provenance of a retrieved passage.
type PassageMetadata struct {
	Source string     `json:"source"`
	Type   SourceKind `json:"type"`
}

// Passage is a contiguous slice of one SourceDocument's text, the unit of
// retrieval. The embedding is held by the index, not the passage.
type Passage struct {
	ChunkID  string          `json:"chunk_id"`
	Content  string          `json:"content"`
	Metadata PassageMetadata `json:"metadata"`
}

// SourceRef is the trimmed passage representation sent to the client at
// the end of a streamed answer.
type SourceRef struct {
	Content  string          `json:"content"`
	Metadata PassageMetadata `json:"metadata"`
}

// Answer is the result of a retrieval-augmented query.
type Answer struct {
	Answer  string    `json:"answer"`
	Sources []Passage `json:"docs"`
}

// DialogueLine is one turn of a generated Teacher/Student dialogue script.
type DialogueLine struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}
