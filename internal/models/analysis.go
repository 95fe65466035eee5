package models

// Chunk is a window of whitespace tokens cut from a longer text.
// StartWord and EndWord are token offsets, EndWord exclusive.
type Chunk struct {
	Index     int       `json:"index"`
	Text      string    `json:"text"`
	StartWord int       `json:"start_word"`
	EndWord   int       `json:"end_word"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// LabelScore is one (label, score) pair from the classifier.
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Entity is a recognised sensitive span. Start and End are byte offsets
// into the text it was found in.
type Entity struct {
	Type        string  `json:"entity_type"`
	Start       int     `json:"start"`
	End         int     `json:"end"`
	Score       float64 `json:"score"`
	Text        string  `json:"text,omitempty"`
	Replacement string  `json:"replacement,omitempty"`
}
