// Package mock provides deterministic stand-ins for the model providers
// and pipeline stages.
//
// Every type takes an optional function field that replaces its default
// behaviour, and counts its calls:
//
//	enc := mock.NewEncoder(384)
//	enc.Vectors["invoice"] = []float32{1, 0, 0}
//
//	rec := &mock.Recognizer{Err: errors.New("model offline")}
//
// Defaults:
//
//   - Encoder: FNV bag-of-words vectors, or a fixed vector per exact text
//   - Scorer: keyword match of each label against the text
//   - Recognizer: no entities
//   - OCR: a fixed text for every image
//   - Extractor: the raw bytes read back as text, minus a PDF header line
package mock
