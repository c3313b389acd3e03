package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// FileDelimiterPrefix starts the line that introduces every file inside a chunk.
const FileDelimiterPrefix = "// FILE: "

// SourceFile is one decoded text file, Path relative to the repository root.
type SourceFile struct {
	Path    string `json:"path"`
	Content string `json:"-"`
}

// Chunk is a sealed group of whole files sent to the model as one unit.
// Tokens is the packing estimate: the sum of per-section estimates, each section
// after the first charged together with the separator before it.
type Chunk struct {
	Index  int      `json:"index"`
	Files  []string `json:"files"`
	Text   string   `json:"-"`
	Tokens int      `json:"tokens"`
}

type Fingerprint string

// NewFingerprint digests the exact bytes of chunk text followed by the question.
func NewFingerprint(chunkText, question string) Fingerprint {
	h := sha256.New()
	h.Write([]byte(chunkText))
	h.Write([]byte(question))
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

type CostEstimate struct {
	Chunks int `json:"chunks"`
	Files  int `json:"files"`
	Tokens int `json:"tokens"`
}
