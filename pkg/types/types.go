// Package types holds the small data types shared between the extraction,
// matching, and delivery layers of Partline.
package types

// Mention is one spoken or typed reference to a catalog part, extracted
// from free text. Quantity defaults to 1 when the speaker did not state one.
type Mention struct {
	// PartName is the part description as the customer phrased it. It may
	// carry transcription noise ("fire lock tee" for "FIRELOCK TEE").
	PartName string `json:"part_name"`

	// Quantity is the number of units asked for. Always >= 1 after
	// extraction normalisation.
	Quantity int `json:"quantity"`
}
