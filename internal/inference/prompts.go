package inference

import (
	"fmt"
	"strings"
)

// SeasonAnalysisInstruction is sent with the uploaded photo.
const SeasonAnalysisInstruction = `Analyze the person's natural coloring in this photo (skin undertone, hair, eyes, contrast) and classify it into a seasonal color type.
Answer with JSON only, using this shape:
{"season": string, "undertone": string, "contrast": string, "summary": string,
 "best_colors": [{"name": string, "hex": string}], "worst_colors": [{"name": string, "hex": string}], "metals": [string]}`

// OutfitValidationInstruction is sent with an outfit photo. The season is
// appended when known.
const OutfitValidationInstruction = `Evaluate whether the clothing colors in this photo suit the wearer.
Answer with JSON only: {"verdict": "match"|"partial"|"clash", "score": number 0-100, "notes": string}`

// DrapingInstruction builds the strict edit instruction for a draping image.
// Only the garment color may change.
func DrapingInstruction(colorDescription string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Recolor only the clothing or drape around the shoulders to %s. ", strings.TrimSpace(colorDescription))
	b.WriteString("Do not change the face, skin tone, hair, eyes, body shape, background, lighting or image texture. ")
	b.WriteString("Keep the person fully recognizable. Return the edited image.")
	return b.String()
}
