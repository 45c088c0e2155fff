package visibility

import (
	"os"
	"path/filepath"
)

// systemPrompt anchors the model as a domain expert for the Scripps Pier
// camera. The pier pilings at known distances act as the measurement scale.
const systemPrompt = `You are an expert marine biologist and underwater visibility analyst for the Scripps Pier underwater camera in La Jolla, California.

The camera is fixed at ~4m (13ft) depth under Scripps Pier, looking through the pier pilings. The pilings serve as distance markers:

- Closest piling (right edge): ~4 ft (1.2m) from camera
- Mid-right piling: ~11 ft (3.4m) from camera
- Back-left piling: ~14 ft (4.3m) from camera
- Farthest visible pilings (center-left): ~30 ft (9m) from camera

You will be shown reference images before the image to evaluate:
1. A labeled diagram showing which piling is at 4ft, 11ft, 14ft, and 30ft (~25ft visibility).
2. A ~35ft exceptional visibility image where all pilings are sharp with texture and the sandy bottom is visible.
3. A ~25ft good visibility image where the 30ft pilings are faintly visible as silhouettes.
Use these to calibrate your estimates.

Visibility estimation guidelines (use the FULL range, do not round conservatively):
- If the 30ft pilings are clearly visible with sharp texture AND you can see the sandy bottom: 35 ft
- If the 30ft pilings are mostly visible, but less clear than the reference: 30ft
- If the 30ft pilings are faintly visible as silhouettes: 25ft
- If the 14ft piling is sharp with visible texture: 20 ft
- If the 14ft piling is hazy/faded silhouette: 15 ft
- If only the 11ft piling is visible: 10 ft
- If only the closest 4ft piling is clear: 5ft
- If barely anything is visible: <5 ft

Clearly go through the steps above. Think clearly.

IMPORTANT: If the image is NOT a valid underwater snapshot (e.g., error page, offline message, webpage screenshot, completely black frame, camera malfunction, animal blocking the lens, or anything else that prevents a reliable visibility reading), you MUST set visibility_ft to "nan".`

// userPrompt demands a single JSON object with exactly two fields so the
// response can be decoded deterministically.
const userPrompt = `Analyze this underwater camera snapshot from Scripps Pier and estimate the visibility in feet.

Respond in this exact JSON format (no markdown, no code fences):
{"visibility_ft": <number or "nan">, "conditions": "<brief description>"}`

// promptPart is one element of the assembled request: either caption text or
// an inline image.
type promptPart struct {
	text      string
	image     []byte
	mediaType string
}

// referenceImages are calibration images shown before the target image, in
// order, to anchor the model's scale. Files missing from the reference
// directory are simply skipped.
var referenceImages = []struct {
	file    string
	caption string
}{
	{"labeled_viz.png", "Labeled diagram (~25ft visibility) showing piling distances from camera:"},
	{"great_visibility_35ft.png", "Reference: ~35ft exceptional visibility. All pilings sharp with texture, sandy bottom visible:"},
	{"good_visibility_25ft.png", "Reference: ~25ft good visibility. 30ft pilings faintly visible as silhouettes:"},
}

// buildPrompt assembles the calibration references, the output-format
// instruction, and the target image into ordered prompt parts.
func buildPrompt(referenceDir string, target []byte, targetMediaType string) []promptPart {
	var parts []promptPart

	for _, ref := range referenceImages {
		data, err := os.ReadFile(filepath.Join(referenceDir, ref.file))
		if err != nil {
			continue
		}
		parts = append(parts,
			promptPart{text: ref.caption},
			promptPart{image: data, mediaType: "image/png"},
		)
	}

	parts = append(parts,
		promptPart{text: userPrompt},
		promptPart{image: target, mediaType: targetMediaType},
	)
	return parts
}

// mediaTypeForPath maps an image path extension to its MIME type.
func mediaTypeForPath(path string) string {
	switch filepath.Ext(path) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "image/png"
	}
}
