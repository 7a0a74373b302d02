package generation

import (
	"strings"

	"github.com/samber/lo"

	"github.com/Manny1440/DreamScapers/internal/imagedata"
)

const instructionTemplate = "You are a professional landscape designer. Edit the attached photo of an outdoor space " +
	"so it shows the finished landscaping project. Keep the house, fixed structures, camera angle and " +
	"perspective exactly as they are, and return a photorealistic image.\n\nRequested changes: "

// BuildInstruction combines the user's prompt and optional style modifier.
func BuildInstruction(prompt, styleModifier string) string {
	var b strings.Builder
	b.WriteString(instructionTemplate)
	b.WriteString(strings.TrimSpace(prompt))
	if style := strings.TrimSpace(styleModifier); style != "" {
		b.WriteString("\n\nDesign style: ")
		b.WriteString(style)
	}
	return b.String()
}

// FirstImage returns the first image-bearing part of the first candidate.
func FirstImage(resp *Response) (imagedata.Image, bool) {
	if resp == nil || len(resp.Candidates) == 0 {
		return imagedata.Image{}, false
	}
	part, ok := lo.Find(resp.Candidates[0].Parts, func(p Part) bool {
		return p.Image != nil && len(p.Image.Data) > 0
	})
	if !ok {
		return imagedata.Image{}, false
	}
	img := *part.Image
	if img.MIMEType == "" {
		img.MIMEType = imagedata.DefaultMIMEType
	}
	return img, true
}
