package prompt

import "strings"

const intro = `You are an expert visual and audio analyst. Your task is to meticulously describe the contents of the provided image or video file to generate a prompt for a text-to-video AI model that would recreate this media as accurately as possible.`

const body = `Your description must be a literal and highly detailed account of everything visible and audible, including:
- **Subject(s):** Identify all main subjects (people, animals, objects). Describe their appearance, clothing, expressions, and features in great detail.
- **Action(s):** Detail every action and interaction. For videos, describe the sequence of events.
- **Setting/Environment:** Describe the location, time of day, weather, lighting, and background elements. Be specific about colors, textures, and architecture.
- **Composition & Camera:** Describe the camera angle (e.g., low angle, eye-level), shot type (e.g., close-up, wide shot), and any camera movement (e.g., panning, static).
- **Style & Mood:** Define the visual style and the emotional mood.
- **Audio:** If a video is provided, describe any speech, dialogue, narration, or significant sound effects.

Combine these elements into a single, cohesive, and comprehensive paragraph. The goal is an exact, detailed replication of the source media, modified by any requested style or user instructions.`

// Instruction renders the instructional template. The style and context
// clauses each occupy a fixed line that stays empty when the value is "",
// so Instruction("", "") is the base template. Values are inserted as given.
func Instruction(style, context string) string {
	var b strings.Builder
	b.WriteString(intro)
	b.WriteString("\n\n")
	if style != "" {
		b.WriteString(`**IMPORTANT - Target Style:** The user specifically requests the video prompt to be in the style of: "`)
		b.WriteString(style)
		b.WriteString(`". Ensure this style is prominently described and applied to the scene.`)
	}
	b.WriteString("\n")
	if context != "" {
		b.WriteString(`**IMPORTANT - User Instructions:** Incorporate the following specific keywords or details into the description naturally: "`)
		b.WriteString(context)
		b.WriteString(`".`)
	}
	b.WriteString("\n\n")
	b.WriteString(body)
	return b.String()
}

// Base is the template with neither optional clause.
func Base() string { return Instruction("", "") }
