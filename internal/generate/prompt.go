package generate

import (
	"fmt"
	"strings"
)

// promptTemplate is the fixed instruction sent to the video model,
// parameterized only by the dialogue line. The constraints (precise lip
// sync, no head movement, consistent background, hard stop after speech)
// are what keep the output usable as a talking-head clip; they are not
// user-editable.
const promptTemplate = `Animate the provided image of a person's face to realistically speak the following line: "%s". Ensure natural lip, mouth, and jaw movements that precisely match the dialogue audio. Do not have whole head movements, bobbing, nodding, or shaking. The expression should be polite and casual, and the background should remain consistent with the original image. The animation should be smooth and lifelike. The video must end immediately after the character is done speaking.`

// BuildPrompt renders the generation instruction for one dialogue line.
func BuildPrompt(dialogue string) string {
	return fmt.Sprintf(promptTemplate, strings.TrimSpace(dialogue))
}

// ModelHasAudio reports whether the given video model produces an audio
// track. Only the veo-3 family generates speech audio; older models emit
// silent video, which makes transcription pointless.
func ModelHasAudio(model string) bool {
	return strings.HasPrefix(model, "veo-3")
}
