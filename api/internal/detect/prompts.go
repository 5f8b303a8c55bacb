package detect

import "fmt"

const DetectPrompt = `You are a high-precision computer vision system.

Identify the single most dominant real-world object in this image.

Rules:
- Name the SPECIFIC OBJECT (e.g. "smartphone", "plastic bottle", "banana peel")
- Do NOT describe materials, colors, textures, or surfaces
- Do NOT mention waste, recycling, or disposal
- Do NOT say "object", "item", "material", "thing", "device" (be more specific)
- Electronic device: name the exact device type
- Food/organic: name the specific food item

Return ONLY valid JSON:
{"object_name": "<specific name>", "confidence": <0-100>}`

// RetryPrompt is sent once when the first answer was vague or unsure.
const RetryPrompt = `Previous attempt returned a vague description. Be more specific.

Look at the SHAPE and PURPOSE of the main object. What is it called?

Good: smartphone, laptop, banana peel, plastic bottle, newspaper
Bad: flat object, dark material, electronic device, organic matter

Return ONLY JSON: {"object_name": "<specific name>", "confidence": <0-100>}`

// CategoryPrompt asks a text model to place label into one of the six categories.
func CategoryPrompt(label string) string {
	return fmt.Sprintf(`Object: %q
Classify into exactly one: Wet Waste | Dry Waste | Recyclable | Hazardous Waste | E-Waste | General Waste
Return JSON only: {"category": "<category>"}`, label)
}
