package ai

import (
	"fmt"
	"strings"

	"storyreel-server/internal/models"
)

// contextSystemPrompt просит модель построить производственную библию
// истории: общий план и стилевые решения, которые затем подмешиваются
// в промпты всех сегментов.
const contextSystemPrompt = `You are a film production designer. Given a complete voice-over script, produce a "Production Bible" for a short faceless video.

Respond with a single JSON object of this exact shape:
{
  "story_outline": "one-paragraph summary of the narrative arc",
  "style_bible": {
    "visual_theme": "...",
    "mood": "...",
    "color_palette": "...",
    "lighting_style": "...",
    "character_design": "...",
    "environment_design": "..."
  }
}

Keep every field a short, concrete art-direction phrase. Do not add any other keys.`

// sceneSplitSystemPrompt просит модель разбить сплошной сценарий на
// сцены-сегменты, по одному кадру на сцену.
const sceneSplitSystemPrompt = `You are a script editor. Split the given voice-over script into distinct visual scenes. Each scene becomes one image in a video, so split at changes of location, subject or action. Keep the original wording, do not rewrite or summarize.

Respond with a single JSON object: {"scenes": ["scene one text", "scene two text", ...]}`

// guidedStorySystemPrompt — написание сценария по описанию пользователя.
const guidedStorySystemPrompt = `You are a professional script writer for short faceless videos. Write an engaging voice-over script based on the user's description. Use vivid, visual language. Separate distinct scenes with blank lines. Output only the script text, no headings, no scene numbers, no markdown. Keep the script under 10000 characters.`

// styleEnhanceSystemPrompt — обогащение пользовательского стиля.
const styleEnhanceSystemPrompt = `You are an expert prompt engineer for image generation models. Expand the user's style description into a rich, comma-separated list of visual style keywords. Keep the user's intent, add concrete art direction (medium, lighting, palette, composition). Respond with a single JSON object: {"prompt": "..."}`

// editMergeSystemPrompt — слияние исходного промпта с инструкцией правки.
const editMergeSystemPrompt = `You are an expert prompt engineer. You are given the original prompt of an image and an edit instruction. Produce a new complete prompt that preserves everything from the original except what the instruction changes. Respond with a single JSON object: {"prompt": "..."}`

// themeKeywords — добор ключевых слов промпта кадра по тегу темы.
// Теги образуют закрытый набор, ThemeGeneric ничего не добавляет.
var themeKeywords = map[models.ThemeTag]string{
	models.ThemeCinematic: ` Favor keywords like: cinematic lighting, anamorphic lens, film grain, dramatic composition, depth of field.`,
	models.ThemeAnime:     ` Favor keywords like: anime key visual, pixiv trending, studio ghibli inspired, clean line art, cel shading.`,
	models.ThemePhoto:     ` Favor keywords like: photorealistic, 8k, shallow depth of field, f/1.8, natural skin texture.`,
}

// DetectThemeTag сводит свободный текст визуальной темы к тегу из
// закрытого набора. Вызывается один раз при построении библии.
func DetectThemeTag(visualTheme string) models.ThemeTag {
	theme := strings.ToLower(visualTheme)
	switch {
	case strings.Contains(theme, "cinematic"):
		return models.ThemeCinematic
	case strings.Contains(theme, "anime"), strings.Contains(theme, "animation"):
		return models.ThemeAnime
	case strings.Contains(theme, "photo"):
		return models.ThemePhoto
	}
	return models.ThemeGeneric
}

// imagePromptSystem строит системный промпт синтеза промпта кадра,
// добирая ключевые слова по тегу темы библии.
func imagePromptSystem(tag models.ThemeTag) string {
	var sb strings.Builder
	sb.WriteString(`You are an expert prompt engineer for text-to-image models. Given the production bible of a story and the text of one scene, write a single detailed image generation prompt for that scene. Describe subject, action, environment and framing. Stay strictly inside the style bible.`)
	sb.WriteString(themeKeywords[tag])
	sb.WriteString(`

Respond with a single JSON object: {"prompt": "..."}`)
	return sb.String()
}

// agentSystemPrompt строит системный промпт ответа агента входящих.
func agentSystemPrompt(name, description, personality string) string {
	return fmt.Sprintf(`You are %s. %s

Personality: %s

Stay in character. Reply to the user's latest message in the conversation. Keep replies conversational and under 200 words.`, name, description, personality)
}
