package models

import (
	"github.com/google/uuid"
)

// Segment — один кадр истории. Order плотный и нумеруется с нуля
// в пределах истории; удаление и перестановка сегментов обязаны
// сохранять плотность.
type Segment struct {
	ID                uuid.UUID            `json:"id"`
	StoryID           uuid.UUID            `json:"storyId"`
	Order             int                  `json:"order"`
	Text              string               `json:"text"`
	IsGenerating      bool                 `json:"isGenerating"`
	Error             *string              `json:"error,omitempty"`
	SelectedVersionID *uuid.UUID           `json:"selectedVersionId,omitempty"`
	StructuredText    []StructuredTextLine `json:"structuredText,omitempty"`
}

// LineType — тип строки структурированного текста.
type LineType string

const (
	LineNarration LineType = "narration"
	LineDialogue  LineType = "dialogue"
)

// StructuredTextLine хранится как элемент jsonb-массива на сегменте.
// VoiceoverRef указывает на blob с озвучкой; правка текста строки
// обязана сбрасывать его вместе с ошибкой озвучки.
type StructuredTextLine struct {
	LineID                string   `json:"lineId"`
	Type                  LineType `json:"type"`
	CharacterName         *string  `json:"characterName,omitempty"`
	Text                  string   `json:"text"`
	Voice                 *string  `json:"voice,omitempty"`
	VoiceoverRef          *string  `json:"voiceoverRef,omitempty"`
	IsGeneratingVoiceover bool     `json:"isGeneratingVoiceover,omitempty"`
	VoiceoverError        *string  `json:"voiceoverError,omitempty"`
}

// SegmentBlobRefs собирает ссылки на блобы сегмента: изображения и превью
// его версий плюс озвучку строк структурированного текста. Список нужен
// для зачистки стораджа после каскадного удаления записей БД.
func SegmentBlobRefs(segment *Segment, versions []*ImageVersion) []string {
	var refs []string
	for _, v := range versions {
		if v.ImageRef != "" {
			refs = append(refs, v.ImageRef)
		}
		if v.PreviewRef != "" {
			refs = append(refs, v.PreviewRef)
		}
	}
	for _, line := range segment.StructuredText {
		if line.VoiceoverRef != nil && *line.VoiceoverRef != "" {
			refs = append(refs, *line.VoiceoverRef)
		}
	}
	return refs
}

// VoiceoverVoices — голоса, допустимые для озвучки строк.
var VoiceoverVoices = []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}

// ValidVoice проверяет имя голоса.
func ValidVoice(voice string) bool {
	for _, v := range VoiceoverVoices {
		if v == voice {
			return true
		}
	}
	return false
}
