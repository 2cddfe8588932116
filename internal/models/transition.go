package models

import "github.com/google/uuid"

// TransitionType — тип перехода между сегментами.
// "cut" не хранится: жесткая склейка это отсутствие записи.
type TransitionType string

const (
	TransitionFade     TransitionType = "fade"
	TransitionDissolve TransitionType = "dissolve"
	TransitionWipe     TransitionType = "wipe"

	// TransitionCut принимается на записи и означает удаление перехода.
	TransitionCut TransitionType = "cut"
)

// ValidTransitionType проверяет тип перехода для upsert.
func ValidTransitionType(t string) bool {
	switch TransitionType(t) {
	case TransitionFade, TransitionDissolve, TransitionWipe:
		return true
	}
	return false
}

// Transition — переход после сегмента AfterSegmentID.
// На сегмент приходится максимум одна запись.
type Transition struct {
	ID             uuid.UUID      `json:"id"`
	StoryID        uuid.UUID      `json:"storyId"`
	AfterSegmentID uuid.UUID      `json:"afterSegmentId"`
	Type           TransitionType `json:"type"`
	DurationMs     int            `json:"durationMs"`
}
