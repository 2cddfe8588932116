package messaging

// TaskType определяет тип фоновой задачи в очереди генерации.
type TaskType string

const (
	TaskGuidedStory     TaskType = "guided_story"
	TaskStoryGeneration TaskType = "story_generation"
	TaskSegmentImage    TaskType = "segment_image"
	TaskUploadedImage   TaskType = "uploaded_image"
	TaskDecorateImage   TaskType = "decorate_image"
	TaskLineVoiceover   TaskType = "line_voiceover"
	TaskAgentReply      TaskType = "agent_reply"
)

// GenerationTaskPayload — сообщение очереди generation_tasks.
// Заполняются только поля, относящиеся к типу задачи.
type GenerationTaskPayload struct {
	TaskID   string   `json:"taskId"`
	TaskType TaskType `json:"taskType"`
	UserID   string   `json:"userId"`

	StoryID      string `json:"storyId,omitempty"`
	GenerationID string `json:"generationId,omitempty"` // эпоха генерации истории

	SegmentID  string `json:"segmentId,omitempty"`
	VersionID  string `json:"versionId,omitempty"`  // база для edit / превью аплоада
	EditPrompt string `json:"editPrompt,omitempty"` // инструкция правки изображения

	LineID string `json:"lineId,omitempty"` // строка структурированного текста
	Voice  string `json:"voice,omitempty"`

	DecorImageID string `json:"decorImageId,omitempty"`
	BaseImage    string `json:"baseImage,omitempty"` // original | decorated

	ConversationID string `json:"conversationId,omitempty"`

	Description string `json:"description,omitempty"` // guided story
}

// UpdateType определяет сущность, которой касается событие клиента.
type UpdateType string

const (
	UpdateTypeStory   UpdateType = "story"
	UpdateTypeSegment UpdateType = "segment"
	UpdateTypeLine    UpdateType = "line"
	UpdateTypeDecor   UpdateType = "decor_image"
	UpdateTypeInbox   UpdateType = "inbox"
)

// ClientUpdatePayload — сообщение очереди client_updates. Websocket-менеджер
// доставляет его всем соединениям владельца.
type ClientUpdatePayload struct {
	UserID       string     `json:"userId"`
	UpdateType   UpdateType `json:"updateType"`
	EntityID     string     `json:"entityId"`
	StoryID      string     `json:"storyId,omitempty"`
	Status       string     `json:"status,omitempty"`
	ErrorDetails *string    `json:"errorDetails,omitempty"`
}
