package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"storyreel-server/internal/models"
	"storyreel-server/internal/utils"
)

// Director — типизированная обертка над Client: каждая операция знает
// свой системный промпт, формат ответа и деградацию при невалидном JSON.
type Director struct {
	client Client
	logger *zap.Logger
}

// NewDirector creates a Director over the given AI client.
func NewDirector(client Client, logger *zap.Logger) *Director {
	return &Director{client: client, logger: logger.Named("Director")}
}

// promptResponse — единый однополевой формат ответа промпт-операций.
type promptResponse struct {
	Prompt string `json:"prompt"`
}

func (d *Director) singlePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	raw, _, err := d.client.CompleteJSON(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", err
	}

	var resp promptResponse
	if err := json.Unmarshal([]byte(utils.ExtractJSONContent(raw)), &resp); err != nil {
		return "", fmt.Errorf("failed to parse prompt response: %w", err)
	}
	if strings.TrimSpace(resp.Prompt) == "" {
		return "", fmt.Errorf("prompt response is empty")
	}
	return resp.Prompt, nil
}

// GenerateStoryContext строит производственную библию по сценарию.
func (d *Director) GenerateStoryContext(ctx context.Context, script string) (*models.StoryContext, json.RawMessage, error) {
	raw, _, err := d.client.CompleteJSON(ctx, contextSystemPrompt, script)
	if err != nil {
		return nil, nil, err
	}

	cleaned := utils.ExtractJSONContent(raw)
	storyCtx := &models.StoryContext{}
	if err := json.Unmarshal([]byte(cleaned), storyCtx); err != nil {
		return nil, nil, fmt.Errorf("failed to parse story context: %w", err)
	}
	if storyCtx.StoryOutline == "" {
		return nil, nil, fmt.Errorf("story context missing outline")
	}

	// Тег темы вычисляется здесь единожды и хранится вместе с библией.
	storyCtx.ThemeTag = DetectThemeTag(storyCtx.StyleBible.VisualTheme)
	persisted, err := json.Marshal(storyCtx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal story context: %w", err)
	}
	return storyCtx, json.RawMessage(persisted), nil
}

// SplitScenes разбивает сценарий на сцены через LLM.
func (d *Director) SplitScenes(ctx context.Context, script string) ([]string, error) {
	raw, _, err := d.client.CompleteJSON(ctx, sceneSplitSystemPrompt, script)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Scenes []string `json:"scenes"`
	}
	if err := json.Unmarshal([]byte(utils.ExtractJSONContent(raw)), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse scenes response: %w", err)
	}

	var scenes []string
	for _, s := range resp.Scenes {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			scenes = append(scenes, trimmed)
		}
	}
	if len(scenes) == 0 {
		return nil, fmt.Errorf("scene splitter returned no scenes")
	}
	return scenes, nil
}

// SynthesizeImagePrompt строит промпт кадра по библии и тексту сцены.
func (d *Director) SynthesizeImagePrompt(ctx context.Context, storyCtx *models.StoryContext, sceneText string) (string, error) {
	contextJSON, err := json.Marshal(storyCtx)
	if err != nil {
		return "", fmt.Errorf("failed to marshal story context: %w", err)
	}
	// Библии, сохраненные до появления тега, дотегируются на лету.
	tag := storyCtx.ThemeTag
	if tag == "" {
		tag = DetectThemeTag(storyCtx.StyleBible.VisualTheme)
	}
	userPrompt := fmt.Sprintf("Production bible:\n%s\n\nScene text:\n%s", contextJSON, sceneText)
	return d.singlePrompt(ctx, imagePromptSystem(tag), userPrompt)
}

// EnhanceStylePrompt обогащает стилевой промпт пользователя.
// При любой ошибке LLM возвращает исходный стиль как есть.
func (d *Director) EnhanceStylePrompt(ctx context.Context, stylePrompt string) string {
	enhanced, err := d.singlePrompt(ctx, styleEnhanceSystemPrompt, stylePrompt)
	if err != nil {
		d.logger.Warn("Style prompt enhancement failed, using raw style", zap.Error(err))
		return stylePrompt
	}
	return enhanced
}

// MergeEditPrompt сливает исходный промпт изображения с инструкцией
// правки. При ошибке LLM деградирует до конкатенации.
func (d *Director) MergeEditPrompt(ctx context.Context, originalPrompt, editInstruction string) string {
	userPrompt := fmt.Sprintf("Original prompt:\n%s\n\nEdit instruction:\n%s", originalPrompt, editInstruction)
	merged, err := d.singlePrompt(ctx, editMergeSystemPrompt, userPrompt)
	if err != nil {
		d.logger.Warn("Edit prompt merge failed, falling back to concatenation", zap.Error(err))
		return originalPrompt + ", " + editInstruction
	}
	return merged
}

// DraftGuidedScript пишет сценарий по описанию пользователя.
func (d *Director) DraftGuidedScript(ctx context.Context, description string) (string, error) {
	script, _, err := d.client.Complete(ctx, guidedStorySystemPrompt, description)
	if err != nil {
		return "", err
	}
	script = strings.TrimSpace(script)
	if script == "" {
		return "", fmt.Errorf("guided story draft is empty")
	}
	return script, nil
}

// AgentReply генерирует ответ агента на последнее сообщение диалога.
func (d *Director) AgentReply(ctx context.Context, agent *models.Agent, history []*models.ConversationMessage) (string, error) {
	var sb strings.Builder
	for _, msg := range history {
		sb.WriteString(string(msg.Author))
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}

	reply, _, err := d.client.Complete(ctx, agentSystemPrompt(agent.Name, agent.Description, agent.Personality), sb.String())
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("agent reply is empty")
	}
	return reply, nil
}

// Speech синтезирует озвучку строки. Прокидывается до клиента.
func (d *Director) Speech(ctx context.Context, voice, text string) ([]byte, error) {
	return d.client.Speech(ctx, voice, text)
}
