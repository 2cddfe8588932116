package segmenter

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// SceneSplitter — LLM-разбиение сценария на сцены. Реализуется ai.Director.
type SceneSplitter interface {
	SplitScenes(ctx context.Context, script string) ([]string, error)
}

// Segmenter разбивает сценарий на сегменты-кадры. Пустые строки в
// сценарии трактуются как авторская разметка сцен и имеют приоритет
// над LLM-разбиением.
type Segmenter struct {
	splitter SceneSplitter
	logger   *zap.Logger
}

// New creates a Segmenter backed by the given scene splitter.
func New(splitter SceneSplitter, logger *zap.Logger) *Segmenter {
	return &Segmenter{splitter: splitter, logger: logger.Named("Segmenter")}
}

var paragraphSep = regexp.MustCompile(`\n{2,}`)

// Split возвращает список текстов сегментов в порядке сценария.
// Для пустого сценария возвращается пустой список. Любой отказ
// LLM-разбиения деградирует до одного сегмента с целым сценарием:
// генерация никогда не падает из-за сегментации.
func (s *Segmenter) Split(ctx context.Context, script string) []string {
	trimmed := strings.TrimSpace(script)
	if trimmed == "" {
		return nil
	}

	if strings.Contains(trimmed, "\n\n") {
		var segments []string
		for _, part := range paragraphSep.Split(trimmed, -1) {
			if p := strings.TrimSpace(part); p != "" {
				segments = append(segments, p)
			}
		}
		if len(segments) > 0 {
			s.logger.Debug("Script split by paragraphs", zap.Int("segments", len(segments)))
			return segments
		}
	}

	scenes, err := s.splitter.SplitScenes(ctx, trimmed)
	if err != nil || len(scenes) == 0 {
		s.logger.Warn("LLM scene split failed, using whole script as one segment", zap.Error(err))
		return []string{trimmed}
	}

	s.logger.Debug("Script split by LLM", zap.Int("segments", len(scenes)))
	return scenes
}
