package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"mbti-story/internal/llm"
	"mbti-story/internal/textutil"
)

const (
	minStoryRunes = 400
	maxStoryRunes = 2000
)

// judgeResponse es la evaluacion estructurada que devuelve el juez.
type judgeResponse struct {
	Reasoning  string `json:"reasoning"`
	TypeScore  int    `json:"type_score"`
	StoryScore int    `json:"story_score"`
}

// storySignals son los indicadores heuristicos que se le pasan al juez.
type storySignals struct {
	Runes          int
	GenericReply   bool
	MentionsType   bool
	ExpectedLength bool
}

func evaluateStory(ctx context.Context, judge llm.Generator, sc Scenario, mbtiType, story string) (judgeResponse, error) {
	signals := detectSignals(mbtiType, story)
	prompt := buildJudgePrompt(sc, mbtiType, story, signals)

	gen := judge.Generate(ctx, prompt, llm.Options{MaxNewTokens: 300, Temperature: 0.1, JSON: true})
	if gen.Degraded() {
		return judgeResponse{}, fmt.Errorf("judge unavailable (provider %s)", gen.Provider)
	}

	jsonStr := textutil.ExtractFirstJSONObject(gen.Text)
	if jsonStr == "" {
		return judgeResponse{}, fmt.Errorf("judge returned non-json: %q", gen.Text)
	}

	var jr judgeResponse
	if err := json.Unmarshal([]byte(jsonStr), &jr); err != nil {
		return judgeResponse{}, fmt.Errorf("parse judge json: %w (raw=%q)", err, jsonStr)
	}
	return applySignals(jr, signals), nil
}

// applySignals acota los puntajes y aplica las penalizaciones duras.
func applySignals(jr judgeResponse, s storySignals) judgeResponse {
	jr.TypeScore = clamp1to5(jr.TypeScore)
	jr.StoryScore = clamp1to5(jr.StoryScore)

	// la respuesta generica nunca es una historia
	if s.GenericReply {
		jr.StoryScore = 1
	}
	if !s.ExpectedLength && jr.StoryScore > 3 {
		jr.StoryScore = 3
	}
	return jr
}

func clamp1to5(v int) int {
	if v < 1 {
		return 1
	}
	if v > 5 {
		return 5
	}
	return v
}

func detectSignals(mbtiType, story string) storySignals {
	n := utf8.RuneCountInString(strings.TrimSpace(story))
	return storySignals{
		Runes:          n,
		GenericReply:   strings.Contains(story, llm.GenericReply),
		MentionsType:   mbtiType != "" && strings.Contains(strings.ToUpper(story), strings.ToUpper(mbtiType)),
		ExpectedLength: n >= minStoryRunes && n <= maxStoryRunes,
	}
}

func buildJudgePrompt(sc Scenario, mbtiType, story string, s storySignals) string {
	return fmt.Sprintf(
		`あなたは性格診断の物語を評価する専門家です。

ユーザーの回答:
%s

診断されたタイプ: %s (期待されるタイプ: %s)
指標: 文字数=%d, 汎用応答=%t, タイプ名の言及=%t, 適切な長さ=%t

物語:
%q

1から5で評価してください:
1) type_score: 物語の主人公の行動や価値観が診断タイプと一致しているか。
2) story_score: 日本語として自然で、情景と感情が伝わる物語になっているか。
汎用応答=true の場合 story_score は1です。

JSONのみで答えてください:
{
  "reasoning": "...",
  "type_score": 0,
  "story_score": 0
}`,
		strings.Join(sc.Turns, "\n"), mbtiType, sc.ExpectedType,
		s.Runes, s.GenericReply, s.MentionsType, s.ExpectedLength, story,
	)
}
