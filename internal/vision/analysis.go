// Package vision analyzes pet photos through a generative-model
// endpoint and turns the model's JSON verdict into chat replies.
package vision

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Analysis is the model's verdict on one photo.
type Analysis struct {
	IsPet    bool     `json:"is_pet"`
	Species  string   `json:"species,omitempty"`
	Breed    string   `json:"breed,omitempty"`
	Colors   []string `json:"colors,omitempty"`
	Mood     string   `json:"mood,omitempty"`
	Features string   `json:"features,omitempty"`
	CareTips string   `json:"care_tips,omitempty"`
}

// analysisPrompt asks the model for a strict JSON verdict. Kept in
// Traditional Chinese because the reply fields are shown to users
// verbatim.
const analysisPrompt = `請分析這張圖片。
第一步：判斷圖片主體是否為「真實的動物寵物」（如貓、狗、兔、倉鼠、鳥等）。
第二步：回傳 JSON 格式結果。
若「不是寵物」，回傳： {"is_pet": false}
若「是寵物」，回傳（繁體中文）：
{"is_pet": true, "species": "物種", "breed": "品種", "colors": ["顏色"], "mood": "情緒", "features": "特徵", "care_tips": "建議"}
只回傳 JSON。`

// ParseAnalysis decodes the model's reply. Models wrap JSON in markdown
// code fences more often than not, so those are stripped first.
func ParseAnalysis(raw string) (*Analysis, error) {
	cleaned := stripCodeFences(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("empty model reply")
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(cleaned), &analysis); err != nil {
		return nil, fmt.Errorf("failed to parse analysis JSON: %w", err)
	}
	return &analysis, nil
}

func stripCodeFences(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```json") {
		text = text[len("```json"):]
	} else if strings.HasPrefix(text, "```") {
		text = text[len("```"):]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// FormatReply renders an analysis as the chat reply text.
func FormatReply(analysis *Analysis) string {
	if analysis == nil || !analysis.IsPet {
		return "這不是毛小孩相片 🐶🐱"
	}

	breed := analysis.Breed
	if breed == "" {
		breed = "毛小孩"
	}
	return fmt.Sprintf(
		"這是一隻可愛的 %s (%s)！\n🎨 毛色：%s\n😺 心情：%s\n📝 特徵：%s\n💡 照顧建議：%s",
		breed,
		analysis.Species,
		strings.Join(analysis.Colors, ", "),
		analysis.Mood,
		analysis.Features,
		analysis.CareTips,
	)
}
