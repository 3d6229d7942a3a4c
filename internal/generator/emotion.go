package generator

import "strings"

// Emotion is an animation hint derived from the reply text.
type Emotion string

const (
	EmotionIdle  Emotion = "idle"
	EmotionCry   Emotion = "cry"
	EmotionSmile Emotion = "smile"
	EmotionShy   Emotion = "shy"
	EmotionAnger Emotion = "anger"
)

// emotionRules are checked in order; the first rule with a matching keyword
// wins. Keyword sets are disjoint. English keywords match case-insensitively.
var emotionRules = []struct {
	emotion  Emotion
	keywords []string
}{
	{EmotionCry, []string{"呜", "难过", "对不起", "紧张", "哭", "💦", "搞砸", "sorry", "crying", "nervous", "messed up", "sad"}},
	{EmotionSmile, []string{"开心", "嘿嘿", "成功", "谢谢", "✨", "缤纷彩", "happy", "hehe", "thank", "yay"}},
	{EmotionShy, []string{"诶", "那个", "害羞", "脸红", "///", "喜欢", "umm", "embarrass", "blush"}},
	{EmotionAnger, []string{"生气", "过分", "讨厌", "angry", "how mean", "i hate"}},
}

// ClassifyEmotion maps reply text to an emotion tag.
func ClassifyEmotion(text string) Emotion {
	lower := strings.ToLower(text)
	for _, rule := range emotionRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.emotion
			}
		}
	}
	return EmotionIdle
}
