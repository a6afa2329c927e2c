package scoring

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

const (
	vietnameseInstruction = "Please provide your response in Vietnamese (Tiếng Việt)."
	englishInstruction    = "Please provide your response in English."
)

var scoreTemplate = template.Must(template.New("score").
	Funcs(template.FuncMap{"upper": strings.ToUpper}).
	Parse(`You are an IELTS Writing examiner. Please score and evaluate the following {{upper .TaskType}} submission.

{{.LanguageInstruction}}

Topic/Prompt:
{{.Topic}}

Essay:
{{.Essay}}

Please provide:
1. Overall Band Score (0-9)
2. Scores for each criterion (out of 9):
   - Task Achievement / Task Fulfillment
   - Coherence and Cohesion
   - Lexical Resource
   - Grammatical Range and Accuracy
3. Detailed feedback for each criterion
4. Main strengths
5. Areas for improvement
6. Specific recommendations

Format your response as a structured analysis.`))

var tipsTemplate = template.Must(template.New("tips").Parse(`As an IELTS Writing expert, provide 5 specific tips to improve this essay. Focus on vocabulary, grammar, and structure:

Essay:
{{.Essay}}`))

type promptData struct {
	TaskType            string
	LanguageInstruction string
	Topic               string
	Essay               string
}

// LanguageInstruction returns the sentence telling the model which language
// to answer in. Anything other than Vietnamese gets English.
func LanguageInstruction(lang Language) string {
	if lang == Vietnamese {
		return vietnameseInstruction
	}
	return englishInstruction
}

// BuildScorePrompt renders the grading prompt for one submission.
func BuildScorePrompt(req SubmissionRequest) (string, error) {
	req = req.withDefaults()
	var buf bytes.Buffer
	err := scoreTemplate.Execute(&buf, promptData{
		TaskType:            string(req.TaskType),
		LanguageInstruction: LanguageInstruction(req.Language),
		Topic:               req.TopicText,
		Essay:               req.EssayText,
	})
	if err != nil {
		return "", fmt.Errorf("render score prompt: %w", err)
	}
	return buf.String(), nil
}

// BuildTipsPrompt renders the five-tips prompt.
func BuildTipsPrompt(essay string) (string, error) {
	var buf bytes.Buffer
	if err := tipsTemplate.Execute(&buf, promptData{Essay: essay}); err != nil {
		return "", fmt.Errorf("render tips prompt: %w", err)
	}
	return buf.String(), nil
}
