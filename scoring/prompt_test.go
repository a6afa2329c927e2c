package scoring

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildScorePrompt(t *testing.T) {
	tests := []struct {
		name        string
		req         SubmissionRequest
		wantHeader  string
		instruction string
	}{
		{
			name: "essay in vietnamese",
			req: SubmissionRequest{
				EssayText: "Essay body",
				TopicText: "Topic body",
				TaskType:  TaskEssay,
				Language:  Vietnamese,
			},
			wantHeader:  "You are an IELTS Writing examiner. Please score and evaluate the following ESSAY submission.",
			instruction: "Please provide your response in Vietnamese (Tiếng Việt).",
		},
		{
			name: "report in english",
			req: SubmissionRequest{
				EssayText: "Report body",
				TopicText: "Chart topic",
				TaskType:  TaskReport,
				Language:  English,
			},
			wantHeader:  "You are an IELTS Writing examiner. Please score and evaluate the following REPORT submission.",
			instruction: "Please provide your response in English.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompt, err := BuildScorePrompt(tt.req)
			require.NoError(t, err)

			want := tt.wantHeader + "\n\n" + tt.instruction +
				"\n\nTopic/Prompt:\n" + tt.req.TopicText +
				"\n\nEssay:\n" + tt.req.EssayText + "\n\nPlease provide:\n"
			assert.True(t, strings.HasPrefix(prompt, want), "prompt prefix mismatch:\n%s", prompt)
			assert.Contains(t, prompt, "   - Grammatical Range and Accuracy\n")
			assert.Contains(t, prompt, "6. Specific recommendations")
			assert.True(t, strings.HasSuffix(prompt, "Format your response as a structured analysis."))
		})
	}
}

func TestBuildScorePromptKeepsTextVerbatim(t *testing.T) {
	essay := "Line one\n\n  indented <b>tag</b> & {{.Essay}}"
	prompt, err := BuildScorePrompt(SubmissionRequest{EssayText: essay, TopicText: "t", TaskType: TaskEssay, Language: English})
	require.NoError(t, err)
	assert.Contains(t, prompt, "Essay:\n"+essay+"\n")
}

func TestLanguageInstruction(t *testing.T) {
	assert.Equal(t, vietnameseInstruction, LanguageInstruction(Vietnamese))
	assert.Equal(t, englishInstruction, LanguageInstruction(English))
	assert.Equal(t, englishInstruction, LanguageInstruction(Language("fr")))
}

func TestParseTaskType(t *testing.T) {
	tests := []struct {
		in      string
		want    TaskType
		wantErr bool
	}{
		{in: "report", want: TaskReport},
		{in: "essay", want: TaskEssay},
		{in: "task1", want: TaskReport},
		{in: "task2", want: TaskEssay},
		{in: " essay ", want: TaskEssay},
		{in: "letter", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseTaskType(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseLanguage(t *testing.T) {
	lang, err := ParseLanguage("vi")
	assert.NoError(t, err)
	assert.Equal(t, Vietnamese, lang)

	lang, err = ParseLanguage("en")
	assert.NoError(t, err)
	assert.Equal(t, English, lang)

	_, err = ParseLanguage("de")
	assert.Error(t, err)
}

func TestResultDetailsText(t *testing.T) {
	assert.Equal(t, "", Result{}.DetailsText())
	assert.Equal(t, FallbackDetails, Failed("x", stringDetails(FallbackDetails)).DetailsText())
	assert.Equal(t, `{"a":1}`, Failed("x", []byte(`{"a":1}`)).DetailsText())
}

func TestBuildScorePromptDefaults(t *testing.T) {
	prompt, err := BuildScorePrompt(SubmissionRequest{EssayText: "e", TopicText: "t"})
	require.NoError(t, err)
	assert.Contains(t, prompt, "the following ESSAY submission.")
	assert.Contains(t, prompt, vietnameseInstruction)
}
