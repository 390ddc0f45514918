package prompt

import (
	"fmt"
	"strings"

	"antbot/internal/domain"
)

// Template holds the localized wording of the grounding prompt and the user-facing fallbacks.
// GenerationError and Unavailable are format strings with one %s verb for the failure description.
type Template struct {
	System          string
	ContextLabel    string
	NoContext       string
	QueryLabel      string
	Instruction     string
	GenerationError string
	Unavailable     string
	Welcome         string
}

const DefaultLanguage = "ko"

var Templates = map[string]Template{
	"ko": {
		System: `당신은 AntBot으로, 우리 팀의 솔루션 매뉴얼을 기반으로 질문에 답변하는 친절한 도우미입니다.

다음 규칙을 따라주세요:
1. 제공된 문서 컨텍스트를 기반으로 정확하게 답변하세요.
2. 문서에 없는 내용은 추측하지 말고, 모른다고 솔직히 말하세요.
3. 답변은 명확하고 이해하기 쉽게 작성하세요.
4. 필요한 경우 단계별로 설명하세요.
5. 한국어로 답변하세요.`,
		ContextLabel:    "문서 컨텍스트",
		NoContext:       "관련 문서를 찾을 수 없습니다. (no relevant document found)",
		QueryLabel:      "사용자 질문",
		Instruction:     "위 문서 컨텍스트를 참고하여 사용자 질문에 답변해주세요.",
		GenerationError: "응답 생성 중 오류가 발생했습니다: %s",
		Unavailable:     "매뉴얼을 불러오지 못해 답변할 수 없습니다: %s",
		Welcome:         "안녕하세요! AntBot입니다. 팀 솔루션 매뉴얼에 대해 궁금한 점을 물어보세요!",
	},
	"en": {
		System: `You are AntBot, a friendly assistant that answers questions using the team's solution manual.

Follow these rules:
1. Answer accurately using only the provided document context.
2. If the answer is not in the document, do not guess; say "I don't know".
3. Write clear answers that are easy to understand.
4. Explain step by step when it helps.
5. Answer in English.`,
		ContextLabel:    "Document context",
		NoContext:       "(no relevant document found)",
		QueryLabel:      "User question",
		Instruction:     "Answer the user question using the document context above.",
		GenerationError: "An error occurred while generating the response: %s",
		Unavailable:     "The manual could not be loaded, so I cannot answer right now: %s",
		Welcome:         "Hi! I'm AntBot. Ask me anything about the team solution manual.",
	},
}

// Assembler turns a query and its retrieved chunks into a grounded prompt.
type Assembler struct {
	tmpl Template
}

// NewAssembler returns an assembler for language, falling back to the default language.
func NewAssembler(language string) *Assembler {
	return &Assembler{tmpl: Lookup(language)}
}

// Lookup returns the template for language or the default one.
func Lookup(language string) Template {
	if t, ok := Templates[language]; ok {
		return t
	}
	return Templates[DefaultLanguage]
}

func (a *Assembler) Template() Template { return a.tmpl }

func (a *Assembler) Assemble(query string, chunks []domain.Chunk) domain.Prompt {
	context := a.tmpl.NoContext
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, ch := range chunks {
			texts[i] = ch.Text
		}
		context = strings.Join(texts, "\n\n")
	}

	var sb strings.Builder
	sb.WriteString(a.tmpl.ContextLabel)
	sb.WriteString(":\n")
	sb.WriteString(context)
	sb.WriteString("\n\n")
	sb.WriteString(a.tmpl.QueryLabel)
	sb.WriteString(": ")
	sb.WriteString(query)
	sb.WriteString("\n\n")
	sb.WriteString(a.tmpl.Instruction)
	return domain.Prompt{System: a.tmpl.System, User: sb.String()}
}

// Unavailable renders the reply given when the manual could not be loaded.
func (a *Assembler) Unavailable(err error) string {
	return fmt.Sprintf(a.tmpl.Unavailable, err.Error())
}

// GenerationError renders the degraded answer shown when the model call fails.
func (a *Assembler) GenerationError(err error) string {
	return fmt.Sprintf(a.tmpl.GenerationError, err.Error())
}
