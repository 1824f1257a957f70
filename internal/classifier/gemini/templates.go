package gemini

import (
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const roleInstruction = `あなたは自動車業界の報道を専門とするニュースアナリストです。
提供された記事本文だけを根拠に、指示されたJSONフィールドを埋めてください。
推測で企業名を補わず、本文に書かれていない情報は出力しないでください。`

const primaryInstruction = `記事本文を分析し、次の3項目を判定してください。

- company_info: 記事の主題となる企業名。共同開発企業があれば（）内に記載。
- category: 企業、モデル、技術、業界動向などの分類。
- sentiment: ポジティブ、ニュートラル、ネガティブのいずれか。`

const secondaryInstructionTemplate = `記事の主題は%[1]s以外の企業です。本文中の%[1]sへの言及を分析してください。

- mention: %[1]sに関連する言及の要約または抜粋。言及がなければ「なし」。
- sentiment: %[1]sに対するネガティブな文脈の要約または抜粋。なければ「なし」。`

func primaryPrompt(text string) string {
	var b strings.Builder
	b.WriteString(roleInstruction)
	b.WriteString("\n")
	b.WriteString(primaryInstruction)
	b.WriteString("\n\n記事本文:\n")
	b.WriteString(text)
	return b.String()
}

func secondaryPrompt(entity, text string) string {
	var b strings.Builder
	b.WriteString(roleInstruction)
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf(secondaryInstructionTemplate, entity))
	b.WriteString("\n\n記事本文:\n")
	b.WriteString(text)
	return b.String()
}

func primarySchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"company_info": {Type: genai.TypeString, Description: "記事の主題企業名と（）内に共同開発企業名"},
			"category":     {Type: genai.TypeString, Description: "企業、モデル、技術などの分類結果"},
			"sentiment":    {Type: genai.TypeString, Description: "ポジティブ、ニュートラル、ネガティブのいずれか"},
		},
	}
}

func secondarySchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"mention":   {Type: genai.TypeString, Description: "対象企業に関連する言及の要約または抜粋"},
			"sentiment": {Type: genai.TypeString, Description: "対象企業に対するネガティブな文脈の要約または抜粋"},
		},
	}
}
