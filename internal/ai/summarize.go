package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jfsok/bidwatch/internal/extract"
)

// ErrMalformedLLM marks a completion that did not contain usable JSON. The
// affected record is skipped for that enrichment step, not retried.
var ErrMalformedLLM = errors.New("llm response is not valid JSON")

const awardSystemPrompt = `请仔细阅读用户提供的 HTML 内容, 提取信息, 以 JSON 格式输出。只输出 JSON 字符串, 不得输出其他内容, 也不得输出 Markdown 标记.

以下是一个输出的例子:
{
    "招标编号": "招标编号",
    "评标情况": [
        {
            "标的": "标的1",
            "标包": "标包1",
            "候选人": "中标候选人名称",
            "投标报价": 285
        },
        {
            "标的": "标的1",
            "标包": "标包2",
            "候选人": "中标候选人名称",
            "投标报价": 112.58
        }
    ]
}`

const tenderSystemPrompt = `请仔细阅读用户提供的 HTML 内容, 提取信息, 以 JSON 格式输出。只输出 JSON 字符串, 不得输出其他内容, 也不得输出 Markdown 标记.

以下是一个输出的例子:
{
    "招标编号": "招标编号",
    "招标情况": [
        {
            "标的": "标的1",
            "标包": "标包1",
            "最高限价": 332
        },
        {
            "标的": "标的1",
            "标包": "标包2",
            "最高限价": 177.42
        }
    ]
}`

// TenderEntry is one max-price line of a tender announcement digest.
type TenderEntry struct {
	Subject  string      `json:"标的"`
	Package  string      `json:"标包"`
	MaxPrice json.Number `json:"最高限价"`
}

// TenderSummary is the LLM's digest of one tender announcement.
type TenderSummary struct {
	Code    string        `json:"招标编号"`
	Entries []TenderEntry `json:"招标情况"`
}

// AwardEntry is one evaluated bid inside an award summary.
type AwardEntry struct {
	Subject   string      `json:"标的"`
	Package   string      `json:"标包"`
	Candidate string      `json:"候选人"`
	BidPrice  json.Number `json:"投标报价"`
}

// AwardSummary is the LLM's digest of one winning-bid announcement.
type AwardSummary struct {
	Code    string       `json:"招标编号"`
	Entries []AwardEntry `json:"评标情况"`
}

// Summarizer turns notice content into structured JSON digests via the LLM
// collaborator.
type Summarizer struct {
	llm Completer
}

func NewSummarizer(llm Completer) *Summarizer {
	return &Summarizer{llm: llm}
}

// SummarizeAward asks the LLM for the award summary of one winning-bid
// notice and returns it as validated JSON text. A completion that does not
// parse is reported as ErrMalformedLLM.
func (s *Summarizer) SummarizeAward(ctx context.Context, content string) (string, error) {
	resp, err := s.llm.Complete(ctx, awardSystemPrompt, content)
	if err != nil {
		return "", err
	}

	cleaned := cleanJSONResponse(resp)
	if _, err := ParseAwardSummary(cleaned); err != nil {
		return "", err
	}
	return cleaned, nil
}

// ExtractTenderPrices asks the LLM for the max-price digest of a tender
// announcement. It is the fallback for pages whose tables defeat the
// structural parser, so it returns the same record shape the parser stages.
func (s *Summarizer) ExtractTenderPrices(ctx context.Context, content string) ([]extract.PriceRecord, error) {
	resp, err := s.llm.Complete(ctx, tenderSystemPrompt, content)
	if err != nil {
		return nil, err
	}

	var summary TenderSummary
	if err := json.Unmarshal([]byte(cleanJSONResponse(resp)), &summary); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedLLM, err)
	}

	records := make([]extract.PriceRecord, 0, len(summary.Entries))
	for _, entry := range summary.Entries {
		records = append(records, extract.PriceRecord{
			Subject: entry.Subject,
			Package: entry.Package,
			Price:   entry.MaxPrice.String(),
		})
	}
	return records, nil
}

// ParseAwardSummary decodes an award summary, surfacing ErrMalformedLLM on
// anything that is not the expected JSON shape.
func ParseAwardSummary(text string) (*AwardSummary, error) {
	var summary AwardSummary
	if err := json.Unmarshal([]byte(text), &summary); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedLLM, err)
	}
	return &summary, nil
}

// cleanJSONResponse strips markdown fences and keeps only the first balanced
// JSON object, tolerating models that wrap their output in prose.
func cleanJSONResponse(resp string) string {
	cleaned := strings.TrimSpace(resp)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	if jsonStr, ok := firstJSONObject(cleaned); ok {
		return jsonStr
	}
	return cleaned
}

// firstJSONObject finds the first outermost balanced {...}.
func firstJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		char := s[i]

		if escaped {
			escaped = false
			continue
		}
		if char == '\\' {
			escaped = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if !inString {
			if char == '{' {
				depth++
			} else if char == '}' {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}

	return "", false
}
