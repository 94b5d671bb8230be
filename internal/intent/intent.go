// Package intent classifies chat utterances with deterministic text
// heuristics. Classification never calls the language model; the matchers are
// ordered regexp and keyword checks so routing stays cheap and reproducible.
package intent

import (
	"regexp"
	"strings"
)

type Kind string

const (
	KindSmallTalk          Kind = "small_talk"
	KindChartTypeChange    Kind = "chart_type_change"
	KindColorCustomization Kind = "color_customization"
	KindEditCapability     Kind = "edit_capability"
	KindEdit               Kind = "edit"
	KindStats              Kind = "stats"
	KindMetadata           Kind = "metadata"
	KindDataQuery          Kind = "data_query"
)

var smallTalkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(hi|hello|hey|greetings)\b`),
	regexp.MustCompile(`\b(how are you|how'?s it going)\b`),
	regexp.MustCompile(`\b(thanks|thank you|thx)\b`),
	regexp.MustCompile(`\b(bye|goodbye|see you)\b`),
}

var (
	anomalyKeywords = []string{"anomal", "outlier", "unusual", "abnormal", "exception"}
	statsKeywords   = []string{"statistics", "stats", "statistical", "analyze", "analysis", "insights", "insight"}

	statsPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(show|find|detect|identify|list|display)\s+(anomal|outlier|unusual)`),
		regexp.MustCompile(`\b(distribution|variance|std dev|standard deviation)\b`),
		regexp.MustCompile(`\b(trend(s)?|pattern(s)?)\b`),
		regexp.MustCompile(`\b(summarize|summary)\b`),
		regexp.MustCompile(`\b(data quality|missing values?)\b`),
		regexp.MustCompile(`\b(correlation(s)?)\b`),
		regexp.MustCompile(`\b(show me (the )?(stats|statistics|insights))\b`),
	}
)

var editCapabilityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^can\s+i\s+edit`),
	regexp.MustCompile(`^is\s+there\s+a\s+way\s+to\s+edit`),
	regexp.MustCompile(`^how\s+(do|can)\s+i\s+(edit|modify|change|update)`),
	regexp.MustCompile(`^is\s+it\s+possible\s+to\s+(edit|modify|change|update)`),
}

// Color requests only; chart-type changes have their own matcher and take
// precedence in Classify.
var colorCustomizationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(change|modify|update|set|make)\s+(the\s+)?(color|colour|colours|colors)`),
	regexp.MustCompile(`\b(color|colour|colours|colors)\s+(of|for)\s+(the\s+)?(chart|graph|bar|line)`),
	regexp.MustCompile(`\b(change|switch|make)\s+(it|the\s+chart|the\s+graph)\s+(to\s+)?(different\s+)?(color|colour|colours|colors)`),
}

var chartTypeChangePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(show|see|display|view)\s+(the\s+)?(data|it|this|that)\s+(in|as|with)\s+(a\s+)?(different\s+)?(chart|graph|table)`),
	regexp.MustCompile(`\b(show|see|display|view)\s+(it|this|that|the\s+data)\s+as\s+(a\s+)?(bar|line|table)`),
	regexp.MustCompile(`\b(chart\s+type|graph\s+type|visualization\s+type)`),
	regexp.MustCompile(`\b(bar\s+chart|line\s+chart|pie\s+chart|table)\s+(instead|please|now)`),
	regexp.MustCompile(`\b(change|switch|convert)\s+(to|into)\s+(a\s+)?(bar\s+chart|line\s+chart|table)`),
	regexp.MustCompile(`\b(different\s+)?(chart|graph|visualization)\s+type`),
}

var editPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(increase|decrease|raise|lower|reduce)\b.*\bby\b`),
	regexp.MustCompile(`\b(set|assign)\s+.*\s+to\s+`),
	regexp.MustCompile(`\b(add|insert|create)\s+(a\s+)?(new\s+)?row`),
	regexp.MustCompile(`\b(delete|remove)\s+(row|data|entry)`),
	regexp.MustCompile(`\b(double|triple|halve)\b.*\b(the|all)\b`),
	regexp.MustCompile(`\b(multiply|divide)\b.*\bby\b`),
	regexp.MustCompile(`(update|change|modify)\s+.*\s+(to|=)\s+`),
}

// Utterances matching these are asking about the data, not the file, so the
// metadata matcher bails out before its own patterns run.
var dataQueryIndicators = []*regexp.Regexp{
	regexp.MustCompile(`what.*are.*(the|under|in)`),
	regexp.MustCompile(`list.*(the|all|all the)`),
	regexp.MustCompile(`show.*(me|the|all)`),
	regexp.MustCompile(`count.*of`),
	regexp.MustCompile(`how.*many`),
	regexp.MustCompile(`select.*from`),
	regexp.MustCompile(`get.*(the|all)`),
}

var metadataPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^what.*file$`),
	regexp.MustCompile(`^tell.*about.*file$`),
	regexp.MustCompile(`file.*about$`),
	regexp.MustCompile(`describe.*file`),
	regexp.MustCompile(`tell.*about.*file`),
	regexp.MustCompile(`tell.*about.*(the\s+)?data$`),
	regexp.MustCompile(`^what.*dataset$`),
	regexp.MustCompile(`^what.*data$`),
	regexp.MustCompile(`explain.*file`),
	regexp.MustCompile(`file.*description`),
	regexp.MustCompile(`^what.*in.*file$`),
	regexp.MustCompile(`file.*contains$`),
	regexp.MustCompile(`tell.*me.*about.*(the\s+)?file`),
	regexp.MustCompile(`can.*you.*tell.*about.*file`),
	regexp.MustCompile(`explain.*(the\s+)?file`),
}

func matchesAny(message string, patterns []*regexp.Regexp) bool {
	for _, pattern := range patterns {
		if pattern.MatchString(message) {
			return true
		}
	}
	return false
}

func containsAny(message string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(message, keyword) {
			return true
		}
	}
	return false
}

func IsSmallTalk(message string) bool {
	return matchesAny(strings.ToLower(message), smallTalkPatterns)
}

func IsStatsRequest(message string) bool {
	lower := strings.TrimSpace(strings.ToLower(message))
	if containsAny(lower, anomalyKeywords) || containsAny(lower, statsKeywords) {
		return true
	}
	return matchesAny(lower, statsPatterns)
}

func IsEditCapabilityQuestion(message string) bool {
	return matchesAny(strings.TrimSpace(strings.ToLower(message)), editCapabilityPatterns)
}

func IsColorCustomizationRequest(message string) bool {
	return matchesAny(strings.TrimSpace(strings.ToLower(message)), colorCustomizationPatterns)
}

func IsChartTypeChangeRequest(message string) bool {
	return matchesAny(strings.TrimSpace(strings.ToLower(message)), chartTypeChangePatterns)
}

// IsEditRequest reports whether the utterance asks for a data mutation. A
// question about edit capabilities is not itself an edit request.
func IsEditRequest(message string) bool {
	if IsEditCapabilityQuestion(message) {
		return false
	}
	return matchesAny(strings.ToLower(message), editPatterns)
}

// IsFileMetadataQuestion reports whether the utterance asks about a file
// itself (what it is, what it contains) rather than the rows inside it.
func IsFileMetadataQuestion(message string) bool {
	lower := strings.TrimSpace(strings.ToLower(message))
	if matchesAny(lower, dataQueryIndicators) {
		return false
	}
	return matchesAny(lower, metadataPatterns)
}

// Classify applies the matchers in routing order. A metadata question
// suppresses the small-talk match ("hey, tell me about the file" is a
// metadata question); every other matcher wins on first match.
func Classify(message string) Kind {
	metadata := IsFileMetadataQuestion(message)
	switch {
	case IsSmallTalk(message) && !metadata:
		return KindSmallTalk
	case IsChartTypeChangeRequest(message):
		return KindChartTypeChange
	case IsColorCustomizationRequest(message):
		return KindColorCustomization
	case IsEditCapabilityQuestion(message):
		return KindEditCapability
	case IsEditRequest(message):
		return KindEdit
	case IsStatsRequest(message):
		return KindStats
	case metadata:
		return KindMetadata
	default:
		return KindDataQuery
	}
}
