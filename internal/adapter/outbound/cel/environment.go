package cel

import (
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"
)

var reflectStringSlice = reflect.TypeOf([]string{})

// EvaluationContext carries the facts a rule expression may inspect.
type EvaluationContext struct {
	Text           string
	Stage          string
	ConversationID string
	TurnCount      int
	BlockedCount   int
	Metadata       map[string]string
	CheckTime      time.Time
}

// NewGuardrailEnvironment creates a CEL environment for guardrail rule
// evaluation. It includes:
//   - Content variables: text, text_length, word_count
//   - Context variables: stage, conversation_id, turn_count, blocked_count, metadata, check_time
//   - Custom functions: glob, matches_regex, contains_any
func NewGuardrailEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		ext.Sets(),

		cel.Variable("text", cel.StringType),
		cel.Variable("text_length", cel.IntType),
		cel.Variable("word_count", cel.IntType),

		cel.Variable("stage", cel.StringType),
		cel.Variable("conversation_id", cel.StringType),
		cel.Variable("turn_count", cel.IntType),
		cel.Variable("blocked_count", cel.IntType),
		cel.Variable("metadata", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("check_time", cel.TimestampType),

		// glob: shell-style pattern matching.
		// Usage: glob("*password*", text)
		cel.Function("glob",
			cel.Overload("glob_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(pattern, name ref.Val) ref.Val {
					p := pattern.Value().(string)
					n := name.Value().(string)
					matched, _ := filepath.Match(p, n)
					return types.Bool(matched)
				}),
			),
		),

		// matches_regex: regexp match against the text.
		// Usage: matches_regex(text, "(?i)ignore previous")
		cel.Function("matches_regex",
			cel.Overload("matches_regex_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(textVal, patternVal ref.Val) ref.Val {
					text := textVal.Value().(string)
					pattern := patternVal.Value().(string)
					re, err := regexp.Compile(pattern)
					if err != nil {
						return types.Bool(false)
					}
					return types.Bool(re.MatchString(text))
				}),
			),
		),

		// contains_any: case-insensitive substring check against a list.
		// Usage: contains_any(text, ["drop table", "union select"])
		cel.Function("contains_any",
			cel.Overload("contains_any_string_list",
				[]*cel.Type{cel.StringType, cel.ListType(cel.StringType)},
				cel.BoolType,
				cel.BinaryBinding(func(textVal, listVal ref.Val) ref.Val {
					text := strings.ToLower(textVal.Value().(string))
					raw, err := listVal.ConvertToNative(reflectStringSlice)
					if err != nil {
						return types.Bool(false)
					}
					for _, needle := range raw.([]string) {
						if needle != "" && strings.Contains(text, strings.ToLower(needle)) {
							return types.Bool(true)
						}
					}
					return types.Bool(false)
				}),
			),
		),
	)
}

// BuildActivation creates a CEL activation map from an EvaluationContext.
func BuildActivation(evalCtx EvaluationContext) map[string]any {
	metadata := evalCtx.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	checkTime := evalCtx.CheckTime
	if checkTime.IsZero() {
		checkTime = time.Now()
	}

	return map[string]any{
		"text":        evalCtx.Text,
		"text_length": int64(len(evalCtx.Text)),
		"word_count":  int64(len(strings.Fields(evalCtx.Text))),

		"stage":           evalCtx.Stage,
		"conversation_id": evalCtx.ConversationID,
		"turn_count":      int64(evalCtx.TurnCount),
		"blocked_count":   int64(evalCtx.BlockedCount),
		"metadata":        metadata,
		"check_time":      checkTime,
	}
}
