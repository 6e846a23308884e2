package utils

import "strings"

var markdownV2Replacer = strings.NewReplacer(
	"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]", "(", "\\(", ")", "\\)",
	"~", "\\~", "`", "\\`", ">", "\\>", "#", "\\#", "+", "\\+", "-", "\\-",
	"=", "\\=", "|", "\\|", "{", "\\{", "}", "\\}", ".", "\\.", "!", "\\!",
)

// EscapeMarkdownV2 escapes all characters that are special in Telegram's
// MarkdownV2 parse mode. The whole message text is escaped, so user-supplied
// usernames and captions cannot break formatting.
func EscapeMarkdownV2(text string) string {
	return markdownV2Replacer.Replace(text)
}
