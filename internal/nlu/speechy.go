package nlu

import "strings"

// Speechy swaps commas for a dash pause before the text goes to chat.
func Speechy(text string) string {
	return strings.ReplaceAll(text, ",", " — ")
}
