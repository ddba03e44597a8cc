package search

import (
	"fmt"
	"strings"
)

// selectFields is the select list requested from the index. FormatResults
// renders these fields in this order.
const selectFields = "id,category,item,description,price"

// FormatResults renders documents as the delimited text the model parses:
// a bracketed identifier, the field:value pairs, and a dashed terminator
// line per result. The framing is a contract with the model's instructions;
// do not change the delimiters.
func FormatResults(docs []map[string]any) string {
	var b strings.Builder
	for _, doc := range docs {
		fmt.Fprintf(&b, "[%v]: Category: %v, Item: %v, Description: %v, Price: %v\n-----\n",
			doc["id"], doc["category"], doc["item"], doc["description"], doc["price"])
	}
	return b.String()
}
