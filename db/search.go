package db

import (
	"context"
	"strings"
	"time"
	"unicode"

	"fluxa/utils"
)

// snippetRadius is how many characters of context surround a match
const snippetRadius = 32

// SearchResult represents a search result
type SearchResult struct {
	Message           *Message
	ConversationID    int64
	ConversationTitle string
	Snippet           string
}

// SearchFilter narrows SearchMessages. Zero values mean no restriction.
type SearchFilter struct {
	Role    Role
	DaysAgo int
	Limit   int
}

// SearchMessages finds messages whose content contains query, case-insensitively
// for ASCII letters, newest first.
func (r *Repository) SearchMessages(ctx context.Context, query string, filter SearchFilter) ([]*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &ValidationError{Field: "query", Reason: "is required"}
	}
	if filter.Role != "" && !filter.Role.Valid() {
		return nil, &ValidationError{Field: "role", Reason: "unknown role " + string(filter.Role)}
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	cols := make([]string, len(messageColumns))
	for i, c := range messageColumns {
		cols[i] = "m." + c
	}

	sqlQuery := "SELECT " + strings.Join(cols, ", ") + `, c.title
		FROM messages m
		JOIN conversations c ON m.conversation_id = c.id
		WHERE m.content LIKE ? ESCAPE '\'`
	args := []interface{}{"%" + escapeLike(query) + "%"}

	if filter.Role != "" {
		sqlQuery += " AND m.role = ?"
		args = append(args, string(filter.Role))
	}
	if filter.DaysAgo > 0 {
		sqlQuery += " AND m.created_at >= ?"
		args = append(args, r.now().Add(-time.Duration(filter.DaysAgo)*24*time.Hour))
	}

	sqlQuery += " ORDER BY m.created_at DESC, m.id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, storeErr("search messages", err)
	}
	defer rows.Close()

	results := []*SearchResult{}
	for rows.Next() {
		var title string
		msg, err := r.scanMessage(scanFunc(func(dest ...interface{}) error {
			return rows.Scan(append(dest, &title)...)
		}))
		if err != nil {
			return nil, storeErr("scan search result", err)
		}
		results = append(results, &SearchResult{
			Message:           msg,
			ConversationID:    msg.ConversationID,
			ConversationTitle: title,
			Snippet:           snippet(msg.Content, query, snippetRadius),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("search messages", err)
	}

	return results, nil
}

// scanFunc adapts a closure to the Scan method the entity scanners take
type scanFunc func(dest ...interface{}) error

func (f scanFunc) Scan(dest ...interface{}) error {
	return f(dest...)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// snippet returns the text around the first match of query, cut to radius
// characters on each side.
func snippet(content, query string, radius int) string {
	runes := []rune(content)
	needle := []rune(query)

	at := -1
	for i := 0; i+len(needle) <= len(runes); i++ {
		if equalFoldRunes(runes[i:i+len(needle)], needle) {
			at = i
			break
		}
	}
	if at < 0 {
		return utils.Truncate(content, 2*radius)
	}

	start, end := at-radius, at+len(needle)+radius
	prefix, suffix := "...", "..."
	if start <= 0 {
		start, prefix = 0, ""
	}
	if end >= len(runes) {
		end, suffix = len(runes), ""
	}
	return prefix + string(runes[start:end]) + suffix
}

func equalFoldRunes(a, b []rune) bool {
	for i := range a {
		if unicode.ToLower(a[i]) != unicode.ToLower(b[i]) {
			return false
		}
	}
	return true
}
