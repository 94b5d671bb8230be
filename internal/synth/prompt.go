package synth

import (
	"fmt"
	"strings"

	"github.com/tabletalk/tabletalk/internal/conversation"
)

// selectSystemPrompt holds the static instruction block for SELECT
// synthesis. The worked examples use placeholder column names; the model is
// told to substitute the real names from the catalog text in the user
// message.
const selectSystemPrompt = `You are a DuckDB SQL expert. Generate one SQL query answering the user's question against a single table.

CRITICAL DISTINCTION — READ THIS FIRST:
"how many rows" is NOT the same as "how many X is Y" or "count of Y".
- "how many rows" -> SELECT COUNT(*) FROM <table> (no WHERE; the user said "rows", not a value)
- "how many deal stage is on hold" -> SELECT COUNT(*) FROM <table> WHERE "Deal Stage" = 'On Hold'
- "count of Closed Won" -> SELECT COUNT(*) FROM <table> WHERE "Deal Stage" = 'Closed Won'
When the user names a specific value, find the column whose catalog values contain it and add the WHERE clause. NEVER emit COUNT(*) without WHERE when a specific value is mentioned.

RULES:
1. Dialect is DuckDB. SELECT statements only.
2. Use the table name EXACTLY as given in the request. No schema prefixes (no base., no main.), no truncation, no case changes.
3. Use EXACT column names from the catalog, double-quoted: "Deal Stage", "Account Id". Never substitute underscores for spaces. Column names in the examples below are placeholders; always use the real names from the catalog.
4. To match a value, use the exact casing shown in the catalog for that column.
5. When the user says "it", "that", "show it", "visualize it", read the conversation history: reuse the most recent SQL query's WHERE filters and reshape the projection for the new request.
6. Visualization requests need exactly two output columns: a label or date column and a value column, e.g. SELECT "Source", COUNT(*) FROM <table> GROUP BY "Source" ORDER BY COUNT(*) DESC.
7. SELECT "Column", COUNT(*) always requires GROUP BY "Column".
8. Dates may be stored as M/D/YYYY strings. To group them by month use strftime(strptime("Date", '%m/%d/%Y'), '%Y-%m') AS month_year ... GROUP BY month_year ORDER BY month_year.
9. Every table has a hidden order column named row_seq assigned in upload order.
   - "last N rows" -> SELECT * FROM <table> ORDER BY row_seq DESC LIMIT N
   - "first N rows" -> SELECT * FROM <table> ORDER BY row_seq ASC LIMIT N
   - "just N rows" / "only N rows" -> treat as last N rows
10. No string-literal answers (no SELECT 'text'), no INFORMATION_SCHEMA, no duckdb system tables. Query the data table directly.
11. Never emit WHERE, GROUP BY, or ORDER BY without a complete condition or column. If unsure, leave the clause out entirely.
12. Limit raw-data results to 100 rows and chart results to 20 rows unless the user asked for a specific count.
13. Output ONLY the SQL statement. No explanations, no markdown, no code fences, no trailing commentary.

PATTERNS (substitute real column names from the catalog):
- "what are the sources" -> SELECT DISTINCT "Source" FROM <table> ORDER BY "Source"
- "sources with count" -> SELECT "Source", COUNT(*) FROM <table> GROUP BY "Source" ORDER BY COUNT(*) DESC
- "how many rows" -> SELECT COUNT(*) FROM <table>
- "how many deal stage is on hold" -> SELECT COUNT(*) FROM <table> WHERE "Deal Stage" = 'On Hold'
- "give the count of On Hold" -> find the column listing On Hold in the catalog -> SELECT COUNT(*) FROM <table> WHERE "Deal Stage" = 'On Hold'
- "show last 3 rows" -> SELECT * FROM <table> ORDER BY row_seq DESC LIMIT 3
- "amount by month" -> SELECT strftime(strptime("Date", '%m/%d/%Y'), '%Y-%m') AS month_year, SUM("Amount") FROM <table> GROUP BY month_year ORDER BY month_year`

// followupContextBlock is appended to the user message whenever the history
// contains prior SQL, so "show it in a chart" style follow-ups keep the
// previous filters.
const followupContextBlock = `
When the user says "show it", "visualize it", "show that", or asks for a chart or graph of "it":
1. They mean the MOST RECENT SQL query above.
2. Keep every WHERE filter from that query.
3. If it selected only dates, transform to: SELECT "Date", COUNT(*) FROM <table> [same WHERE] GROUP BY "Date" ORDER BY "Date".
4. If it selected only a category, transform to: SELECT "Category", COUNT(*) FROM <table> [same WHERE] GROUP BY "Category" ORDER BY COUNT(*) DESC.
5. Produce exactly two columns: label/date plus count/value.
`

func buildSelectPrompt(req Request, historyWindow int) (string, string) {
	var b strings.Builder

	history := req.History
	if historyWindow > 0 && len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	var priorSQL []string
	if len(history) > 1 {
		b.WriteString("Previous conversation:\n")
		for _, turn := range history {
			role := "User"
			if turn.Role == conversation.RoleAssistant {
				role = "Assistant"
			}
			content := turn.Content
			if turn.Action != nil && turn.Action.SQL != "" {
				priorSQL = append(priorSQL, turn.Action.SQL)
				content += fmt.Sprintf("\n[Previous SQL: %s]", turn.Action.SQL)
			}
			fmt.Fprintf(&b, "%s: %s\n", role, content)
		}
		if len(priorSQL) > 0 {
			b.WriteString("\nPrevious SQL queries (most recent last):\n")
			start := len(priorSQL) - 2
			if start < 0 {
				start = 0
			}
			for i, q := range priorSQL[start:] {
				fmt.Fprintf(&b, "Query %d: %s\n", i+1, q)
			}
			b.WriteString(followupContextBlock)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Current question: %q\n\nAvailable data:\n", req.Question)
	for _, cat := range req.Catalogs {
		fmt.Fprintf(&b, "File: %s\nSummary: %s\n\n", cat.DatasetID, cat.Summary)
	}
	fmt.Fprintf(&b, "Table to query: %s\n", req.Table)

	return selectSystemPrompt, b.String()
}

// updateSystemPrompt is the static instruction block for the edit path.
const updateSystemPrompt = `You are a DuckDB SQL expert. Generate one UPDATE statement implementing the user's instruction against a single table.

RULES:
1. Generate ONLY an UPDATE statement. Never SELECT, INSERT, DELETE, or DROP.
2. Use EXACT column names from the schema, double-quoted: "Lead Owner", "Deal Stage". Never substitute underscores for spaces.
3. Be precise with the WHERE clause; only the rows the user described may change.
4. Use arithmetic for relative changes, e.g. SET "RetailDollars" = "RetailDollars" * 1.10 for a 10% increase.
5. Match string values case-insensitively: WHERE lower("Column") = lower('value').
6. Every table has a hidden order column named row_seq assigned in upload order. For "the last row" or "the last data", target it with a subquery:
   WHERE row_seq = (SELECT row_seq FROM <table> WHERE [conditions] ORDER BY row_seq DESC LIMIT 1)
7. When the user says "last row", "that row", or similar, use the conversation history to work out which row they mean.
8. Output ONLY the SQL statement. No explanations, no markdown, no code fences.

EXAMPLES:
- "increase Nike sales by 10%":
  UPDATE <table> SET "RetailDollars" = "RetailDollars" * 1.10 WHERE lower("Brand") = lower('Nike')
- "set all units to 0 for Adidas in December":
  UPDATE <table> SET "Units" = 0 WHERE lower("Brand") = lower('Adidas') AND "ME_PERIOD" LIKE '%DEC%'
- "change the last row's Lead Owner from Becky Arellano to Joyce Byres":
  UPDATE <table> SET "Lead Owner" = 'Joyce Byres' WHERE row_seq = (SELECT row_seq FROM <table> WHERE lower("Lead Owner") = lower('Becky Arellano') ORDER BY row_seq DESC LIMIT 1)
- "change name from John to Jane":
  UPDATE <table> SET "First Name" = 'Jane' WHERE lower("First Name") = lower('John')`

func buildUpdatePrompt(req EditRequest, historyWindow int) (string, string) {
	var b strings.Builder

	fmt.Fprintf(&b, "Table: %s\n\nData schema:\n%s\n", req.Table, req.CatalogSummary)

	history := req.History
	if historyWindow > 0 && len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	if len(history) > 1 {
		b.WriteString("\nPrevious conversation (context for references like 'last row' or 'that data'):\n")
		for _, turn := range history {
			role := "User"
			if turn.Role == conversation.RoleAssistant {
				role = "Assistant"
			}
			fmt.Fprintf(&b, "%s: %s\n", role, turn.Content)
		}
	}

	fmt.Fprintf(&b, "\nUser instruction: %q\n\nGenerate the UPDATE statement:", req.Instruction)

	return updateSystemPrompt, b.String()
}
