package graph

import (
	"fmt"
	"strings"
)

const routerPrompt = `You are a routing agent for a retail analytics system.
Decide the best strategy to answer the user's question.

Strategies:
- rag: static policies, definitions of KPIs or marketing calendars (e.g. "return policy", "meaning of AOV", "dates for summer campaign"). No database access needed.
- sql: pure data questions where all math and entities are standard database columns (e.g. "total revenue", "top 5 customers", "inventory counts").
- hybrid: the question refers to a named campaign, date range alias or custom KPI defined in documents that must be looked up before writing SQL (e.g. "sales during 'Summer Beverages'", "top margin products using the KPI doc definition").

Question: %s

Answer with exactly one word: rag, sql or hybrid.
Label:`

const searchPrompt = `Turn the user question into concise, keyword-rich search queries for document retrieval.
Focus on nouns, entities and key terms. Write at most 3 queries, one per line, with no numbering or commentary.

Question: %s
Queries:`

const plannerPrompt = `You are a planner. Extract structured constraints from the retrieved documents to help a SQL writer.
Output one constraint per line in the form "Name: value". Use these names when they apply:
Date Range: YYYY-MM-DD to YYYY-MM-DD
Formula: <expression over database columns>
Category: <category name>
If a definition (like Gross Margin) appears in the context, summarize its formula.
If nothing in the context constrains the question, answer "None".

Context:
%s

Question: %s
Constraints:`

const synthesizerPrompt = `You are an information extraction machine.
Answer the question using ONLY the provided document context and query result. Do not use outside knowledge.
Find the sentence or row that contains all entities in the question and extract the exact value.
If the information is not available, say so.

The ANSWER must strictly match the format hint: %s
Reply in exactly this form:
ANSWER: <value>
EXPLANATION: <one or two sentences naming the document or table used>
CITATIONS: <comma-separated document ids and table names you used>

Question: %s

Documents:
%s

Query:
%s

Query result:
%s
`

func buildRouterPrompt(question string) string {
	return fmt.Sprintf(routerPrompt, question)
}

func buildSearchPrompt(question string) string {
	return fmt.Sprintf(searchPrompt, question)
}

func buildPlannerPrompt(question string, context string) string {
	return fmt.Sprintf(plannerPrompt, context, question)
}

// buildSQLPrompt includes every failed attempt, with the most recent error
// repeated last so the model sees what to fix.
func buildSQLPrompt(dialect, question, schema string, constraints Constraints, history []Attempt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a %s expert for a retail database.\n", dialect)
	fmt.Fprintf(&b, "Generate one valid read-only %s query that answers the question.\n\n", dialect)
	b.WriteString("Rules:\n")
	b.WriteString("1. Use ONLY the tables and columns in the schema.\n")
	b.WriteString("2. Quote table names that contain spaces, e.g. \"Order Details\".\n")
	b.WriteString("3. Apply every constraint below exactly as given (date ranges, formulas).\n")
	b.WriteString("4. Return ONLY the SQL. No markdown and no explanation.\n\n")
	fmt.Fprintf(&b, "Schema:\n%s\n\n", schema)
	if len(constraints) > 0 {
		fmt.Fprintf(&b, "Constraints:\n%s\n\n", constraints.Render())
	}
	if n := len(history); n > 0 {
		b.WriteString("Previous attempts failed:\n")
		for i, a := range history {
			fmt.Fprintf(&b, "Attempt %d:\n%s\nError: %s\n", i+1, a.Query, a.Error)
		}
		fmt.Fprintf(&b, "\nFix this error: %s\n\n", history[n-1].Error)
	}
	fmt.Fprintf(&b, "Question: %s\nSQL:", question)
	return b.String()
}

func buildSynthesizerPrompt(formatHint, question, documents, query, rows string) string {
	if formatHint == "" {
		formatHint = "str"
	}
	if documents == "" {
		documents = "(none)"
	}
	if query == "" {
		query = "(none)"
	}
	if rows == "" {
		rows = "(none)"
	}
	return fmt.Sprintf(synthesizerPrompt, formatHint, question, documents, query, rows)
}
