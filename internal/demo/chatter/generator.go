package chatter

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

// Generator produces a deterministic demo dataset and an endless stream of
// questions to ask about it.
type Generator struct {
	rnd      *rand.Rand
	sequence int
}

func NewGenerator(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

var (
	dealStages = []string{"Prospecting", "Qualification", "Proposal", "Negotiation", "Closed Won", "Closed Lost", "On Hold"}
	regions    = []string{"North America", "EMEA", "APAC", "LATAM"}
	owners     = []string{"Jordan", "Sam", "Priya", "Chen", "Amara"}
)

// SalesCSV renders a seeded sales pipeline file with the given row count.
func (g *Generator) SalesCSV(rows int) []byte {
	var b strings.Builder
	b.WriteString("Deal Stage,Amount,Region,Owner,Close Date\n")
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	for i := 0; i < rows; i++ {
		stage := pickOne(g.rnd, dealStages)
		amount := round2(500 + g.rnd.Float64()*49500)
		closeDate := start.AddDate(0, 0, g.rnd.Intn(230))
		fmt.Fprintf(&b, "%s,%.2f,%s,%s,%s\n",
			stage,
			amount,
			pickOne(g.rnd, regions),
			pickOne(g.rnd, owners),
			closeDate.Format("2006-01-02"),
		)
	}
	return []byte(b.String())
}

var questionTemplates = []string{
	"show me all deals",
	"what is the total amount by deal stage?",
	"how many deals are in the %s stage?",
	"show me the top 5 deals by amount",
	"what is the average deal amount per region?",
	"show this as a bar chart",
	"give me statistics about this data",
	"which owner has the highest total amount?",
	"show deals closing after June as a table",
	"tell me about this file",
}

// NextQuestion cycles through the templates, filling in a random stage where
// one is needed.
func (g *Generator) NextQuestion() string {
	template := questionTemplates[g.sequence%len(questionTemplates)]
	g.sequence++
	if strings.Contains(template, "%s") {
		return fmt.Sprintf(template, pickOne(g.rnd, dealStages))
	}
	return template
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
