package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultSynthesizeTimeout = 60 * time.Second

	degradedPrefix = "[degraded]"
)

type Analysis struct {
	Text     string `json:"text"`
	Degraded bool   `json:"degraded"`
}

// Synthesizer writes one recommendation over the whole record set. It always returns
// non-empty text; static narratives stand in when there is nothing to analyze or the
// generator fails.
type Synthesizer struct {
	Generator Generator
	Timeout   time.Duration
	Logger    *zap.Logger
}

func (s *Synthesizer) Synthesize(ctx context.Context, query string, records []Record) Analysis {
	if len(records) == 0 {
		return Analysis{Text: NoMatchesNarrative(query)}
	}
	usable, failed := partitionRecords(records)
	if len(usable) == 0 {
		return Analysis{Text: AllDegradedNarrative(query, failed)}
	}
	if s == nil || s.Generator == nil {
		return Analysis{Text: FallbackNarrative(query, usable, failed), Degraded: true}
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultSynthesizeTimeout
	}
	synthCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := s.generate(synthCtx, synthesisPrompt(query, usable, failed))
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("generator returned empty text")
	}
	if err != nil {
		s.logger().Warn("synthesis fell back to static narrative", zap.String("query", query), zap.Error(err))
		return Analysis{Text: FallbackNarrative(query, usable, failed), Degraded: true}
	}
	return Analysis{Text: strings.TrimSpace(text)}
}

// StaticAnalysis is the analysis produced when no generator can be reached.
func StaticAnalysis(query string, records []Record) Analysis {
	var s *Synthesizer
	return s.Synthesize(context.Background(), query, records)
}

func (s *Synthesizer) generate(ctx context.Context, prompt string) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("generator panicked: %v", rec)
		}
	}()
	return s.Generator.Generate(ctx, prompt)
}

func (s *Synthesizer) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func partitionRecords(records []Record) ([]Company, []string) {
	usable := make([]Company, 0, len(records))
	var failed []string
	for _, record := range records {
		if record.Degraded() {
			failed = append(failed, record.Company.Name)
			continue
		}
		usable = append(usable, record.Company)
	}
	return usable, failed
}

func NoMatchesNarrative(query string) string {
	return fmt.Sprintf("No matching developer tools were found for %q. Try a broader or differently worded query.", query)
}

func AllDegradedNarrative(query string, failed []string) string {
	return fmt.Sprintf("Found %d candidate tools for %q, but none could be analyzed: %s. No recommendation can be made without their details.",
		len(failed), query, strings.Join(failed, ", "))
}

// FallbackNarrative summarizes the usable records without a generator.
func FallbackNarrative(query string, usable []Company, failed []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Automated recommendations are unavailable for %q. Tools found:", degradedPrefix, query)
	for _, company := range usable {
		b.WriteString("\n- ")
		b.WriteString(company.Name)
		var facts []string
		if company.PricingModel != nil {
			facts = append(facts, "pricing: "+*company.PricingModel)
		}
		if company.IsOpenSource != nil {
			if *company.IsOpenSource {
				facts = append(facts, "open source")
			} else {
				facts = append(facts, "proprietary")
			}
		}
		if company.APIAvailable != nil && *company.APIAvailable {
			facts = append(facts, "API available")
		}
		if len(facts) > 0 {
			b.WriteString(" (" + strings.Join(facts, ", ") + ")")
		}
	}
	if len(failed) > 0 {
		fmt.Fprintf(&b, "\nCould not be analyzed: %s.", strings.Join(failed, ", "))
	}
	return b.String()
}

func synthesisPrompt(query string, usable []Company, failed []string) string {
	evidence, _ := json.MarshalIndent(usable, "", "  ")
	var b strings.Builder
	fmt.Fprintf(&b, "Developer query: %s\n\n", query)
	b.WriteString("Companies/tools analyzed:\n")
	b.Write(evidence)
	b.WriteString("\n\n")
	if len(failed) > 0 {
		fmt.Fprintf(&b, "These candidates could not be analyzed, mention them only as such: %s\n\n", strings.Join(failed, ", "))
	}
	b.WriteString(`Provide a brief recommendation (4-5 sentences max) covering:
- Which tool is best and why
- Key cost or pricing considerations
- Main technical advantage
- Gaps and trade-offs between the options

Be concise and direct. Do not invent facts that are not in the data above.`)
	return b.String()
}
