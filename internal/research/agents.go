package research

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/mohammad-safakhou/scholar/internal/llm"
	"github.com/mohammad-safakhou/scholar/internal/telemetry"
)

const producerSystemPrompt = `You are an expert researcher with deep knowledge across multiple domains.
Conduct comprehensive research on the given topic and generate a detailed,
well-structured research report. Provide accurate, factual information, cite
credible sources, structure the report with clear sections, maintain
objectivity and consider multiple perspectives.`

const criticSystemPrompt = `You are an expert research critic with extensive experience evaluating
academic and professional research. Provide constructive, detailed feedback on
research reports. Evaluate accuracy, depth, logical structure, source quality,
objectivity, clarity and completeness relative to the research query.`

const reviserSystemPrompt = `You are an expert editor with extensive experience improving research
reports. Revise reports based on detailed feedback, addressing every issue
raised while preserving the original research intent, maintaining factual
accuracy and strengthening overall quality.`

// agent carries what every role binding needs: a backend, a routed model
// and a per-call timeout. Roles hold no mutable state and never touch the
// task; the Coordinator applies their results.
type agent struct {
	role    AgentRole
	llm     llm.Provider
	model   string
	timeout time.Duration
	tele    *telemetry.Telemetry
	logger  *log.Logger
}

func newAgent(role AgentRole, provider llm.Provider, model string, timeout time.Duration, tele *telemetry.Telemetry) agent {
	return agent{
		role:    role,
		llm:     provider,
		model:   model,
		timeout: timeout,
		tele:    tele,
		logger:  log.New(log.Writer(), fmt.Sprintf("[%s] ", strings.ToUpper(string(role))), log.LstdFlags),
	}
}

// generateStructured runs one generation call and extracts its data block.
// Backend failures are classified into the generation error taxonomy; parse
// fallbacks are returned as-is for the role to judge.
func (a agent) generateStructured(ctx context.Context, prompt string, system string, temperature float64) (StructuredResult, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	prompt = prompt + "\n\nRespond with a single valid JSON object."

	options := map[string]interface{}{"temperature": temperature}
	if system != "" {
		options["system"] = system
	}

	text, inTokens, outTokens, err := a.llm.GenerateWithTokens(ctx, prompt, a.model, options)
	if err != nil {
		return StructuredResult{}, &GenerationError{Kind: classifyBackendError(err), Role: a.role, Err: err}
	}
	a.tele.RecordLLMUsage(a.model, inTokens, outTokens, a.llm.CalculateCost(inTokens, outTokens, a.model))

	return ParseStructured(text), nil
}

func (a agent) malformed(detail string, res StructuredResult) error {
	err := fmt.Errorf("%s", detail)
	if res.ParseErr != "" {
		err = fmt.Errorf("%s (parse: %s)", detail, res.ParseErr)
	}
	a.logger.Printf("unusable output: %v", err)
	return &GenerationError{Kind: GenerationMalformed, Role: a.role, Err: err}
}

func classifyBackendError(err error) GenerationErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return GenerationTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return GenerationTimeout
	}
	return GenerationUpstream
}

// Producer generates the initial report from a query and evidence bundle.
type Producer struct {
	agent
}

// NewProducer creates the producer role binding.
func NewProducer(provider llm.Provider, model string, timeout time.Duration, tele *telemetry.Telemetry) *Producer {
	return &Producer{agent: newAgent(RoleProducer, provider, model, timeout, tele)}
}

// Produce generates an initial research report. It runs two generation
// steps: a research plan, then the report content guided by that plan.
func (p *Producer) Produce(ctx context.Context, query ResearchQuery, evidence EvidenceBundle) (*ResearchReport, error) {
	plan, err := p.generatePlan(ctx, query)
	if err != nil {
		return nil, err
	}

	res, err := p.generateStructured(ctx, p.contentPrompt(query, plan, evidence), producerSystemPrompt, 0.3)
	if err != nil {
		return nil, err
	}
	if !res.Structured() {
		return nil, p.malformed("report content is not a structured object", res)
	}

	now := time.Now().UTC()
	report := &ResearchReport{
		Title:      fmt.Sprintf("Research Report: %s", query.Topic),
		Abstract:   stringFrom(res.Data["abstract"]),
		Sections:   sectionsFrom(res.Data["sections"]),
		Conclusion: stringFrom(res.Data["conclusion"]),
		Sources:    DedupeSources(sourcesFrom(res.Data["sources"])),
		Metadata: map[string]interface{}{
			"depth_level":        query.Depth,
			"subtopics_explored": query.Subtopics,
			"research_plan":      plan,
			"evidence_items":     evidence.Total(),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	return report, nil
}

func (p *Producer) generatePlan(ctx context.Context, query ResearchQuery) (map[string]interface{}, error) {
	prompt := fmt.Sprintf(`Create a research plan for the following topic.

Topic: %s
Subtopics: %s
Depth Level: %d (1-5, where 5 is most detailed)
Requirements: %s

Cover: key areas to investigate, source types to consult, structure of the
final report, specific questions to answer, and likely challenges.

Use this JSON structure:
{
  "key_areas": ["..."],
  "source_types": ["..."],
  "report_structure": ["..."],
  "research_questions": ["..."],
  "challenges": ["..."]
}`, query.Topic, joinOrNone(query.Subtopics), query.Depth, orNone(query.Requirements))

	res, err := p.generateStructured(ctx, prompt, producerSystemPrompt, 0.3)
	if err != nil {
		return nil, err
	}
	// An unstructured plan is tolerable: the content step can proceed from
	// the raw text. Only the report itself must be structured.
	return res.Data, nil
}

func (p *Producer) contentPrompt(query ResearchQuery, plan map[string]interface{}, evidence EvidenceBundle) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Generate a comprehensive research report on:

Topic: %s
Subtopics: %s
Depth Level: %d
Requirements: %s

Research Plan:
%s
`, query.Topic, joinOrNone(query.Subtopics), query.Depth, orNone(query.Requirements), formatPlan(plan))

	if !evidence.IsEmpty() {
		b.WriteString("\nGathered evidence (ranked lookup results, cite where relevant):\n")
		for _, kind := range evidence.Kinds {
			items := evidence.Slots[kind]
			if len(items) == 0 {
				continue
			}
			fmt.Fprintf(&b, "\n[%s]\n", kind)
			for _, item := range items {
				fmt.Fprintf(&b, "- %s (%s): %s\n", item.Title, item.URL, item.Snippet)
			}
		}
	}

	b.WriteString(`
The report needs an abstract (150-200 words), multiple well-structured
sections each with sources and a confidence score, and a conclusion.

Use this JSON structure:
{
  "abstract": "...",
  "sections": [
    {
      "title": "...",
      "content": "...",
      "sources": [{"title": "...", "url": "...", "content": "...", "credibility_score": 0.9}],
      "confidence_score": 0.8
    }
  ],
  "conclusion": "...",
  "sources": [{"title": "...", "url": "...", "content": "...", "credibility_score": 0.9}]
}`)
	return b.String()
}

// Critic evaluates a report against its originating query.
type Critic struct {
	agent
}

// NewCritic creates the critic role binding.
func NewCritic(provider llm.Provider, model string, timeout time.Duration, tele *telemetry.Telemetry) *Critic {
	return &Critic{agent: newAgent(RoleCritic, provider, model, timeout, tele)}
}

// Critique scores the report 0-10 and collects actionable feedback. Output
// without a numeric overall score is unusable for the quality gate and is
// reported as malformed.
func (c *Critic) Critique(ctx context.Context, query ResearchQuery, report *ResearchReport) (*CritiqueFeedback, error) {
	res, err := c.generateStructured(ctx, c.critiquePrompt(query, report), criticSystemPrompt, 0.2)
	if err != nil {
		return nil, err
	}
	if !res.Structured() {
		return nil, c.malformed("critique is not a structured object", res)
	}
	score, ok := floatFrom(res.Data["overall_score"])
	if !ok {
		return nil, c.malformed("critique lacks a numeric overall_score", res)
	}

	return &CritiqueFeedback{
		OverallScore:        score,
		Strengths:           stringSliceFrom(res.Data["strengths"]),
		Weaknesses:          stringSliceFrom(res.Data["weaknesses"]),
		Suggestions:         stringSliceFrom(res.Data["suggestions"]),
		SpecificCorrections: stringMapFrom(res.Data["specific_corrections"]),
		PriorityIssues:      stringSliceFrom(res.Data["priority_issues"]),
		CreatedAt:           time.Now().UTC(),
	}, nil
}

func (c *Critic) critiquePrompt(query ResearchQuery, report *ResearchReport) string {
	return fmt.Sprintf(`Provide a comprehensive critique of the following research report.

Research Query:
Topic: %s
Subtopics: %s
Depth Level: %d
Requirements: %s

%s

Use this JSON structure:
{
  "overall_score": 7.5,
  "strengths": ["..."],
  "weaknesses": ["..."],
  "suggestions": ["..."],
  "specific_corrections": {"section_identifier": "correction"},
  "priority_issues": ["..."]
}

Scoring guidelines:
- 9.0-10.0: excellent, publication-ready
- 8.0-8.9: very good, minor improvements needed
- 7.0-7.9: good, moderate improvements needed
- 6.0-6.9: acceptable, significant improvements needed
- 5.0-5.9: needs major improvements
- below 5.0: requires complete revision`,
		query.Topic, joinOrNone(query.Subtopics), query.Depth, orNone(query.Requirements),
		reportToText(report))
}

// Reviser produces an improved report from the current one plus feedback.
type Reviser struct {
	agent
}

// NewReviser creates the reviser role binding.
func NewReviser(provider llm.Provider, model string, timeout time.Duration, tele *telemetry.Telemetry) *Reviser {
	return &Reviser{agent: newAgent(RoleReviser, provider, model, timeout, tele)}
}

// Revise generates a new report addressing the critique. The revised report
// records the revision summary, the score it is answering and a running
// revision number in its metadata.
func (r *Reviser) Revise(ctx context.Context, query ResearchQuery, report *ResearchReport, feedback *CritiqueFeedback) (*ResearchReport, error) {
	res, err := r.generateStructured(ctx, r.revisionPrompt(query, report, feedback), reviserSystemPrompt, 0.3)
	if err != nil {
		return nil, err
	}
	if !res.Structured() {
		return nil, r.malformed("revised report is not a structured object", res)
	}

	title := stringFrom(res.Data["title"])
	if title == "" {
		title = fmt.Sprintf("Revised: %s", report.Title)
	}

	metadata := make(map[string]interface{}, len(report.Metadata)+3)
	for k, v := range report.Metadata {
		metadata[k] = v
	}
	revision := 1
	if prev, ok := floatFrom(report.Metadata["revision_number"]); ok {
		revision = int(prev) + 1
	}
	metadata["revision_summary"] = stringFrom(res.Data["revision_summary"])
	metadata["original_feedback_score"] = feedback.OverallScore
	metadata["revision_number"] = revision

	now := time.Now().UTC()
	revised := &ResearchReport{
		Title:      title,
		Abstract:   stringFrom(res.Data["abstract"]),
		Sections:   sectionsFrom(res.Data["sections"]),
		Conclusion: stringFrom(res.Data["conclusion"]),
		Sources:    DedupeSources(sourcesFrom(res.Data["sources"])),
		Metadata:   metadata,
		CreatedAt:  report.CreatedAt,
		UpdatedAt:  now,
	}
	return revised, nil
}

func (r *Reviser) revisionPrompt(query ResearchQuery, report *ResearchReport, feedback *CritiqueFeedback) string {
	return fmt.Sprintf(`Revise the following research report based on the critique below.

Original Research Query:
Topic: %s
Subtopics: %s
Depth Level: %d
Requirements: %s

%s

Critique Feedback:
Overall Score: %.1f/10

Strengths:
%s

Weaknesses:
%s

Suggestions:
%s

Specific Corrections:
%s

Priority Issues:
%s

Address every weakness, correction and priority issue while keeping the
strengths. Use this JSON structure:
{
  "title": "...",
  "abstract": "...",
  "sections": [
    {
      "title": "...",
      "content": "...",
      "sources": [{"title": "...", "url": "...", "content": "...", "credibility_score": 0.9}],
      "confidence_score": 0.9
    }
  ],
  "conclusion": "...",
  "sources": [{"title": "...", "url": "...", "content": "...", "credibility_score": 0.9}],
  "revision_summary": "summary of key improvements made"
}`,
		query.Topic, joinOrNone(query.Subtopics), query.Depth, orNone(query.Requirements),
		reportToText(report),
		feedback.OverallScore,
		bulletList(feedback.Strengths),
		bulletList(feedback.Weaknesses),
		bulletList(feedback.Suggestions),
		correctionList(feedback.SpecificCorrections),
		bulletList(feedback.PriorityIssues))
}

func reportToText(report *ResearchReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research Report:\nTitle: %s\n\nAbstract: %s\n\nSections:\n", report.Title, report.Abstract)
	for i, section := range report.Sections {
		fmt.Fprintf(&b, "\n%d. %s\n%s\nSources in this section: %d\n", i+1, section.Title, section.Content, len(section.Sources))
	}
	fmt.Fprintf(&b, "\nConclusion: %s\n\nNumber of Sources: %d", report.Conclusion, len(report.Sources))
	return b.String()
}

func formatPlan(plan map[string]interface{}) string {
	if len(plan) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, key := range []string{"key_areas", "source_types", "report_structure", "research_questions", "challenges"} {
		if items := stringSliceFrom(plan[key]); len(items) > 0 {
			fmt.Fprintf(&b, "%s: %s\n", key, strings.Join(items, ", "))
		}
	}
	if b.Len() == 0 {
		if raw := stringFrom(plan["unstructured"]); raw != "" {
			return raw
		}
		return "(none)"
	}
	return b.String()
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "None specified"
	}
	return strings.Join(items, ", ")
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "None specified"
	}
	return s
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "- (none)"
	}
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- " + item)
	}
	return b.String()
}

func correctionList(corrections map[string]string) string {
	if len(corrections) == 0 {
		return "- (none)"
	}
	var b strings.Builder
	first := true
	for section, correction := range corrections {
		if !first {
			b.WriteString("\n")
		}
		first = false
		fmt.Fprintf(&b, "- %s: %s", section, correction)
	}
	return b.String()
}
