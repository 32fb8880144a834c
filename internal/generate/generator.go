// Package generate turns free-text user stories into structured test
// scenarios using deterministic pattern-matching heuristics. It implements
// the same contract an LLM-backed generator would, which makes it a drop-in
// stand-in wherever network access or reproducibility rule out a real model.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/storyline-qa/storyline/internal/model"
)

var (
	urlPattern      = regexp.MustCompile(`https?://[^\s"'<>)]+`)
	emailPattern    = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	passwordPattern = regexp.MustCompile(`(?i)(?:password|credentials?|pwd)\s*[:=]?\s*"?([^\s",;]+)"?`)
)

// category keyword checks run in this exact order; the first match wins.
// Reordering changes generated output for identical input, so don't.
var categories = []struct {
	name     string
	keywords []string
}{
	{"quote", []string{"quote"}},
	{"login", []string{"login", "log in", "sign in", "authenticate"}},
	{"claim", []string{"claim"}},
	{"payment", []string{"payment", "pay ", "checkout"}},
}

var apiKeywords = []string{"api", "service", "endpoint", "rest"}

// Generator is the rule-based scenario generator.
type Generator struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Generator {
	if log == nil {
		log = slog.Default()
	}

	return &Generator{log: log}
}

// story holds everything the heuristics extracted from the raw text.
type story struct {
	text     string
	lower    string
	urls     []string
	email    string
	password string
	category string
	testType model.TestType
}

func parseStory(text string) story {
	st := story{
		text:  text,
		lower: strings.ToLower(text),
		urls:  urlPattern.FindAllString(text, -1),
	}

	st.email = emailPattern.FindString(text)

	if m := passwordPattern.FindStringSubmatch(text); m != nil {
		// the email often sits right next to the "credentials" keyword,
		// don't mistake it for a password
		if m[1] != st.email {
			st.password = m[1]
		}
	}

	st.category = "generic"

	for _, c := range categories {
		for _, kw := range c.keywords {
			if strings.Contains(st.lower, kw) {
				st.category = c.name
				break
			}
		}
		if st.category != "generic" {
			break
		}
	}

	st.testType = model.TestTypeUI

	for _, kw := range apiKeywords {
		if strings.Contains(st.lower, kw) {
			st.testType = model.TestTypeAPI
			break
		}
	}

	return st
}

// target returns the primary navigation target: the first URL found in the
// story, or the site root when the story contains none.
func (st story) target() string {
	if len(st.urls) > 0 {
		return st.urls[0]
	}

	return "/"
}

// Generate converts a user story into a scenario. It never fails for any
// input string: unrecognized or empty stories degrade to a single generic
// verification step.
func (g *Generator) Generate(ctx context.Context, userStory, projectContext string) (model.TestScenario, error) {
	st := parseStory(userStory)

	now := time.Now()

	scenario := model.TestScenario{
		ID:          uuid.NewString(),
		Title:       titleFor(st.category),
		Description: describe(st, projectContext),
		UserStory:   userStory,
		Type:        st.testType,
		Status:      model.StatusGenerated,
		Priority:    model.PriorityMedium,
		Environment: model.EnvTesting,
		Steps:       stepsFor(st),
		Tags:        []string{st.category, string(st.testType)},
		CreatedAt:   now,
		UpdatedAt:   now,
		CreatedBy:   "storyline-generator",
		// API scenarios carry no browser session state and can run side
		// by side.
		ParallelSafe:     st.testType == model.TestTypeAPI,
		ExpectedOutcomes: outcomesFor(st.category),
	}

	if st.email != "" || st.password != "" {
		scenario.TestData = map[string]model.Value{}
		if st.email != "" {
			scenario.TestData["username"] = model.String(st.email)
		}
		if st.password != "" {
			scenario.TestData["password"] = model.String(st.password)
		}
	}

	g.log.Debug("generated scenario from story",
		"scenario-id", scenario.ID,
		"category", st.category,
		"type", scenario.Type,
		"steps", len(scenario.Steps))

	return scenario, nil
}

func titleFor(category string) string {
	switch category {
	case "quote":
		return "Quote generation flow"
	case "login":
		return "Login flow"
	case "claim":
		return "Claim submission flow"
	case "payment":
		return "Payment flow"
	default:
		return "Page verification"
	}
}

func describe(st story, projectContext string) string {
	desc := strings.TrimSpace(st.text)

	if len(desc) > 200 {
		cut := 200
		// back up to a rune boundary so the cut never leaves invalid utf-8
		for cut > 0 && !utf8.RuneStart(desc[cut]) {
			cut--
		}
		desc = desc[:cut]
	}

	if desc == "" {
		desc = "Generated verification scenario"
	}

	if projectContext != "" {
		desc += " (" + projectContext + ")"
	}

	return desc
}

func outcomesFor(category string) []string {
	switch category {
	case "quote":
		return []string{"a quote is calculated and displayed"}
	case "login":
		return []string{"the user is signed in and sees their dashboard"}
	case "claim":
		return []string{"the claim is submitted and a reference number is shown"}
	case "payment":
		return []string{"the payment is confirmed"}
	default:
		return []string{"the page loads successfully"}
	}
}

// RefineSteps applies user feedback to an existing step sequence. The
// heuristics are intentionally coarse: feedback mentioning screenshots turns
// them on everywhere, feedback mentioning timeouts relaxes them. Step order
// is always re-normalized.
func (g *Generator) RefineSteps(ctx context.Context, steps []model.TestStep, feedback string) ([]model.TestStep, error) {
	refined := make([]model.TestStep, len(steps))
	copy(refined, steps)

	lower := strings.ToLower(feedback)

	wantScreenshots := strings.Contains(lower, "screenshot")
	relaxTimeouts := strings.Contains(lower, "timeout") || strings.Contains(lower, "slow")

	for i := range refined {
		if wantScreenshots {
			refined[i].Screenshot = true
		}

		if relaxTimeouts {
			if refined[i].Timeout == 0 {
				refined[i].Timeout = 30 * time.Second
			} else {
				refined[i].Timeout *= 2
			}
		}

		refined[i].Order = i + 1
	}

	return refined, nil
}

// AnalyzeFailure produces a short narrative for a failed run.
func (g *Generator) AnalyzeFailure(ctx context.Context, result model.TestResult) (string, error) {
	if result.Passed {
		return fmt.Sprintf("Run %s passed, all %d steps succeeded in %s.",
			result.ID, len(result.Steps), result.Duration), nil
	}

	failed, ok := result.FirstFailure()
	if !ok {
		return fmt.Sprintf("Run %s was marked failed but no step reported a failure. Executor message: %s",
			result.ID, result.Message), nil
	}

	b := strings.Builder{}

	fmt.Fprintf(&b, "Run %s failed at %q (action %s, target %s).", result.ID, failed.Name, failed.Action, failed.Target)

	if failed.Message != "" {
		fmt.Fprintf(&b, " Reported: %s.", failed.Message)
	}

	switch failed.Action {
	case model.ActionNavigate:
		b.WriteString(" Check that the target URL is reachable from the test environment.")
	case model.ActionEnterText, model.ActionClick, model.ActionSelect:
		b.WriteString(" The element locator may be stale; verify the target selector against the current page.")
	case model.ActionAssertStatus, model.ActionAssertBody, model.ActionAssertHeader:
		b.WriteString(" The service response diverged from the expectation; compare against a manual request.")
	}

	return b.String(), nil
}

// GenerateTestData derives input data for a scenario from its steps and the
// free-text requirements.
func (g *Generator) GenerateTestData(ctx context.Context, scenario model.TestScenario, requirements string) (map[string]model.Value, error) {
	data := map[string]model.Value{}

	// carry over whatever the story itself already provided
	for k, v := range scenario.TestData {
		data[k] = v
	}

	for _, step := range scenario.Steps {
		if step.Action != model.ActionEnterText {
			continue
		}

		key := fieldKey(step.Target)
		if key == "" {
			continue
		}

		if _, ok := data[key]; ok {
			continue
		}

		data[key] = defaultValueFor(key)
	}

	lower := strings.ToLower(requirements)

	if strings.Contains(lower, "email") {
		if _, ok := data["email"]; !ok {
			data["email"] = model.String("qa@example.com")
		}
	}
	if strings.Contains(lower, "amount") {
		if _, ok := data["amount"]; !ok {
			data["amount"] = model.Number(100)
		}
	}

	return data, nil
}

func fieldKey(target string) string {
	key := strings.TrimLeft(target, "#.")
	key = strings.TrimSpace(key)

	if i := strings.IndexAny(key, "[ >"); i >= 0 {
		key = key[:i]
	}

	return key
}

func defaultValueFor(key string) model.Value {
	switch {
	case strings.Contains(key, "mail"), strings.Contains(key, "user"):
		return model.String("qa@example.com")
	case strings.Contains(key, "pass"):
		return model.String("Secret123!")
	case strings.Contains(key, "amount"), strings.Contains(key, "price"):
		return model.Number(100)
	case strings.Contains(key, "phone"):
		return model.String("+15550100")
	default:
		return model.String("test input")
	}
}

// OptimizeScenarios drops disabled and consecutively duplicated steps and
// re-normalizes step order. Scenario identity is preserved.
func (g *Generator) OptimizeScenarios(ctx context.Context, scenarios []model.TestScenario) ([]model.TestScenario, error) {
	optimized := make([]model.TestScenario, 0, len(scenarios))

	for _, sc := range scenarios {
		steps := make([]model.TestStep, 0, len(sc.Steps))

		for _, step := range sc.Steps {
			if !step.Enabled {
				continue
			}

			if n := len(steps); n > 0 && steps[n-1].Action == step.Action && steps[n-1].Target == step.Target {
				continue
			}

			steps = append(steps, step)
		}

		for i := range steps {
			steps[i].Order = i + 1
		}

		sc.Steps = steps
		sc.UpdatedAt = time.Now()
		optimized = append(optimized, sc)
	}

	return optimized, nil
}

// SuggestAdditionalTests proposes scenarios that are missing from the
// existing set: a negative test for every login flow and a smoke test when
// the project has no scenarios at all.
func (g *Generator) SuggestAdditionalTests(ctx context.Context, existing []model.TestScenario, projectContext string) ([]model.TestScenario, error) {
	var suggestions []model.TestScenario

	if len(existing) == 0 {
		sc, err := g.Generate(ctx, "Verify that the application landing page loads", projectContext)
		if err != nil {
			return nil, err
		}

		return append(suggestions, sc), nil
	}

	hasNegativeLogin := false
	var loginScenario *model.TestScenario

	for i := range existing {
		sc := existing[i]

		if !hasTag(sc, "login") {
			continue
		}

		if strings.Contains(strings.ToLower(sc.Title), "invalid") {
			hasNegativeLogin = true
		} else if loginScenario == nil {
			loginScenario = &existing[i]
		}
	}

	if loginScenario != nil && !hasNegativeLogin {
		target := "/"
		if len(loginScenario.Steps) > 0 {
			target = loginScenario.Steps[0].Target
		}

		sc, err := g.Generate(ctx, "As a user I cannot login with invalid credentials at "+target, projectContext)
		if err != nil {
			return nil, err
		}

		sc.Title = "Login flow with invalid credentials"
		sc.ProjectID = loginScenario.ProjectID
		suggestions = append(suggestions, sc)
	}

	return suggestions, nil
}

func hasTag(sc model.TestScenario, tag string) bool {
	for _, t := range sc.Tags {
		if t == tag {
			return true
		}
	}

	return false
}

// ValidateScenario scores a scenario's quality between 0 and 100.
// Structural issues weigh heaviest; missing assertions, outcomes or
// descriptions reduce the score without making the scenario invalid.
func (g *Generator) ValidateScenario(ctx context.Context, scenario model.TestScenario) (model.ValidationResult, error) {
	issues := scenario.Validate()

	result := model.ValidationResult{
		IsValid:      len(issues) == 0,
		Issues:       issues,
		QualityScore: 100 - 20*len(issues),
	}

	hasAssertion := false

	for _, step := range scenario.Steps {
		switch step.Action {
		case model.ActionVerify, model.ActionAssertStatus, model.ActionAssertBody,
			model.ActionAssertHeader, model.ActionAssertText, model.ActionAssertElement:
			hasAssertion = true
		}
	}

	if !hasAssertion {
		result.QualityScore -= 15
		result.Suggestions = append(result.Suggestions, "add an assertion step so the scenario verifies an outcome")
		result.MissingCoverage = append(result.MissingCoverage, "assertions")
	}

	if len(scenario.ExpectedOutcomes) == 0 {
		result.QualityScore -= 10
		result.Suggestions = append(result.Suggestions, "declare expected outcomes")
		result.MissingCoverage = append(result.MissingCoverage, "expected outcomes")
	}

	if scenario.Description == "" {
		result.QualityScore -= 5
		result.Suggestions = append(result.Suggestions, "describe what the scenario covers")
	}

	if result.QualityScore < 0 {
		result.QualityScore = 0
	}
	if result.QualityScore > 100 {
		result.QualityScore = 100
	}

	return result, nil
}
