package scope

import "regexp"

type rule[T any] struct {
	name    string
	pattern *regexp.Regexp
	set     func(*T)
}

func keywords(alternation string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(?:` + alternation + `)\b`)
}

// Each flag owns its own keyword set. React and component belong to the
// frontend set only.
var touchRules = []rule[Touches]{
	{"backend", keywords(`apis?|endpoints?|backend|back-end|handlers?|lambdas?|servers?|services?`), func(t *Touches) { t.Backend = true }},
	{"frontend", keywords(`react|components?|frontend|front-end|pages?|hooks?|tsx|browser`), func(t *Touches) { t.Frontend = true }},
	{"packages", keywords(`packages?|shared librar(?:y|ies)|monorepo|workspaces?`), func(t *Touches) { t.Packages = true }},
	{"db", keywords(`databases?|migrations?|tables?|columns?|sql|postgres(?:ql)?|schemas?|index(?:es)?`), func(t *Touches) { t.DB = true }},
	{"contracts", keywords(`contracts?|openapi|swagger|zod|dtos?|type definitions?`), func(t *Touches) { t.Contracts = true }},
	{"ui", keywords(`ui|ux|layouts?|styling|css|tailwind|buttons?|modals?|accessibility|a11y`), func(t *Touches) { t.UI = true }},
	{"infra", keywords(`infrastructure|infra|terraform|cdk|cloudformation|docker|deploy(?:ment)?s?|ci/cd|pipelines?`), func(t *Touches) { t.Infra = true }},
}

var riskRules = []rule[RiskFlags]{
	{"auth", keywords(`auth\w*|login|logout|sign[- ]?in|jwt|oauth|sessions?|cognito|permissions?|roles?`), func(r *RiskFlags) { r.Auth = true }},
	{"payments", keywords(`payments?|billing|stripe|invoices?|checkout|subscriptions?|refunds?`), func(r *RiskFlags) { r.Payments = true }},
	{"migrations", keywords(`migrations?|migrate|backfill|alter table|data move`), func(r *RiskFlags) { r.Migrations = true }},
	{"external_apis", keywords(`third[- ]party|external apis?|webhooks?|integrations?|vendors?`), func(r *RiskFlags) { r.ExternalAPIs = true }},
	{"security", keywords(`security|xss|csrf|injection|encrypt\w*|secrets?|vulnerabilit(?:y|ies)|pii`), func(r *RiskFlags) { r.Security = true }},
	{"performance", keywords(`performance|latency|cach(?:e|es|ing)|optimi[sz]\w*|slow|throughput|scal\w*`), func(r *RiskFlags) { r.Performance = true }},
}

func apply[T any](rules []rule[T], text string) T {
	var out T
	if text == "" {
		return out
	}
	for _, r := range rules {
		if r.pattern.MatchString(text) {
			r.set(&out)
		}
	}
	return out
}

// InferTouches sets each surface flag whose keyword set appears in text.
// Flags are independent; any number may be true.
func InferTouches(text string) Touches {
	return apply(touchRules, text)
}

// InferRiskFlags sets each risk flag whose keyword set appears in text.
func InferRiskFlags(text string) RiskFlags {
	return apply(riskRules, text)
}

// MatchedTouches names the surface flags text triggers, in declaration order.
func MatchedTouches(text string) []string {
	return matched(touchRules, text)
}

// MatchedRisks names the risk flags text triggers, in declaration order.
func MatchedRisks(text string) []string {
	return matched(riskRules, text)
}

func matched[T any](rules []rule[T], text string) []string {
	var names []string
	for _, r := range rules {
		if r.pattern.MatchString(text) {
			names = append(names, r.name)
		}
	}
	return names
}
