package expertise

import (
	"strings"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

// Knowledge domains a task can be classified into.
const (
	DomainDatabase   = "database"
	DomainAPI        = "api"
	DomainFrontend   = "frontend"
	DomainTesting    = "testing"
	DomainSecurity   = "security"
	DomainDeployment = "deployment"
	DomainGeneral    = "general"
)

type domainSignals struct {
	keywords []string
	paths    []string
}

var signals = map[string]domainSignals{
	DomainDatabase: {
		keywords: []string{"database", "sql", "schema", "migration", "query", "index", "table", "orm", "transaction"},
		paths:    []string{"migrations/", "db/", ".sql"},
	},
	DomainAPI: {
		keywords: []string{"api", "endpoint", "rest", "grpc", "handler", "route", "request", "response", "middleware", "webhook"},
		paths:    []string{"api/", "handlers/", "routes/"},
	},
	DomainFrontend: {
		keywords: []string{"frontend", "component", "ui", "css", "style", "render", "page", "form", "button", "layout"},
		paths:    []string{"components/", "pages/", ".tsx", ".jsx", ".css", ".vue"},
	},
	DomainTesting: {
		keywords: []string{"test", "coverage", "assert", "mock", "fixture", "e2e", "integration test", "unit test"},
		paths:    []string{"tests/", "_test.", ".spec.", ".test."},
	},
	DomainSecurity: {
		keywords: []string{"auth", "security", "password", "token", "encrypt", "permission", "vulnerability", "csrf", "xss", "oauth"},
		paths:    []string{"auth/", "security/"},
	},
	DomainDeployment: {
		keywords: []string{"deploy", "docker", "kubernetes", "ci", "pipeline", "infrastructure", "terraform", "helm", "release"},
		paths:    []string{"deploy/", ".yml", ".yaml", "dockerfile"},
	},
}

// Path hits are stronger evidence than keyword hits.
const (
	keywordWeight = 1
	pathWeight    = 2
)

// Classify maps a task to a knowledge domain by scoring keyword hits in
// its text and path hits in its predicted files. Ties break by the
// fixed domain order above; no hits at all means general.
func Classify(task *models.Task) string {
	text := strings.ToLower(task.Text())
	var files []string
	for _, f := range task.Metadata.PredictedFiles {
		files = append(files, strings.ToLower(f))
	}

	order := []string{DomainDatabase, DomainAPI, DomainFrontend, DomainTesting, DomainSecurity, DomainDeployment}
	best := DomainGeneral
	bestScore := 0
	for _, domain := range order {
		sig := signals[domain]
		score := 0
		for _, k := range sig.keywords {
			if strings.Contains(text, k) {
				score += keywordWeight
			}
		}
		for _, p := range sig.paths {
			for _, f := range files {
				if strings.Contains(f, p) {
					score += pathWeight
					break
				}
			}
		}
		if score > bestScore {
			best = domain
			bestScore = score
		}
	}
	return best
}
