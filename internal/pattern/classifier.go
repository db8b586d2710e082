package pattern

import (
	"regexp"
	"time"

	"github.com/antonkrylov/shellrpc/internal/timeout"
)

// Category is a command's behavioral class; it selects the timeout tuning.
type Category string

const (
	CategoryInstall    Category = "install"
	CategoryUninstall  Category = "uninstall"
	CategoryList       Category = "list"
	CategorySync       Category = "sync"
	CategoryBuild      Category = "build"
	CategoryNavigation Category = "navigation"
	CategoryEnvVar     Category = "envvar"
	CategoryQuick      Category = "quick"
	CategoryUnknown    Category = "unknown"
)

// Classification couples the detected category with the manager whose
// pattern tables apply.
type Classification struct {
	Category Category
	Manager  string
}

type rule struct {
	re       *regexp.Regexp
	manager  string
	category Category
}

// Rules are ordered: more specific managers first, generic shell
// categories last. First match wins.
var rules = []rule{
	// pip, either direct or via "python -m pip".
	{regexp.MustCompile(`^(?:\S*[\\/])?(?:python[0-9.]*\s+-m\s+)?pip[0-9]?\s+(?:install|download|wheel)\b`), "pip", CategoryInstall},
	{regexp.MustCompile(`^(?:\S*[\\/])?(?:python[0-9.]*\s+-m\s+)?pip[0-9]?\s+uninstall\b`), "pip", CategoryUninstall},
	{regexp.MustCompile(`^(?:\S*[\\/])?(?:python[0-9.]*\s+-m\s+)?pip[0-9]?\s+(?:list|show|freeze|check)\b`), "pip", CategoryList},

	// uv.
	{regexp.MustCompile(`^(?:\S*[\\/])?uv\s+(?:pip\s+install|add|tool\s+install)\b`), "uv", CategoryInstall},
	{regexp.MustCompile(`^(?:\S*[\\/])?uv\s+(?:pip\s+uninstall|remove)\b`), "uv", CategoryUninstall},
	{regexp.MustCompile(`^(?:\S*[\\/])?uv\s+(?:pip\s+(?:list|show|freeze)|tree)\b`), "uv", CategoryList},
	{regexp.MustCompile(`^(?:\S*[\\/])?uv\s+(?:sync|lock)\b`), "uv", CategorySync},
	{regexp.MustCompile(`^(?:\S*[\\/])?uv\s+build\b`), "uv", CategoryBuild},

	// poetry.
	{regexp.MustCompile(`^(?:\S*[\\/])?poetry\s+(?:install|add)\b`), "poetry", CategoryInstall},
	{regexp.MustCompile(`^(?:\S*[\\/])?poetry\s+remove\b`), "poetry", CategoryUninstall},
	{regexp.MustCompile(`^(?:\S*[\\/])?poetry\s+(?:show|list)\b`), "poetry", CategoryList},
	{regexp.MustCompile(`^(?:\S*[\\/])?poetry\s+(?:lock|update)\b`), "poetry", CategorySync},
	{regexp.MustCompile(`^(?:\S*[\\/])?poetry\s+build\b`), "poetry", CategoryBuild},

	// pipenv.
	{regexp.MustCompile(`^(?:\S*[\\/])?pipenv\s+install\b`), "pipenv", CategoryInstall},
	{regexp.MustCompile(`^(?:\S*[\\/])?pipenv\s+uninstall\b`), "pipenv", CategoryUninstall},
	{regexp.MustCompile(`^(?:\S*[\\/])?pipenv\s+graph\b`), "pipenv", CategoryList},
	{regexp.MustCompile(`^(?:\S*[\\/])?pipenv\s+(?:sync|update)\b`), "pipenv", CategorySync},

	// npm.
	{regexp.MustCompile(`^(?:\S*[\\/])?npm\s+(?:install|i|add)\b`), "npm", CategoryInstall},
	{regexp.MustCompile(`^(?:\S*[\\/])?npm\s+(?:uninstall|remove|rm|un)\b`), "npm", CategoryUninstall},
	{regexp.MustCompile(`^(?:\S*[\\/])?npm\s+(?:ls|list|outdated|view|audit)\b`), "npm", CategoryList},
	{regexp.MustCompile(`^(?:\S*[\\/])?npm\s+ci\b`), "npm", CategorySync},
	{regexp.MustCompile(`^(?:\S*[\\/])?npm\s+(?:run\s+build|build)\b`), "npm", CategoryBuild},

	// yarn.
	{regexp.MustCompile(`^(?:\S*[\\/])?yarn\s+add\b`), "yarn", CategoryInstall},
	{regexp.MustCompile(`^(?:\S*[\\/])?yarn\s+remove\b`), "yarn", CategoryUninstall},
	{regexp.MustCompile(`^(?:\S*[\\/])?yarn\s+(?:list|info|why)\b`), "yarn", CategoryList},
	{regexp.MustCompile(`^(?:\S*[\\/])?yarn(?:\s+install)?\s*$`), "yarn", CategorySync},
	{regexp.MustCompile(`^(?:\S*[\\/])?yarn\s+(?:run\s+)?build\b`), "yarn", CategoryBuild},

	// pnpm.
	{regexp.MustCompile(`^(?:\S*[\\/])?pnpm\s+(?:install|i|add)\b`), "pnpm", CategoryInstall},
	{regexp.MustCompile(`^(?:\S*[\\/])?pnpm\s+(?:uninstall|remove|rm)\b`), "pnpm", CategoryUninstall},
	{regexp.MustCompile(`^(?:\S*[\\/])?pnpm\s+(?:ls|list|outdated)\b`), "pnpm", CategoryList},
	{regexp.MustCompile(`^(?:\S*[\\/])?pnpm\s+(?:run\s+)?build\b`), "pnpm", CategoryBuild},

	// maven / gradle builds.
	{regexp.MustCompile(`^(?:\S*[\\/])?mvn\s+.*(?:install|package|compile|verify|deploy)\b`), "maven", CategoryBuild},
	{regexp.MustCompile(`^(?:\S*[\\/])?mvn\s+dependency:(?:list|tree)\b`), "maven", CategoryList},
	{regexp.MustCompile(`^(?:\.?[\\/])?gradlew?\s+.*(?:build|assemble|compile\w*|jar)\b`), "gradle", CategoryBuild},
	{regexp.MustCompile(`^(?:\.?[\\/])?gradlew?\s+dependencies\b`), "gradle", CategoryList},

	// Shell-level categories.
	{regexp.MustCompile(`^(?:cd|pushd|popd)(?:\s|$)`), "generic", CategoryNavigation},
	{regexp.MustCompile(`^(?:export|set|setenv|unset)\s`), "generic", CategoryEnvVar},
	{regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*=\S*\s*$`), "generic", CategoryEnvVar},
	{regexp.MustCompile(`^(?:pwd|echo|which|whereis|type|true|:|ls|cat|env|printenv)(?:\s|$)`), "generic", CategoryQuick},
}

// categoryTimeouts maps a category to its base/extension/grace/absolute
// tuple. Navigation and env-var commands get a sub-second triple.
var categoryTimeouts = map[Category]timeout.Config{
	CategoryInstall:    {Base: 30 * time.Second, ActivityExtension: 15 * time.Second, Grace: 20 * time.Second, AbsoluteMax: 10 * time.Minute},
	CategoryUninstall:  {Base: 15 * time.Second, ActivityExtension: 8 * time.Second, Grace: 10 * time.Second, AbsoluteMax: 3 * time.Minute},
	CategoryList:       {Base: 10 * time.Second, ActivityExtension: 5 * time.Second, Grace: 5 * time.Second, AbsoluteMax: time.Minute},
	CategorySync:       {Base: 60 * time.Second, ActivityExtension: 30 * time.Second, Grace: 30 * time.Second, AbsoluteMax: 15 * time.Minute},
	CategoryBuild:      {Base: 60 * time.Second, ActivityExtension: 30 * time.Second, Grace: 30 * time.Second, AbsoluteMax: 20 * time.Minute},
	CategoryNavigation: {Base: 500 * time.Millisecond, ActivityExtension: 250 * time.Millisecond, Grace: 500 * time.Millisecond, AbsoluteMax: 5 * time.Second},
	CategoryEnvVar:     {Base: 500 * time.Millisecond, ActivityExtension: 250 * time.Millisecond, Grace: 500 * time.Millisecond, AbsoluteMax: 5 * time.Second},
	CategoryQuick:      {Base: 5 * time.Second, ActivityExtension: 2 * time.Second, Grace: 3 * time.Second, AbsoluteMax: 30 * time.Second},
	CategoryUnknown:    {Base: 30 * time.Second, ActivityExtension: 15 * time.Second, Grace: 15 * time.Second, AbsoluteMax: 5 * time.Minute},
}

// Classifier maps literal command text to a category and timeout config.
type Classifier struct {
	debug bool
}

func NewClassifier(debug bool) *Classifier {
	return &Classifier{debug: debug}
}

// Classify matches the command against the rule table; unrecognized
// commands fall back to the generic unknown configuration.
func (c *Classifier) Classify(command string) Classification {
	cmd := trimCommand(command)
	for _, r := range rules {
		if r.re.MatchString(cmd) {
			return Classification{Category: r.category, Manager: r.manager}
		}
	}
	return Classification{Category: CategoryUnknown, Manager: "generic"}
}

// ConfigFor returns the timeout configuration for a command: the
// category's duration tuple combined with the manager's pattern tables.
func (c *Classifier) ConfigFor(command string) (Classification, timeout.Config) {
	cls := c.Classify(command)
	cfg := categoryTimeouts[cls.Category]
	pats, ok := managers[cls.Manager]
	if !ok {
		pats = managers["generic"]
	}
	cfg.ProgressPatterns = pats.progress
	cfg.ErrorPatterns = pats.errors
	cfg.Debug = c.debug
	return cls, cfg
}

// Override derives a configuration from an explicit caller timeout,
// which takes precedence over classification. Sub-second requests get
// smaller derivation fractions; the absolute ceiling is always three
// times the request.
func (c *Classifier) Override(command string, d time.Duration) (Classification, timeout.Config) {
	cls, cfg := c.ConfigFor(command)
	cfg.Base = d
	if d < time.Second {
		cfg.ActivityExtension = d / 2
		cfg.Grace = d
	} else {
		cfg.ActivityExtension = 3 * d / 4
		cfg.Grace = 3 * d / 2
	}
	cfg.AbsoluteMax = 3 * d
	return cls, cfg
}

func trimCommand(s string) string {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return s[i:]
}
