package pattern

// Default progress/error pattern sets, one per package manager. Progress
// patterns mark confirmed forward motion and reset the full timeout
// window; error patterns mark definitive failure and terminate at once.

var pipProgressPatterns = []string{
	`Collecting .+`,
	`Downloading .+`,
	`Building wheels? for .+`,
	`Installing collected packages`,
	`Successfully installed`,
	`Requirement already satisfied`,
	`Using cached .+`,
}

var pipErrorPatterns = []string{
	`ERROR: .+`,
	`error: subprocess-exited-with-error`,
	`No matching distribution found`,
	`Could not find a version that satisfies`,
}

var uvProgressPatterns = []string{
	`Resolved \d+ packages?`,
	`Prepared \d+ packages?`,
	`Downloaded \d+ packages?`,
	`Installed \d+ packages?`,
	`Uninstalled \d+ packages?`,
	`Audited \d+ packages?`,
	`Creating virtual environment`,
	// uv's spinner glyphs still count as forward motion.
	`[⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏]`,
}

var uvErrorPatterns = []string{
	`No solution found`,
	`error: .+`,
	`× .+`,
}

var npmProgressPatterns = []string{
	`added \d+ packages?`,
	`removed \d+ packages?`,
	`changed \d+ packages?`,
	`npm (warn|WARN) .+`,
	`packages are looking for funding`,
	`(?i)fetching .+`,
}

var npmErrorPatterns = []string{
	`npm (error|ERR!) .+`,
	`ETIMEDOUT|ECONNREFUSED|ENOTFOUND|EACCES`,
	`code E\d{3}`,
}

var poetryProgressPatterns = []string{
	`Resolving dependencies`,
	`Installing .+`,
	`Updating .+`,
	`Writing lock file`,
	`Package operations: .+`,
}

var poetryErrorPatterns = []string{
	`SolverProblemError`,
	`Unable to find installable candidate`,
	`\[Errno \d+\]`,
}

var mavenProgressPatterns = []string{
	`\[INFO\] Download(ing|ed) from`,
	`\[INFO\] Building .+`,
	`\[INFO\] --- .+ ---`,
}

var mavenErrorPatterns = []string{
	`\[ERROR\] .+`,
	`BUILD FAILURE`,
}

var gradleProgressPatterns = []string{
	`> Task :.+`,
	`Download(ing|ed) https?://`,
	`BUILD SUCCESSFUL`,
}

var gradleErrorPatterns = []string{
	`FAILURE: Build failed`,
	`BUILD FAILED`,
	`Could not resolve .+`,
}

// Generic fallback for unrecognized commands: conservative progress cues,
// unmistakable error signatures only.
var genericProgressPatterns = []string{
	`(?i)downloading`,
	`(?i)installing`,
	`(?i)building`,
	`\d{1,3}%`,
}

var genericErrorPatterns = []string{
	`(?m)^ERROR[: ]`,
	`Traceback \(most recent call last\)`,
	`command not found`,
	`(?i)fatal error`,
	`Permission denied`,
}

// managerPatterns groups one package manager's pattern pair.
type managerPatterns struct {
	progress []string
	errors   []string
}

var managers = map[string]managerPatterns{
	"pip":     {pipProgressPatterns, pipErrorPatterns},
	"uv":      {uvProgressPatterns, uvErrorPatterns},
	"poetry":  {poetryProgressPatterns, poetryErrorPatterns},
	"pipenv":  {pipProgressPatterns, pipErrorPatterns},
	"npm":     {npmProgressPatterns, npmErrorPatterns},
	"yarn":    {npmProgressPatterns, npmErrorPatterns},
	"pnpm":    {npmProgressPatterns, npmErrorPatterns},
	"maven":   {mavenProgressPatterns, mavenErrorPatterns},
	"gradle":  {gradleProgressPatterns, gradleErrorPatterns},
	"generic": {genericProgressPatterns, genericErrorPatterns},
}
