package state

// Schema migrations. Each entry runs once, inside its own transaction.
var migrations = []struct {
	version int
	sql     string
}{
	{1, migrationV1Core},
	{2, migrationV2Quality},
	{3, migrationV3Views},
}

const migrationV1Core = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	working_dir TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS epics (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 0,
	depends_on TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_epics_project ON epics(project_id);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	epic_id TEXT REFERENCES epics(id) ON DELETE CASCADE,
	description TEXT NOT NULL,
	action TEXT NOT NULL DEFAULT '',
	priority INTEGER NOT NULL DEFAULT 0,
	done INTEGER NOT NULL DEFAULT 0,
	depends_on TEXT NOT NULL DEFAULT '[]',
	dependency_type TEXT NOT NULL DEFAULT 'hard',
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL,
	completed_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);
CREATE INDEX IF NOT EXISTS idx_tasks_epic ON tasks(epic_id);
CREATE INDEX IF NOT EXISTS idx_tasks_done ON tasks(project_id, done);

CREATE TABLE IF NOT EXISTS tests (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	category TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	steps TEXT NOT NULL DEFAULT '[]',
	passed INTEGER NOT NULL DEFAULT 0,
	result TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_tests_task ON tests(task_id);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	task_id TEXT,
	type TEXT NOT NULL,
	model TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	created_at DATETIME NOT NULL,
	started_at DATETIME,
	last_heartbeat DATETIME,
	ended_at DATETIME,
	metrics TEXT NOT NULL DEFAULT '{}',
	interruption_reason TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	UNIQUE(project_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_sessions_project_status ON sessions(project_id, status);

CREATE TABLE IF NOT EXISTS parallel_batches (
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	batch_id INTEGER NOT NULL,
	task_ids TEXT NOT NULL DEFAULT '[]',
	can_parallel INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'pending',
	started_at DATETIME,
	completed_at DATETIME,
	PRIMARY KEY (project_id, batch_id)
);

CREATE TABLE IF NOT EXISTS worktrees (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	epic_id TEXT NOT NULL,
	name TEXT NOT NULL,
	path TEXT NOT NULL,
	branch TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	created_at DATETIME NOT NULL,
	merge_commit TEXT NOT NULL DEFAULT '',
	merged_at DATETIME,
	UNIQUE(project_id, epic_id)
);

CREATE TABLE IF NOT EXISTS agent_costs (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	session_id TEXT,
	task_id TEXT,
	model TEXT NOT NULL,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost_cents INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_agent_costs_project ON agent_costs(project_id);

CREATE TABLE IF NOT EXISTS expertise_files (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	domain TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	version INTEGER NOT NULL DEFAULT 1,
	updated_at DATETIME NOT NULL,
	UNIQUE(project_id, domain)
);

CREATE TABLE IF NOT EXISTS expertise_updates (
	id TEXT PRIMARY KEY,
	expertise_id TEXT NOT NULL REFERENCES expertise_files(id) ON DELETE CASCADE,
	session_id TEXT,
	version INTEGER NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_expertise_updates_expertise ON expertise_updates(expertise_id);
`

const migrationV2Quality = `
CREATE TABLE IF NOT EXISTS session_quality_checks (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	project_id TEXT NOT NULL,
	task_id TEXT,
	task_type TEXT NOT NULL DEFAULT 'general',
	model TEXT NOT NULL DEFAULT '',
	success INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	tokens INTEGER NOT NULL DEFAULT 0,
	notes TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_quality_checks_type_model ON session_quality_checks(task_type, model);
CREATE INDEX IF NOT EXISTS idx_quality_checks_project ON session_quality_checks(project_id);

CREATE TABLE IF NOT EXISTS session_deep_reviews (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	verdict TEXT NOT NULL DEFAULT '',
	findings TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS prompt_improvement_analyses (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	scope TEXT NOT NULL DEFAULT '',
	analysis TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS prompt_proposals (
	id TEXT PRIMARY KEY,
	analysis_id TEXT NOT NULL REFERENCES prompt_improvement_analyses(id) ON DELETE CASCADE,
	proposal TEXT NOT NULL DEFAULT '',
	accepted INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);
`

const migrationV3Views = `
CREATE VIEW IF NOT EXISTS v_progress AS
SELECT
	project_id,
	COUNT(*) AS total_tasks,
	SUM(done) AS done_tasks,
	CAST(SUM(done) AS REAL) / COUNT(*) AS completion
FROM tasks
GROUP BY project_id;

CREATE VIEW IF NOT EXISTS v_epic_progress AS
SELECT
	t.project_id,
	t.epic_id,
	e.name AS epic_name,
	COUNT(*) AS total_tasks,
	SUM(t.done) AS done_tasks
FROM tasks t
LEFT JOIN epics e ON e.id = t.epic_id
GROUP BY t.project_id, t.epic_id;

CREATE VIEW IF NOT EXISTS v_project_costs AS
SELECT
	project_id,
	model,
	COUNT(*) AS entries,
	SUM(input_tokens) AS input_tokens,
	SUM(output_tokens) AS output_tokens,
	SUM(cost_cents) AS cost_cents
FROM agent_costs
GROUP BY project_id, model;

CREATE VIEW IF NOT EXISTS v_project_quality AS
SELECT
	project_id,
	task_type,
	model,
	COUNT(*) AS samples,
	CAST(SUM(success) AS REAL) / COUNT(*) AS success_rate
FROM session_quality_checks
GROUP BY project_id, task_type, model;

CREATE VIEW IF NOT EXISTS v_recent_quality_issues AS
SELECT id, session_id, project_id, task_id, task_type, model, notes, created_at
FROM session_quality_checks
WHERE success = 0
ORDER BY created_at DESC
LIMIT 50;
`
