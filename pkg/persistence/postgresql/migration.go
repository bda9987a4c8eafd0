package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflows and their trigger and action rows
			CREATE TABLE workflows (
				id TEXT PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				entity_type VARCHAR(100) NOT NULL,
				trigger_logic VARCHAR(3) NOT NULL CHECK (trigger_logic IN ('AND', 'OR')),
				status VARCHAR(20) NOT NULL CHECK (status IN ('active', 'inactive')),
				created_by VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_entity_status ON workflows(entity_type, status);
			CREATE INDEX idx_workflows_created_at ON workflows(created_at);

			CREATE TABLE workflow_triggers (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				trigger_type VARCHAR(50) NOT NULL,
				conditions JSONB NOT NULL DEFAULT '{}',
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_triggers_workflow_id ON workflow_triggers(workflow_id);

			CREATE TABLE workflow_actions (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				action_type VARCHAR(50) NOT NULL,
				action_config JSONB NOT NULL DEFAULT '{}',
				condition_expression TEXT,
				delay_minutes INTEGER NOT NULL DEFAULT 0 CHECK (delay_minutes >= 0),
				sort_order INTEGER NOT NULL DEFAULT 0,
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_actions_workflow_sort ON workflow_actions(workflow_id, sort_order);
		`,
		2: `
			-- Execution audit trail
			CREATE TABLE workflow_executions (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				entity_type VARCHAR(100) NOT NULL,
				entity_id TEXT NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('running', 'completed', 'failed')),
				triggered_by TEXT,
				execution_log JSONB NOT NULL DEFAULT '[]',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				error_message TEXT,
				error_stack TEXT
			);

			CREATE INDEX idx_workflow_executions_workflow_started ON workflow_executions(workflow_id, started_at DESC);
			CREATE INDEX idx_workflow_executions_entity ON workflow_executions(entity_type, entity_id);
		`,
		3: `
			-- Cron schedules
			CREATE TABLE workflow_schedules (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				cron_expression VARCHAR(100) NOT NULL,
				last_run_at TIMESTAMP WITH TIME ZONE,
				next_run_at TIMESTAMP WITH TIME ZONE,
				is_active BOOLEAN NOT NULL DEFAULT TRUE
			);

			CREATE INDEX idx_workflow_schedules_active_next ON workflow_schedules(is_active, next_run_at);
		`,
		4: `
			-- Users, activity log and the entity documents targeted by update_field
			CREATE TABLE users (
				id TEXT PRIMARY KEY,
				name VARCHAR(255) NOT NULL DEFAULT '',
				email VARCHAR(255) NOT NULL DEFAULT '',
				role VARCHAR(50) NOT NULL
			);

			CREATE INDEX idx_users_role ON users(role);

			CREATE TABLE activity_logs (
				id TEXT PRIMARY KEY,
				entity_type VARCHAR(100) NOT NULL,
				entity_id TEXT NOT NULL,
				action VARCHAR(255) NOT NULL,
				details TEXT NOT NULL DEFAULT '',
				user_id TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_activity_logs_entity ON activity_logs(entity_type, entity_id, created_at);

			CREATE TABLE entities (
				entity_type VARCHAR(100) NOT NULL,
				id TEXT NOT NULL,
				data JSONB NOT NULL DEFAULT '{}',
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (entity_type, id)
			);
		`,
	}
}
