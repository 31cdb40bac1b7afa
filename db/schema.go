package db

// schema is applied in a single transaction on every Open. Table and column
// names, CHECK constraints and cascades match existing fluxa data files.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		metadata TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id INTEGER NOT NULL,
		role TEXT NOT NULL CHECK(role IN ('user', 'assistant', 'system', 'tool')),
		content TEXT NOT NULL,
		tokens INTEGER DEFAULT 0,
		model TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		metadata TEXT,
		FOREIGN KEY (conversation_id) REFERENCES conversations (id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT,
		status TEXT NOT NULL CHECK(status IN ('pending', 'in_progress', 'completed', 'failed')),
		priority INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMP,
		metadata TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS tool_executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id INTEGER,
		tool_name TEXT NOT NULL,
		parameters TEXT,
		result TEXT,
		status TEXT NOT NULL CHECK(status IN ('started', 'success', 'error')),
		duration_ms REAL,
		error_message TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (message_id) REFERENCES messages (id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id INTEGER NOT NULL,
		file_path TEXT NOT NULL,
		file_name TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		mime_type TEXT NOT NULL,
		width INTEGER,
		height INTEGER,
		hash TEXT UNIQUE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		metadata TEXT,
		FOREIGN KEY (message_id) REFERENCES messages (id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS vision_analyses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		image_id INTEGER NOT NULL,
		message_id INTEGER,
		model TEXT NOT NULL,
		description TEXT,
		detected_objects TEXT,
		extracted_text TEXT,
		tags TEXT,
		confidence REAL CHECK(confidence >= 0 AND confidence <= 1),
		processing_time REAL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		metadata TEXT,
		FOREIGN KEY (image_id) REFERENCES images (id) ON DELETE CASCADE,
		FOREIGN KEY (message_id) REFERENCES messages (id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS context (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		category TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
	`CREATE INDEX IF NOT EXISTS idx_tool_executions_message ON tool_executions(message_id)`,
	`CREATE INDEX IF NOT EXISTS idx_images_message ON images(message_id)`,
	`CREATE INDEX IF NOT EXISTS idx_images_hash ON images(hash)`,
	`CREATE INDEX IF NOT EXISTS idx_images_created ON images(created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_vision_analyses_image ON vision_analyses(image_id)`,
	`CREATE INDEX IF NOT EXISTS idx_vision_analyses_message ON vision_analyses(message_id)`,
	`CREATE INDEX IF NOT EXISTS idx_vision_analyses_created ON vision_analyses(created_at DESC)`,
}

// tables lists every table the schema creates, in dependency order
var tables = []string{
	"conversations",
	"messages",
	"tasks",
	"tool_executions",
	"images",
	"vision_analyses",
	"context",
}

// Tables returns the table names in dependency order
func Tables() []string {
	return append([]string(nil), tables...)
}
