package storage

// Model is one table definition recreated by CreateAll.
type Model struct {
	Table  string
	Schema string
}

// Models lists every table in creation order. Tables referenced by a foreign
// key come before the tables referencing them.
var Models = []Model{
	{
		Table: "users",
		Schema: `CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			name TEXT,
			picture TEXT,
			google_sub TEXT UNIQUE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	},
	{
		Table: "products",
		Schema: `CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (owner_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
	},
	{
		Table: "interviews",
		Schema: `CREATE TABLE IF NOT EXISTS interviews (
			id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL,
			title TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'draft',
			created_at DATETIME NOT NULL,
			FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE
		)`,
	},
	{
		Table: "invitations",
		Schema: `CREATE TABLE IF NOT EXISTS invitations (
			id TEXT PRIMARY KEY,
			interview_id TEXT NOT NULL,
			email TEXT NOT NULL,
			sent_at DATETIME,
			created_at DATETIME NOT NULL
		)`,
	},
}
