package db

const (
	UpsertPrinter = `
		INSERT INTO printers (printer_id, store_id, name, model, type, connection_type, supported_sizes,
			color_support, duplex_support, status, paper_capacity, paper_available, ink_levels,
			temperature, humidity, current_job_id, total_pages, pages_today, last_maintenance, last_jam, deleted, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(printer_id) DO UPDATE SET
			store_id = excluded.store_id, name = excluded.name, model = excluded.model,
			type = excluded.type, connection_type = excluded.connection_type,
			supported_sizes = excluded.supported_sizes, color_support = excluded.color_support,
			duplex_support = excluded.duplex_support, status = excluded.status,
			paper_capacity = excluded.paper_capacity, paper_available = excluded.paper_available,
			ink_levels = excluded.ink_levels, temperature = excluded.temperature,
			humidity = excluded.humidity, current_job_id = excluded.current_job_id,
			total_pages = excluded.total_pages, pages_today = excluded.pages_today,
			last_maintenance = excluded.last_maintenance, last_jam = excluded.last_jam,
			deleted = excluded.deleted, updated_at = CURRENT_TIMESTAMP
	`

	ListLivePrinters = `
		SELECT printer_id, store_id, name, model, type, connection_type, supported_sizes,
			color_support, duplex_support, status, paper_capacity, paper_available, ink_levels,
			temperature, humidity, current_job_id, total_pages, pages_today, last_maintenance, last_jam
		FROM printers WHERE deleted = 0 ORDER BY printer_id ASC
	`

	DeleteQueueEntries = `DELETE FROM queue_entries WHERE printer_id = ?`

	InsertQueueEntry = `
		INSERT INTO queue_entries (printer_id, job_id, priority, position, enqueued_at)
		VALUES (?, ?, ?, ?, ?)
	`

	ListQueueEntries = `
		SELECT job_id, priority, position, enqueued_at
		FROM queue_entries WHERE printer_id = ? ORDER BY position ASC
	`
)

const (
	UpsertJob = `
		INSERT INTO jobs (order_id, user_id, store_id, pages, copies, color_mode, mode_spec, paper_size,
			duplex, priority, binding_required, status, printer_id, retry_count, binding_done,
			error_message, created_at, actual_start, estimated_end, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(order_id) DO UPDATE SET
			status = excluded.status, printer_id = excluded.printer_id,
			retry_count = excluded.retry_count, binding_done = excluded.binding_done,
			error_message = excluded.error_message, actual_start = excluded.actual_start,
			estimated_end = excluded.estimated_end, updated_at = CURRENT_TIMESTAMP
	`

	ListJobs = `
		SELECT order_id, user_id, store_id, pages, copies, color_mode, mode_spec, paper_size,
			duplex, priority, binding_required, status, printer_id, retry_count, binding_done,
			error_message, created_at, actual_start, estimated_end
		FROM jobs ORDER BY created_at ASC
	`
)

const (
	UpsertAlert = `
		INSERT INTO alerts (alert_id, alert_type, severity, status, printer_id, order_id, message,
			action_taken, created_at, updated_at, muted_until)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(alert_id) DO UPDATE SET
			severity = excluded.severity, status = excluded.status, message = excluded.message,
			action_taken = excluded.action_taken, updated_at = excluded.updated_at,
			muted_until = excluded.muted_until
	`

	ListAlerts = `
		SELECT alert_id, alert_type, severity, status, printer_id, order_id, message,
			action_taken, created_at, updated_at, muted_until
		FROM alerts ORDER BY alert_id ASC
	`
)

const (
	InsertActivity = `
		INSERT INTO activity_log (actor, action, entity_type, entity_id, details)
		VALUES (?, ?, ?, ?, ?)
	`

	ListActivity = `
		SELECT id, actor, action, entity_type, entity_id, details, created_at
		FROM activity_log ORDER BY id DESC LIMIT ? OFFSET ?
	`

	ListActivityByEntity = `
		SELECT id, actor, action, entity_type, entity_id, details, created_at
		FROM activity_log WHERE entity_type = ? AND entity_id = ?
		ORDER BY id ASC LIMIT ?
	`
)

const (
	InsertSupervisor = `
		INSERT INTO supervisors (admin_id, store_id, username, password_hash)
		VALUES (?, ?, ?, ?)
	`

	GetSupervisorByUsername = `
		SELECT admin_id, store_id, username, password_hash, created_at, last_login
		FROM supervisors WHERE username = ?
	`

	UpdateSupervisorLogin = `
		UPDATE supervisors SET last_login = CURRENT_TIMESTAMP WHERE admin_id = ?
	`

	CountSupervisors = `SELECT COUNT(*) FROM supervisors`
)
