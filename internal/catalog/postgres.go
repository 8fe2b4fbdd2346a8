package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/xnovu/notification-engine/pkg/database"
	engineerrors "github.com/xnovu/notification-engine/pkg/errors"
)

// PostgresRepository implements Repository against the Catalog DB. Every
// query binds tenant as a parameter ($N) rather than relying on a session
// variable — cross-tenant reads must be impossible to construct, not merely
// conventionally avoided.
type PostgresRepository struct {
	db *database.PostgresDB
}

// NewPostgresRepository wraps an already-connected Catalog DB handle.
func NewPostgresRepository(db *database.PostgresDB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) sqlx() *sqlx.DB { return r.db.DB }

type ruleRow struct {
	ID                     string         `db:"id"`
	Tenant                 string         `db:"tenant"`
	BusinessID             sql.NullString `db:"business_id"`
	Name                   string         `db:"name"`
	NotificationWorkflowID string         `db:"notification_workflow_id"`
	TriggerType            string         `db:"trigger_type"`
	TriggerConfig          []byte         `db:"trigger_config"`
	RulePayload            []byte         `db:"rule_payload"`
	PublishStatus          string         `db:"publish_status"`
	Deactivated            bool           `db:"deactivated"`
	CreatedAt              time.Time      `db:"created_at"`
	UpdatedAt              time.Time      `db:"updated_at"`

	WorkflowID              sql.NullString `db:"wf_id"`
	WorkflowKey             sql.NullString `db:"wf_workflow_key"`
	WorkflowName            sql.NullString `db:"wf_name"`
	WorkflowType            sql.NullString `db:"wf_workflow_type"`
	WorkflowDefaultChannels []byte         `db:"wf_default_channels"`
	WorkflowPublishStatus   sql.NullString `db:"wf_publish_status"`
	WorkflowDeactivated     sql.NullBool   `db:"wf_deactivated"`
}

func (row *ruleRow) toDomain() (*NotificationRule, error) {
	rule := &NotificationRule{
		ID:                     row.ID,
		Tenant:                 row.Tenant,
		BusinessID:             row.BusinessID.String,
		Name:                   row.Name,
		NotificationWorkflowID: row.NotificationWorkflowID,
		TriggerType:            TriggerType(row.TriggerType),
		PublishStatus:          PublishStatus(row.PublishStatus),
		Deactivated:            row.Deactivated,
		CreatedAt:              row.CreatedAt,
		UpdatedAt:              row.UpdatedAt,
	}

	if len(row.TriggerConfig) > 0 {
		var cfg CronTrigger
		if err := json.Unmarshal(row.TriggerConfig, &cfg); err != nil {
			return nil, fmt.Errorf("decode trigger_config: %w", err)
		}
		rule.TriggerConfig = &cfg
	}
	if len(row.RulePayload) > 0 {
		if err := json.Unmarshal(row.RulePayload, &rule.RulePayload); err != nil {
			return nil, fmt.Errorf("decode rule_payload: %w", err)
		}
	}

	if row.WorkflowID.Valid {
		wf := &WorkflowDefinition{
			ID:            row.WorkflowID.String,
			WorkflowKey:   row.WorkflowKey.String,
			Name:          row.WorkflowName.String,
			WorkflowType:  WorkflowType(row.WorkflowType.String),
			PublishStatus: PublishStatus(row.WorkflowPublishStatus.String),
			Deactivated:   row.WorkflowDeactivated.Bool,
		}
		if len(row.WorkflowDefaultChannels) > 0 {
			var channels []string
			if err := json.Unmarshal(row.WorkflowDefaultChannels, &channels); err != nil {
				return nil, fmt.Errorf("decode default_channels: %w", err)
			}
			for _, c := range channels {
				wf.DefaultChannels = append(wf.DefaultChannels, Channel(c))
			}
		}
		rule.Workflow = wf
	}

	return rule, nil
}

const ruleSelectColumns = `
	r.id, r.tenant, r.business_id, r.name, r.notification_workflow_id,
	r.trigger_type, r.trigger_config, r.rule_payload, r.publish_status, r.deactivated,
	r.created_at, r.updated_at,
	w.id AS wf_id, w.workflow_key AS wf_workflow_key, w.name AS wf_name,
	w.workflow_type AS wf_workflow_type, w.default_channels AS wf_default_channels,
	w.publish_status AS wf_publish_status, w.deactivated AS wf_deactivated
`

// GetActiveCronRules returns rules joined to their workflow definitions,
// filtered at the DB to published/non-deactivated CRON rules with an
// eligible workflow. CRON parseability is validated by the caller.
func (r *PostgresRepository) GetActiveCronRules(ctx context.Context, tenant string) ([]*NotificationRule, error) {
	query := `
		SELECT ` + ruleSelectColumns + `
		FROM notification_rule r
		LEFT JOIN notification_workflow w ON w.id = r.notification_workflow_id
			AND (w.tenant IS NULL OR w.tenant = r.tenant)
		WHERE r.trigger_type = 'CRON'
			AND r.publish_status = 'PUBLISH' AND r.deactivated = false
			AND w.publish_status = 'PUBLISH' AND w.deactivated = false
			AND ($1 = '' OR r.tenant = $1)
		ORDER BY r.id ASC`

	var rows []ruleRow
	if err := r.sqlx().SelectContext(ctx, &rows, query, tenant); err != nil {
		return nil, engineerrors.ErrCatalogUnavailable(err)
	}

	rules := make([]*NotificationRule, 0, len(rows))
	for i := range rows {
		rule, err := rows[i].toDomain()
		if err != nil {
			return nil, engineerrors.Wrap(err, engineerrors.ErrCodeCatalogUnavailable, "decode rule row")
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// GetRule fetches a single rule, tenant-scoped.
func (r *PostgresRepository) GetRule(ctx context.Context, id, tenant string) (*NotificationRule, error) {
	query := `
		SELECT ` + ruleSelectColumns + `
		FROM notification_rule r
		LEFT JOIN notification_workflow w ON w.id = r.notification_workflow_id
			AND (w.tenant IS NULL OR w.tenant = r.tenant)
		WHERE r.id = $1 AND r.tenant = $2`

	var row ruleRow
	err := r.sqlx().GetContext(ctx, &row, query, id, tenant)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, engineerrors.ErrCatalogUnavailable(err)
	}
	return row.toDomain()
}

type workflowRow struct {
	ID              string         `db:"id"`
	Tenant          sql.NullString `db:"tenant"`
	WorkflowKey     string         `db:"workflow_key"`
	Name            string         `db:"name"`
	Description     sql.NullString `db:"description"`
	WorkflowType    string         `db:"workflow_type"`
	DefaultChannels []byte         `db:"default_channels"`
	TemplateRefs    []byte         `db:"template_overrides"`
	PayloadSchema   []byte         `db:"payload_schema"`
	PublishStatus   string         `db:"publish_status"`
	Deactivated     bool           `db:"deactivated"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (row *workflowRow) toDomain() (*WorkflowDefinition, error) {
	wf := &WorkflowDefinition{
		ID:            row.ID,
		WorkflowKey:   row.WorkflowKey,
		Name:          row.Name,
		Description:   row.Description.String,
		WorkflowType:  WorkflowType(row.WorkflowType),
		PublishStatus: PublishStatus(row.PublishStatus),
		Deactivated:   row.Deactivated,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
	if row.Tenant.Valid {
		t := row.Tenant.String
		wf.Tenant = &t
	}
	if len(row.DefaultChannels) > 0 {
		var channels []string
		if err := json.Unmarshal(row.DefaultChannels, &channels); err != nil {
			return nil, fmt.Errorf("decode default_channels: %w", err)
		}
		for _, c := range channels {
			wf.DefaultChannels = append(wf.DefaultChannels, Channel(c))
		}
	}
	if len(row.TemplateRefs) > 0 {
		var refs map[string]string
		if err := json.Unmarshal(row.TemplateRefs, &refs); err != nil {
			return nil, fmt.Errorf("decode template_overrides: %w", err)
		}
		wf.TemplateRefs = make(map[Channel]string, len(refs))
		for k, v := range refs {
			wf.TemplateRefs[Channel(k)] = v
		}
	}
	if len(row.PayloadSchema) > 0 {
		if err := json.Unmarshal(row.PayloadSchema, &wf.PayloadSchema); err != nil {
			return nil, fmt.Errorf("decode payload_schema: %w", err)
		}
	}
	return wf, nil
}

const workflowSelectColumns = `id, tenant, workflow_key, name, description, workflow_type,
	default_channels, template_overrides, payload_schema, publish_status, deactivated,
	created_at, updated_at`

// GetWorkflowDefinition tries the tenant-scoped definition first, then the
// global (nil-tenant) one, returning the first eligible match (§4.1). Both
// candidate rows are fetched (not just the preferred one) so an ineligible
// tenant-scoped row falls back to an eligible global row, rather than the
// lookup failing outright.
func (r *PostgresRepository) GetWorkflowDefinition(ctx context.Context, id, tenant string) (*WorkflowDefinition, error) {
	query := `
		SELECT ` + workflowSelectColumns + `
		FROM notification_workflow
		WHERE id = $1 AND (tenant = $2 OR tenant IS NULL)
		ORDER BY tenant NULLS LAST`

	var rows []workflowRow
	if err := r.sqlx().SelectContext(ctx, &rows, query, id, tenant); err != nil {
		return nil, engineerrors.ErrCatalogUnavailable(err)
	}

	for _, row := range rows {
		wf, err := row.toDomain()
		if err != nil {
			return nil, engineerrors.Wrap(err, engineerrors.ErrCodeCatalogUnavailable, "decode workflow row")
		}
		if wf.Eligible() {
			return wf, nil
		}
	}
	return nil, nil
}

type notificationRow struct {
	ID                     string         `db:"id"`
	Tenant                 string         `db:"tenant"`
	BusinessID             sql.NullString `db:"business_id"`
	Name                   sql.NullString `db:"name"`
	Description            sql.NullString `db:"description"`
	Payload                []byte         `db:"payload"`
	Recipients             pq.StringArray `db:"recipients"`
	NotificationWorkflowID string         `db:"notification_workflow_id"`
	NotificationRuleID     sql.NullString `db:"notification_rule_id"`
	Channels               []byte         `db:"channels"`
	Overrides              []byte         `db:"overrides"`
	PublishStatus          string         `db:"publish_status"`
	Deactivated            bool           `db:"deactivated"`
	NotificationStatus     string         `db:"notification_status"`
	ScheduledFor           sql.NullTime   `db:"scheduled_for"`
	TransactionID          sql.NullString `db:"transaction_id"`
	ErrorDetails           []byte         `db:"error_details"`
	ProcessedAt            sql.NullTime   `db:"processed_at"`
	CreatedAt              time.Time      `db:"created_at"`
	UpdatedAt              time.Time      `db:"updated_at"`
}

func (row *notificationRow) toDomain() (*NotificationRecord, error) {
	rec := &NotificationRecord{
		ID:                     row.ID,
		Tenant:                 row.Tenant,
		BusinessID:             row.BusinessID.String,
		Name:                   row.Name.String,
		Description:            row.Description.String,
		Recipients:             append([]string{}, row.Recipients...),
		NotificationWorkflowID: row.NotificationWorkflowID,
		PublishStatus:          PublishStatus(row.PublishStatus),
		Deactivated:            row.Deactivated,
		NotificationStatus:     NotificationStatus(row.NotificationStatus),
		CreatedAt:              row.CreatedAt,
		UpdatedAt:              row.UpdatedAt,
	}
	if row.NotificationRuleID.Valid {
		id := row.NotificationRuleID.String
		rec.NotificationRuleID = &id
	}
	if row.ScheduledFor.Valid {
		t := row.ScheduledFor.Time
		rec.ScheduledFor = &t
	}
	if row.TransactionID.Valid {
		tx := row.TransactionID.String
		rec.TransactionID = &tx
	}
	if row.ProcessedAt.Valid {
		t := row.ProcessedAt.Time
		rec.ProcessedAt = &t
	}
	if len(row.Payload) > 0 {
		if err := json.Unmarshal(row.Payload, &rec.Payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
	}
	if len(row.Channels) > 0 {
		var channels []string
		if err := json.Unmarshal(row.Channels, &channels); err != nil {
			return nil, fmt.Errorf("decode channels: %w", err)
		}
		for _, c := range channels {
			rec.Channels = append(rec.Channels, Channel(c))
		}
	}
	if len(row.Overrides) > 0 {
		if err := json.Unmarshal(row.Overrides, &rec.Overrides); err != nil {
			return nil, fmt.Errorf("decode overrides: %w", err)
		}
	}
	if len(row.ErrorDetails) > 0 {
		var details ErrorDetails
		if err := json.Unmarshal(row.ErrorDetails, &details); err != nil {
			return nil, fmt.Errorf("decode error_details: %w", err)
		}
		rec.ErrorDetails = &details
	}
	return rec, nil
}

const notificationSelectColumns = `id, tenant, business_id, name, description, payload, recipients,
	notification_workflow_id, notification_rule_id, channels, overrides, publish_status, deactivated,
	notification_status, scheduled_for, transaction_id, error_details, processed_at, created_at, updated_at`

// GetNotification fetches a single notification record, tenant-scoped.
func (r *PostgresRepository) GetNotification(ctx context.Context, id, tenant string) (*NotificationRecord, error) {
	query := `SELECT ` + notificationSelectColumns + ` FROM notification WHERE id = $1 AND tenant = $2`

	var row notificationRow
	err := r.sqlx().GetContext(ctx, &row, query, id, tenant)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, engineerrors.ErrCatalogUnavailable(err)
	}
	return row.toDomain()
}

// GetNotificationByID fetches a notification record by its globally unique
// id, with no tenant predicate. Used only by the notification-trigger
// activity, whose schedule-store input carries the notification id alone.
func (r *PostgresRepository) GetNotificationByID(ctx context.Context, id string) (*NotificationRecord, error) {
	query := `SELECT ` + notificationSelectColumns + ` FROM notification WHERE id = $1`

	var row notificationRow
	err := r.sqlx().GetContext(ctx, &row, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, engineerrors.ErrCatalogUnavailable(err)
	}
	return row.toDomain()
}

// PollNotifications implements the §4.3 contract: tenant scoping, status
// filtering, scheduled_for filtering per mode, updated_after, stable
// ordering, capped batch size, all as parameter-bound predicates.
func (r *PostgresRepository) PollNotifications(ctx context.Context, opts PollOptions) ([]*NotificationRecord, error) {
	if opts.BatchSize <= 0 || opts.BatchSize > 1000 {
		return nil, engineerrors.ErrValidation("batchSize must be in 1..1000")
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + notificationSelectColumns + ` FROM notification WHERE publish_status = 'PUBLISH' AND deactivated = false`)
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.Tenant != "" {
		sb.WriteString(fmt.Sprintf(" AND tenant = %s", arg(opts.Tenant)))
	}

	if len(opts.StatusIn) > 0 {
		placeholders := make([]string, len(opts.StatusIn))
		for i, s := range opts.StatusIn {
			placeholders[i] = arg(string(s))
		}
		sb.WriteString(fmt.Sprintf(" AND notification_status IN (%s)", strings.Join(placeholders, ", ")))
	} else if !opts.IncludeProcessed {
		sb.WriteString(fmt.Sprintf(" AND notification_status IN (%s, %s)", arg(string(StatusPending)), arg(string(StatusFailed))))
	}

	switch opts.ScheduledMode {
	case ScheduledEligibleNow, "":
		sb.WriteString(fmt.Sprintf(" AND (scheduled_for IS NULL OR scheduled_for <= %s)", arg(time.Now().UTC())))
	case ScheduledOnly:
		sb.WriteString(fmt.Sprintf(" AND scheduled_for IS NOT NULL AND scheduled_for <= %s", arg(time.Now().UTC())))
	case ScheduledAny:
		// no additional predicate
	}

	if opts.UpdatedAfter != nil {
		sb.WriteString(fmt.Sprintf(" AND updated_at > %s", arg(*opts.UpdatedAfter)))
	}

	sb.WriteString(" ORDER BY updated_at ASC, id ASC")
	sb.WriteString(fmt.Sprintf(" LIMIT %s", arg(opts.BatchSize)))

	var rows []notificationRow
	if err := r.sqlx().SelectContext(ctx, &rows, sb.String(), args...); err != nil {
		return nil, engineerrors.ErrCatalogUnavailable(err)
	}

	records := make([]*NotificationRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toDomain()
		if err != nil {
			return nil, engineerrors.Wrap(err, engineerrors.ErrCodeCatalogUnavailable, "decode notification row")
		}
		records = append(records, rec)
	}
	return records, nil
}

// CreateNotification inserts a new notification record.
func (r *PostgresRepository) CreateNotification(ctx context.Context, record *NotificationRecord) (*NotificationRecord, error) {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if len(record.Recipients) == 0 {
		return nil, engineerrors.New(engineerrors.ErrCodeNoRecipients, "notification requires at least one recipient")
	}
	now := time.Now().UTC()
	record.CreatedAt, record.UpdatedAt = now, now
	if record.NotificationStatus == "" {
		record.NotificationStatus = StatusPending
	}
	if record.PublishStatus == "" {
		record.PublishStatus = PublishPublish
	}

	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return nil, engineerrors.Wrap(err, engineerrors.ErrCodeValidation, "encode payload")
	}
	channels := make([]string, len(record.Channels))
	for i, c := range record.Channels {
		channels[i] = string(c)
	}
	channelsJSON, _ := json.Marshal(channels)
	overridesJSON, _ := json.Marshal(record.Overrides)

	query := `
		INSERT INTO notification (
			id, tenant, business_id, name, description, payload, recipients,
			notification_workflow_id, notification_rule_id, channels, overrides,
			publish_status, deactivated, notification_status, scheduled_for,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)`

	_, err = r.sqlx().ExecContext(ctx, query,
		record.ID, record.Tenant, record.BusinessID, record.Name, record.Description,
		payload, pq.StringArray(record.Recipients), record.NotificationWorkflowID,
		record.NotificationRuleID, channelsJSON, overridesJSON,
		record.PublishStatus, record.Deactivated, record.NotificationStatus, record.ScheduledFor,
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return nil, engineerrors.Wrap(err, engineerrors.ErrCodeCatalogUnavailable, "insert notification")
	}
	return record, nil
}

// UpdateNotificationStatus performs the at-most-once admission gate: the
// UPDATE's WHERE clause checks both id/tenant and the allowed prior states,
// so exactly one concurrent caller observes rows_affected = 1.
func (r *PostgresRepository) UpdateNotificationStatus(ctx context.Context, id, tenant string, newStatus NotificationStatus, update StatusUpdate) (bool, error) {
	var sb strings.Builder
	sb.WriteString("UPDATE notification SET notification_status = $1, updated_at = $2")
	args := []interface{}{string(newStatus), time.Now().UTC()}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if update.ErrorDetails != nil {
		b, err := json.Marshal(update.ErrorDetails)
		if err != nil {
			return false, engineerrors.Wrap(err, engineerrors.ErrCodeValidation, "encode error_details")
		}
		sb.WriteString(fmt.Sprintf(", error_details = %s", arg(b)))
	}
	if update.TransactionID != nil {
		sb.WriteString(fmt.Sprintf(", transaction_id = %s", arg(*update.TransactionID)))
	}
	if newStatus == StatusSent || newStatus == StatusFailed || newStatus == StatusRetracted {
		sb.WriteString(fmt.Sprintf(", processed_at = %s", arg(time.Now().UTC())))
	}

	sb.WriteString(fmt.Sprintf(" WHERE id = %s AND tenant = %s", arg(id), arg(tenant)))
	if len(update.PriorStates) > 0 {
		placeholders := make([]string, len(update.PriorStates))
		for i, s := range update.PriorStates {
			placeholders[i] = arg(string(s))
		}
		sb.WriteString(fmt.Sprintf(" AND notification_status IN (%s)", strings.Join(placeholders, ", ")))
	}

	result, err := r.sqlx().ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return false, engineerrors.ErrCatalogUnavailable(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, engineerrors.ErrCatalogUnavailable(err)
	}
	return affected > 0, nil
}

// GetLastRuleUpdate returns the max updated_at across CRON rules.
func (r *PostgresRepository) GetLastRuleUpdate(ctx context.Context, tenant string) (time.Time, error) {
	query := `SELECT COALESCE(MAX(updated_at), to_timestamp(0)) FROM notification_rule
		WHERE trigger_type = 'CRON' AND ($1 = '' OR tenant = $1)`

	var ts time.Time
	if err := r.sqlx().GetContext(ctx, &ts, query, tenant); err != nil {
		return time.Time{}, engineerrors.ErrCatalogUnavailable(err)
	}
	return ts, nil
}

type templateRow struct {
	ID            string         `db:"id"`
	Tenant        sql.NullString `db:"tenant"`
	TemplateKey   string         `db:"template_key"`
	Name          string         `db:"name"`
	SubjectTmpl   sql.NullString `db:"subject_template"`
	BodyTmpl      string         `db:"body_template"`
	ChannelType   string         `db:"channel_type"`
	Variables     []byte         `db:"variables_description"`
	PublishStatus string         `db:"publish_status"`
	Deactivated   bool           `db:"deactivated"`
}

// GetTemplate resolves a template by key, preferring a tenant-scoped row
// over the global one.
func (r *PostgresRepository) GetTemplate(ctx context.Context, key, tenant string) (*Template, error) {
	query := `
		SELECT id, tenant, template_key, name, subject_template, body_template,
			channel_type, variables_description, publish_status, deactivated
		FROM notification_template
		WHERE template_key = $1 AND (tenant = $2 OR tenant IS NULL)
		ORDER BY tenant NULLS LAST
		LIMIT 1`

	var row templateRow
	err := r.sqlx().GetContext(ctx, &row, query, key, tenant)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, engineerrors.ErrCatalogUnavailable(err)
	}

	tmpl := &Template{
		ID:            row.ID,
		TemplateKey:   row.TemplateKey,
		Name:          row.Name,
		BodyTmpl:      row.BodyTmpl,
		ChannelType:   Channel(row.ChannelType),
		PublishStatus: PublishStatus(row.PublishStatus),
		Deactivated:   row.Deactivated,
	}
	if row.Tenant.Valid {
		t := row.Tenant.String
		tmpl.Tenant = &t
	}
	if row.SubjectTmpl.Valid {
		s := row.SubjectTmpl.String
		tmpl.SubjectTmpl = &s
	}
	if len(row.Variables) > 0 {
		_ = json.Unmarshal(row.Variables, &tmpl.Variables)
	}
	return tmpl, nil
}

// Shutdown releases the underlying connection pool.
func (r *PostgresRepository) Shutdown(ctx context.Context) error {
	return r.db.Close()
}
