package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/retailpulse/internal/models"
	"github.com/shopspring/decimal"
)

const upsertOrderQuery = `INSERT INTO orders (
		id, number, external_id, created_at, status, customer_id, customer_external_id,
		total_summ, sum_paid, discount, source_source, source_medium, source_campaign,
		site, manager_id, order_method, custom_fields, raw_data, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	ON CONFLICT (id) DO UPDATE SET
		number = EXCLUDED.number,
		external_id = EXCLUDED.external_id,
		created_at = EXCLUDED.created_at,
		status = EXCLUDED.status,
		customer_id = EXCLUDED.customer_id,
		customer_external_id = EXCLUDED.customer_external_id,
		total_summ = EXCLUDED.total_summ,
		sum_paid = EXCLUDED.sum_paid,
		discount = EXCLUDED.discount,
		source_source = EXCLUDED.source_source,
		source_medium = EXCLUDED.source_medium,
		source_campaign = EXCLUDED.source_campaign,
		site = EXCLUDED.site,
		manager_id = EXCLUDED.manager_id,
		order_method = EXCLUDED.order_method,
		custom_fields = EXCLUDED.custom_fields,
		raw_data = EXCLUDED.raw_data,
		updated_at = EXCLUDED.updated_at`

const upsertCustomerQuery = `INSERT INTO customers (
		id, external_id, first_name, last_name, email, phone, created_at, site, vip, bad,
		tags, custom_fields, ltv, average_check, orders_count, raw_data, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	ON CONFLICT (id) DO UPDATE SET
		external_id = EXCLUDED.external_id,
		first_name = EXCLUDED.first_name,
		last_name = EXCLUDED.last_name,
		email = EXCLUDED.email,
		phone = EXCLUDED.phone,
		created_at = EXCLUDED.created_at,
		site = EXCLUDED.site,
		vip = EXCLUDED.vip,
		bad = EXCLUDED.bad,
		tags = EXCLUDED.tags,
		custom_fields = EXCLUDED.custom_fields,
		ltv = EXCLUDED.ltv,
		average_check = EXCLUDED.average_check,
		orders_count = EXCLUDED.orders_count,
		raw_data = EXCLUDED.raw_data,
		updated_at = EXCLUDED.updated_at`

const selectOrdersQuery = `SELECT id, number, external_id, created_at, status, customer_id,
		customer_external_id, total_summ, sum_paid, discount, source_source, source_medium,
		source_campaign, site, manager_id, order_method, custom_fields, updated_at
	FROM orders
	WHERE created_at >= $1 AND created_at <= $2`

type PostgresMirrorRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresMirrorRepository(pool *pgxpool.Pool) *PostgresMirrorRepository {
	return &PostgresMirrorRepository{pool: pool}
}

// UpsertOrders writes the batch in a single transaction.
func (r *PostgresMirrorRepository) UpsertOrders(ctx context.Context, orders []models.MirrorOrder) error {
	if len(orders) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, o := range orders {
		customFields, err := jsonDocument(o.CustomFields, "{}")
		if err != nil {
			return fmt.Errorf("failed to encode custom fields of order %d: %w", o.ID, err)
		}
		batch.Queue(upsertOrderQuery,
			o.ID,
			o.Number,
			o.ExternalID,
			o.CreatedAt.UTC(),
			o.Status,
			o.CustomerID,
			o.CustomerExternalID,
			toNumeric(o.TotalSumm),
			toNumeric(o.SumPaid),
			toNumeric(o.Discount),
			o.SourceSource,
			o.SourceMedium,
			o.SourceCampaign,
			o.Site,
			o.ManagerID,
			o.OrderMethod,
			customFields,
			rawDocument(o.RawData, "{}"),
			o.UpdatedAt.UTC(),
		)
	}
	if err := r.sendBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to upsert orders: %w", err)
	}
	return nil
}

func (r *PostgresMirrorRepository) UpsertCustomers(ctx context.Context, customers []models.MirrorCustomer) error {
	if len(customers) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range customers {
		customFields, err := jsonDocument(c.CustomFields, "{}")
		if err != nil {
			return fmt.Errorf("failed to encode custom fields of customer %d: %w", c.ID, err)
		}
		batch.Queue(upsertCustomerQuery,
			c.ID,
			c.ExternalID,
			c.FirstName,
			c.LastName,
			c.Email,
			c.Phone,
			c.CreatedAt.UTC(),
			c.Site,
			c.Vip,
			c.Bad,
			rawDocument(c.Tags, "[]"),
			customFields,
			toNumeric(c.LTV),
			toNumeric(c.AverageCheck),
			c.OrdersCount,
			rawDocument(c.RawData, "{}"),
			c.UpdatedAt.UTC(),
		)
	}
	if err := r.sendBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to upsert customers: %w", err)
	}
	return nil
}

func (r *PostgresMirrorRepository) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
}

// QueryOrders returns the orders created within tr that satisfy every
// predicate. Predicates are evaluated in SQL.
func (r *PostgresMirrorRepository) QueryOrders(ctx context.Context, tr models.TimeRange, preds []models.Predicate) ([]models.Record, error) {
	query, args, err := buildOrderQuery(tr, preds)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query orders: %w", ErrMirrorUnavailable, err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var (
			o            models.MirrorOrder
			total        pgtype.Numeric
			paid         pgtype.Numeric
			discount     pgtype.Numeric
			customFields []byte
		)
		err := rows.Scan(
			&o.ID,
			&o.Number,
			&o.ExternalID,
			&o.CreatedAt,
			&o.Status,
			&o.CustomerID,
			&o.CustomerExternalID,
			&total,
			&paid,
			&discount,
			&o.SourceSource,
			&o.SourceMedium,
			&o.SourceCampaign,
			&o.Site,
			&o.ManagerID,
			&o.OrderMethod,
			&customFields,
			&o.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan order: %w", ErrMirrorUnavailable, err)
		}
		o.CreatedAt = o.CreatedAt.UTC()
		o.TotalSumm = fromNumeric(total)
		o.SumPaid = fromNumeric(paid)
		o.Discount = fromNumeric(discount)
		if err := json.Unmarshal(customFields, &o.CustomFields); err != nil {
			return nil, fmt.Errorf("%w: invalid custom_fields of order %d: %w", ErrMirrorUnavailable, o.ID, err)
		}
		if o.CustomFields == nil {
			o.CustomFields = models.CustomFields{}
		}
		records = append(records, o.Record())
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating orders: %w", ErrMirrorUnavailable, err)
	}

	return records, nil
}

func buildOrderQuery(tr models.TimeRange, preds []models.Predicate) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString(selectOrdersQuery)
	args := []any{tr.From.UTC(), tr.To.UTC()}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for _, p := range preds {
		switch t := p.(type) {
		case models.StatusIn:
			sb.WriteString(" AND status = ANY(" + next(t.Statuses) + ")")
		case models.SiteIn:
			sb.WriteString(" AND site = ANY(" + next(t.Sites) + ")")
		case models.CustomFieldEquals:
			value, err := json.Marshal(t.Value)
			if err != nil {
				return "", nil, fmt.Errorf("failed to encode filter value for %s: %w", t.Field, err)
			}
			sb.WriteString(" AND custom_fields -> " + next(t.Field) + " = " + next(string(value)) + "::jsonb")
		case models.CustomFieldExists:
			sb.WriteString(" AND COALESCE(custom_fields ->> " + next(t.Field) + ", '') <> ''")
		default:
			return "", nil, fmt.Errorf("unsupported predicate %T", p)
		}
	}
	sb.WriteString(" ORDER BY created_at ASC, id ASC")
	return sb.String(), args, nil
}

func jsonDocument(v any, empty string) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return []byte(empty), nil
	}
	return b, nil
}

func rawDocument(raw json.RawMessage, empty string) []byte {
	if len(raw) == 0 || string(raw) == "null" {
		return []byte(empty)
	}
	return []byte(raw)
}

func toNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func fromNumeric(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil || n.NaN {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}
