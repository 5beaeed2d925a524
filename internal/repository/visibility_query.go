package repository

import (
	"strconv"
	"strings"

	"eegility/internal/domain"

	"github.com/lib/pq"
)

// queryBuilder collects positional arguments for a hand-built statement.
type queryBuilder struct {
	where []string
	args  []any
}

func (b *queryBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

// buildVisibilityQuery renders the visible-set query for one caller: owned
// records, the department scope of heads, everything for admins, and
// records behind a live accepted grant. The caller's best grant is joined
// in as grant_permission. Filters are ANDed on top, so they can only narrow
// the result.
func buildVisibilityQuery(q domain.VisibilityQuery) (string, []any) {
	b := &queryBuilder{}
	userArg := b.arg(q.Identity.UserID)
	nowArg := b.arg(q.Now)

	id := q.Identity
	switch {
	case id.IsAdmin():
	case id.Role == domain.RoleDepartmentHead && id.Department != "":
		b.where = append(b.where, "(r.owner_user_id = "+userArg+
			" OR (r.institution = "+b.arg(id.Institution)+" AND r.department = "+b.arg(id.Department)+")"+
			" OR g.permission IS NOT NULL)")
	default:
		b.where = append(b.where, "(r.owner_user_id = "+userArg+" OR g.permission IS NOT NULL)")
	}

	f := q.Filter
	if f.SearchTerm != "" {
		p := b.arg("%" + escapeLike(f.SearchTerm) + "%")
		b.where = append(b.where, "(r.original_filename ILIKE "+p+
			" OR r.notes ILIKE "+p+
			" OR r.subject_id ILIKE "+p+")")
	}
	if len(f.Tags) > 0 {
		b.where = append(b.where, "r.tags && "+b.arg(pq.Array(f.Tags))+"::text[]")
	}
	if f.Format != "" {
		b.where = append(b.where, "r.format = "+b.arg(string(f.Format)))
	}
	if q.After != nil {
		date := b.arg(q.After.UploadDate)
		b.where = append(b.where, "(r.upload_date < "+date+
			" OR (r.upload_date = "+date+" AND r.id > "+b.arg(q.After.ID)+"))")
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + recordColumns + `,
        g.permission AS grant_permission
        FROM eeg_records r
        LEFT JOIN LATERAL (
            SELECT s.permission
            FROM sharing_requests s
            WHERE s.eeg_record_id = r.id
              AND s.shared_with_user_id = ` + userArg + `
              AND s.status = 'accepted'
              AND (s.expires_at IS NULL OR s.expires_at >= ` + nowArg + `)
            ORDER BY (s.permission = 'view_download') DESC
            LIMIT 1
        ) g ON TRUE`)
	if len(b.where) > 0 {
		sb.WriteString("\n        WHERE ")
		sb.WriteString(strings.Join(b.where, "\n          AND "))
	}
	sb.WriteString("\n        ORDER BY r.upload_date DESC, r.id ASC")
	if q.Limit > 0 {
		sb.WriteString("\n        LIMIT " + b.arg(q.Limit))
	}
	return sb.String(), b.args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike экранирует спецсимволы LIKE, чтобы поиск был буквальным.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
