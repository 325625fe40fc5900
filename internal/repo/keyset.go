// Package repo holds query helpers shared by the domain repositories.
package repo

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
)

// Keyset applies newest-first keyset pagination on (sortColumn, idColumn)
// and fetches one extra row so the caller can tell whether another page
// exists. Columns are trusted identifiers such as "orders.created_at", never
// request input.
func Keyset(query *gorm.DB, sortColumn, idColumn string, cursor *pagination.Cursor, limit int) *gorm.DB {
	if cursor != nil {
		query = query.Where(
			"("+sortColumn+", "+idColumn+") < (?, ?)",
			cursor.CreatedAt, cursor.ID,
		)
	}
	return query.
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: sortColumn, Raw: true}, Desc: true},
			{Column: clause.Column{Name: idColumn, Raw: true}, Desc: true},
		}}).
		Limit(pagination.LimitWithBuffer(limit))
}
